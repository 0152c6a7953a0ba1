// Package version holds the comparison rules for server builds.
//
// Builds are identified as YYYY.MM.DD-<hash>. Because the date prefix is
// fixed width, plain string ordering matches chronological ordering, and the
// rules here rely on that rather than parsing the version.
package version

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
)

type Ordering int

const (
	Lesser  Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

func (o Ordering) String() string {
	switch o {
	case Lesser:
		return "lesser"
	case Greater:
		return "greater"
	default:
		return "equal"
	}
}

var datePrefix = regexp.MustCompile(`^\d{4}\.\d{2}\.\d{2}`)

// IsKnown reports whether v is a real fetched or recorded version.
func IsKnown(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, domain.UnknownVersion)
}

// Compare orders two versions. An unknown version is older than any known
// one and two unknown versions are equal.
func Compare(a, b string) Ordering {
	ka, kb := IsKnown(a), IsKnown(b)
	switch {
	case !ka && !kb:
		return Equal
	case !ka:
		return Lesser
	case !kb:
		return Greater
	}

	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a > b:
		return Greater
	case a < b:
		return Lesser
	default:
		return Equal
	}
}

// IsUpdateAvailable compares versions on the same channel. A remote that
// could not be fetched never offers an update.
func IsUpdateAvailable(installed, remote string) bool {
	if !IsKnown(remote) {
		return false
	}
	return Compare(remote, installed) == Greater
}

// IsCrossChannelSwitchEligible is a heuristic: builds from different channels
// are not strictly ordered, so only the date prefixes are compared. A true
// result means a switch can be offered, not that it is safe for saves.
func IsCrossChannelSwitchEligible(_ domain.Channel, installed, otherRemote string) bool {
	if !IsKnown(otherRemote) {
		return false
	}
	if strings.TrimSpace(otherRemote) == strings.TrimSpace(installed) {
		return false
	}
	return DatePrefix(otherRemote) >= DatePrefix(installed)
}

// IsDowngrade reports whether moving to target goes back in time.
func IsDowngrade(target, installed string) bool {
	if !IsKnown(target) || !IsKnown(installed) {
		return false
	}
	return Compare(target, installed) == Lesser
}

// DatePrefix returns the YYYY.MM.DD part of v. Unknown versions have an
// empty prefix; versions without a date prefix are returned unchanged.
func DatePrefix(v string) string {
	if !IsKnown(v) {
		return ""
	}
	v = strings.TrimSpace(v)
	if m := datePrefix.FindString(v); m != "" {
		return m
	}
	return v
}

// ParseChannel accepts the channel names used by the downloader and the
// API. An empty string selects the release channel.
func ParseChannel(s string) (domain.Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "release":
		return domain.ChannelRelease, nil
	case "pre-release", "prerelease":
		return domain.ChannelPrerelease, nil
	default:
		return "", fmt.Errorf("unknown patchline %q", s)
	}
}

// Other returns the channel that is not c.
func Other(c domain.Channel) domain.Channel {
	if c == domain.ChannelPrerelease {
		return domain.ChannelRelease
	}
	return domain.ChannelPrerelease
}

type Sorter []string

func (s Sorter) Len() int           { return len(s) }
func (s Sorter) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s Sorter) Less(i, j int) bool { return Compare(s[i], s[j]) == Lesser }

// SortNewestFirst sorts versions from newest to oldest.
func SortNewestFirst(versions []string) {
	sort.Sort(sort.Reverse(Sorter(versions)))
}
