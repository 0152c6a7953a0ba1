package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	ManagerVersion = "2.5.0"
	ManagerRepo    = "Stormster/hytale-server-manager"
)

// ReleasesAPI is the GitHub API root, replaceable in tests.
var ReleasesAPI = "https://api.github.com"

type ManagerRelease struct {
	CurrentVersion  string `json:"current_version"`
	LatestVersion   string `json:"latest_version"`
	UpdateAvailable bool   `json:"update_available"`
	ReleaseURL      string `json:"release_url,omitempty"`
}

// CheckManagerRelease asks GitHub for the latest published release of the
// manager and reports whether it is newer than this build.
func CheckManagerRelease(ctx context.Context) (*ManagerRelease, error) {
	ctx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		ReleasesAPI+"/repos/"+ManagerRepo+"/releases/latest", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "hytale-server-manager/"+ManagerVersion)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release lookup: %s", resp.Status)
	}

	var latest struct {
		TagName string `json:"tag_name"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&latest); err != nil {
		return nil, fmt.Errorf("release lookup: %w", err)
	}

	rel := &ManagerRelease{CurrentVersion: ManagerVersion, LatestVersion: ManagerVersion}
	tag := strings.TrimPrefix(latest.TagName, "v")
	if tag != "" && compareVersions(tag, ManagerVersion) > 0 {
		rel.LatestVersion = tag
		rel.UpdateAvailable = true
		rel.ReleaseURL = latest.HTMLURL
	}
	return rel, nil
}

// compareVersions orders dotted numeric versions; a missing component
// counts as zero.
func compareVersions(a, b string) int {
	pa := strings.Split(strings.TrimPrefix(a, "v"), ".")
	pb := strings.Split(strings.TrimPrefix(b, "v"), ".")
	for i := 0; i < max(len(pa), len(pb)); i++ {
		var x, y int
		if i < len(pa) {
			x, _ = strconv.Atoi(pa[i])
		}
		if i < len(pb) {
			y, _ = strconv.Atoi(pb[i])
		}
		switch {
		case x > y:
			return 1
		case x < y:
			return -1
		}
	}
	return 0
}
