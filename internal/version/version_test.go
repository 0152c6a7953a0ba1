package version

import (
	"testing"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare_Lexicographic(t *testing.T) {
	cases := []struct {
		a, b string
		want Ordering
	}{
		{"2025.02.01-def", "2025.01.10-abc", Greater},
		{"2025.01.10-abc", "2025.02.01-def", Lesser},
		{"2025.01.10-abc", "2025.01.10-abc", Equal},
		{"2025.01.10-abd", "2025.01.10-abc", Greater},
		{"2024.12.31-zzz", "2025.01.01-aaa", Lesser},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Compare(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
	}
}

func TestCompare_MatchesStringOrder(t *testing.T) {
	versions := []string{
		"2025.01.10-abc", "2025.02.01-def", "2024.11.30-0f1", "2025.02.01-aaa", "2026.01.01-000",
	}
	for _, a := range versions {
		for _, b := range versions {
			got := Compare(a, b)
			assert.Equal(t, a > b, got == Greater, "%s > %s", a, b)
			assert.Equal(t, a < b, got == Lesser, "%s < %s", a, b)
		}
	}
}

func TestCompare_Unknown(t *testing.T) {
	assert.Equal(t, Lesser, Compare(domain.UnknownVersion, "2025.01.10-abc"))
	assert.Equal(t, Lesser, Compare("", "2025.01.10-abc"))
	assert.Equal(t, Greater, Compare("2000.01.01-a", domain.UnknownVersion))
	assert.Equal(t, Equal, Compare("", domain.UnknownVersion))
}

func TestIsUpdateAvailable(t *testing.T) {
	assert.True(t, IsUpdateAvailable(domain.UnknownVersion, "2025.01.10-abc"))
	assert.True(t, IsUpdateAvailable("", "1999.01.01-x"))
	assert.True(t, IsUpdateAvailable("2025.01.10-abc", "2025.02.01-def"))
	assert.False(t, IsUpdateAvailable("2025.02.01-def", "2025.02.01-def"))
	assert.False(t, IsUpdateAvailable("2025.02.01-def", "2025.01.10-abc"))
	assert.False(t, IsUpdateAvailable("2025.01.10-abc", ""), "failed fetch never offers an update")
}

func TestIsCrossChannelSwitchEligible(t *testing.T) {
	installed := "2025.01.10-abc"

	assert.True(t, IsCrossChannelSwitchEligible(domain.ChannelRelease, installed, "2025.01.10-pre"))
	assert.True(t, IsCrossChannelSwitchEligible(domain.ChannelRelease, installed, "2025.01.20-pre"))
	assert.False(t, IsCrossChannelSwitchEligible(domain.ChannelRelease, installed, installed))
	assert.False(t, IsCrossChannelSwitchEligible(domain.ChannelRelease, installed, "2025.01.09-pre"))
	assert.False(t, IsCrossChannelSwitchEligible(domain.ChannelRelease, installed, ""))
	assert.True(t, IsCrossChannelSwitchEligible(domain.ChannelRelease, domain.UnknownVersion, "2025.01.09-pre"))
}

func TestIsDowngrade(t *testing.T) {
	assert.True(t, IsDowngrade("2025.01.09-x", "2025.01.10-abc"))
	assert.False(t, IsDowngrade("2025.01.11-x", "2025.01.10-abc"))
	assert.False(t, IsDowngrade("2025.01.11-x", domain.UnknownVersion))
}

func TestDatePrefix(t *testing.T) {
	assert.Equal(t, "2025.01.10", DatePrefix("2025.01.10-abc"))
	assert.Equal(t, "", DatePrefix(domain.UnknownVersion))
	assert.Equal(t, "weird", DatePrefix("weird"))
}

func TestParseChannel(t *testing.T) {
	ch, err := ParseChannel("")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelRelease, ch)

	ch, err = ParseChannel("PreRelease")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelPrerelease, ch)

	_, err = ParseChannel("nightly")
	assert.Error(t, err)
}

func TestSortNewestFirst(t *testing.T) {
	v := []string{"2025.01.10-a", domain.UnknownVersion, "2025.03.01-b", "2024.12.01-c"}
	SortNewestFirst(v)
	assert.Equal(t, []string{"2025.03.01-b", "2025.01.10-a", "2024.12.01-c", domain.UnknownVersion}, v)
}
