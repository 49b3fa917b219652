package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuildInfo(t *testing.T, version, commit, date string) {
	t.Helper()
	oldVersion, oldCommit, oldDate := Version, GitCommit, BuildDate
	Version, GitCommit, BuildDate = version, commit, date
	t.Cleanup(func() { Version, GitCommit, BuildDate = oldVersion, oldCommit, oldDate })
}

func TestGetFormattedVersion(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		commit   string
		date     string
		expected string
	}{
		{
			name:     "development build",
			version:  "0.3.0",
			commit:   "unknown",
			date:     "unknown",
			expected: "akashchat v0.3.0",
		},
		{
			name:     "release build",
			version:  "1.2.3",
			commit:   "abcdef0123456",
			date:     "2025-06-01",
			expected: "akashchat v1.2.3, commit abcdef0, built 2025-06-01",
		},
		{
			name:     "invalid version",
			version:  "not-a-version",
			commit:   "unknown",
			date:     "unknown",
			expected: "akashchat vnot-a-version (invalid version)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuildInfo(t, tt.version, tt.commit, tt.date)
			assert.Equal(t, tt.expected, GetFormattedVersion())
		})
	}
}

func TestGetBaseVersion(t *testing.T) {
	withBuildInfo(t, "0.3.1-beta.2+45.abc1234", "unknown", "unknown")
	assert.Equal(t, "0.3.1", GetBaseVersion())
	assert.Equal(t, "akashchat/0.3.1", UserAgent())
	assert.True(t, IsPrerelease())
	assert.True(t, IsDevelopment())
}

func TestGetInfo(t *testing.T) {
	withBuildInfo(t, "0.3.0", "deadbeef", "2025-06-01")

	info, err := GetInfo()
	require.NoError(t, err)
	assert.Equal(t, "0.3.0", info.Version)
	assert.Equal(t, uint64(3), info.SemVer.Minor())
	assert.NotEmpty(t, info.GoVersion)
	assert.False(t, IsDevelopment())
	assert.False(t, IsPrerelease())
}
