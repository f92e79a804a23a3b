package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVersionOverrides(t *testing.T) {
	oldVersion, oldCommit, oldTime := Version, GitCommit, BuildTime
	t.Cleanup(func() {
		Version, GitCommit, BuildTime = oldVersion, oldCommit, oldTime
	})

	Version = "v1.2.0"
	GitCommit = "0123456789abcdef"
	BuildTime = "2024-03-01T10:00:00Z"

	info := GetBuildInfo()
	assert.Equal(t, "v1.2.0", info.Version)
	assert.Equal(t, "0123456789abcdef", info.GitCommit)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), info.BuildTime)
	assert.Equal(t, "v1.2.0 (0123456)", GetShortVersion())
	assert.Contains(t, GetDetailedVersion(), "Commit: 0123456789abcdef")
}

func TestParseBuildTime(t *testing.T) {
	assert.True(t, parseBuildTime("unknown").IsZero())
	assert.True(t, parseBuildTime("yesterday").IsZero())
	assert.False(t, parseBuildTime("2024-03-01 10:00:00").IsZero())
}
