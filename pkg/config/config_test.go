package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsModerationSettings(t *testing.T) {
	t.Setenv("MODERATION_SYSTEM_USER_ID", " system-user ")
	t.Setenv("MODERATION_STRICT_UPDATES", "true")
	t.Setenv("COVERAGE_ENABLED", "true")
	t.Setenv("COVERAGE_MIN_LAT", "40.1")
	t.Setenv("ENTITY_CACHE_TTL", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "system-user", cfg.Moderation.SystemUserID)
	assert.True(t, cfg.Moderation.StrictUpdates)
	assert.InDelta(t, 0.85, cfg.Moderation.DuplicateThreshold, 0.0001)
	assert.True(t, cfg.Coverage.Enabled)
	assert.InDelta(t, 40.1, cfg.Coverage.MinLat, 0.0001)
	assert.InDelta(t, 90, cfg.Coverage.MaxLat, 0.0001)
	assert.Equal(t, 2*time.Minute, cfg.Cache.EntityTTL)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseDuration("bogus", 3*time.Second))
	assert.Equal(t, 1.5, parseFloat(" 1.5 ", 0))
	assert.Equal(t, 7.0, parseFloat("x", 7))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
	assert.Nil(t, splitAndTrim(""))
}
