package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg := Load()

		assert.Equal(t, "http://localhost:4000", cfg.StoreBaseURL)
		assert.Equal(t, 5*time.Second, cfg.DashboardPollInterval)
		assert.Equal(t, 3000.0, cfg.ProximityThresholdMeters)
		assert.False(t, cfg.ProximityEnforce)
		assert.Equal(t, 0.4, cfg.MatchConfidence)
		assert.Equal(t, 2*time.Second, cfg.MatchSustain)
	})

	t.Run("Overrides", func(t *testing.T) {
		t.Setenv("STORE_BASE_URL", "http://store:9000")
		t.Setenv("PROXIMITY_ENFORCE", "true")
		t.Setenv("PROXIMITY_THRESHOLD_METERS", "150.5")
		t.Setenv("DASHBOARD_POLL_INTERVAL", "1s")
		t.Setenv("RATE_LIMIT_PER_MIN", "42")
		t.Setenv("CORS_ORIGINS", "https://a.edu, https://b.edu,")
		t.Setenv("INSTRUCTOR_AUTH", "1")

		cfg := Load()

		assert.Equal(t, []string{"https://a.edu", "https://b.edu"}, cfg.CORSOrigins)
		assert.True(t, cfg.InstructorAuth)

		assert.Equal(t, "http://store:9000", cfg.StoreBaseURL)
		assert.True(t, cfg.ProximityEnforce)
		assert.Equal(t, 150.5, cfg.ProximityThresholdMeters)
		assert.Equal(t, time.Second, cfg.DashboardPollInterval)
		assert.Equal(t, 42, cfg.RateLimitPerMin)
	})

	t.Run("Invalid Values Fall Back", func(t *testing.T) {
		t.Setenv("WIZARD_TTL", "soon")
		t.Setenv("FACE_SKIP", "maybe")
		t.Setenv("RATE_LIMIT_PER_MIN", "many")

		cfg := Load()

		assert.Equal(t, 2*time.Hour, cfg.WizardTTL)
		assert.True(t, cfg.FaceSkip)
		assert.Equal(t, 600, cfg.RateLimitPerMin)
	})
}

func TestLocation(t *testing.T) {
	loc, err := App{Timezone: "Africa/Lagos"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "Africa/Lagos", loc.String())

	loc, err = App{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	_, err = App{Timezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}
