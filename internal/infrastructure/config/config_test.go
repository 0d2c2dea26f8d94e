package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 15*time.Second, cfg.Launch.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Launch.GracePeriod)
	assert.Greater(t, cfg.Launch.SingleInstanceGrace, cfg.Launch.GracePeriod)
	assert.Greater(t, cfg.Launch.SameClassDelay, cfg.Launch.InterAppDelay)
	assert.Equal(t, 5, cfg.Launch.MaxInstancesPerApp)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REMEMBERD_LAUNCH_TIMEOUT", "7s")
	t.Setenv("REMEMBERD_MAX_INSTANCES_PER_APP", "3")
	t.Setenv("REMEMBERD_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7*time.Second, cfg.Launch.Timeout)
	assert.Equal(t, 3, cfg.Launch.MaxInstancesPerApp)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadOrDefaultBadEnv(t *testing.T) {
	t.Setenv("REMEMBERD_LAUNCH_TIMEOUT", "not-a-duration")

	cfg := LoadOrDefault()
	assert.Equal(t, 15*time.Second, cfg.Launch.Timeout)
}
