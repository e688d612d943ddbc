package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vitalcast")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, time.Minute, cfg.DispatchInterval)
	assert.Equal(t, 100, cfg.DispatchBatchLimit)
	assert.Equal(t, 3, cfg.MaxDispatchAttempts)
	assert.Equal(t, int64(1000), cfg.MaxClients)
	assert.Equal(t, 20, cfg.MaxClientsPerIP)
	assert.Equal(t, 10.0, cfg.ConnRatePerSec)
	assert.Equal(t, 10, cfg.ConnRateBurst)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_ParsesOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vitalcast")
	t.Setenv("DISPATCH_INTERVAL", "15s")
	t.Setenv("DISPATCH_BATCH_LIMIT", "25")
	t.Setenv("MAX_DISPATCH_ATTEMPTS", "5")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.DispatchInterval)
	assert.Equal(t, 25, cfg.DispatchBatchLimit)
	assert.Equal(t, 5, cfg.MaxDispatchAttempts)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
}

func TestLoad_RejectsInvalidInterval(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vitalcast")

	t.Run("not a duration", func(t *testing.T) {
		t.Setenv("DISPATCH_INTERVAL", "sixty seconds")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("below minimum", func(t *testing.T) {
		t.Setenv("DISPATCH_INTERVAL", "100ms")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoad_RejectsInvalidBatchLimit(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vitalcast")
	t.Setenv("DISPATCH_BATCH_LIMIT", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISPATCH_BATCH_LIMIT")
}
