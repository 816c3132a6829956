package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("LIVE_PUBLISH_TIMEOUT_MS", "")
	t.Setenv("REDIS_HOST", "")

	cfg := FromEnv()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.StorageBackend)
	assert.Equal(t, 100*time.Millisecond, cfg.LivePublishTimeout)
	assert.Equal(t, 64, cfg.SessionBufferSize)
	assert.Equal(t, 720*time.Minute, cfg.UsersCacheExpiration)
	assert.False(t, cfg.RedisEnabled())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("LIVE_PUBLISH_TIMEOUT_MS", "250")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("DB_MAX_CONNS", "not-a-number")

	cfg := FromEnv()

	assert.Equal(t, BackendMemory, cfg.StorageBackend)
	assert.Equal(t, 250*time.Millisecond, cfg.LivePublishTimeout)
	assert.Equal(t, "cache:6380", cfg.RedisAddr())
	assert.Equal(t, 10, cfg.DBMaxConns)
}

func TestValidate(t *testing.T) {
	cfg := Config{
		StorageBackend:     BackendMemory,
		JWTSecret:          "secret",
		SessionBufferSize:  8,
		LivePublishTimeout: time.Millisecond,
	}
	require.NoError(t, cfg.Validate())

	cfg.StorageBackend = "mongo"
	assert.Error(t, cfg.Validate())

	cfg.StorageBackend = BackendMemory
	cfg.JWTSecret = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadEnvReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SHAREXP_TEST_KEY=from-file\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("SHAREXP_TEST_KEY", "")

	LoadEnv()

	assert.Equal(t, "from-file", os.Getenv("SHAREXP_TEST_KEY"))
}
