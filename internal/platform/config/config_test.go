package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TRANSITCLOCK_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, BackendMemory, cfg.Storage.EffectiveCacheBackend())
	assert.Equal(t, 15*time.Second, cfg.Refresh.MissingConfigRetry)
	assert.Equal(t, 15*time.Minute, cfg.Refresh.SweepInterval)
	assert.Equal(t, "first", cfg.Refresh.StalenessMode)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transitclock.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: development
storage:
  backend: sqlite
  sqlite_path: /var/lib/transitclock/state.db
refresh:
  workers: 8
  staleness_mode: earliest
  sweep_interval: 5m
`), 0o600))

	t.Setenv("WORKERS", "2")
	t.Setenv("UPSTREAM_TIMEOUT", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/transitclock/state.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 2, cfg.Refresh.Workers, "env overrides file")
	assert.Equal(t, "earliest", cfg.Refresh.StalenessMode)
	assert.Equal(t, 5*time.Minute, cfg.Refresh.SweepInterval)
	assert.Equal(t, 3*time.Second, cfg.Refresh.UpstreamTimeout)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("TRANSITCLOCK_CONFIG", "")
	t.Setenv("PAST_DUE_RETRY", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "PAST_DUE_RETRY must be a duration"), err.Error())
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown backend":       {"STORAGE_BACKEND": "etcd"},
		"postgres without dsn":  {"STORAGE_BACKEND": "postgres"},
		"bad staleness mode":    {"STALENESS_MODE": "latest"},
		"zero workers":          {"WORKERS": "0"},
		"username w/o password": {"CONTROL_USERNAME": "dashboard"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("TRANSITCLOCK_CONFIG", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestLoad_RedisCacheBackend(t *testing.T) {
	t.Setenv("TRANSITCLOCK_CONFIG", "")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.Storage.EffectiveCacheBackend())
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Storage.Redis.DB)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}
