package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrilogic/datacache"
	"github.com/nutrilogic/datacache/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, datacache.DefaultTTL, cfg.Cache.TTL)
	assert.Equal(t, config.BackendMemory, cfg.Cache.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nutrilogic.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  url: https://posyandu.example.id
cache:
  ttl: 2m
  backend: redis
redis:
  addr: redis:6379
log:
  level: debug
`), 0o600))

	t.Setenv("NUTRILOGIC_CACHE_TTL", "300")
	t.Setenv("NUTRILOGIC_REDIS_ADDR", "cache.internal:6380")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://posyandu.example.id", cfg.API.URL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout, "defaults survive a partial file")
	assert.Equal(t, 300*time.Second, cfg.Cache.TTL)
	assert.Equal(t, config.BackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "cache.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("NUTRILOGIC_CACHE_TTL", "soon")
	_, err = config.Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.TTL = 48 * time.Hour
	cfg.Cache.Backend = "memcached"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, datacache.ErrInvalidTTL)
	assert.Contains(t, err.Error(), "memcached")
}

func TestParseTTL(t *testing.T) {
	d, err := config.ParseTTL("90")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = config.ParseTTL("5m")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)
}

func TestYAML_MasksSecrets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.Password = "rahasia"
	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "rahasia")
	assert.Contains(t, string(out), "ttl: 5m0s")
	assert.Equal(t, "rahasia", cfg.API.Password)
}
