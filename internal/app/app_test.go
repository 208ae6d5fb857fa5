package app_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrilogic/datacache/backend/redis"
	"github.com/nutrilogic/datacache/internal/app"
	"github.com/nutrilogic/datacache/internal/config"
	"github.com/nutrilogic/datacache/internal/devserver"
	"github.com/nutrilogic/datacache/keys"
)

// buildApp assembles an App from the providers the way the generated injector does.
func buildApp(t *testing.T, cfg *config.Config) *app.App {
	t.Helper()
	logger := zerolog.Nop()
	m := app.ProvideMetrics()
	client, err := app.ProvideAPIClient(cfg, logger)
	require.NoError(t, err)
	rdb, cleanupRedis, err := app.ProvideRedisClient(cfg, logger)
	require.NoError(t, err)
	factory := app.ProvideBackendFactory(rdb, logger)
	manager, cleanupSessions := app.ProvideSessionManager(app.ProvideStoreConfig(cfg, logger, m), factory, logger)
	t.Cleanup(func() {
		cleanupSessions()
		cleanupRedis()
	})
	return &app.App{Config: cfg, Logger: logger, Metrics: m, API: client, Sessions: manager}
}

func startDevServer(t *testing.T) string {
	t.Helper()
	srv, err := devserver.New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	_, _, err = srv.Seed(context.Background())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	return ts.URL
}

func TestApp_LoginLogout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.URL = startDevServer(t)
	a := buildApp(t, cfg)
	ctx := context.Background()

	_, err := a.Login(ctx, "", "")
	assert.Error(t, err)
	_, err = a.Login(ctx, "parent@posyandu.test", "nope")
	assert.Error(t, err)

	s, err := a.Login(ctx, "parent@posyandu.test", "password")
	require.NoError(t, err)
	assert.Equal(t, keys.RoleParent, s.Role)
	assert.Equal(t, keys.RoleParent, s.Children.Role())
	assert.Equal(t, 1, a.Sessions.Len())

	res, err := s.Children.List(ctx, keys.ChildFilter{})
	require.NoError(t, err)
	assert.Len(t, res.Value, 2)
	res, err = s.Children.List(ctx, keys.ChildFilter{})
	require.NoError(t, err)
	assert.True(t, res.FromCache)

	require.NoError(t, a.Logout(ctx, s))
	assert.Zero(t, a.Sessions.Len())
	_, ok := s.Store.Get(ctx, keys.DashboardSummary(keys.RoleParent))
	assert.False(t, ok)
}

func TestApp_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.DefaultConfig()
	cfg.API.URL = startDevServer(t)
	cfg.Cache.Backend = config.BackendRedis
	cfg.Redis.Addr = mr.Addr()
	require.NoError(t, cfg.Validate())
	a := buildApp(t, cfg)
	ctx := context.Background()

	s, err := a.Login(ctx, "kader@posyandu.test", "password")
	require.NoError(t, err)
	_, err = s.Children.Dashboard(ctx)
	require.NoError(t, err)

	key := redis.SessionPrefix(s.ID) + keys.DashboardSummary(keys.RoleKader)
	require.True(t, mr.Exists(key))
	raw, err := mr.Get(key)
	require.NoError(t, err)
	var stored struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "kader_dashboard_summary", stored.Key)

	require.NoError(t, a.Logout(ctx, s))
	assert.False(t, mr.Exists(key))
}

func TestProvideRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.DefaultConfig()
	cfg.Cache.Backend = config.BackendRedis
	cfg.Redis.Addr = addr
	_, _, err := app.ProvideRedisClient(cfg, zerolog.Nop())
	assert.Error(t, err)
}
