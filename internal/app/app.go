// Package app assembles the nutrilogic client: configuration, logging,
// metrics, the API client and the session manager. Providers are wired by
// google/wire from cmd/nutrilogic.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/wire"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nutrilogic/datacache"
	"github.com/nutrilogic/datacache/backend/redis"
	"github.com/nutrilogic/datacache/internal/api"
	"github.com/nutrilogic/datacache/internal/children"
	"github.com/nutrilogic/datacache/internal/config"
	"github.com/nutrilogic/datacache/internal/logging"
	"github.com/nutrilogic/datacache/internal/metrics"
	"github.com/nutrilogic/datacache/keys"
	"github.com/nutrilogic/datacache/session"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "nutrilogic"

const redisPingTimeout = 5 * time.Second

// App is the assembled client.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Metrics  *metrics.Cache
	API      *api.Client
	Sessions *session.Manager
}

// ProviderSet builds an *App from a *config.Config.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideAPIClient,
	ProvideRedisClient,
	ProvideBackendFactory,
	ProvideStoreConfig,
	ProvideSessionManager,
	wire.Struct(new(App), "*"),
)

// ProvideLogger writes to stderr so command output stays clean on stdout.
func ProvideLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Log.Level, os.Stderr, cfg.Log.JSON)
}

func ProvideMetrics() *metrics.Cache {
	return metrics.NewCache(MetricsNamespace)
}

func ProvideAPIClient(cfg *config.Config, logger zerolog.Logger) (*api.Client, error) {
	return api.NewClient(api.Options{
		BaseURL: cfg.API.URL,
		Timeout: cfg.API.Timeout,
		Logger:  logger.With().Str("component", "api").Logger(),
	})
}

// ProvideRedisClient connects to Redis when the redis backend is selected
// and returns a nil client otherwise.
func ProvideRedisClient(cfg *config.Config, logger zerolog.Logger) (*goredis.Client, func(), error) {
	if cfg.Cache.Backend != config.BackendRedis {
		return nil, func() {}, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Redis.Addr, err)
	}
	cleanup := func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing redis client")
		}
	}
	return rdb, cleanup, nil
}

// ProvideBackendFactory gives each session a prefix on the shared Redis
// client, or its own memory backend when rdb is nil.
func ProvideBackendFactory(rdb *goredis.Client, logger zerolog.Logger) session.BackendFactory {
	if rdb == nil {
		return session.MemoryBackends()
	}
	return func(ctx context.Context, sessionID string) (datacache.Backend, error) {
		return redis.NewClient(rdb, &redis.Options{
			KeyPrefix: redis.SessionPrefix(sessionID),
			Logger:    logger,
		})
	}
}

func ProvideStoreConfig(cfg *config.Config, logger zerolog.Logger, m *metrics.Cache) datacache.Config {
	return datacache.Config{
		TTL:     cfg.Cache.TTL,
		Metrics: m,
		Logger:  logger.With().Str("component", "datacache").Logger(),
	}
}

// ProvideSessionManager closes every session on cleanup.
func ProvideSessionManager(storeCfg datacache.Config, factory session.BackendFactory, logger zerolog.Logger) (*session.Manager, func()) {
	m := session.NewManager(storeCfg, factory, logger)
	return m, func() {
		if err := m.CloseAll(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("closing sessions")
		}
	}
}

// Session is a logged-in user with a cache-backed children service.
type Session struct {
	*session.Session
	User     api.User
	Children *children.Service
	client   *api.Client
}

// Login authenticates against the API and opens a session with an empty cache.
func (a *App) Login(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, errors.New("app: email and password are required")
	}
	res, err := a.API.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	role, err := keys.ParseRole(res.User.Role)
	if err != nil {
		return nil, err
	}
	client := a.API.WithToken(res.Token)
	sess, err := a.Sessions.Open(ctx, role, res.Token)
	if err != nil {
		return nil, err
	}
	return &Session{
		Session:  sess,
		User:     res.User,
		Children: children.NewService(client, sess.Store, role, a.Logger),
		client:   client,
	}, nil
}

// Logout revokes the token and discards the session's cache. The cache is
// discarded even if the API call fails.
func (a *App) Logout(ctx context.Context, s *Session) error {
	apiErr := s.client.Logout(ctx)
	return errors.Join(apiErr, a.Sessions.Close(ctx, s.ID))
}
