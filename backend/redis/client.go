// Package redis provides a datacache.Backend on top of go-redis. Every key
// is stored under a prefix so several sessions can share one server.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nutrilogic/datacache"
)

// DefaultKeyPrefix namespaces keys when Options.KeyPrefix is empty.
const DefaultKeyPrefix = "nutrilogic:cache:"

const scanCount = 100 // How many keys to fetch per SCAN iteration

// client implements datacache.Backend using Redis.
type client struct {
	redisClient       *redis.Client // Underlying Redis client
	prefix            string
	logger            zerolog.Logger
	createdInternally bool // Indicates whether redisClient was created by this struct
}

// Ensure client implements datacache.Backend and io.Closer.
var (
	_ datacache.Backend = (*client)(nil)
	_ io.Closer         = (*client)(nil)
)

// Options holds configuration for the Redis backend.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Logger    zerolog.Logger
}

// SessionPrefix returns the key prefix used for one session's entries.
func SessionPrefix(sessionID string) string {
	return "nutrilogic:session:" + sessionID + ":"
}

// NewClient creates a Redis backend.
// If redisCli is not nil, it is used directly and left open on Close.
// Otherwise a client is built from opts and pinged before returning.
func NewClient(redisCli *redis.Client, opts *Options) (datacache.Backend, error) {
	if opts == nil {
		opts = &Options{}
	}
	var rdb *redis.Client
	var createdInternally bool

	if redisCli != nil {
		rdb = redisCli
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
		createdInternally = true

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	opts.Logger.Debug().Str("prefix", prefix).Msg("redis cache backend initialized")
	return &client{redisClient: rdb, prefix: prefix, logger: opts.Logger, createdInternally: createdInternally}, nil
}

func (c *client) key(k string) string { return c.prefix + k }

// Load retrieves and decodes the entry stored under key.
func (c *client) Load(ctx context.Context, key string) (datacache.Entry, error) {
	val, err := c.redisClient.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return datacache.Entry{}, datacache.ErrNotFound
	} else if err != nil {
		return datacache.Entry{}, fmt.Errorf("redis Get error for key '%s': %w", key, err)
	}

	var entry datacache.Entry
	if err := json.Unmarshal(val, &entry); err != nil {
		return datacache.Entry{}, fmt.Errorf("redis entry decode error for key '%s': %w", key, err)
	}
	return entry, nil
}

// Save stores entry with a Redis expiry of ttl, so keys of abandoned
// sessions do not outlive the cache window.
func (c *client) Save(ctx context.Context, entry datacache.Entry, ttl time.Duration) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis entry encode error for key '%s': %w", entry.Key, err)
	}
	if err := c.redisClient.Set(ctx, c.key(entry.Key), val, ttl).Err(); err != nil {
		return fmt.Errorf("redis Set error for key '%s': %w", entry.Key, err)
	}
	return nil
}

// Delete removes keys. Keys that do not exist are ignored.
func (c *client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.redisClient.Del(ctx, full...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis Del error for keys %v: %w", keys, err)
	}
	return nil
}

// scanPrefix collects every key under the client's prefix using SCAN.
func (c *client) scanPrefix(ctx context.Context) ([]string, error) {
	var cursor uint64
	var found []string
	matchPattern := c.prefix + "*"

	for {
		var keys []string
		var err error
		keys, cursor, err = c.redisClient.Scan(ctx, cursor, matchPattern, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis SCAN error for prefix '%s': %w", c.prefix, err)
		}
		found = append(found, keys...)
		if cursor == 0 {
			break
		}
	}
	return found, nil
}

// Clear removes every key under the prefix.
func (c *client) Clear(ctx context.Context) error {
	keys, err := c.scanPrefix(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		c.logger.Debug().Str("prefix", c.prefix).Msg("no redis keys to clear")
		return nil
	}
	c.logger.Debug().Str("prefix", c.prefix).Int("keys", len(keys)).Msg("clearing redis keys")
	if err := c.redisClient.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis DEL error for prefix '%s': %w", c.prefix, err)
	}
	return nil
}

// Len counts the keys under the prefix.
func (c *client) Len(ctx context.Context) (int, error) {
	keys, err := c.scanPrefix(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Close implements io.Closer. Only closes redisClient if it was created by NewClient.
func (c *client) Close() error {
	if c.createdInternally && c.redisClient != nil {
		return c.redisClient.Close()
	}
	return nil
}
