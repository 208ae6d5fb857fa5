// Package config loads the nutrilogic CLI configuration: defaults, then a
// YAML file, then NUTRILOGIC_* environment variables, then command flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nutrilogic/datacache"
)

// Cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// APIConfig holds posyandu API settings
type APIConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	Email    string        `yaml:"email"`
	Password string        `yaml:"password"`
}

// CacheConfig holds session cache settings
type CacheConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	Backend string        `yaml:"backend"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig holds the Prometheus endpoint settings. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DevServerConfig holds settings of the local stand-in API
type DevServerConfig struct {
	Addr string `yaml:"addr"`
	DSN  string `yaml:"dsn"`
	Seed bool   `yaml:"seed"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	API       APIConfig       `yaml:"api"`
	Cache     CacheConfig     `yaml:"cache"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	DevServer DevServerConfig `yaml:"devserver"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			URL:     "http://localhost:8080",
			Timeout: 15 * time.Second,
		},
		Cache: CacheConfig{
			TTL:     datacache.DefaultTTL,
			Backend: BackendMemory,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Log: LogConfig{
			Level: "info",
		},
		DevServer: DevServerConfig{
			Addr: "localhost:8080",
			DSN:  "file:nutrilogic-dev.db?_foreign_keys=on",
			Seed: true,
		},
	}
}

// LoadFromFile loads configuration from a YAML file over the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads path when it is not empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config
func LoadFromEnv(cfg *Config) error {
	if v := os.Getenv("NUTRILOGIC_API_URL"); v != "" {
		cfg.API.URL = v
	}
	if v := os.Getenv("NUTRILOGIC_API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NUTRILOGIC_API_TIMEOUT: %w", err)
		}
		cfg.API.Timeout = d
	}
	if v := os.Getenv("NUTRILOGIC_EMAIL"); v != "" {
		cfg.API.Email = v
	}
	if v := os.Getenv("NUTRILOGIC_PASSWORD"); v != "" {
		cfg.API.Password = v
	}
	if v := os.Getenv("NUTRILOGIC_CACHE_TTL"); v != "" {
		d, err := ParseTTL(v)
		if err != nil {
			return fmt.Errorf("NUTRILOGIC_CACHE_TTL: %w", err)
		}
		cfg.Cache.TTL = d
	}
	if v := os.Getenv("NUTRILOGIC_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("NUTRILOGIC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("NUTRILOGIC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("NUTRILOGIC_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NUTRILOGIC_REDIS_DB: %w", err)
		}
		cfg.Redis.DB = db
	}
	if v := os.Getenv("NUTRILOGIC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NUTRILOGIC_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("NUTRILOGIC_DEVSERVER_DSN"); v != "" {
		cfg.DevServer.DSN = v
	}
	return nil
}

// ParseTTL accepts a Go duration ("90s", "5m") or a bare number of seconds.
func ParseTTL(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Validate checks the TTL range and the backend name.
func (c *Config) Validate() error {
	var errs []error
	if err := datacache.ValidateTTL(c.Cache.TTL); err != nil {
		errs = append(errs, fmt.Errorf("cache.ttl: %w", err))
	}
	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.API.URL == "" {
		errs = append(errs, errors.New("api.url is required"))
	}
	return errors.Join(errs...)
}

// YAML renders the config, with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	cp := *c
	if cp.API.Password != "" {
		cp.API.Password = "******"
	}
	if cp.Redis.Password != "" {
		cp.Redis.Password = "******"
	}
	return yaml.Marshal(&cp)
}
