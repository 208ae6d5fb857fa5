package datacache

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nutrilogic/datacache/clock"
)

// TTL bounds. The default keeps list and dashboard data at most five
// minutes behind the server.
const (
	DefaultTTL = 5 * time.Minute
	MinTTL     = time.Second
	MaxTTL     = 24 * time.Hour
)

// Config holds the parameters of a Store.
type Config struct {
	Backend Backend       // Required
	TTL     time.Duration // Zero means DefaultTTL
	Clock   clock.Clock   // Nil means the system clock
	Metrics Metrics       // Nil means NoopMetrics
	// Logger receives debug lines for hits and misses and warnings for
	// backend failures. The zero value discards everything.
	Logger zerolog.Logger
}

// ValidateTTL reports whether ttl lies within [MinTTL, MaxTTL].
func ValidateTTL(ttl time.Duration) error {
	if ttl < MinTTL || ttl > MaxTTL {
		return fmt.Errorf("%w: %s not within [%s, %s]", ErrInvalidTTL, ttl, MinTTL, MaxTTL)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.Clock == nil {
		c.Clock = clock.System{}
	}
	if c.Metrics == nil {
		c.Metrics = NoopMetrics{}
	}
	return c
}
