// interfaces.go
// Extension points of the store: storage backends and metrics sinks.

package datacache

import (
	"context"
	"time"
)

// Backend holds entries for a single Store. Implementations do not judge
// freshness; the Store decides expiry against its own clock.
type Backend interface {
	// Load returns ErrNotFound when key holds no entry.
	Load(ctx context.Context, key string) (Entry, error)
	// Save stores entry under entry.Key, replacing any previous entry.
	// ttl is a hint for backends that can expire keys on their own.
	Save(ctx context.Context, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
	// Len counts stored entries, including expired ones not yet removed.
	Len(ctx context.Context) (int, error)
	Close() error
}

// Metrics receives cache events. All methods must be safe for concurrent use.
type Metrics interface {
	Hit()
	Miss()
	Expire()
	Set()
	Invalidate(n int)
}

// NoopMetrics discards every event.
type NoopMetrics struct{}

func (NoopMetrics) Hit()           {}
func (NoopMetrics) Miss()          {}
func (NoopMetrics) Expire()        {}
func (NoopMetrics) Set()           {}
func (NoopMetrics) Invalidate(int) {}

// Stats holds store operation counters for monitoring.
type Stats struct {
	Counters map[string]int // Operation name to count
}
