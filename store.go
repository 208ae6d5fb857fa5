package datacache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nutrilogic/datacache/clock"
)

// Counter names reported by Store.Stats.
const (
	CounterGet                  = "Get"
	CounterGetHit               = "GetHit"
	CounterGetMiss              = "GetMiss"
	CounterGetExpired           = "GetExpired"
	CounterGetError             = "GetError"
	CounterSet                  = "Set"
	CounterSetError             = "SetError"
	CounterInvalidate           = "Invalidate"
	CounterInvalidateError      = "InvalidateError"
	CounterInvalidateCollection = "InvalidateCollection"
	CounterClear                = "Clear"
)

var jsonNull = json.RawMessage("null")

// Store is a key/value cache of API responses with a fixed TTL.
//
// Get, Set and Invalidate never fail from the caller's point of view: a
// backend error is logged, counted and treated as a miss or a no-op. A
// Store is safe for concurrent use.
type Store struct {
	backend Backend
	index   *Index
	clock   clock.Clock
	ttl     time.Duration
	metrics Metrics
	logger  zerolog.Logger

	// writeMu serializes writes so a lazy expiry delete cannot remove an
	// entry written after the expired one was observed.
	writeMu sync.Mutex

	countersMu sync.Mutex
	counters   map[string]int

	closed atomic.Bool
}

// New creates a Store from cfg.
func New(cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, ErrBackendNotSet
	}
	cfg = cfg.withDefaults()
	if err := ValidateTTL(cfg.TTL); err != nil {
		return nil, err
	}
	return &Store{
		backend:  cfg.Backend,
		index:    NewIndex(),
		clock:    cfg.Clock,
		ttl:      cfg.TTL,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		counters: make(map[string]int),
	}, nil
}

// TTL returns the validity window of every entry.
func (s *Store) TTL() time.Duration { return s.ttl }

// Get returns the payload stored under key if it exists and has not
// expired. Expired entries are removed as a side effect.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	s.incrCounter(CounterGet)
	if key == "" || s.closed.Load() {
		s.miss()
		return nil, false
	}

	entry, err := s.backend.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.incrCounter(CounterGetError)
			s.logger.Warn().Err(err).Str("key", key).Msg("cache load failed")
		} else {
			s.logger.Debug().Str("key", key).Msg("cache miss")
		}
		s.miss()
		return nil, false
	}

	now := s.clock.Now()
	if entry.Expired(now, s.ttl) {
		s.incrCounter(CounterGetExpired)
		s.metrics.Expire()
		s.logger.Debug().Str("key", key).Dur("age", entry.Age(now)).Msg("cache entry expired")
		s.removeExpired(ctx, entry)
		s.miss()
		return nil, false
	}

	s.incrCounter(CounterGetHit)
	s.metrics.Hit()
	s.logger.Debug().Str("key", key).Dur("age", entry.Age(now)).Msg("cache hit")
	return entry.Data, true
}

// removeExpired deletes entry unless it has been overwritten since it was loaded.
func (s *Store) removeExpired(ctx context.Context, entry Entry) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.backend.Load(ctx, entry.Key)
	if err != nil || !current.StoredAt.Equal(entry.StoredAt) {
		return
	}
	if err := s.backend.Delete(ctx, entry.Key); err != nil {
		s.logger.Warn().Err(err).Str("key", entry.Key).Msg("cache expiry delete failed")
		return
	}
	s.index.Forget(entry.Key)
}

func (s *Store) miss() {
	s.incrCounter(CounterGetMiss)
	s.metrics.Miss()
}

// Set stores data under key, replacing any previous entry and restarting
// its TTL. Each collection given registers key for InvalidateCollection.
// An empty payload is stored as JSON null.
func (s *Store) Set(ctx context.Context, key string, data json.RawMessage, collections ...string) {
	s.incrCounter(CounterSet)
	if key == "" {
		s.logger.Warn().Err(ErrInvalidKey).Msg("cache set ignored")
		return
	}
	if s.closed.Load() {
		s.logger.Debug().Str("key", key).Msg("cache set on closed store ignored")
		return
	}

	if len(data) == 0 {
		data = jsonNull
	}
	entry := Entry{Key: key, Data: data, StoredAt: s.clock.Now()}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.backend.Save(ctx, entry, s.ttl); err != nil {
		s.incrCounter(CounterSetError)
		s.logger.Warn().Err(err).Str("key", key).Msg("cache save failed")
		return
	}
	s.index.Register(key, collections...)
	s.metrics.Set()
	s.logger.Debug().Str("key", key).Strs("collections", collections).Msg("cache set")
}

// Invalidate removes the entries stored under keys. Absent keys are ignored.
func (s *Store) Invalidate(ctx context.Context, keys ...string) {
	valid := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			s.logger.Warn().Err(ErrInvalidKey).Msg("cache invalidate ignored")
			continue
		}
		valid = append(valid, key)
	}
	if len(valid) == 0 || s.closed.Load() {
		return
	}
	s.incrCounterBy(CounterInvalidate, len(valid))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.backend.Delete(ctx, valid...); err != nil {
		s.incrCounter(CounterInvalidateError)
		s.logger.Error().Err(err).Strs("keys", valid).Msg("cache invalidate failed")
		return
	}
	s.index.Forget(valid...)
	s.metrics.Invalidate(len(valid))
	s.logger.Debug().Strs("keys", valid).Msg("cache invalidated")
}

// InvalidateCollection removes every key registered under any of the
// collections and returns how many keys were targeted.
func (s *Store) InvalidateCollection(ctx context.Context, collections ...string) int {
	s.incrCounter(CounterInvalidateCollection)
	keys := s.index.Keys(collections...)
	if len(keys) == 0 {
		return 0
	}
	s.Invalidate(ctx, keys...)
	return len(keys)
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	s.incrCounter(CounterClear)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.backend.Clear(ctx); err != nil {
		return err
	}
	s.index.Reset()
	return nil
}

// Len returns the number of stored entries, including expired entries that
// have not been read since they expired. Backend failures count as zero.
func (s *Store) Len(ctx context.Context) int {
	if s.closed.Load() {
		return 0
	}
	n, err := s.backend.Len(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cache len failed")
		return 0
	}
	return n
}

// Stats returns a snapshot of the operation counters.
func (s *Store) Stats() Stats {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()

	copied := make(map[string]int, len(s.counters))
	for k, v := range s.counters {
		copied[k] = v
	}
	return Stats{Counters: copied}
}

// Close discards every entry and releases the backend. After Close, Get
// misses and Set is ignored. Closing twice is a no-op.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	clearErr := s.backend.Clear(context.Background())
	s.index.Reset()
	return errors.Join(clearErr, s.backend.Close())
}

func (s *Store) incrCounter(name string) {
	s.incrCounterBy(name, 1)
}

func (s *Store) incrCounterBy(name string, n int) {
	s.countersMu.Lock()
	s.counters[name] += n
	s.countersMu.Unlock()
}
