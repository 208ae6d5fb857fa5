// Package children serves child records to the UI through the session
// cache. Reads are cached per filter combination; every successful
// mutation invalidates the views it affects so the next read goes to the
// network.
package children

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/nutrilogic/datacache/internal/api"
	"github.com/nutrilogic/datacache/keys"
)

// API is the part of the posyandu API the service needs.
type API interface {
	ListChildren(ctx context.Context, role keys.Role, f keys.ChildFilter) (json.RawMessage, error)
	GetChild(ctx context.Context, role keys.Role, id int64) (json.RawMessage, error)
	DashboardSummary(ctx context.Context, role keys.Role) (json.RawMessage, error)
	PriorityChildren(ctx context.Context, role keys.Role) (json.RawMessage, error)
	CreateChild(ctx context.Context, role keys.Role, in api.ChildInput) (json.RawMessage, error)
	UpdateChild(ctx context.Context, role keys.Role, id int64, in api.ChildInput) (json.RawMessage, error)
	DeleteChild(ctx context.Context, role keys.Role, id int64) error
}

// Cache is the part of datacache.Store the service needs.
type Cache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	Set(ctx context.Context, key string, data json.RawMessage, collections ...string)
	Invalidate(ctx context.Context, keys ...string)
	InvalidateCollection(ctx context.Context, collections ...string) int
}

// Result is a decoded read and whether it came from the cache.
type Result[T any] struct {
	Value     T
	FromCache bool
}

// Service reads and mutates child records for one session.
type Service struct {
	api    API
	cache  Cache
	role   keys.Role
	logger zerolog.Logger

	group singleflight.Group
	// generation increments on every mutation. A fetch that started in an
	// older generation does not write its result to the cache.
	generation atomic.Uint64
}

// NewService returns a Service acting as role.
func NewService(a API, c Cache, role keys.Role, logger zerolog.Logger) *Service {
	return &Service{
		api:    a,
		cache:  c,
		role:   role,
		logger: logger.With().Str("component", "children").Str("role", string(role)).Logger(),
	}
}

// Role returns the role the service acts as.
func (s *Service) Role() keys.Role { return s.role }

// List returns the children matching f. Searches always hit the network.
func (s *Service) List(ctx context.Context, f keys.ChildFilter) (Result[[]api.Child], error) {
	key, cacheable := keys.ChildrenList(s.role, f)
	return readThrough[[]api.Child](ctx, s, key, cacheable, keys.CollectionChildren, func(ctx context.Context) (json.RawMessage, error) {
		return s.api.ListChildren(ctx, s.role, f)
	})
}

// Get returns one child.
func (s *Service) Get(ctx context.Context, id int64) (Result[api.Child], error) {
	return readThrough[api.Child](ctx, s, keys.ChildDetail(s.role, id), true, "", func(ctx context.Context) (json.RawMessage, error) {
		return s.api.GetChild(ctx, s.role, id)
	})
}

// Dashboard returns the dashboard summary.
func (s *Service) Dashboard(ctx context.Context) (Result[api.DashboardSummary], error) {
	return readThrough[api.DashboardSummary](ctx, s, keys.DashboardSummary(s.role), true, keys.CollectionDashboard, func(ctx context.Context) (json.RawMessage, error) {
		return s.api.DashboardSummary(ctx, s.role)
	})
}

// Priority returns the children needing follow-up.
func (s *Service) Priority(ctx context.Context) (Result[[]api.Child], error) {
	return readThrough[[]api.Child](ctx, s, keys.PriorityList(s.role), true, keys.CollectionPriority, func(ctx context.Context) (json.RawMessage, error) {
		return s.api.PriorityChildren(ctx, s.role)
	})
}

func readThrough[T any](ctx context.Context, s *Service, key string, cacheable bool, collection string, fetch func(context.Context) (json.RawMessage, error)) (Result[T], error) {
	if !cacheable {
		raw, err := fetch(ctx)
		if err != nil {
			return Result[T]{}, err
		}
		v, err := decode[T](raw)
		return Result[T]{Value: v}, err
	}

	if raw, ok := s.cache.Get(ctx, key); ok {
		v, err := decode[T](raw)
		if err == nil {
			return Result[T]{Value: v, FromCache: true}, nil
		}
		s.logger.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		s.cache.Invalidate(ctx, key)
	}

	gen := s.generation.Load()
	flightKey := strconv.FormatUint(gen, 10) + "|" + key
	ch := s.group.DoChan(flightKey, func() (any, error) {
		// Shared by every caller waiting on key, so it ignores their
		// cancellation. The API client timeout still bounds it.
		ctx := context.WithoutCancel(ctx)
		raw, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		// Validate before caching so a malformed body is never served twice.
		if _, err := decode[T](raw); err != nil {
			return nil, err
		}
		if s.generation.Load() == gen {
			var collections []string
			if collection != "" {
				collections = []string{collection}
			}
			s.cache.Set(ctx, key, raw, collections...)
			if s.generation.Load() != gen {
				s.cache.Invalidate(ctx, key)
			}
		} else {
			s.logger.Debug().Str("key", key).Msg("skipping cache write for fetch overtaken by a mutation")
		}
		return raw, nil
	})

	select {
	case <-ctx.Done():
		return Result[T]{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result[T]{}, res.Err
		}
		v, err := decode[T](res.Val.(json.RawMessage))
		return Result[T]{Value: v}, err
	}
}

func decode[T any](raw json.RawMessage) (T, error) {
	var env api.Envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		var zero T
		return zero, fmt.Errorf("decode response: %w", err)
	}
	return env.Data, nil
}

// Create adds a child and invalidates every view it could appear in.
func (s *Service) Create(ctx context.Context, in api.ChildInput) (api.Child, error) {
	raw, err := s.api.CreateChild(ctx, s.role, in)
	if err != nil {
		return api.Child{}, err
	}
	child, err := decode[api.Child](raw)
	s.invalidate(ctx, keys.ChildMutation(child.ID))
	return child, err
}

// Update changes a child and invalidates every view it could appear in.
func (s *Service) Update(ctx context.Context, id int64, in api.ChildInput) (api.Child, error) {
	raw, err := s.api.UpdateChild(ctx, s.role, id, in)
	if err != nil {
		return api.Child{}, err
	}
	s.invalidate(ctx, keys.ChildMutation(id))
	return decode[api.Child](raw)
}

// Delete removes a child and invalidates every view it appeared in.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.api.DeleteChild(ctx, s.role, id); err != nil {
		return err
	}
	s.invalidate(ctx, keys.ChildMutation(id))
	return nil
}

func (s *Service) invalidate(ctx context.Context, inv keys.Invalidation) {
	s.generation.Add(1)
	s.cache.Invalidate(ctx, inv.Keys...)
	n := s.cache.InvalidateCollection(ctx, inv.Collections...)
	s.logger.Debug().Strs("keys", inv.Keys).Int("collection_keys", n).Msg("invalidated after mutation")
}
