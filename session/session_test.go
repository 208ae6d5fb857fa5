package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrilogic/datacache"
	"github.com/nutrilogic/datacache/backend/redis"
	"github.com/nutrilogic/datacache/clock"
	"github.com/nutrilogic/datacache/keys"
	"github.com/nutrilogic/datacache/session"
)

func newManager(factory session.BackendFactory) *session.Manager {
	cfg := datacache.Config{TTL: time.Minute, Clock: clock.NewManual(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))}
	return session.NewManager(cfg, factory, zerolog.Nop())
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := newManager(nil)

	a, err := m.Open(ctx, keys.RoleKader, "tok-a")
	require.NoError(t, err)
	b, err := m.Open(ctx, keys.RoleParent, "tok-b")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, m.Len())

	a.Store.Set(ctx, "shared_key", json.RawMessage(`"a"`))
	_, ok := b.Store.Get(ctx, "shared_key")
	assert.False(t, ok)

	got, ok := m.Get(a.ID)
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestManager_CloseDiscardsStore(t *testing.T) {
	ctx := context.Background()
	m := newManager(nil)

	s, err := m.Open(ctx, keys.RoleKader, "tok")
	require.NoError(t, err)
	s.Store.Set(ctx, "k", json.RawMessage(`1`))

	require.NoError(t, m.Close(ctx, s.ID))
	_, ok := s.Store.Get(ctx, "k")
	assert.False(t, ok)
	_, ok = m.Get(s.ID)
	assert.False(t, ok)

	err = m.Close(ctx, s.ID)
	assert.ErrorIs(t, err, session.ErrUnknownSession)

	// A new login starts from an empty cache.
	next, err := m.Open(ctx, keys.RoleKader, "tok")
	require.NoError(t, err)
	_, ok = next.Store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestManager_CloseAll(t *testing.T) {
	ctx := context.Background()
	m := newManager(nil)
	for i := 0; i < 3; i++ {
		_, err := m.Open(ctx, keys.RoleKader, "tok")
		require.NoError(t, err)
	}
	require.NoError(t, m.CloseAll(ctx))
	assert.Zero(t, m.Len())
}

func TestManager_BackendFactoryError(t *testing.T) {
	m := newManager(func(context.Context, string) (datacache.Backend, error) {
		return nil, errors.New("no storage")
	})
	_, err := m.Open(context.Background(), keys.RoleKader, "tok")
	assert.Error(t, err)
	assert.Zero(t, m.Len())
}

func TestManager_RedisSessionsUseOwnPrefix(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	m := newManager(func(ctx context.Context, id string) (datacache.Backend, error) {
		return redis.NewClient(rdb, &redis.Options{KeyPrefix: redis.SessionPrefix(id)})
	})

	a, err := m.Open(ctx, keys.RoleKader, "tok-a")
	require.NoError(t, err)
	b, err := m.Open(ctx, keys.RoleKader, "tok-b")
	require.NoError(t, err)

	a.Store.Set(ctx, "kader_dashboard_summary", json.RawMessage(`{"total":1}`))
	b.Store.Set(ctx, "kader_dashboard_summary", json.RawMessage(`{"total":2}`))
	assert.True(t, mr.Exists(redis.SessionPrefix(a.ID)+"kader_dashboard_summary"))

	require.NoError(t, m.Close(ctx, a.ID))
	assert.False(t, mr.Exists(redis.SessionPrefix(a.ID)+"kader_dashboard_summary"))

	got, ok := b.Store.Get(ctx, "kader_dashboard_summary")
	require.True(t, ok)
	assert.JSONEq(t, `{"total":2}`, string(got))
}
