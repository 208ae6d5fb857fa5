// Package memory provides a process-local datacache.Backend.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nutrilogic/datacache"
)

// backend implements datacache.Backend using an in-memory sync.Map.
type backend struct {
	store sync.Map // map[string]datacache.Entry
}

var _ datacache.Backend = (*backend)(nil)

// New returns an empty in-memory backend. It never returns errors.
func New() datacache.Backend {
	return &backend{}
}

func (b *backend) Load(ctx context.Context, key string) (datacache.Entry, error) {
	v, ok := b.store.Load(key)
	if !ok {
		return datacache.Entry{}, datacache.ErrNotFound
	}
	return v.(datacache.Entry).Clone(), nil
}

// Save ignores ttl; the Store judges freshness.
func (b *backend) Save(ctx context.Context, entry datacache.Entry, ttl time.Duration) error {
	b.store.Store(entry.Key, entry.Clone())
	return nil
}

func (b *backend) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		b.store.Delete(key)
	}
	return nil
}

func (b *backend) Clear(ctx context.Context) error {
	b.store.Range(func(key, _ any) bool {
		b.store.Delete(key)
		return true
	})
	return nil
}

func (b *backend) Len(ctx context.Context) (int, error) {
	n := 0
	b.store.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n, nil
}

func (b *backend) Close() error {
	return b.Clear(context.Background())
}
