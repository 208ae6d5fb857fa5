// Package datacache is a session-scoped cache of posyandu API responses.
//
// A Store maps a deterministic request key (see package keys) to the raw
// JSON body the API returned, stamped with the time it was stored. Entries
// are served while younger than the Store's TTL and are dropped on the
// first read after that. Callers invalidate keys, or whole collections
// registered at Set time, after a mutation so the next read refetches.
//
//	store, err := datacache.New(datacache.Config{Backend: memory.New(), TTL: 5 * time.Minute})
//	if data, ok := store.Get(ctx, key); ok {
//		// use data
//	}
//	store.Set(ctx, key, body, keys.CollectionChildren)
//	store.InvalidateCollection(ctx, keys.CollectionChildren)
package datacache
