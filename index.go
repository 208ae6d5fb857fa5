package datacache

import (
	"sort"
	"sync"
)

// Index tracks which cache keys were derived from which collection, so a
// mutation on a collection can drop every key built from it without the
// caller enumerating filter combinations.
type Index struct {
	// collectionToKeys maps a collection name to the set of keys registered under it.
	collectionToKeys map[string]map[string]bool

	// keyToCollections is the reverse mapping, used to clean up on Forget.
	keyToCollections map[string]map[string]bool

	mu sync.RWMutex // Protects access to both maps
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{
		collectionToKeys: make(map[string]map[string]bool),
		keyToCollections: make(map[string]map[string]bool),
	}
}

// Register associates key with each collection. Registrations accumulate
// until the key is forgotten. Empty names are ignored.
func (idx *Index) Register(key string, collections ...string) {
	if key == "" || len(collections) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, c := range collections {
		if c == "" {
			continue
		}
		if _, exists := idx.collectionToKeys[c]; !exists {
			idx.collectionToKeys[c] = make(map[string]bool)
		}
		idx.collectionToKeys[c][key] = true

		if _, exists := idx.keyToCollections[key]; !exists {
			idx.keyToCollections[key] = make(map[string]bool)
		}
		idx.keyToCollections[key][c] = true
	}
}

// Keys returns the sorted, de-duplicated keys registered under any of the
// given collections. It returns an empty slice when nothing matches.
func (idx *Index) Keys(collections ...string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]bool)
	for _, c := range collections {
		for key := range idx.collectionToKeys[c] {
			seen[key] = true
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Collections returns the sorted collections key is registered under.
func (idx *Index) Collections(key string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]string, 0, len(idx.keyToCollections[key]))
	for c := range idx.keyToCollections[key] {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Forget removes every registration of the given keys.
func (idx *Index) Forget(keys ...string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, key := range keys {
		for c := range idx.keyToCollections[key] {
			delete(idx.collectionToKeys[c], key)
			if len(idx.collectionToKeys[c]) == 0 {
				delete(idx.collectionToKeys, c)
			}
		}
		delete(idx.keyToCollections, key)
	}
}

// Reset drops all registrations.
func (idx *Index) Reset() {
	idx.mu.Lock()
	idx.collectionToKeys = make(map[string]map[string]bool)
	idx.keyToCollections = make(map[string]map[string]bool)
	idx.mu.Unlock()
}
