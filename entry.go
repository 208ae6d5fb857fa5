package datacache

import (
	"encoding/json"
	"time"
)

// Entry is one cached API response.
type Entry struct {
	Key      string          `json:"key"`
	Data     json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"stored_at"`
}

// Expired reports whether the entry is no longer valid at now.
// An entry is valid while now - StoredAt < ttl.
func (e Entry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) >= ttl
}

// Age returns how long ago the entry was stored.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Clone returns a copy that shares no memory with e.
func (e Entry) Clone() Entry {
	if e.Data != nil {
		data := make(json.RawMessage, len(e.Data))
		copy(data, e.Data)
		e.Data = data
	}
	return e
}
