package datacache

import "errors"

// ErrNotFound is returned by a Backend when a key holds no entry.
var ErrNotFound = errors.New("datacache: entry not found")

var (
	ErrInvalidTTL     = errors.New("datacache: ttl out of range")
	ErrInvalidKey     = errors.New("datacache: cache key must not be empty")
	ErrStoreClosed    = errors.New("datacache: store is closed")
	ErrBackendNotSet  = errors.New("datacache: backend not set")
	ErrCorruptPayload = errors.New("datacache: cached payload could not be decoded")
)
