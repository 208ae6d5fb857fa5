package datacache

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetJSON decodes the payload under key into a T. A payload that fails to
// decode is invalidated and reported as a miss.
func GetJSON[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var v T
	data, ok := s.Get(ctx, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		s.logger.Warn().Err(fmt.Errorf("%w: %v", ErrCorruptPayload, err)).Str("key", key).Msg("dropping cache entry")
		s.Invalidate(ctx, key)
		var zero T
		return zero, false
	}
	return v, true
}

// SetJSON encodes v and stores it under key. Only encoding errors are returned.
func SetJSON(ctx context.Context, s *Store, key string, v any, collections ...string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("datacache: encode value for key '%s': %w", key, err)
	}
	s.Set(ctx, key, data, collections...)
	return nil
}
