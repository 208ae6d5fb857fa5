// Package session owns one data cache per logged-in session. Opening a
// session creates an empty Store; closing it (logout) discards every entry.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nutrilogic/datacache"
	"github.com/nutrilogic/datacache/backend/memory"
	"github.com/nutrilogic/datacache/keys"
)

// ErrUnknownSession is returned for IDs that are not open.
var ErrUnknownSession = errors.New("session: unknown session")

// BackendFactory creates the storage of one session's Store.
type BackendFactory func(ctx context.Context, sessionID string) (datacache.Backend, error)

// MemoryBackends gives every session its own in-memory backend.
func MemoryBackends() BackendFactory {
	return func(context.Context, string) (datacache.Backend, error) {
		return memory.New(), nil
	}
}

// Session is one login.
type Session struct {
	ID       string
	Role     keys.Role
	Token    string
	Store    *datacache.Store
	OpenedAt time.Time
}

// Manager tracks open sessions.
type Manager struct {
	cfg        datacache.Config
	newBackend BackendFactory
	logger     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns a Manager whose stores use cfg (its Backend is
// ignored) and get their storage from factory.
func NewManager(cfg datacache.Config, factory BackendFactory, logger zerolog.Logger) *Manager {
	if factory == nil {
		factory = MemoryBackends()
	}
	cfg.Backend = nil
	return &Manager{
		cfg:        cfg,
		newBackend: factory,
		logger:     logger.With().Str("component", "session").Logger(),
		sessions:   make(map[string]*Session),
	}
}

// Open starts a session with an empty cache.
func (m *Manager) Open(ctx context.Context, role keys.Role, token string) (*Session, error) {
	id := uuid.NewString()
	backend, err := m.newBackend(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session: create cache backend: %w", err)
	}

	cfg := m.cfg
	cfg.Backend = backend
	cfg.Logger = m.cfg.Logger.With().Str("session", id).Logger()
	store, err := datacache.New(cfg)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	now := time.Now()
	if m.cfg.Clock != nil {
		now = m.cfg.Clock.Now()
	}
	s := &Session{ID: id, Role: role, Token: token, Store: store, OpenedAt: now}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info().Str("session", id).Str("role", string(role)).Dur("ttl", store.TTL()).Msg("session opened")
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close ends a session and discards its cache.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}

	stats := s.Store.Stats()
	err := s.Store.Close()
	m.logger.Info().
		Str("session", id).
		Int("hits", stats.Counters[datacache.CounterGetHit]).
		Int("misses", stats.Counters[datacache.CounterGetMiss]).
		Msg("session closed")
	return err
}

// CloseAll ends every open session.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, ErrUnknownSession) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

