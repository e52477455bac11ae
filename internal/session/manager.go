package session

import (
	"context"
	"maps"
	"sync"
	"time"

	"aceinterview/internal/backend"
	"aceinterview/internal/config"
	"aceinterview/internal/errors"

	"github.com/google/uuid"
)

// Manager keeps the sessions of many clients, keyed by a random id
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	backend     backend.Backend
	store       Store
	cfg         config.InterviewConfig
	idleTimeout time.Duration
	done        chan struct{}
	closeOnce   sync.Once
	logger      *errors.Logger
}

// NewManager creates a registry whose sessions cache into store under their own id.
// Sessions idle for longer than idleTimeout are dropped; zero keeps them forever.
func NewManager(b backend.Backend, store Store, cfg config.InterviewConfig, idleTimeout time.Duration, logger *errors.Logger) *Manager {
	if store == nil {
		store = NopStore{}
	}
	m := &Manager{
		sessions:    make(map[string]*Session),
		backend:     b,
		store:       store,
		cfg:         cfg,
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
		logger:      logger,
	}

	if idleTimeout > 0 {
		go m.cleanupRoutine(min(idleTimeout, 10*time.Minute))
	}
	return m
}

// Create starts a new session and returns its id
func (m *Manager) Create() (string, *Session) {
	id := uuid.NewString()
	s := New(m.backend, Namespaced(m.store, id+":"), m.cfg, m.logger.With("session_id", id))

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	return id, s
}

// Get returns the session for id and marks it active, so cleanup never
// evicts a session a caller has just been handed.
func (m *Manager) Get(id string) (*Session, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.touch()
	}
	return s, ok
}

// Delete discards a session and its cached state
func (m *Manager) Delete(ctx context.Context, id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	if err := s.Reset(ctx); err != nil {
		m.logger.Warn("Failed to clear cached session", "session_id", id, "error", err)
	}
	return true
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// GetStats returns registry statistics
func (m *Manager) GetStats() map[string]any {
	return map[string]any{
		"active_sessions": m.Len(),
		"idle_timeout":    m.idleTimeout.String(),
	}
}

// cleanupRoutine periodically removes idle sessions
func (m *Manager) cleanupRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup(time.Now())
		case <-m.done:
			return
		}
	}
}

// cleanup removes sessions idle past the timeout and returns how many went
func (m *Manager) cleanup(now time.Time) int {
	m.mu.Lock()
	candidates := maps.Clone(m.sessions)
	m.mu.Unlock()

	var expired []*Session
	for id, s := range candidates {
		if now.Sub(s.LastActivity()) <= m.idleTimeout {
			continue
		}
		m.mu.Lock()
		// recheck under the lock Get touches with
		if m.sessions[id] == s && now.Sub(s.LastActivity()) > m.idleTimeout {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
		m.mu.Unlock()
	}
	remaining := m.Len()

	for _, s := range expired {
		if err := s.Reset(context.Background()); err != nil {
			m.logger.Warn("Failed to clear expired session", "error", err)
		}
	}

	m.logger.Debug("Session cleanup completed",
		"expired_sessions", len(expired),
		"remaining_sessions", remaining)

	return len(expired)
}

// Close stops the cleanup goroutine
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}
