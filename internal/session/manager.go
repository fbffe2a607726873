package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Manager tracks active sessions keyed by (application, display
// parameters), so a client requesting the same application at the same
// resolution can reattach to an existing session instead of starting a
// new container.
type Manager struct {
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session // by Session.ID
	byKey    map[Key][]*Session

	reapInterval time.Duration
}

// NewManager creates a Manager. If log is nil, slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:          log.With("component", "session-manager"),
		sessions:     make(map[string]*Session),
		byKey:        make(map[Key][]*Session),
		reapInterval: 10 * time.Second,
	}
}

// Create registers s under its ID and its application/display-parameter key.
func (m *Manager) Create(s *Session) {
	key := Key{Application: s.Application, Params: s.Params}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	m.byKey[key] = append(m.byKey[key], s)
	m.log.Info("session created", "key", key.String())
}

// FindReattachable returns the newest session matching key that is not
// Terminating or Gone, so additional attachments can share it alongside
// any already bound (§4.3 step 1: a session with matching display
// parameters is reused regardless of how many attachments it already
// has, so long as it isn't tearing down). Returns nil if none exists.
func (m *Manager) FindReattachable(key Key) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := m.byKey[key]
	for i := len(candidates) - 1; i >= 0; i-- {
		s := candidates[i]
		switch s.State() {
		case StateTerminating, StateGone:
			continue
		default:
			return s
		}
	}
	return nil
}

// Get returns the session with the given ID, or nil if not found.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Remove unregisters a session, e.g. once its container has exited.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, id)
	key := Key{Application: s.Application, Params: s.Params}
	list := m.byKey[key]
	for i, c := range list {
		if c.ID == id {
			m.byKey[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	m.log.Info("session removed", "session", id)
}

// List returns all currently tracked sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// ReapIdle runs until ctx is cancelled, periodically terminating
// sessions that have exceeded their idle timeout. It returns the
// terminated sessions on each pass via onReap, which is responsible
// for actually tearing down the container; ReapIdle itself only marks
// the Session state, ends its attachments and removes it from the
// Manager.
func (m *Manager) ReapIdle(ctx context.Context, onReap func(*Session)) error {
	ticker := time.NewTicker(m.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, s := range m.List() {
				if s.ShouldReap() {
					s.BeginTerminating()
					s.EndAttachments("session idle timeout exceeded")
					m.log.Info("reaping idle session", "session", s.ID, "idle_for", s.IdleFor())
					if onReap != nil {
						onReap(s)
					}
					m.Remove(s.ID)
					s.MarkGone()
				}
			}
		}
	}
}
