package session

import "sync"

// Manager owns all live sessions. Sessions are created lazily on first
// access and live for the lifetime of the process.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[int64]*Session)}
}

// Get returns the session for a user, creating it if necessary.
func (m *Manager) Get(userID int64) *Session {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s
	}
	s = newSession(userID)
	m.sessions[userID] = s
	return s
}

// Peek returns the session for a user without creating one.
func (m *Manager) Peek(userID int64) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Awaiting reports whether the user is mid-way through a text input flow.
// A user without a session is never awaiting input.
func (m *Manager) Awaiting(userID int64) bool {
	s, ok := m.Peek(userID)
	return ok && s.Awaiting()
}

// Remove drops the session for a user.
func (m *Manager) Remove(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
