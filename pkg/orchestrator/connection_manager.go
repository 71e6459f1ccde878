package orchestrator

import (
	"sync"
)

// ConnectionManager is the process-wide client_id → Session registry of
// spec.md §5: a new connection for an already-registered client_id
// evicts ("zombie eviction") and stops the previous Session before the
// new one is registered.
type ConnectionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewConnectionManager builds an empty registry.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{sessions: make(map[string]*Session)}
}

// Register stores sess under clientID, evicting and stopping any prior
// Session registered under the same ID.
func (m *ConnectionManager) Register(clientID string, sess *Session) {
	m.mu.Lock()
	prev, exists := m.sessions[clientID]
	m.sessions[clientID] = sess
	m.mu.Unlock()

	if exists && prev != nil {
		prev.Stop("zombie_eviction")
	}
}

// Unregister removes clientID's entry if it still points at sess — a
// Session that was already evicted by a newer connection must not
// remove the newer one's entry on its own delayed Stop.
func (m *ConnectionManager) Unregister(clientID string, sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[clientID]; ok && cur == sess {
		delete(m.sessions, clientID)
	}
}

// Get returns the Session registered for clientID, if any.
func (m *ConnectionManager) Get(clientID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[clientID]
	return sess, ok
}

// Len returns the number of live registered sessions.
func (m *ConnectionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StopAll stops every registered session, used on process shutdown.
func (m *ConnectionManager) StopAll(reason string) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop(reason)
	}
}
