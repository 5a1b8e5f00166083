package game

import (
	"sync"
)

// Manager holds every live session in the process. Constructed once at
// startup and passed by reference; there is no package-level instance.
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

// Create builds a session and registers it. If a session with the
// same id is already registered it is kept and returned; two joiners
// racing on a fresh id must land on one roster.
func (m *Manager) Create(id, name string, maxPlayers int) *Session {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if existing, ok := m.sessions[id]; ok {
		return existing
	}
	session := NewSession(id, name, maxPlayers)
	m.sessions[id] = session
	return session
}

// Adopt registers an already-built session, such as one rehydrated
// from a persisted snapshot. An existing session with the same id is
// kept.
func (m *Manager) Adopt(session *Session) *Session {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if existing, ok := m.sessions[session.ID]; ok {
		return existing
	}
	m.sessions[session.ID] = session
	return session
}

// Get looks a session up by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	session, exists := m.sessions[id]
	return session, exists
}

// Remove drops a session from the live set.
func (m *Manager) Remove(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, id)
}

// List snapshots every live session.
func (m *Manager) List() []Snapshot {
	m.mutex.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mutex.RUnlock()

	snapshots := make([]Snapshot, 0, len(sessions))
	for _, session := range sessions {
		snapshots = append(snapshots, session.Snapshot())
	}
	return snapshots
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
