package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrSessionExists is returned by Create for a duplicate id.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound is returned when an id has no session.
	ErrSessionNotFound = errors.New("session not found")
)

// Manager owns every session record of the process. Sessions are only
// created by Create and only dropped by Remove; lookups never create.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create registers a new pending session.
func (m *Manager) Create(id string) (*Session, error) {
	if id == "" {
		return nil, errors.New("session id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	s := newSession(id)
	m.sessions[id] = s
	return s, nil
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove drops a session record. It is the only way a session goes away.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// List returns every session ordered by creation time.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].id < out[j].id
		}
		return out[i].createdAt.Before(out[j].createdAt)
	})
	return out
}
