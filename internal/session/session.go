// Package session holds per-browser state: each session owns a single result
// slot so the latest generation can be previewed, overlaid, downloaded, or
// reused as the source image for the next edit without re-uploading.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Result is the most recent generation for a session.
type Result struct {
	Image       []byte
	ContentType string
	Filename    string
	Seed        string
	CreatedAt   time.Time
}

// Session is a single user's interaction lifetime. It stores at most one
// result; a new one replaces the previous.
type Session struct {
	ID string

	mu       sync.Mutex
	result   *Result
	lastSeen time.Time
}

// Put replaces the cached result.
func (s *Session) Put(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = &r
}

// Get returns a copy of the cached result, if any.
func (s *Session) Get() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// Clear drops the cached result.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = nil
}

// Manager tracks live sessions and evicts ones idle past the TTL. Eviction
// happens opportunistically on access; there is no background sweeper.
type Manager struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*Session
	now      func() time.Time
}

// NewManager creates a Manager with the given idle TTL.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{
		ttl:      ttl,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create registers a new session with a fresh ID.
func (m *Manager) Create() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	s := &Session{ID: uuid.NewString(), lastSeen: m.now()}
	m.sessions[s.ID] = s
	return s
}

// Get returns the session for the given ID and refreshes its idle timer.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	s.lastSeen = m.now()
	return s, true
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	return len(m.sessions)
}

// sweep drops idle sessions. Callers must hold m.mu.
func (m *Manager) sweep() {
	cutoff := m.now().Add(-m.ttl)
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
		}
	}
}
