package session

import (
	"context"
	"sync"
	"time"

	"furnace-optimizer/backend/internal/workflow"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Session is one logged-in operator: a credential and the single workflow
// instance bound to it.
type Session struct {
	ID        string
	Username  string
	Holder    *TokenHolder
	Workflow  *workflow.Controller
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// WorkflowFactory builds the workflow for a new session.
type WorkflowFactory func(sessionID string, holder *TokenHolder) *workflow.Controller

// Manager is the registry of active sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	factory  WorkflowFactory
	now      func() time.Time
}

// NewManager creates a registry. Sessions idle for longer than ttl are
// removed by Sweep; ttl <= 0 disables expiry.
func NewManager(ttl time.Duration, factory WorkflowFactory) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		factory:  factory,
		now:      time.Now,
	}
}

// Create registers a new session for a freshly issued token.
func (m *Manager) Create(username string, token *oauth2.Token) *Session {
	id := uuid.New().String()
	holder := NewTokenHolder(token)
	now := m.now()
	s := &Session{
		ID:        id,
		Username:  username,
		Holder:    holder,
		Workflow:  m.factory(id, holder),
		CreatedAt: now,
		lastSeen:  now,
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

// Get returns the session and marks it as recently used.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	now := m.now()
	if m.expired(s, now) {
		m.Delete(id)
		return nil, false
	}
	s.touch(now)
	return s, true
}

// Delete removes the session and discards its credential.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Holder.Invalidate()
	}
	return ok
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes idle sessions and returns how many were removed. A session
// with a submission in flight is kept until it completes.
func (m *Manager) Sweep() int {
	now := m.now()
	var stale []string

	m.mu.RLock()
	for id, s := range m.sessions {
		if m.expired(s, now) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range stale {
		if m.Delete(id) {
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Manager) expired(s *Session, now time.Time) bool {
	if m.ttl <= 0 {
		return false
	}
	if s.Workflow != nil && s.Workflow.State().Phase == workflow.PhaseSubmitting {
		return false
	}
	return now.Sub(s.idleSince()) > m.ttl
}
