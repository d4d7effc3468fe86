package fsm

import (
	"context"
	"sync"
	"time"
)

// Store persists sessions. Setting a session in state None is the same as Clear.
type Store interface {
	Get(ctx context.Context, key Key) (Session, error)
	Set(ctx context.Context, key Key, s Session) error
	Clear(ctx context.Context, key Key) error
}

// MemoryStore is a process-local Store. Sessions do not survive restarts.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[Key]Session
	now      func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[Key]Session),
		now:      time.Now,
	}
}

// Get returns the session for key, or a zero Session in state None.
func (m *MemoryStore) Get(_ context.Context, key Key) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[key], nil
}

// Set replaces the session for key.
func (m *MemoryStore) Set(_ context.Context, key Key, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.State == None {
		delete(m.sessions, key)
		return nil
	}
	s.UpdatedAt = m.now()
	m.sessions[key] = s
	return nil
}

// Clear drops the session for key.
func (m *MemoryStore) Clear(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

// Expire clears sessions idle for longer than ttl and returns how many it removed.
func (m *MemoryStore) Expire(ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-ttl)
	removed := 0
	for key, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
