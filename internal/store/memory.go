package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nhle/campaignbot/internal/model"
)

// MemoryStore keeps sessions in process memory. Sessions are stored
// encoded so callers never share slices with the store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	updated  map[string]time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		updated:  make(map[string]time.Time),
	}
}

// LoadSession returns the stored session or ErrNotFound.
func (m *MemoryStore) LoadSession(_ context.Context, conversationID string) (*model.DraftSession, error) {
	m.mu.Lock()
	data, ok := m.sessions[conversationID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	var session model.DraftSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", conversationID, err)
	}
	return &session, nil
}

// SaveSession stores session under session.ID.
func (m *MemoryStore) SaveSession(_ context.Context, session model.DraftSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", session.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = data
	m.updated[session.ID] = session.UpdatedAt
	return nil
}

// DeleteSession removes the session if present.
func (m *MemoryStore) DeleteSession(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, conversationID)
	delete(m.updated, conversationID)
	return nil
}

// CountSessions returns the number of stored sessions.
func (m *MemoryStore) CountSessions(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions), nil
}

// PurgeSessions deletes sessions idle since before.
func (m *MemoryStore) PurgeSessions(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, at := range m.updated {
		if at.Before(before) {
			delete(m.sessions, id)
			delete(m.updated, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op; it satisfies SessionStore.
func (m *MemoryStore) Close() error {
	return nil
}
