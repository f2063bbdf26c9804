package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coterm/coterm/internal/models"
	"github.com/coterm/coterm/internal/store"
	"github.com/google/uuid"
)

// SessionStore implements store.SessionStore using in-memory storage.
// Used as the default store type and as the test fake.
type SessionStore struct {
	mu sync.RWMutex

	sessions map[uuid.UUID]*models.Session
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]*models.Session),
	}
}

// Create creates a new session in memory.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return store.ErrSessionExists
	}

	// Clone to avoid external modifications
	clone := *session
	s.sessions[session.ID] = &clone

	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	clone := *session
	return &clone, nil
}

// List returns all sessions ordered by creation time.
func (s *SessionStore) List(ctx context.Context) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*models.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		clone := *session
		sessions = append(sessions, &clone)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	return sessions, nil
}

// Update writes a session's caller-mutable attributes. Status is owned by
// UpdateStatus and is deliberately left untouched, so a stale read does not
// roll back a concurrent transition.
func (s *SessionStore) Update(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.sessions[session.ID]
	if !exists {
		return store.ErrSessionNotFound
	}

	existing.Name = session.Name
	existing.IsPublic = session.IsPublic
	existing.UpdatedAt = time.Now()

	return nil
}

// UpdateStatus transitions a session's persisted status.
func (s *SessionStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return store.ErrSessionNotFound
	}

	session.Status = status
	session.UpdatedAt = time.Now()

	return nil
}

// Delete removes a session by ID.
func (s *SessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return store.ErrSessionNotFound
	}

	delete(s.sessions, id)

	return nil
}
