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

// ShareTokenStore implements store.ShareTokenStore using in-memory storage.
type ShareTokenStore struct {
	mu sync.Mutex

	tokens        map[uuid.UUID]*models.ShareToken // token_id -> ShareToken
	tokensByValue map[string]*models.ShareToken    // raw token string -> ShareToken
}

// NewShareTokenStore creates a new in-memory share token store.
func NewShareTokenStore() *ShareTokenStore {
	return &ShareTokenStore{
		tokens:        make(map[uuid.UUID]*models.ShareToken),
		tokensByValue: make(map[string]*models.ShareToken),
	}
}

// Create stores a newly issued token.
func (s *ShareTokenStore) Create(ctx context.Context, token *models.ShareToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clone to avoid external modifications
	clone := *token
	s.tokens[token.ID] = &clone
	s.tokensByValue[token.Token] = &clone

	return nil
}

// GetByToken looks up a token by its raw capability string. Read-only: the
// use count is not touched.
func (s *ShareTokenStore) GetByToken(ctx context.Context, token string) (*models.ShareToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tokensByValue[token]
	if !exists {
		return nil, store.ErrShareTokenNotFound
	}

	clone := *t
	return &clone, nil
}

// ListBySession returns all tokens issued for a session, oldest first.
func (s *ShareTokenStore) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.ShareToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tokens []*models.ShareToken
	for _, t := range s.tokens {
		if t.SessionID == sessionID {
			clone := *t
			tokens = append(tokens, &clone)
		}
	}

	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
	})

	return tokens, nil
}

// Redeem atomically checks validity and increments the use count. The check
// and the increment happen under one lock so concurrent redemptions can never
// push UseCount past MaxUses.
func (s *ShareTokenStore) Redeem(ctx context.Context, token string) (*models.ShareToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tokensByValue[token]
	if !exists {
		return nil, store.ErrShareTokenNotFound
	}

	if t.Expired(time.Now()) {
		return nil, store.ErrShareTokenExpired
	}
	if t.Exhausted() {
		return nil, store.ErrShareTokenExhausted
	}

	t.UseCount++

	clone := *t
	return &clone, nil
}

// Delete removes a token by ID.
func (s *ShareTokenStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tokens[id]
	if !exists {
		return store.ErrShareTokenNotFound
	}

	delete(s.tokensByValue, t.Token)
	delete(s.tokens, id)

	return nil
}

// DeleteBySession removes all tokens for a session and returns how many were
// removed.
func (s *ShareTokenStore) DeleteBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, t := range s.tokens {
		if t.SessionID == sessionID {
			delete(s.tokensByValue, t.Token)
			delete(s.tokens, id)
			count++
		}
	}

	return count, nil
}
