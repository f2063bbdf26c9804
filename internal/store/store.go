package store

import (
	"context"
	"errors"

	"github.com/coterm/coterm/internal/models"
	"github.com/google/uuid"
)

// Sentinel errors for common error conditions
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExists       = errors.New("session already exists")
	ErrShareTokenNotFound  = errors.New("share token not found")
	ErrShareTokenExpired   = errors.New("share token expired")
	ErrShareTokenExhausted = errors.New("share token use limit reached")
)

// SessionStore is the repository for session records. Create exists for the
// provisioning collaborator and for tests; this service itself only reads,
// updates and deletes.
//
// Update writes only the caller-mutable attributes (name, visibility); status
// transitions go through UpdateStatus so the two never overwrite each other.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	List(ctx context.Context) ([]*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ShareTokenStore issues and redeems session share tokens.
//
// GetByToken is a read-only lookup and never changes the use count. Redeem is
// the atomic check-and-increment: it succeeds and bumps UseCount only while
// the token is unexpired and under its use limit, and must never allow
// UseCount to exceed MaxUses under concurrent redemption.
type ShareTokenStore interface {
	Create(ctx context.Context, token *models.ShareToken) error
	GetByToken(ctx context.Context, token string) (*models.ShareToken, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.ShareToken, error)
	Redeem(ctx context.Context, token string) (*models.ShareToken, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteBySession(ctx context.Context, sessionID uuid.UUID) (int, error)
}
