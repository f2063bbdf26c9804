package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coterm/coterm/internal/models"
	"github.com/coterm/coterm/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ShareTokenStore implements store.ShareTokenStore using PostgreSQL.
type ShareTokenStore struct {
	pool *pgxpool.Pool
}

// NewShareTokenStore creates a new PostgreSQL-backed share token store.
func NewShareTokenStore(pool *pgxpool.Pool) *ShareTokenStore {
	return &ShareTokenStore{
		pool: pool,
	}
}

const shareTokenColumns = `
	token_id, session_id, token, permission, allow_anonymous,
	created_at, expires_at, max_uses, use_count
`

func scanShareToken(row pgx.Row) (*models.ShareToken, error) {
	var t models.ShareToken
	err := row.Scan(
		&t.ID,
		&t.SessionID,
		&t.Token,
		&t.Permission,
		&t.AllowAnonymous,
		&t.CreatedAt,
		&t.ExpiresAt,
		&t.MaxUses,
		&t.UseCount,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create stores a newly issued token.
func (s *ShareTokenStore) Create(ctx context.Context, token *models.ShareToken) error {
	query := `
		INSERT INTO share_tokens (
			token_id, session_id, token, permission, allow_anonymous,
			created_at, expires_at, max_uses, use_count
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		token.ID,
		token.SessionID,
		token.Token,
		token.Permission,
		token.AllowAnonymous,
		token.CreatedAt,
		token.ExpiresAt,
		token.MaxUses,
		token.UseCount,
	)

	if err != nil {
		return fmt.Errorf("failed to create share token: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("token_id", token.ID.String()).
		Str("session_id", token.SessionID.String()).
		Msg("Created share token")

	return nil
}

// GetByToken looks up a token by its raw capability string. Read-only: the
// use count is not touched.
func (s *ShareTokenStore) GetByToken(ctx context.Context, token string) (*models.ShareToken, error) {
	query := `SELECT ` + shareTokenColumns + ` FROM share_tokens WHERE token = $1`

	t, err := scanShareToken(s.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrShareTokenNotFound
		}
		return nil, fmt.Errorf("failed to get share token: %w", mapPostgresError(err))
	}

	return t, nil
}

// ListBySession returns all tokens issued for a session, oldest first.
func (s *ShareTokenStore) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.ShareToken, error) {
	query := `SELECT ` + shareTokenColumns + ` FROM share_tokens WHERE session_id = $1 ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list share tokens: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var tokens []*models.ShareToken
	for rows.Next() {
		t, err := scanShareToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share token: %w", err)
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate share tokens: %w", mapPostgresError(err))
	}

	return tokens, nil
}

// Redeem atomically checks validity and increments the use count. The guard
// lives in the UPDATE's WHERE clause, so two concurrent redemptions of a
// token with one use left can never both succeed.
func (s *ShareTokenStore) Redeem(ctx context.Context, token string) (*models.ShareToken, error) {
	query := `
		UPDATE share_tokens
		SET use_count = use_count + 1
		WHERE token = $1
		  AND (expires_at IS NULL OR expires_at > $2)
		  AND (max_uses IS NULL OR use_count < max_uses)
		RETURNING ` + shareTokenColumns

	t, err := scanShareToken(s.pool.QueryRow(ctx, query, token, time.Now()))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to redeem share token: %w", mapPostgresError(err))
	}

	// No row updated: distinguish missing, expired and exhausted for the caller
	existing, err := s.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if existing.Expired(time.Now()) {
		return nil, store.ErrShareTokenExpired
	}
	return nil, store.ErrShareTokenExhausted
}

// Delete removes a token by ID.
func (s *ShareTokenStore) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM share_tokens WHERE token_id = $1`

	result, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete share token: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrShareTokenNotFound
	}

	return nil
}

// DeleteBySession removes all tokens for a session and returns how many were
// removed.
func (s *ShareTokenStore) DeleteBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	query := `DELETE FROM share_tokens WHERE session_id = $1`

	result, err := s.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete share tokens: %w", mapPostgresError(err))
	}

	count := int(result.RowsAffected())

	log.Debug().
		Str("session_id", sessionID.String()).
		Int("count", count).
		Msg("Deleted share tokens for session")

	return count, nil
}
