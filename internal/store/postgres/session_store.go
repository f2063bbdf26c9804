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

// SessionStore implements store.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{
		pool: pool,
	}
}

// Create creates a new session in the database.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (
			session_id, owner_id, name, is_public, status, workspace_id,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := s.pool.Exec(ctx, query,
		session.ID,
		session.OwnerID,
		session.Name,
		session.IsPublic,
		session.Status,
		session.WorkspaceID,
		session.CreatedAt,
		session.UpdatedAt,
	)

	if err != nil {
		if mapped := mapPostgresError(err); errors.Is(mapped, store.ErrSessionExists) {
			return store.ErrSessionExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	log.Debug().
		Str("session_id", session.ID.String()).
		Msg("Created session")

	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `
		SELECT
			session_id, owner_id, name, is_public, status, workspace_id,
			created_at, updated_at
		FROM sessions
		WHERE session_id = $1
	`

	var session models.Session
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.OwnerID,
		&session.Name,
		&session.IsPublic,
		&session.Status,
		&session.WorkspaceID,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", mapPostgresError(err))
	}

	return &session, nil
}

// List returns all sessions ordered by creation time.
func (s *SessionStore) List(ctx context.Context) ([]*models.Session, error) {
	query := `
		SELECT
			session_id, owner_id, name, is_public, status, workspace_id,
			created_at, updated_at
		FROM sessions
		ORDER BY created_at
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		var session models.Session
		err := rows.Scan(
			&session.ID,
			&session.OwnerID,
			&session.Name,
			&session.IsPublic,
			&session.Status,
			&session.WorkspaceID,
			&session.CreatedAt,
			&session.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", mapPostgresError(err))
	}

	return sessions, nil
}

// Update writes a session's caller-mutable attributes. Status is owned by
// UpdateStatus and is deliberately left out of the write set, so a stale
// read does not roll back a concurrent transition.
func (s *SessionStore) Update(ctx context.Context, session *models.Session) error {
	query := `
		UPDATE sessions
		SET name = $2, is_public = $3, updated_at = $4
		WHERE session_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		session.ID,
		session.Name,
		session.IsPublic,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	return nil
}

// UpdateStatus transitions a session's persisted status.
func (s *SessionStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status) error {
	query := `
		UPDATE sessions
		SET status = $2, updated_at = $3
		WHERE session_id = $1
	`

	result, err := s.pool.Exec(ctx, query, id, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	return nil
}

// Delete deletes a session by ID. Share tokens are removed by the foreign key
// cascade.
func (s *SessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM sessions WHERE session_id = $1`

	result, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	log.Debug().
		Str("session_id", id.String()).
		Msg("Deleted session")

	return nil
}
