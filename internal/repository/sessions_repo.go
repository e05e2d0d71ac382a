package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-recovery/internal/domain"
)

// SessionsRepository handles session persistence.
type SessionsRepository struct {
	db *sql.DB
}

// NewSessionsRepository creates a new sessions repository.
func NewSessionsRepository(db *sql.DB) *SessionsRepository {
	return &SessionsRepository{db: db}
}

// Create creates a new session.
func (r *SessionsRepository) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, ip, user_agent, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := querier(ctx, r.db).ExecContext(ctx, query,
		session.ID, session.UserID, session.IP, session.UserAgent,
		session.CreatedAt, session.ExpiresAt,
	)
	return err
}

// GetByID retrieves a session by ID.
func (r *SessionsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT id, user_id, ip, user_agent, created_at, expires_at, revoked_at
		FROM sessions
		WHERE id = $1
	`
	session := &domain.Session{}
	err := querier(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&session.ID, &session.UserID, &session.IP, &session.UserAgent,
		&session.CreatedAt, &session.ExpiresAt, &session.RevokedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Revoke revokes a session.
func (r *SessionsRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
	`
	result, err := querier(ctx, r.db).ExecContext(ctx, query, id)
	return expectRow(result, err, domain.ErrSessionNotFound)
}

// RevokeAllByUserID revokes all sessions of a user.
func (r *SessionsRepository) RevokeAllByUserID(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL
	`
	_, err := querier(ctx, r.db).ExecContext(ctx, query, userID)
	return err
}
