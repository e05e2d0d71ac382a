package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-recovery/internal/domain"
)

// TokensRepository handles verification and password reset token persistence.
type TokensRepository struct {
	db *sql.DB
}

// NewTokensRepository creates a new tokens repository.
func NewTokensRepository(db *sql.DB) *TokensRepository {
	return &TokensRepository{db: db}
}

// Create stores token as the only token of its kind for the user. A
// concurrent insert for the same (user, kind) waits on the unique index
// and then replaces the row, so at most one token per kind stays live.
func (r *TokensRepository) Create(ctx context.Context, token *domain.Token) error {
	query := `
		INSERT INTO verification_tokens (id, user_id, token_hash, kind, email, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, kind) DO UPDATE SET
			id = EXCLUDED.id,
			token_hash = EXCLUDED.token_hash,
			email = EXCLUDED.email,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at
	`
	_, err := querier(ctx, r.db).ExecContext(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.Kind,
		token.Email, token.ExpiresAt, token.CreatedAt,
	)
	return err
}

// DeleteForUser removes every token of kind belonging to userID.
func (r *TokensRepository) DeleteForUser(ctx context.Context, userID uuid.UUID, kind domain.TokenKind) error {
	query := `DELETE FROM verification_tokens WHERE user_id = $1 AND kind = $2`
	_, err := querier(ctx, r.db).ExecContext(ctx, query, userID, kind)
	return err
}

// Consume deletes the live token matching tokenHash and kind and returns
// it. The delete is a single statement, so among concurrent callers only
// one gets the row back; the rest see domain.ErrTokenInvalid.
func (r *TokensRepository) Consume(ctx context.Context, tokenHash string, kind domain.TokenKind, now time.Time) (*domain.Token, error) {
	query := `
		DELETE FROM verification_tokens
		WHERE token_hash = $1 AND kind = $2 AND expires_at > $3
		RETURNING id, user_id, token_hash, kind, email, expires_at, created_at
	`
	token := &domain.Token{}
	err := querier(ctx, r.db).QueryRowContext(ctx, query, tokenHash, kind, now).Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.Kind,
		&token.Email, &token.ExpiresAt, &token.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// DeleteExpired removes tokens that expired at or before now.
func (r *TokensRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM verification_tokens WHERE expires_at <= $1`
	result, err := querier(ctx, r.db).ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
