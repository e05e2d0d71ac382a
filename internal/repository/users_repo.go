package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-recovery/internal/domain"
)

const userColumns = `id, email, name, password_hash, email_verified, email_verified_at,
		       password_updated_at, created_at, updated_at`

// UsersRepository handles user persistence.
type UsersRepository struct {
	db *sql.DB
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db *sql.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

// Create creates a new user. A duplicate email yields
// domain.ErrUserAlreadyExists.
func (r *UsersRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, name, password_hash, email_verified, password_updated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := querier(ctx, r.db).ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.PasswordHash, user.EmailVerified,
		user.PasswordUpdatedAt, user.CreatedAt, user.UpdatedAt,
	)
	if IsUniqueViolation(err) {
		return domain.ErrUserAlreadyExists
	}
	return err
}

// GetByID retrieves a user by ID.
func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(querier(ctx, r.db).QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(querier(ctx, r.db).QueryRowContext(ctx, query, email))
}

func scanUser(row *sql.Row) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash,
		&user.EmailVerified, &user.EmailVerifiedAt,
		&user.PasswordUpdatedAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdatePassword replaces the password hash of a user.
func (r *UsersRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string, at time.Time) error {
	query := `
		UPDATE users
		SET password_hash = $2, password_updated_at = $3, updated_at = $3
		WHERE id = $1
	`
	result, err := querier(ctx, r.db).ExecContext(ctx, query, userID, passwordHash, at)
	return expectRow(result, err, domain.ErrUserNotFound)
}

// MarkEmailVerified sets email_verified for the user, but only while the
// user's address still matches email.
func (r *UsersRepository) MarkEmailVerified(ctx context.Context, userID uuid.UUID, email string, at time.Time) error {
	query := `
		UPDATE users
		SET email_verified = true, email_verified_at = $3, updated_at = $3
		WHERE id = $1 AND lower(email) = lower($2)
	`
	result, err := querier(ctx, r.db).ExecContext(ctx, query, userID, email, at)
	return expectRow(result, err, domain.ErrUserNotFound)
}

func expectRow(result sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
