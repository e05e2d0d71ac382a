package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-recovery/internal/domain"
)

// TokenRepository persists single-use tokens. Consume must be a single
// atomic delete-and-return so that concurrent consumers of one token see
// exactly one success.
type TokenRepository interface {
	Create(ctx context.Context, token *domain.Token) error
	DeleteForUser(ctx context.Context, userID uuid.UUID, kind domain.TokenKind) error
	Consume(ctx context.Context, tokenHash string, kind domain.TokenKind, now time.Time) (*domain.Token, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserRepository is the slice of user storage the flows mutate.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string, at time.Time) error
	MarkEmailVerified(ctx context.Context, userID uuid.UUID, email string, at time.Time) error
}

// SessionRepository persists login sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeAllByUserID(ctx context.Context, userID uuid.UUID) error
}

// Transactor runs fn in a transaction that repositories pick up from ctx.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) bool
}

// RequestMeta carries client details used in notifications.
type RequestMeta struct {
	IP        string
	UserAgent string
}
