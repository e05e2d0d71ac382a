package domain

import (
	"time"

	"github.com/google/uuid"
)

// TokenKind distinguishes the flows a single-use token can drive.
type TokenKind string

const (
	TokenKindPasswordReset     TokenKind = "password_reset"
	TokenKindEmailVerification TokenKind = "email_verification"
)

// Token is a stored single-use token. Only the SHA-256 of the raw token is
// persisted; the raw value leaves the process once, inside a notification.
type Token struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	Kind      TokenKind
	// Email is the address being verified (verification tokens only). It may
	// differ from the user's current address.
	Email     *string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsLive reports whether the token can still be consumed at now.
func (t *Token) IsLive(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}
