package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is a server-side login session referenced by access tokens.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	IP        string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}
