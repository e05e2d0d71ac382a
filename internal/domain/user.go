package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents the account.
type User struct {
	ID                uuid.UUID
	Email             string
	Name              *string
	PasswordHash      string
	EmailVerified     bool
	EmailVerifiedAt   *time.Time
	PasswordUpdatedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DisplayName returns the name used in email greetings.
func (u *User) DisplayName() string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	return "there"
}
