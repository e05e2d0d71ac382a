package domain

import (
	"errors"
	"fmt"
	"time"
)

// Authentication errors
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUnauthenticated      = errors.New("authentication required")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionExpired       = errors.New("session expired")
	ErrSessionRevoked       = errors.New("session revoked")
	ErrInvalidToken         = errors.New("invalid token")
	ErrEmailAlreadyVerified = errors.New("email already verified")
)

// ErrTokenInvalid is returned for reset and verification tokens that are
// missing, expired or already consumed. The three cases are deliberately
// not distinguished.
var ErrTokenInvalid = errors.New("invalid or expired token")

// ValidationError reports malformed input. Message is safe to show to users.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RateLimitError is returned when an identifier exceeded its request budget.
// Limit, Remaining and ResetAt describe the window that denied it; ResetAt
// is zero when unknown.
type RateLimitError struct {
	Message           string
	RetryAfterSeconds int
	Limit             int
	Remaining         int
	ResetAt           time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (retry after %ds)", e.Message, e.RetryAfterSeconds)
}

// DownstreamError wraps a datastore or notifier failure.
type DownstreamError struct {
	Op  string
	Err error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DownstreamError) Unwrap() error {
	return e.Err
}

// Downstream wraps err as a DownstreamError unless it is nil or already
// part of the taxonomy.
func Downstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DownstreamError
	if errors.As(err, &de) {
		return err
	}
	return &DownstreamError{Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
