package auth

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/tendant/simple-idm-recovery/internal/domain"
)

// Email validation regex (stricter than RFC 5322 for practical use)
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

const maxEmailLength = 254 // RFC 5321

// ValidateEmail validates an email address for format and length.
// Display-name forms such as "Ada <ada@example.com>" are rejected.
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return domain.NewValidationError("email", "Email address is required")
	}
	if len(email) > maxEmailLength {
		return domain.NewValidationError("email", "Email address is too long")
	}

	normalized := NormalizeEmail(email)
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized || !emailRegex.MatchString(addr.Address) {
		return domain.NewValidationError("email", "Invalid email address")
	}
	return nil
}

// NormalizeEmail normalizes an email address by lowercasing and trimming.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
