package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tendant/simple-idm-recovery/internal/config"
	"github.com/tendant/simple-idm-recovery/internal/domain"
)

// PasswordPolicy defines password complexity requirements.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
}

// DefaultPasswordPolicy requires 8 characters with upper, lower and digit.
func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumber:    true,
	}
}

// NewPasswordPolicy creates a PasswordPolicy from config.
func NewPasswordPolicy(cfg config.PasswordPolicyConfig) *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:        cfg.MinLength,
		RequireUppercase: cfg.RequireUppercase,
		RequireLowercase: cfg.RequireLowercase,
		RequireNumber:    cfg.RequireNumber,
	}
}

// ValidatePassword checks the password against the policy. Length counts
// characters, not bytes, and is checked first; the character-class
// requirements form a single rule with a single message.
func (p *PasswordPolicy) ValidatePassword(password string) error {
	if p.MinLength > 0 && utf8.RuneCountInString(password) < p.MinLength {
		return domain.NewValidationError("password", fmt.Sprintf("Password must be at least %d characters", p.MinLength))
	}

	if (p.RequireUppercase && !containsUppercase(password)) ||
		(p.RequireLowercase && !containsLowercase(password)) ||
		(p.RequireNumber && !containsNumber(password)) {
		return domain.NewValidationError("password", p.compositionMessage())
	}

	return nil
}

func (p *PasswordPolicy) compositionMessage() string {
	var parts []string
	if p.RequireUppercase {
		parts = append(parts, "one uppercase letter")
	}
	if p.RequireLowercase {
		parts = append(parts, "one lowercase letter")
	}
	if p.RequireNumber {
		parts = append(parts, "one number")
	}
	switch len(parts) {
	case 1:
		return "Password must contain at least " + parts[0]
	case 2:
		return "Password must contain at least " + parts[0] + " and " + parts[1]
	}
	return "Password must contain at least " + strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
}

func containsUppercase(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func containsLowercase(s string) bool {
	for _, r := range s {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}

func containsNumber(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
