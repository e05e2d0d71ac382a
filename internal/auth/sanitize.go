package auth

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tendant/simple-idm-recovery/internal/domain"
)

// maxNameLength is the longest display name accepted at registration.
const maxNameLength = 100

// SanitizeName trims a display name and strips control characters.
// Names are rendered through html/template, so no escaping happens here.
func SanitizeName(name string) (string, error) {
	name = strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name))

	if utf8.RuneCountInString(name) > maxNameLength {
		return "", domain.NewValidationError("name", "Name must be at most 100 characters long")
	}
	return name, nil
}
