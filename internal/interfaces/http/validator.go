package http

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Input validation constants
const (
	MaxSlugLength     = 128
	MaxNameLength     = 256
	MaxSourceLength   = 256
	MaxPromptLength   = 50000
	MaxMessageLength  = 4096
	MaxDocumentLength = 5 << 20
)

var (
	slugPattern  = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ]{5,19}$`)
)

// ValidSlug checks that a gateway session id is safe to use as a key and a file name stem.
func ValidSlug(s string) bool {
	if s == "" || len(s) > MaxSlugLength {
		return false
	}
	return slugPattern.MatchString(s)
}

// ValidTenantID checks that id is a canonical UUID.
func ValidTenantID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

// ValidPhone accepts E.164-ish numbers, with or without the leading "+".
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// SanitizeString removes null bytes and control characters
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return s
}

// ValidateLength checks if string is within bounds
func ValidateLength(s string, min, max int) bool {
	l := utf8.RuneCountInString(s)
	return l >= min && l <= max
}
