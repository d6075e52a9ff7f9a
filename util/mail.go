package util

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/siparmail/sipar-server/types"
)

var (
	usernameRe  = regexp.MustCompile(`^[a-z0-9_]{3,24}$`)
	localPartRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._+-]{0,63}$`)
)

// IsValidUsername reports whether the (already lowercased) username is
// acceptable.
func IsValidUsername(username string) bool {
	return usernameRe.MatchString(username)
}

// IsValidLocalPart reports whether the (already lowercased) alias
// local part is acceptable.
func IsValidLocalPart(localPart string) bool {
	return localPartRe.MatchString(localPart)
}

// SplitRecipient parses an envelope recipient into local part and
// domain, both lowercased. Angle-bracket display forms are accepted.
func SplitRecipient(to string) (string, string, error) {
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return "", "", types.ErrBadRequest
	}
	parts := strings.SplitN(addr.Address, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", types.ErrBadRequest
	}
	return strings.ToLower(parts[0]), strings.ToLower(parts[1]), nil
}

// NormalizeEmail lowercases and validates a user email address.
func NormalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return "", types.ErrBadRequest
	}
	return strings.ToLower(addr.Address), nil
}

// TruncateRunes cuts s to at most max runes. Lossy on purpose, stored
// bodies favor availability over completeness.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
