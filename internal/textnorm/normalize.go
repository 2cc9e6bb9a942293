// Package textnorm cleans scraped text before it is stored or compared.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize drops control and invisible formatting characters, applies NFKC,
// collapses whitespace runs to a single space and trims the result.
// Empty input is returned unchanged.
func Normalize(raw string) string {
	if raw == "" {
		return raw
	}
	s := strings.Map(func(r rune) rune {
		if isStripped(r) {
			return -1
		}
		return r
	}, strings.ToValidUTF8(raw, "\uFFFD"))
	// Stripping runs before composition so a removed character between a
	// base and a combining mark cannot leave an uncomposed pair behind.
	s = norm.NFKC.String(s)
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// isStripped reports C0 controls, DEL, zero-width space, LRM/RLM and the
// bidi embedding/override controls U+202A..U+202E. C0 whitespace (tab,
// newline, vertical tab, form feed, carriage return) is kept so it collapses
// into a space instead of gluing words together.
func isStripped(r rune) bool {
	switch {
	case r >= '\t' && r <= '\r':
		return false
	case r <= 0x1F, r == 0x7F:
		return true
	case r == 0x200B, r == 0x200E, r == 0x200F:
		return true
	case r >= 0x202A && r <= 0x202E:
		return true
	default:
		return false
	}
}
