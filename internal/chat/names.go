package chat

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxNameLength is the display name cap in runes.
const DefaultMaxNameLength = 20

// DefaultMaxTextLength caps a single chat message.
const DefaultMaxTextLength = 500

// normalizeName trims surrounding whitespace, composes the name to NFC so
// that visually identical names collide, and truncates to maxLen runes.
// A non-positive maxLen disables truncation.
func normalizeName(raw string, maxLen int) string {
	name := norm.NFC.String(strings.TrimSpace(raw))
	return strings.TrimSpace(truncateRunes(name, maxLen))
}

// keySeparator joins the members of a private key on the wire, so names may
// not contain it.
const keySeparator = ":"

// validName reports whether a normalized name may be registered or
// addressed.
func validName(name string) bool {
	return name != "" && !strings.Contains(name, keySeparator)
}

// normalizeText trims the text and truncates it to maxLen runes.
func normalizeText(raw string, maxLen int) string {
	return strings.TrimSpace(truncateRunes(strings.TrimSpace(raw), maxLen))
}

func truncateRunes(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i]
		}
		n++
	}
	return s
}
