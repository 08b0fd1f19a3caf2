package identity

import (
	"strings"
	"unicode"
)

// UsernameFromProfile derives a username candidate for a user created from
// an OAuth profile: the provider nickname when present, otherwise the local
// part of the email (everything before the "@"), slugified either way.
//
// The result is a candidate, not a guarantee — the store's unique index has
// the final say, and the caller retries with a random suffix on collision.
func UsernameFromProfile(nickname, email string) string {
	source := nickname
	if source == "" {
		source, _, _ = strings.Cut(email, "@")
	}
	return Slugify(source)
}

// Slugify lowercases s and collapses every run of non-alphanumeric
// characters into a single hyphen, trimming hyphens from both ends.
//
//	"John Doe"      → "john-doe"
//	"ada.byron_84"  → "ada-byron-84"
func Slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}

	return strings.TrimRight(b.String(), "-")
}
