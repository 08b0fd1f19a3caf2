// Package identity holds the pure identity-resolution logic: classifying
// login identifiers, splitting display names into parts, and deriving
// username candidates from provider profiles.
//
// Everything in this package is side-effect free — no store lookups, no
// clock, no HTTP. The randomness in RandomToken is the single exception,
// and it exists only so that an empty display name still yields a usable
// last name.
package identity

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// NameParts is the result of splitting a free-text full name.
//
// Middle is the empty string when the name has no middle component.
// Last can legitimately be empty for single-token names (see ParseFullName).
type NameParts struct {
	First  string
	Middle string
	Last   string
}

// ParseFullName splits a display name into first/middle/last components.
//
// Tokenizing happens on whitespace after trimming. The rules:
//
//	""            → First "User", Last = random 8-char token
//	"Cher"        → First "Cher", Last ""
//	"Ada Byron"   → First "Ada", Last "Byron"
//	"Ada Lee Marie Byron" → First "Ada", Middle "Lee Marie", Last "Byron"
//
// The empty-input branch invents a last name so that an account created
// from a provider that returned no display name still has both a first and
// a last name. The single-token branch keeps Last empty — the token is
// unambiguously a first name, and rows migrated from the combined-name era
// already look like this.
//
// Every code path that derives name parts (login-time backfill, OAuth
// profile ingestion, User.SetFullName) goes through this one function so
// the behavior cannot drift between call sites.
func ParseFullName(fullName string) NameParts {
	trimmed := strings.TrimSpace(fullName)
	if trimmed == "" {
		return NameParts{
			First: "User",
			Last:  RandomToken(8),
		}
	}

	parts := strings.Fields(trimmed)

	switch len(parts) {
	case 1:
		return NameParts{First: parts[0]}
	case 2:
		return NameParts{First: parts[0], Last: parts[1]}
	default:
		return NameParts{
			First:  parts[0],
			Middle: strings.Join(parts[1:len(parts)-1], " "),
			Last:   parts[len(parts)-1],
		}
	}
}

// Join assembles a display name from parts, skipping empty components and
// separating the rest with single spaces. It is the inverse-ish of
// ParseFullName: Join(ParseFullName(s)) normalizes whitespace but keeps
// every token.
func (n NameParts) Join() string {
	fields := make([]string, 0, 3)
	for _, part := range []string{n.First, n.Middle, n.Last} {
		if part != "" {
			fields = append(fields, part)
		}
	}
	return strings.Join(fields, " ")
}

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomToken returns n random alphanumeric characters from crypto/rand.
// Used for invented last names, placeholder passwords, and reset tokens.
func RandomToken(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken;
			// there is no sensible recovery at this level.
			panic("identity: reading random bytes: " + err.Error())
		}
		b[i] = tokenAlphabet[idx.Int64()]
	}
	return string(b)
}
