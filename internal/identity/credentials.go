package identity

import (
	"net/mail"
	"strings"
)

// Login field names as stored on the user record.
const (
	FieldEmail    = "email"
	FieldUsername = "username"
)

// Credentials is a resolved login attempt: which user column to match the
// identifier against, plus the plaintext password to verify.
type Credentials struct {
	Field    string // FieldEmail or FieldUsername
	Value    string // the identifier as typed, untouched
	Password string
}

// ResolveCredentials classifies a free-text login identifier as an email
// address or a username and returns the lookup pair for a credential match.
//
// Classification is purely syntactic. An identifier that parses as an email
// resolves to the email field even if no such account exists — the miss
// surfaces later as an authentication failure, never as a resolver error.
// The store is never consulted here, so the resolver leaks nothing about
// which accounts exist.
//
// No normalization is applied: the value goes into the query exactly as
// typed. Case-insensitive email matching is the store's concern.
func ResolveCredentials(login, password string) Credentials {
	field := FieldUsername
	if IsEmailAddress(login) {
		field = FieldEmail
	}

	return Credentials{
		Field:    field,
		Value:    login,
		Password: password,
	}
}

// IsEmailAddress reports whether s is a plain RFC 5322 address.
//
// mail.ParseAddress also accepts display-name forms like "Ada <ada@x.com>",
// which are not something a user types into a login box — requiring the
// parsed address to round-trip to the input rules those out. The domain
// must contain a dot so bare hostnames ("user@localhost") classify as
// usernames, matching what address validators conventionally accept.
func IsEmailAddress(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}

	at := strings.LastIndex(addr.Address, "@")
	if at < 0 {
		return false
	}
	return strings.Contains(addr.Address[at+1:], ".")
}
