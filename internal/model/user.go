// Package model defines the data structures used throughout the application.
package model

import (
	"time"

	"github.com/avelasco/studyhub/internal/identity"
)

// User represents a student account.
//
// A user has at least one of two authentication methods: a local password
// (PasswordHash) or a linked identity provider (Provider + ProviderID).
// Provider-only accounts still carry a random placeholder hash set at
// creation; a real password arrives later via the reset flow.
//
// NULLABLE COLUMNS AS EMPTY STRINGS:
// Optional string fields use "" as the absent value rather than *string.
// The database stores '' for them; the scanning code never deals with
// sql.NullString. "Has a password" therefore means PasswordHash != "".
type User struct {
	ID         string `json:"id"         db:"id"`
	FirstName  string `json:"firstName"  db:"first_name"`
	MiddleName string `json:"middleName" db:"middle_name"` // empty when the name has no middle part
	LastName   string `json:"lastName"   db:"last_name"`
	Username   string `json:"username"   db:"username"` // optional, unique when set
	Email      string `json:"email"      db:"email"`    // unique, stored lowercase
	Phone      string `json:"phone"      db:"phone"`    // E.164, optional
	Birthday   string `json:"birthday"   db:"birthday"` // YYYY-MM-DD, optional

	// LegacyName holds the combined display name for rows imported before
	// the first/middle/last split. It is consumed (split and blanked) the
	// first time the user logs in.
	LegacyName string `json:"-" db:"legacy_name"`

	PasswordHash string `json:"-" db:"password_hash"`

	// Federation fields. Provider and ProviderID are set together; the
	// pair is unique across users.
	Provider             string `json:"provider"   db:"provider"`    // "google", "github", "facebook"
	ProviderID           string `json:"providerId" db:"provider_id"` // subject ID issued by the provider
	ProviderToken        string `json:"-" db:"provider_token"`
	ProviderRefreshToken string `json:"-" db:"provider_refresh_token"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// FullName joins the non-empty name parts with single spaces.
func (u *User) FullName() string {
	parts := identity.NameParts{
		First:  u.FirstName,
		Middle: u.MiddleName,
		Last:   u.LastName,
	}
	return parts.Join()
}

// SetFullName splits a free-text display name and assigns the components.
// It goes through identity.ParseFullName — the one splitting routine shared
// by every name-derivation path.
func (u *User) SetFullName(fullName string) {
	parts := identity.ParseFullName(fullName)
	u.FirstName = parts.First
	u.MiddleName = parts.Middle
	u.LastName = parts.Last
}

// HasPassword reports whether the user has local password material. A user
// without one cannot disconnect their provider (it would strand the
// account).
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// HasProvider reports whether the user is linked to an identity provider.
func (u *User) HasProvider() bool {
	return u.Provider != ""
}
