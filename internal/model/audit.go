package model

import "time"

// Audit actions recorded by the identity layer.
const (
	AuditProviderLinked     = "provider_linked"     // first link, new account
	AuditProviderRefreshed  = "provider_refreshed"  // repeat callback, tokens rotated
	AuditProviderRelinked   = "provider_relinked"   // existing email-matched account bound to a provider
	AuditProviderDisconnect = "provider_disconnect" // provider fields cleared
	AuditPasswordReset      = "password_reset"
)

// AuditEvent is an append-only record of a security-relevant account
// change. Relinking in particular is recorded so the original account
// owner has a trail when a provider identity gets bound to their email.
type AuditEvent struct {
	ID        string    `json:"id"        db:"id"`
	UserID    string    `json:"userId"    db:"user_id"`
	Action    string    `json:"action"    db:"action"`
	Detail    string    `json:"detail"    db:"detail"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
