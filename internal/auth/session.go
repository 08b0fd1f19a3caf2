package auth

import (
	"fmt"
	"net/http"

	"github.com/avelasco/studyhub/internal/model"
)

const sessionCookie = "token"

// SessionIssuer establishes and tears down authenticated web sessions.
// It is the one place that knows sessions are JWTs in an HttpOnly cookie —
// handlers call Establish/Clear and never touch cookies themselves, and
// nothing reads ambient global auth state.
type SessionIssuer struct {
	tokens *TokenService
	secure bool // Secure cookie flag; true behind HTTPS
}

// NewSessionIssuer creates a SessionIssuer. secure should be true in any
// deployment served over HTTPS.
func NewSessionIssuer(tokens *TokenService, secure bool) *SessionIssuer {
	return &SessionIssuer{tokens: tokens, secure: secure}
}

// Establish issues an access token for the user and sets it as the session
// cookie. HttpOnly keeps it away from scripts; SameSite=Lax keeps it off
// cross-site POSTs.
func (s *SessionIssuer) Establish(w http.ResponseWriter, user *model.User) error {
	tokenStr, err := s.tokens.Generate(user.ID)
	if err != nil {
		return fmt.Errorf("auth: establishing session for user %s: %w", user.ID, err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    tokenStr,
		Path:     "/",
		MaxAge:   int(s.tokens.TokenTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// Clear deletes the session cookie. The token itself stays valid until it
// expires — stateless sessions have nothing server-side to revoke.
func (s *SessionIssuer) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
