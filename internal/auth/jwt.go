// Package auth provides the authentication primitives: JWT issuing and
// validation, bcrypt password hashing, the OAuth provider exchanges, and
// the HTTP middleware that guards protected routes.
//
// SESSION MODEL:
// Sessions are stateless JWTs. Web clients carry the token in an HttpOnly
// cookie set by SessionIssuer; API clients carry it in an Authorization
// Bearer header. Either way the token's Subject claim is the internal user
// ID, and validating it needs no store lookup — only the HMAC secret.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "studyhub"

// defaultTokenTTL is how long an access token stays valid. Web sessions
// re-issue on OAuth/login; API clients re-login when they get a 401.
const defaultTokenTTL = 24 * time.Hour

// TokenService signs and verifies JWT access tokens with an HMAC secret.
// The same secret must be used for both operations; rotate it and every
// outstanding session is invalidated at once.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. The secret should be at least 32
// bytes of random data in production (openssl rand -hex 32).
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), ttl: defaultTokenTTL}, nil
}

// claims embeds jwt.RegisteredClaims; the user ID travels in Subject.
type claims struct {
	jwt.RegisteredClaims
}

// Generate creates and signs an access token for the given userID using
// the service's default lifetime.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration creates a token with a custom expiry. Used by tests
// and anywhere a non-default lifetime is needed.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// TokenTTL returns the default token lifetime, so cookie Max-Age and token
// expiry always agree.
func (s *TokenService) TokenTTL() time.Duration {
	return s.ttl
}

// Validate parses and verifies a token string and returns the userID from
// its Subject claim.
//
// Restricting the accepted algorithms to HS256 blocks algorithm-confusion
// attacks; the issuer check rejects tokens minted by other applications
// sharing a secret by accident.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}

	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return c.Subject, nil
}
