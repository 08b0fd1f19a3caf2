package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/avelasco/studyhub/internal/auth"
	"github.com/avelasco/studyhub/internal/handler"
	"github.com/avelasco/studyhub/internal/model"
	"github.com/avelasco/studyhub/internal/repository/sqlite"
	"github.com/avelasco/studyhub/internal/service"
)

// StubProvider implements auth.Provider for callback tests without
// talking to a real identity provider.
type StubProvider struct {
	ProviderName string
	Profile      *auth.Profile
	ExchangeErr  error
	CapturedCode string
}

func (s *StubProvider) Name() string { return s.ProviderName }

func (s *StubProvider) AuthURL(state string) string {
	return "https://provider.test/authorize?state=" + state
}

func (s *StubProvider) Exchange(ctx context.Context, code string) (*auth.Profile, error) {
	s.CapturedCode = code
	if s.ExchangeErr != nil {
		return nil, s.ExchangeErr
	}
	return s.Profile, nil
}

// testEnv wires real services over an in-memory store, with only the OAuth
// provider stubbed out.
type testEnv struct {
	router   chi.Router
	db       *sqlite.DB
	svc      *service.AuthService
	tokens   *auth.TokenService
	provider *StubProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens, err := auth.NewTokenService("test-secret-key-at-least-16-chars")
	require.NoError(t, err)
	passwords := auth.NewPasswordServiceForTest(bcrypt.MinCost)
	sessions := auth.NewSessionIssuer(tokens, false)

	svc := service.NewAuthService(db.Users(), db.Audit(), db.PasswordResets(), passwords, nil, logger)

	provider := &StubProvider{
		ProviderName: "google",
		Profile: &auth.Profile{
			ExternalID: "goog-1",
			Email:      "social@example.com",
			Name:       "Social User",
			Token:      "access-token",
		},
	}
	providers := map[string]auth.Provider{"google": provider}

	authHandler := handler.NewAuthHandler(svc, providers, tokens, sessions, logger)
	settingsHandler := handler.NewSettingsHandler(svc, logger)

	r := chi.NewRouter()
	r.Post("/register", authHandler.HandleRegister)
	r.Post("/login", authHandler.HandleLogin)
	r.Post("/api/login", authHandler.HandleAPILogin)
	r.Post("/auth/logout", authHandler.HandleLogout)
	r.Get("/auth/{provider}/login", authHandler.HandleProviderLogin)
	r.Get("/auth/{provider}/callback", authHandler.HandleProviderCallback)
	r.Post("/forgot-password", settingsHandler.HandleForgotPassword)
	r.Post("/reset-password", settingsHandler.HandleResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/api/me", authHandler.HandleMe)
		r.Get("/api/settings/social-accounts", settingsHandler.HandleListSocialAccounts)
		r.Delete("/api/settings/social-accounts", settingsHandler.HandleDisconnectSocialAccount)
	})

	return &testEnv{router: r, db: db, svc: svc, tokens: tokens, provider: provider}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

const registerBody = `{
	"firstName": "Test", "lastName": "User",
	"email": "test@example.com",
	"password": "super-secret", "passwordConfirmation": "super-secret"
}`

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == "token" {
			return c
		}
	}
	return nil
}

func TestHandleRegister(t *testing.T) {
	t.Run("creates account and session", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(postJSON("/register", registerBody))

		assert.Equal(t, http.StatusCreated, rr.Code)

		var user model.User
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "test@example.com", user.Email)

		cookie := sessionCookie(rr)
		require.NotNil(t, cookie, "register must start a session")
		assert.True(t, cookie.HttpOnly)
		assert.NotEmpty(t, cookie.Value)
	})

	t.Run("password hash never leaves the server", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(postJSON("/register", registerBody))

		assert.NotContains(t, rr.Body.String(), "passwordHash")
		assert.NotContains(t, rr.Body.String(), "$2a$")
	})

	t.Run("duplicate email points at the email field", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(postJSON("/register", registerBody))

		rr := env.do(postJSON("/register", registerBody))

		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var res handler.ErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "validation_error", res.Error)
		assert.Equal(t, "email", res.Field)
	})

	t.Run("malformed body", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(postJSON("/register", `{"firstName":`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestHandleLogin(t *testing.T) {
	env := newTestEnv(t)
	env.do(postJSON("/register", registerBody))

	t.Run("valid credentials", func(t *testing.T) {
		rr := env.do(postJSON("/login", `{"login":"test@example.com","password":"super-secret"}`))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotNil(t, sessionCookie(rr))
	})

	t.Run("wrong password is a 401 with a generic message", func(t *testing.T) {
		rr := env.do(postJSON("/login", `{"login":"test@example.com","password":"wrong"}`))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		var res handler.ErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "Invalid credentials", res.Message)
	})

	t.Run("unknown account gets the same 401", func(t *testing.T) {
		rr := env.do(postJSON("/login", `{"login":"ghost@example.com","password":"super-secret"}`))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestHandleAPILogin(t *testing.T) {
	env := newTestEnv(t)
	env.do(postJSON("/register", registerBody))

	rr := env.do(postJSON("/api/login", `{"login":"test@example.com","password":"super-secret"}`))

	require.Equal(t, http.StatusOK, rr.Code)

	var res struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	require.NotEmpty(t, res.Token)

	// The returned token must be usable as a bearer token.
	userID, err := env.tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, userID)
}

func TestHandleMe(t *testing.T) {
	env := newTestEnv(t)
	env.do(postJSON("/register", registerBody))

	login := env.do(postJSON("/api/login", `{"login":"test@example.com","password":"super-secret"}`))
	var loginRes struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(login.Body).Decode(&loginRes))

	t.Run("with bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+loginRes.Token)

		rr := env.do(req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var user model.User
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
		assert.Equal(t, "test@example.com", user.Email)
	})

	t.Run("without credentials", func(t *testing.T) {
		rr := env.do(httptest.NewRequest(http.MethodGet, "/api/me", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestHandleLogout(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(postJSON("/auth/logout", ``))

	assert.Equal(t, http.StatusOK, rr.Code)

	cookie := sessionCookie(rr)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestHandleProviderLogin(t *testing.T) {
	t.Run("redirects to the consent page with a state cookie", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

		assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)

		var state string
		for _, c := range rr.Result().Cookies() {
			if c.Name == "oauth_state" {
				state = c.Value
			}
		}
		require.NotEmpty(t, state, "state cookie must be set")
		assert.Equal(t, "https://provider.test/authorize?state="+state, rr.Header().Get("Location"))
	})

	t.Run("unknown provider", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(httptest.NewRequest(http.MethodGet, "/auth/myspace/login", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func callbackRequest(state string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state="+state, nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: state})
	return req
}

func TestHandleProviderCallback(t *testing.T) {
	t.Run("creates the user and redirects to the dashboard", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(callbackRequest("state-1"))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
		assert.Equal(t, "abc", env.provider.CapturedCode)
		require.NotNil(t, sessionCookie(rr))

		// The account exists but has only a placeholder password.
		_, err := env.svc.Login(context.Background(), "social@example.com", "anything")
		assert.Error(t, err, "provider-created accounts have no usable password")
	})

	t.Run("state cookie is cleared with matching attributes", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(callbackRequest("state-1"))

		var cleared *http.Cookie
		for _, c := range rr.Result().Cookies() {
			if c.Name == "oauth_state" {
				cleared = c
			}
		}
		require.NotNil(t, cleared, "callback must clear the state cookie")
		assert.Negative(t, cleared.MaxAge)
		// Deletion only takes effect when the attributes match the set.
		assert.True(t, cleared.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, cleared.SameSite)
		assert.Equal(t, "/", cleared.Path)
	})

	t.Run("state mismatch is rejected", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state=evil", nil)
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "good"})

		rr := env.do(req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing state cookie is rejected", func(t *testing.T) {
		env := newTestEnv(t)

		rr := env.do(httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state=s", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("user denial bounces back to login", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?error=access_denied&state=s", nil)
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s"})

		rr := env.do(req)

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/login?error=provider", rr.Header().Get("Location"))
	})

	t.Run("exchange failure bounces back to login", func(t *testing.T) {
		env := newTestEnv(t)
		env.provider.ExchangeErr = errors.New("provider unreachable")

		rr := env.do(callbackRequest("state-2"))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/login?error=provider", rr.Header().Get("Location"))
		assert.Nil(t, sessionCookie(rr), "no session on a failed exchange")
	})

	t.Run("second callback reuses the account", func(t *testing.T) {
		env := newTestEnv(t)

		env.do(callbackRequest("state-1"))
		rr := env.do(callbackRequest("state-2"))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
	})
}
