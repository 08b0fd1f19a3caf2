package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/avelasco/studyhub/internal/apperror"
	"github.com/avelasco/studyhub/internal/auth"
	"github.com/avelasco/studyhub/internal/service"
)

const (
	stateCookie    = "oauth_state"
	stateCookieTTL = 600 // seconds; long enough to approve the consent page

	dashboardPath  = "/dashboard"
	loginErrorPath = "/login?error=provider"
)

// AuthHandler owns registration, credential login, the social login flow,
// and session teardown.
//
//   - HandleRegister          → create a local account, start a session
//   - HandleLogin             → credential login (web form, session cookie)
//   - HandleAPILogin          → credential login (API clients, bearer token)
//   - HandleProviderLogin     → redirect to the provider's consent page
//   - HandleProviderCallback  → exchange the code, link or create, start a session
//   - HandleLogout            → clear the session cookie
//   - HandleMe                → current user's profile
type AuthHandler struct {
	svc       *service.AuthService
	providers map[string]auth.Provider
	tokens    *auth.TokenService
	sessions  *auth.SessionIssuer
	logger    *slog.Logger
}

func NewAuthHandler(
	svc *service.AuthService,
	providers map[string]auth.Provider,
	tokens *auth.TokenService,
	sessions *auth.SessionIssuer,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		svc:       svc,
		providers: providers,
		tokens:    tokens,
		sessions:  sessions,
		logger:    logger,
	}
}

// HandleRegister creates a local-credential account.
//
// HTTP: POST /register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if !decodeJSON(w, r, &in) {
		return
	}

	user, err := h.svc.Register(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.sessions.Establish(w, user); err != nil {
		h.logger.Error("register: establishing session failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// HandleLogin performs a credential login and starts a cookie session. The
// login field accepts an email address or a username.
//
// HTTP: POST /login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	user, err := h.svc.Login(r.Context(), in.Login, in.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.sessions.Establish(w, user); err != nil {
		h.logger.Error("login: establishing session failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleAPILogin is the token-returning variant of HandleLogin for
// non-browser clients. The token goes in the response body, not a cookie;
// clients send it back as a bearer token.
//
// HTTP: POST /api/login
func (h *AuthHandler) HandleAPILogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	user, err := h.svc.Login(r.Context(), in.Login, in.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	tokenStr, err := h.tokens.Generate(user.ID)
	if err != nil {
		h.logger.Error("api login: token generation failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": tokenStr,
		"user":  user,
	})
}

// HandleProviderLogin redirects the browser to the provider's consent
// page. A random state value stored in a short-lived HttpOnly cookie ties
// the eventual callback to this browser (CSRF protection).
//
// HTTP: GET /auth/{provider}/login
func (h *AuthHandler) HandleProviderLogin(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[chi.URLParam(r, "provider")]
	if !ok {
		writeError(w, apperror.NotFound("provider", chi.URLParam(r, "provider")))
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieTTL,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleProviderCallback completes the social login flow: verify the state,
// exchange the code for a profile, link or create the local account, and
// start a session. Exchange failures send the browser back to the login
// page rather than dead-ending on a JSON error.
//
// HTTP: GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleProviderCallback(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	provider, ok := h.providers[providerName]
	if !ok {
		writeError(w, apperror.NotFound("provider", providerName))
		return
	}

	stateCk, err := r.Cookie(stateCookie)
	if err != nil || stateCk.Value == "" || r.URL.Query().Get("state") != stateCk.Value {
		h.logger.Warn("auth callback: state mismatch", slog.String("provider", providerName))
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// State is single-use. The deletion must carry the same attributes as
	// the set, or browsers may treat it as a different cookie.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization",
			slog.String("provider", providerName),
			slog.String("error", errParam),
		)
		http.Redirect(w, r, loginErrorPath, http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	profile, err := provider.Exchange(r.Context(), code)
	if err != nil {
		err = apperror.ProviderExchangeFailed(providerName, err)
		h.logger.Error("auth callback: exchange failed",
			slog.String("provider", providerName),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, loginErrorPath, http.StatusSeeOther)
		return
	}

	user, err := h.svc.LinkOrCreateFromProvider(r.Context(), providerName, profile)
	if err != nil {
		h.logger.Error("auth callback: linking failed",
			slog.String("provider", providerName),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, loginErrorPath, http.StatusSeeOther)
		return
	}

	if err := h.sessions.Establish(w, user); err != nil {
		h.logger.Error("auth callback: establishing session failed", slog.String("error", err.Error()))
		http.Redirect(w, r, loginErrorPath, http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
}

// HandleLogout clears the session cookie. POST, not GET: logout changes
// state and must not be pre-fetchable.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /api/me
// Auth: required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.InvalidCredentials())
		return
	}

	user, err := h.svc.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
