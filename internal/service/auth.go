// Package service holds the business logic between the HTTP handlers and
// the repositories.
//
//	handlers (HTTP) → AuthService / GamificationService → repositories (DB)
//	                ↘ auth.TokenService / auth.PasswordService
//
// AuthService owns every identity rule: registration validation, the
// email-or-username credential login, the OAuth account-linking state
// machine, the provider disconnect guard, and the password reset flow.
// None of it knows about HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/avelasco/studyhub/internal/apperror"
	"github.com/avelasco/studyhub/internal/auth"
	"github.com/avelasco/studyhub/internal/identity"
	"github.com/avelasco/studyhub/internal/model"
	"github.com/avelasco/studyhub/internal/repository"
)

// resetTokenTTL is how long a password reset token stays redeemable.
const resetTokenTTL = 60 * time.Minute

// signupBonus is the one-time points award for creating an account,
// whichever door (registration or OAuth) the user came in through.
const signupBonus = 50

// phonePattern is E.164: a plus, a non-zero leading digit, at most 15
// digits total.
var phonePattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// AuthService handles authentication business logic.
type AuthService struct {
	users     repository.UserRepository
	audit     repository.AuditRepository
	resets    repository.PasswordResetRepository
	passwords *auth.PasswordService
	points    *GamificationService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
// points may be nil when gamification is disabled; every other dependency
// is required.
func NewAuthService(
	users repository.UserRepository,
	audit repository.AuditRepository,
	resets repository.PasswordResetRepository,
	passwords *auth.PasswordService,
	points *GamificationService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		audit:     audit,
		resets:    resets,
		passwords: passwords,
		points:    points,
		logger:    logger,
	}
}

// RegisterInput is the registration form payload.
type RegisterInput struct {
	FirstName            string `json:"firstName"`
	MiddleName           string `json:"middleName"`
	LastName             string `json:"lastName"`
	Username             string `json:"username"`
	Email                string `json:"email"`
	Phone                string `json:"phone"`
	Birthday             string `json:"birthday"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"passwordConfirmation"`
}

// Register validates the input, creates a local-credential user, and
// returns it. Emails are stored lowercase; uniqueness conflicts come back
// as per-field validation errors so the form can point at the right input.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if err := validateRegister(in); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		MiddleName:   strings.TrimSpace(in.MiddleName),
		LastName:     strings.TrimSpace(in.LastName),
		Username:     strings.TrimSpace(in.Username),
		Email:        canonicalEmail(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		Birthday:     strings.TrimSpace(in.Birthday),
		PasswordHash: hash,
	}

	if err := s.users.Create(ctx, user); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && errors.Is(err, apperror.ErrConflict) {
			switch appErr.Field {
			case "email":
				return nil, apperror.ValidationFailed("email", "The email has already been taken.")
			case "username":
				return nil, apperror.ValidationFailed("username", "The username has already been taken.")
			}
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)

	s.awardSignupBonus(ctx, user.ID)

	return user, nil
}

// Login performs a local credential login. The identifier may be an email
// or a username; identity.ResolveCredentials picks the column. Every
// failure — unknown identifier, provider-only account, wrong password —
// collapses to the same InvalidCredentials error.
func (s *AuthService) Login(ctx context.Context, login, password string) (*model.User, error) {
	if login == "" || password == "" {
		return nil, apperror.ValidationFailed("login", "The login and password fields are required.")
	}

	creds := identity.ResolveCredentials(login, password)

	user, err := s.users.FindByLogin(ctx, creds.Field, creds.Value)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", creds.Field, err)
	}

	// Provider-only accounts have a placeholder hash, so Verify would fail
	// anyway; the explicit check keeps the log line honest.
	if !user.HasPassword() {
		s.logger.Debug("password login against provider-only account", slog.String("userID", user.ID))
		return nil, apperror.InvalidCredentials()
	}

	if err := s.passwords.Verify(user.PasswordHash, creds.Password); err != nil {
		return nil, apperror.InvalidCredentials()
	}

	if err := s.backfillLegacyName(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("field", creds.Field),
	)

	return user, nil
}

// backfillLegacyName splits the combined name column left over from the
// pre-split schema the first time such a user logs in.
func (s *AuthService) backfillLegacyName(ctx context.Context, user *model.User) error {
	if user.LegacyName == "" || (user.FirstName != "" && user.LastName != "") {
		return nil
	}

	user.SetFullName(user.LegacyName)
	user.LegacyName = ""

	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("service/auth: backfilling name for user %s: %w", user.ID, err)
	}

	s.logger.Info("split legacy name", slog.String("userID", user.ID))
	return nil
}

// linkAttempts bounds the create-race retry loop. One retry handles the
// double-click race; the extra attempt absorbs a username collision during
// the retried create.
const linkAttempts = 3

// LinkOrCreateFromProvider finds or creates the local user for an OAuth
// profile and returns the user to authenticate as. The ordered rules:
//
//  1. Match (provider, external ID)   → rotate tokens          (refresh)
//  2. Match email                     → bind provider identity (merge)
//  3. Neither                         → create a new account   (create)
//
// Each branch is a single update or insert, so a failure leaves no partial
// mutation behind.
//
// CONCURRENT CALLBACKS:
// Two in-flight callbacks for the same identity (a double-clicked "Sign in
// with Google" button) can both reach the create branch. The store's
// unique constraints make the loser's insert fail with a conflict; the
// loop then re-runs the lookups and lands in the refresh or merge branch.
// Constraint errors never escape to the caller.
//
// The merge branch silently rebinds an existing email-matched account to
// the incoming provider identity. That is deliberate but security
// sensitive, so it is never quiet in the record: a provider_relinked audit
// event is written and the merge is logged at WARN.
func (s *AuthService) LinkOrCreateFromProvider(ctx context.Context, providerName string, profile *auth.Profile) (*model.User, error) {
	if profile == nil {
		return nil, fmt.Errorf("service/auth: provider profile must not be nil")
	}
	if profile.Email == "" {
		// Without an email there is nothing to merge on and no unique
		// address to store; treat it like any other failed exchange.
		return nil, apperror.ProviderExchangeFailed(providerName,
			fmt.Errorf("%s returned no email address", providerName))
	}

	email := canonicalEmail(profile.Email)

	for attempt := 0; attempt < linkAttempts; attempt++ {
		// Rule 1: exact provider identity match — token refresh only.
		user, err := s.users.FindByProviderIdentity(ctx, providerName, profile.ExternalID)
		if err == nil {
			return s.refreshProviderTokens(ctx, user, profile)
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/auth: provider identity lookup: %w", err)
		}

		// Rule 2: same email, different (or no) provider — merge.
		user, err = s.users.FindByEmail(ctx, email)
		if err == nil {
			merged, mergeErr := s.mergeProviderIdentity(ctx, user, providerName, profile)
			if mergeErr != nil {
				if errors.Is(mergeErr, apperror.ErrConflict) {
					continue // racer bound this identity first; re-run lookups
				}
				return nil, mergeErr
			}
			return merged, nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/auth: email lookup: %w", err)
		}

		// Rule 3: first sight of this identity — create.
		user, err = s.createFromProfile(ctx, providerName, email, profile, attempt > 0)
		if err == nil {
			return user, nil
		}
		if errors.Is(err, apperror.ErrConflict) {
			continue // racer created the row first; re-run lookups
		}
		return nil, err
	}

	return nil, fmt.Errorf("service/auth: linking %s identity %s: retries exhausted",
		providerName, profile.ExternalID)
}

// refreshProviderTokens is the Linked-Refresh terminal state: same user,
// newer tokens.
func (s *AuthService) refreshProviderTokens(ctx context.Context, user *model.User, profile *auth.Profile) (*model.User, error) {
	user.ProviderToken = profile.Token
	user.ProviderRefreshToken = profile.RefreshToken

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: refreshing tokens for user %s: %w", user.ID, err)
	}

	s.recordAudit(ctx, user.ID, model.AuditProviderRefreshed, "provider="+user.Provider)

	return user, nil
}

// mergeProviderIdentity is the Linked-Merge terminal state: an existing
// email-matched account gets the incoming provider identity bound onto it,
// replacing any previous binding.
func (s *AuthService) mergeProviderIdentity(ctx context.Context, user *model.User, providerName string, profile *auth.Profile) (*model.User, error) {
	previous := user.Provider

	user.Provider = providerName
	user.ProviderID = profile.ExternalID
	user.ProviderToken = profile.Token
	user.ProviderRefreshToken = profile.RefreshToken

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: merging provider identity onto user %s: %w", user.ID, err)
	}

	s.logger.Warn("provider identity bound to existing account by email match",
		slog.String("userID", user.ID),
		slog.String("provider", providerName),
		slog.String("previousProvider", previous),
	)
	s.recordAudit(ctx, user.ID, model.AuditProviderRelinked,
		fmt.Sprintf("provider=%s previous=%s", providerName, previous))

	return user, nil
}

// createFromProfile is the Linked-Create terminal state. The account gets
// name parts from the display name, a slugified username candidate, and a
// random never-disclosed password hash — so even a provider-only account
// has password material, and the reset flow can later attach a real one.
//
// suffixUsername is set on retry passes: if the first create lost to a
// username collision, the candidate gets a random suffix instead of
// failing the login.
func (s *AuthService) createFromProfile(ctx context.Context, providerName, email string, profile *auth.Profile, suffixUsername bool) (*model.User, error) {
	parts := identity.ParseFullName(profile.Name)

	username := identity.UsernameFromProfile(profile.Nickname, email)
	if suffixUsername && username != "" {
		username += "-" + strings.ToLower(identity.RandomToken(4))
	}

	placeholder, err := s.passwords.Hash(identity.RandomToken(24))
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing placeholder password: %w", err)
	}

	user := &model.User{
		FirstName:            parts.First,
		MiddleName:           parts.Middle,
		LastName:             parts.Last,
		Username:             username,
		Email:                email,
		PasswordHash:         placeholder,
		Provider:             providerName,
		ProviderID:           profile.ExternalID,
		ProviderToken:        profile.Token,
		ProviderRefreshToken: profile.RefreshToken,
	}

	if err := s.users.Create(ctx, user); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Field == "username" && !suffixUsername {
			// Retry immediately with a suffixed username; no need to
			// burn a full lookup pass on a cosmetic collision.
			return s.createFromProfile(ctx, providerName, email, profile, true)
		}
		return nil, err
	}

	s.logger.Info("user created from provider profile",
		slog.String("userID", user.ID),
		slog.String("provider", providerName),
	)
	s.recordAudit(ctx, user.ID, model.AuditProviderLinked, "provider="+providerName)
	s.awardSignupBonus(ctx, user.ID)

	return user, nil
}

// ConnectedAccount is one linked provider, for the settings page.
type ConnectedAccount struct {
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"providerId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// ConnectedAccounts lists the user's linked providers (at most one today;
// the slice shape leaves room for multi-provider linking).
func (s *AuthService) ConnectedAccounts(ctx context.Context, userID string) ([]ConnectedAccount, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}

	var accounts []ConnectedAccount
	if user.HasProvider() {
		accounts = append(accounts, ConnectedAccount{
			Provider:    user.Provider,
			ProviderID:  user.ProviderID,
			ConnectedAt: s.providerLinkedAt(ctx, user),
		})
	}

	return accounts, nil
}

// providerLinkedAt returns when the current provider binding was made: the
// newest link/relink audit event, falling back to the account's creation
// time for rows that predate the audit trail. Unrelated profile updates
// never move this timestamp.
func (s *AuthService) providerLinkedAt(ctx context.Context, user *model.User) time.Time {
	linkedAt := user.CreatedAt

	events, err := s.audit.ListForUser(ctx, user.ID)
	if err != nil {
		s.logger.Error("listing audit events failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return linkedAt
	}

	for _, e := range events {
		switch e.Action {
		case model.AuditProviderLinked, model.AuditProviderRelinked:
			if e.CreatedAt.After(linkedAt) {
				linkedAt = e.CreatedAt
			}
		}
	}

	return linkedAt
}

// DisconnectProvider clears the user's provider binding. Rejected when the
// account has no password — that would strand it with no login method.
func (s *AuthService) DisconnectProvider(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}

	if !user.HasProvider() {
		return nil, apperror.ValidationFailed("provider", "No social account is connected.")
	}
	if !user.HasPassword() {
		return nil, apperror.DisconnectRejected()
	}

	previous := user.Provider
	user.Provider = ""
	user.ProviderID = ""
	user.ProviderToken = ""
	user.ProviderRefreshToken = ""

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: disconnecting provider for user %s: %w", userID, err)
	}

	s.recordAudit(ctx, user.ID, model.AuditProviderDisconnect, "provider="+previous)

	return user, nil
}

// ForgotPassword issues a reset token for the email and returns the
// plaintext token for the mail delivery collaborator. When no account
// matches, it returns empty without error — the response never reveals
// whether the email exists.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = canonicalEmail(email)
	if email == "" {
		return "", apperror.ValidationFailed("email", "The email field is required.")
	}

	if _, err := s.users.FindByEmail(ctx, email); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Debug("reset requested for unknown email")
			return "", nil
		}
		return "", fmt.Errorf("service/auth: email lookup: %w", err)
	}

	token := identity.RandomToken(40)
	hash, err := s.passwords.Hash(token)
	if err != nil {
		return "", fmt.Errorf("service/auth: hashing reset token: %w", err)
	}

	if err := s.resets.Store(ctx, email, hash, time.Now().Add(resetTokenTTL)); err != nil {
		return "", fmt.Errorf("service/auth: storing reset token: %w", err)
	}

	s.logger.Info("password reset token issued", slog.String("email", email))

	return token, nil
}

// ResetPassword redeems a reset token and sets a new password. The token
// is single-use: it is deleted on success. This is also how provider-only
// accounts acquire a real password.
func (s *AuthService) ResetPassword(ctx context.Context, email, token, password, confirmation string) error {
	email = canonicalEmail(email)

	if password != confirmation {
		return apperror.ValidationFailed("password", "The password confirmation does not match.")
	}
	if len(password) < 8 {
		return apperror.ValidationFailed("password", "The password must be at least 8 characters.")
	}

	invalid := apperror.ValidationFailed("email", "This password reset token is invalid.")

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return invalid
		}
		return fmt.Errorf("service/auth: email lookup: %w", err)
	}

	storedHash, expiresAt, err := s.resets.Find(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return invalid
		}
		return fmt.Errorf("service/auth: finding reset token: %w", err)
	}

	if time.Now().After(expiresAt) {
		return invalid
	}
	if err := s.passwords.Verify(storedHash, token); err != nil {
		return invalid
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("service/auth: updating password for user %s: %w", user.ID, err)
	}

	if err := s.resets.Delete(ctx, email); err != nil {
		return fmt.Errorf("service/auth: deleting reset token: %w", err)
	}

	s.recordAudit(ctx, user.ID, model.AuditPasswordReset, "")
	s.logger.Info("password reset", slog.String("userID", user.ID))

	return nil
}

// GetUserByID returns the user for the given internal ID. Used by the
// /api/me handler after the middleware validates the token.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}

	return user, nil
}

// recordAudit appends an audit event, logging instead of failing the
// parent operation when the write itself errors.
func (s *AuthService) recordAudit(ctx context.Context, userID, action, detail string) {
	err := s.audit.Record(ctx, &model.AuditEvent{
		UserID: userID,
		Action: action,
		Detail: detail,
	})
	if err != nil {
		s.logger.Error("recording audit event failed",
			slog.String("userID", userID),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}

// awardSignupBonus credits the one-time account-creation points. Point
// awards never fail the signup they decorate.
func (s *AuthService) awardSignupBonus(ctx context.Context, userID string) {
	if s.points == nil {
		return
	}
	if err := s.points.Award(ctx, userID, signupBonus, model.ActionAccountCreated, "Welcome to StudyHub"); err != nil {
		s.logger.Error("awarding signup bonus failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
	}
}

func canonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateRegister applies the registration form rules. Errors carry the
// failing field so forms can attach messages to inputs.
func validateRegister(in RegisterInput) error {
	if strings.TrimSpace(in.FirstName) == "" {
		return apperror.ValidationFailed("firstName", "The first name field is required.")
	}
	if len(in.FirstName) > 255 {
		return apperror.ValidationFailed("firstName", "The first name may not be greater than 255 characters.")
	}
	if strings.TrimSpace(in.LastName) == "" {
		return apperror.ValidationFailed("lastName", "The last name field is required.")
	}
	if len(in.LastName) > 255 {
		return apperror.ValidationFailed("lastName", "The last name may not be greater than 255 characters.")
	}
	if len(in.MiddleName) > 255 {
		return apperror.ValidationFailed("middleName", "The middle name may not be greater than 255 characters.")
	}

	email := canonicalEmail(in.Email)
	if email == "" {
		return apperror.ValidationFailed("email", "The email field is required.")
	}
	if !identity.IsEmailAddress(email) {
		return apperror.ValidationFailed("email", "The email must be a valid email address.")
	}

	if phone := strings.TrimSpace(in.Phone); phone != "" && !phonePattern.MatchString(phone) {
		return apperror.ValidationFailed("phone", "The phone must be in E.164 format, e.g. +15551234567.")
	}

	if len(in.Password) < 8 {
		return apperror.ValidationFailed("password", "The password must be at least 8 characters.")
	}
	if in.Password != in.PasswordConfirmation {
		return apperror.ValidationFailed("password", "The password confirmation does not match.")
	}

	return nil
}
