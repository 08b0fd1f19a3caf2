// Package repository declares the storage interfaces the service layer
// depends on. The sqlite subpackage is the only implementation; tests use
// in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/avelasco/studyhub/internal/model"
)

// UserRepository persists user accounts.
//
// Create and Update are atomic with respect to the store's unique
// constraints (email, username, provider identity pair). A constraint hit
// surfaces as an error matching apperror.ErrConflict with Field naming the
// offending column — the account linker relies on that to recover from
// concurrent-callback races.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)

	// FindByLogin matches one credential column ("email" or "username").
	// Email matching is case-insensitive; username matching is exact.
	// Returns apperror.ErrNotFound when no row matches.
	FindByLogin(ctx context.Context, field, value string) (*model.User, error)

	// FindByEmail is FindByLogin fixed to the email column.
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByProviderIdentity matches the (provider, external ID) pair.
	FindByProviderIdentity(ctx context.Context, provider, externalID string) (*model.User, error)
}

// GamificationRepository persists points and badges.
type GamificationRepository interface {
	AwardPoints(ctx context.Context, point *model.UserPoint) error
	TotalPoints(ctx context.Context, userID string) (int, error)
	ListPoints(ctx context.Context, userID string) ([]model.UserPoint, error)

	CreateBadge(ctx context.Context, badge *model.Badge) error
	GetBadgeBySlug(ctx context.Context, slug string) (*model.Badge, error)
	ListBadges(ctx context.Context) ([]model.Badge, error)

	// GrantBadge is idempotent: granting an already-earned badge is a no-op.
	GrantBadge(ctx context.Context, grant *model.UserBadge) error
	ListEarnedBadges(ctx context.Context, userID string) ([]model.EarnedBadge, error)
}

// AuditRepository appends security-relevant account events.
type AuditRepository interface {
	Record(ctx context.Context, event *model.AuditEvent) error
	ListForUser(ctx context.Context, userID string) ([]model.AuditEvent, error)
}

// PasswordResetRepository stores single-use reset tokens, one per email
// (issuing a new token replaces the old one). Only the token's hash is
// stored.
type PasswordResetRepository interface {
	Store(ctx context.Context, email, tokenHash string, expiresAt time.Time) error
	Find(ctx context.Context, email string) (tokenHash string, expiresAt time.Time, err error)
	Delete(ctx context.Context, email string) error
}
