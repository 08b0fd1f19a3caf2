package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/avelasco/studyhub/internal/apperror"
	"github.com/avelasco/studyhub/internal/model"
	"github.com/avelasco/studyhub/internal/repository"
)

// GamificationService manages points and badges.
type GamificationService struct {
	store  repository.GamificationRepository
	logger *slog.Logger
}

func NewGamificationService(store repository.GamificationRepository, logger *slog.Logger) *GamificationService {
	return &GamificationService{store: store, logger: logger}
}

// Award credits points to a user for an action.
func (s *GamificationService) Award(ctx context.Context, userID string, points int, actionType, description string) error {
	if points <= 0 {
		return apperror.ValidationFailed("points", "Points must be positive.")
	}

	err := s.store.AwardPoints(ctx, &model.UserPoint{
		UserID:      userID,
		Points:      points,
		ActionType:  actionType,
		Description: description,
	})
	if err != nil {
		return fmt.Errorf("service/gamification: awarding %d points to user %s: %w", points, userID, err)
	}

	return nil
}

// PointsSummary is a user's total plus the event history behind it.
type PointsSummary struct {
	Total  int               `json:"total"`
	Events []model.UserPoint `json:"events"`
}

// Summary returns a user's point total and history.
func (s *GamificationService) Summary(ctx context.Context, userID string) (*PointsSummary, error) {
	total, err := s.store.TotalPoints(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/gamification: totalling points: %w", err)
	}

	events, err := s.store.ListPoints(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/gamification: listing points: %w", err)
	}

	return &PointsSummary{Total: total, Events: events}, nil
}

// ListBadges returns all active badge definitions.
func (s *GamificationService) ListBadges(ctx context.Context) ([]model.Badge, error) {
	badges, err := s.store.ListBadges(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/gamification: listing badges: %w", err)
	}
	return badges, nil
}

// EarnedBadges returns the badges a user has earned.
func (s *GamificationService) EarnedBadges(ctx context.Context, userID string) ([]model.EarnedBadge, error) {
	earned, err := s.store.ListEarnedBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/gamification: listing earned badges: %w", err)
	}
	return earned, nil
}

// GrantBadgeBySlug awards a badge to a user and credits its points reward.
// Granting an already-earned badge is a no-op, and the reward is only paid
// when the grant is new.
func (s *GamificationService) GrantBadgeBySlug(ctx context.Context, userID, slug string) error {
	badge, err := s.store.GetBadgeBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("service/gamification: looking up badge %s: %w", slug, err)
	}

	earned, err := s.store.ListEarnedBadges(ctx, userID)
	if err != nil {
		return fmt.Errorf("service/gamification: listing earned badges: %w", err)
	}
	for _, e := range earned {
		if e.Badge.ID == badge.ID {
			return nil // already earned; no double reward
		}
	}

	if err := s.store.GrantBadge(ctx, &model.UserBadge{UserID: userID, BadgeID: badge.ID}); err != nil {
		return fmt.Errorf("service/gamification: granting badge %s: %w", slug, err)
	}

	if badge.PointsReward > 0 {
		if err := s.Award(ctx, userID, badge.PointsReward, "badge_"+badge.Slug, "Badge reward: "+badge.Name); err != nil {
			s.logger.Error("badge reward award failed",
				slog.String("userID", userID),
				slog.String("badge", slug),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("badge granted",
		slog.String("userID", userID),
		slog.String("badge", slug),
	)

	return nil
}

// SeedBadges inserts the built-in badge definitions if they are missing.
// Called once at startup; existing badges are left untouched.
func (s *GamificationService) SeedBadges(ctx context.Context) error {
	defaults := []model.Badge{
		{
			Name:         "First Steps",
			Slug:         "first-steps",
			Description:  "Created a StudyHub account.",
			Color:        "#3B82F6",
			Rarity:       model.RarityCommon,
			PointsReward: 10,
			Active:       true,
		},
		{
			Name:         "Connected",
			Slug:         "connected",
			Description:  "Linked a social account.",
			Color:        "#22C55E",
			Rarity:       model.RarityUncommon,
			PointsReward: 25,
			Active:       true,
		},
	}

	for i := range defaults {
		_, err := s.store.GetBadgeBySlug(ctx, defaults[i].Slug)
		if err == nil {
			continue
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return fmt.Errorf("service/gamification: checking badge %s: %w", defaults[i].Slug, err)
		}

		if err := s.store.CreateBadge(ctx, &defaults[i]); err != nil {
			// A concurrent boot may have inserted it between check and create.
			if errors.Is(err, apperror.ErrConflict) {
				continue
			}
			return fmt.Errorf("service/gamification: seeding badge %s: %w", defaults[i].Slug, err)
		}
	}

	return nil
}
