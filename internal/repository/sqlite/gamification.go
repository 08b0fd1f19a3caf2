package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/avelasco/studyhub/internal/apperror"
	"github.com/avelasco/studyhub/internal/model"
	"github.com/avelasco/studyhub/internal/repository"
)

var _ repository.GamificationRepository = (*GamificationDB)(nil)

// GamificationDB is the SQLite-backed points/badges repository.
type GamificationDB struct {
	conn *sql.DB
}

// AwardPoints appends one point-earning event.
func (g *GamificationDB) AwardPoints(ctx context.Context, point *model.UserPoint) error {
	point.ID = xid.New().String()
	point.CreatedAt = time.Now()

	_, err := g.conn.ExecContext(ctx,
		`INSERT INTO user_points (id, user_id, points, action_type, description, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		point.ID,
		point.UserID,
		point.Points,
		point.ActionType,
		point.Description,
		point.Metadata,
		point.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: awarding points to user %s: %w", point.UserID, err)
	}

	return nil
}

// TotalPoints sums a user's point events. COALESCE so a user with no
// events totals 0 instead of scanning NULL.
func (g *GamificationDB) TotalPoints(ctx context.Context, userID string) (int, error) {
	var total int
	err := g.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM user_points WHERE user_id = ?`,
		userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sqlite: totalling points for user %s: %w", userID, err)
	}

	return total, nil
}

// ListPoints returns a user's point events, newest first.
func (g *GamificationDB) ListPoints(ctx context.Context, userID string) ([]model.UserPoint, error) {
	rows, err := g.conn.QueryContext(ctx,
		`SELECT id, user_id, points, action_type, description, metadata, created_at
		 FROM user_points WHERE user_id = ? ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing points for user %s: %w", userID, err)
	}
	defer rows.Close()

	var points []model.UserPoint
	for rows.Next() {
		var p model.UserPoint
		if err := rows.Scan(&p.ID, &p.UserID, &p.Points, &p.ActionType,
			&p.Description, &p.Metadata, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning point row: %w", err)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

// CreateBadge inserts a badge definition. Slug collisions surface as
// conflicts.
func (g *GamificationDB) CreateBadge(ctx context.Context, badge *model.Badge) error {
	now := time.Now()
	badge.ID = xid.New().String()
	badge.CreatedAt = now
	badge.UpdatedAt = now

	_, err := g.conn.ExecContext(ctx,
		`INSERT INTO badges (id, name, slug, description, icon, color, rarity, points_reward, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		badge.ID,
		badge.Name,
		badge.Slug,
		badge.Description,
		badge.Icon,
		badge.Color,
		badge.Rarity,
		badge.PointsReward,
		badge.Active,
		badge.CreatedAt,
		badge.UpdatedAt,
	)
	if err != nil {
		if conflict := uniqueViolation(err, "badge"); conflict != nil {
			return conflict
		}
		return fmt.Errorf("sqlite: inserting badge %s: %w", badge.Slug, err)
	}

	return nil
}

// GetBadgeBySlug retrieves one badge definition.
func (g *GamificationDB) GetBadgeBySlug(ctx context.Context, slug string) (*model.Badge, error) {
	var b model.Badge
	err := g.conn.QueryRowContext(ctx,
		`SELECT id, name, slug, description, icon, color, rarity, points_reward, active, created_at, updated_at
		 FROM badges WHERE slug = ?`, slug,
	).Scan(&b.ID, &b.Name, &b.Slug, &b.Description, &b.Icon, &b.Color,
		&b.Rarity, &b.PointsReward, &b.Active, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("badge", slug)
		}
		return nil, fmt.Errorf("sqlite: getting badge %s: %w", slug, err)
	}

	return &b, nil
}

// ListBadges returns all active badge definitions.
func (g *GamificationDB) ListBadges(ctx context.Context) ([]model.Badge, error) {
	rows, err := g.conn.QueryContext(ctx,
		`SELECT id, name, slug, description, icon, color, rarity, points_reward, active, created_at, updated_at
		 FROM badges WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing badges: %w", err)
	}
	defer rows.Close()

	var badges []model.Badge
	for rows.Next() {
		var b model.Badge
		if err := rows.Scan(&b.ID, &b.Name, &b.Slug, &b.Description, &b.Icon, &b.Color,
			&b.Rarity, &b.PointsReward, &b.Active, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning badge row: %w", err)
		}
		badges = append(badges, b)
	}

	return badges, rows.Err()
}

// GrantBadge records a badge earn. The (user, badge) unique constraint
// makes repeat grants no-ops rather than errors — awarding a badge twice
// is not a failure, it already happened.
func (g *GamificationDB) GrantBadge(ctx context.Context, grant *model.UserBadge) error {
	grant.ID = xid.New().String()
	if grant.EarnedAt.IsZero() {
		grant.EarnedAt = time.Now()
	}

	_, err := g.conn.ExecContext(ctx,
		`INSERT INTO user_badges (id, user_id, badge_id, earned_at, metadata)
		 VALUES (?, ?, ?, ?, ?)`,
		grant.ID,
		grant.UserID,
		grant.BadgeID,
		grant.EarnedAt,
		grant.Metadata,
	)
	if err != nil {
		if uniqueViolation(err, "user badge") != nil {
			return nil // already earned
		}
		return fmt.Errorf("sqlite: granting badge %s to user %s: %w",
			grant.BadgeID, grant.UserID, err)
	}

	return nil
}

// ListEarnedBadges returns the badges a user has earned, newest first.
func (g *GamificationDB) ListEarnedBadges(ctx context.Context, userID string) ([]model.EarnedBadge, error) {
	rows, err := g.conn.QueryContext(ctx,
		`SELECT b.id, b.name, b.slug, b.description, b.icon, b.color, b.rarity,
		        b.points_reward, b.active, b.created_at, b.updated_at, ub.earned_at
		 FROM user_badges ub
		 JOIN badges b ON b.id = ub.badge_id
		 WHERE ub.user_id = ?
		 ORDER BY ub.earned_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing earned badges for user %s: %w", userID, err)
	}
	defer rows.Close()

	var earned []model.EarnedBadge
	for rows.Next() {
		var e model.EarnedBadge
		if err := rows.Scan(&e.ID, &e.Name, &e.Slug, &e.Description, &e.Icon, &e.Color,
			&e.Rarity, &e.PointsReward, &e.Active, &e.CreatedAt, &e.UpdatedAt,
			&e.EarnedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning earned badge row: %w", err)
		}
		earned = append(earned, e)
	}

	return earned, rows.Err()
}
