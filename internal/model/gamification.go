package model

import "time"

// Badge rarity tiers, lowest to highest.
const (
	RarityCommon    = "common"
	RarityUncommon  = "uncommon"
	RarityRare      = "rare"
	RarityEpic      = "epic"
	RarityLegendary = "legendary"
)

// Point action types written by this service. Other services append their
// own (quiz_completed, daily_streak, ...) through the same table.
const (
	ActionAccountCreated = "account_created"
	ActionProviderLinked = "provider_linked"
)

// Badge is an earnable achievement definition.
type Badge struct {
	ID           string    `json:"id"           db:"id"`
	Name         string    `json:"name"         db:"name"`
	Slug         string    `json:"slug"         db:"slug"` // unique
	Description  string    `json:"description"  db:"description"`
	Icon         string    `json:"icon"         db:"icon"`
	Color        string    `json:"color"        db:"color"`
	Rarity       string    `json:"rarity"       db:"rarity"`
	PointsReward int       `json:"pointsReward" db:"points_reward"`
	Active       bool      `json:"active"       db:"active"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"    db:"updated_at"`
}

// UserPoint is one point-earning event. Totals are computed by summing a
// user's rows, never stored.
type UserPoint struct {
	ID          string    `json:"id"          db:"id"`
	UserID      string    `json:"userId"      db:"user_id"`
	Points      int       `json:"points"      db:"points"`
	ActionType  string    `json:"actionType"  db:"action_type"`
	Description string    `json:"description" db:"description"`
	Metadata    string    `json:"metadata"    db:"metadata"` // free-form JSON
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
}

// UserBadge records that a user earned a badge. At most one row per
// (user, badge) pair.
type UserBadge struct {
	ID       string    `json:"id"       db:"id"`
	UserID   string    `json:"userId"   db:"user_id"`
	BadgeID  string    `json:"badgeId"  db:"badge_id"`
	EarnedAt time.Time `json:"earnedAt" db:"earned_at"`
	Metadata string    `json:"metadata" db:"metadata"`
}

// EarnedBadge is a badge joined with when the user earned it, for the
// badges listing endpoint.
type EarnedBadge struct {
	Badge
	EarnedAt time.Time `json:"earnedAt" db:"earned_at"`
}
