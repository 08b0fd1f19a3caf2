// Package sqlite implements the repository interfaces on an embedded
// SQLite database via the pure-Go modernc.org/sqlite driver (no CGo, so
// cross-compilation stays trivial).
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/avelasco/studyhub/internal/apperror"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB owns the connection pool and hands out the per-aggregate repositories.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each pooled connection to ":memory:" would get its own empty
	// database, so the pool must stay at one connection.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets reads proceed during writes — required for a web server.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Defer it wherever New is called.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Users returns the user repository bound to this database.
func (db *DB) Users() *UserDB {
	return &UserDB{conn: db.conn}
}

// Gamification returns the points/badges repository.
func (db *DB) Gamification() *GamificationDB {
	return &GamificationDB{conn: db.conn}
}

// Audit returns the audit-event repository.
func (db *DB) Audit() *AuditDB {
	return &AuditDB{conn: db.conn}
}

// PasswordResets returns the reset-token repository.
func (db *DB) PasswordResets() *ResetDB {
	return &ResetDB{conn: db.conn}
}

// migrate creates the schema. Every statement is idempotent, so running it
// on an existing database is safe.
func (db *DB) migrate() error {
	// Optional string columns use '' as the absent value (see model.User);
	// the partial unique indexes below exclude '' so absence never collides.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                     TEXT PRIMARY KEY,
			first_name             TEXT NOT NULL DEFAULT '',
			middle_name            TEXT NOT NULL DEFAULT '',
			last_name              TEXT NOT NULL DEFAULT '',
			username               TEXT NOT NULL DEFAULT '',
			email                  TEXT NOT NULL,
			phone                  TEXT NOT NULL DEFAULT '',
			birthday               TEXT NOT NULL DEFAULT '',
			legacy_name            TEXT NOT NULL DEFAULT '',
			password_hash          TEXT NOT NULL DEFAULT '',
			provider               TEXT NOT NULL DEFAULT '',
			provider_id            TEXT NOT NULL DEFAULT '',
			provider_token         TEXT NOT NULL DEFAULT '',
			provider_refresh_token TEXT NOT NULL DEFAULT '',
			created_at             DATETIME NOT NULL,
			updated_at             DATETIME NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email
			ON users(email COLLATE NOCASE);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username
			ON users(username) WHERE username != '';
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_provider_identity
			ON users(provider, provider_id) WHERE provider != '' AND provider_id != '';
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS badges (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			slug          TEXT NOT NULL UNIQUE,
			description   TEXT NOT NULL DEFAULT '',
			icon          TEXT NOT NULL DEFAULT '',
			color         TEXT NOT NULL DEFAULT '#3B82F6',
			rarity        TEXT NOT NULL DEFAULT 'common',
			points_reward INTEGER NOT NULL DEFAULT 0,
			active        INTEGER NOT NULL DEFAULT 1,
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS user_points (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			points      INTEGER NOT NULL DEFAULT 0,
			action_type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			metadata    TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_user_points_user
			ON user_points(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_user_points_action
			ON user_points(action_type);

		CREATE TABLE IF NOT EXISTS user_badges (
			id        TEXT PRIMARY KEY,
			user_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			badge_id  TEXT NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
			earned_at DATETIME NOT NULL,
			metadata  TEXT NOT NULL DEFAULT '',
			UNIQUE(user_id, badge_id)
		);
		CREATE INDEX IF NOT EXISTS idx_user_badges_user
			ON user_badges(user_id, earned_at);
	`)
	if err != nil {
		return fmt.Errorf("creating gamification tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			action     TEXT NOT NULL,
			detail     TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_events_user
			ON audit_events(user_id, created_at);

		CREATE TABLE IF NOT EXISTS password_reset_tokens (
			email      TEXT PRIMARY KEY,
			token_hash TEXT NOT NULL,
			expires_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating audit/reset tables: %w", err)
	}

	return nil
}

// uniqueViolation turns a driver "UNIQUE constraint failed: users.email"
// error into a conflict AppError whose Field names the first offending
// column. The account linker matches on apperror.ErrConflict to treat a
// create race as "someone else just created this identity".
func uniqueViolation(err error, resource string) error {
	msg := err.Error()
	idx := strings.Index(msg, "UNIQUE constraint failed: ")
	if idx < 0 {
		return nil
	}

	cols := msg[idx+len("UNIQUE constraint failed: "):]
	// "users.provider, users.provider_id" → "provider"
	first, _, _ := strings.Cut(cols, ",")
	_, column, _ := strings.Cut(strings.TrimSpace(first), ".")
	// The driver appends the extended result code to single-column
	// messages: "users.email (2067)". Keep only the column token.
	if i := strings.IndexAny(column, " ("); i >= 0 {
		column = column[:i]
	}

	return &apperror.AppError{
		Err:     fmt.Errorf("%w: %w", apperror.ErrConflict, err),
		Message: fmt.Sprintf("%s already exists", resource),
		Field:   column,
	}
}

// isNoRows reports whether err is the driver's empty-result sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
