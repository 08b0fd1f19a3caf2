package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avelasco/studyhub/internal/apperror"
	"github.com/avelasco/studyhub/internal/repository"
)

var _ repository.PasswordResetRepository = (*ResetDB)(nil)

// ResetDB is the SQLite-backed password-reset-token repository. One token
// per email: the email is the primary key and Store upserts.
type ResetDB struct {
	conn *sql.DB
}

// Store saves a token hash for the email, replacing any previous one.
func (r *ResetDB) Store(ctx context.Context, email, tokenHash string, expiresAt time.Time) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (email, token_hash, expires_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET token_hash = excluded.token_hash,
		                                  expires_at = excluded.expires_at`,
		email, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("sqlite: storing reset token for %s: %w", email, err)
	}

	return nil
}

// Find returns the stored token hash and expiry for an email.
func (r *ResetDB) Find(ctx context.Context, email string) (string, time.Time, error) {
	var (
		tokenHash string
		expiresAt time.Time
	)
	err := r.conn.QueryRowContext(ctx,
		`SELECT token_hash, expires_at FROM password_reset_tokens WHERE email = ?`,
		email,
	).Scan(&tokenHash, &expiresAt)
	if err != nil {
		if isNoRows(err) {
			return "", time.Time{}, apperror.NotFound("reset token", email)
		}
		return "", time.Time{}, fmt.Errorf("sqlite: finding reset token for %s: %w", email, err)
	}

	return tokenHash, expiresAt, nil
}

// Delete removes the token for an email. Deleting a missing token is fine.
func (r *ResetDB) Delete(ctx context.Context, email string) error {
	if _, err := r.conn.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE email = ?`, email); err != nil {
		return fmt.Errorf("sqlite: deleting reset token for %s: %w", email, err)
	}
	return nil
}
