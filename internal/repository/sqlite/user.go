package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/avelasco/studyhub/internal/apperror"
	"github.com/avelasco/studyhub/internal/identity"
	"github.com/avelasco/studyhub/internal/model"
	"github.com/avelasco/studyhub/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the SQLite-backed user repository.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, first_name, middle_name, last_name, username, email,
	phone, birthday, legacy_name, password_hash,
	provider, provider_id, provider_token, provider_refresh_token,
	created_at, updated_at`

// Create inserts a new user, generating the ID and timestamps in place.
// Unique-constraint hits come back as apperror.ErrConflict with Field set
// to the offending column.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.FirstName,
		user.MiddleName,
		user.LastName,
		user.Username,
		user.Email,
		user.Phone,
		user.Birthday,
		user.LegacyName,
		user.PasswordHash,
		user.Provider,
		user.ProviderID,
		user.ProviderToken,
		user.ProviderRefreshToken,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if conflict := uniqueViolation(err, "user"); conflict != nil {
			return conflict
		}
		return fmt.Errorf("sqlite: inserting user (email=%s): %w", user.Email, err)
	}

	return nil
}

// Update persists every mutable column of an existing user and bumps
// updated_at.
func (u *UserDB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()

	res, err := u.conn.ExecContext(ctx,
		`UPDATE users SET
			first_name = ?, middle_name = ?, last_name = ?, username = ?,
			email = ?, phone = ?, birthday = ?, legacy_name = ?,
			password_hash = ?,
			provider = ?, provider_id = ?, provider_token = ?, provider_refresh_token = ?,
			updated_at = ?
		 WHERE id = ?`,
		user.FirstName,
		user.MiddleName,
		user.LastName,
		user.Username,
		user.Email,
		user.Phone,
		user.Birthday,
		user.LegacyName,
		user.PasswordHash,
		user.Provider,
		user.ProviderID,
		user.ProviderToken,
		user.ProviderRefreshToken,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if conflict := uniqueViolation(err, "user"); conflict != nil {
			return conflict
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	if affected == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}

// GetByID retrieves a user by internal ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	user, err := scanUser(row)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return user, nil
}

// FindByLogin matches the email or username column. The field name is
// whitelisted here, never interpolated from user input directly.
func (u *UserDB) FindByLogin(ctx context.Context, field, value string) (*model.User, error) {
	var query string
	switch field {
	case identity.FieldEmail:
		query = `SELECT ` + userColumns + ` FROM users WHERE email = ? COLLATE NOCASE`
	case identity.FieldUsername:
		query = `SELECT ` + userColumns + ` FROM users WHERE username = ? AND username != ''`
	default:
		return nil, fmt.Errorf("sqlite: unknown login field %q", field)
	}

	user, err := scanUser(u.conn.QueryRowContext(ctx, query, value))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: finding user by %s: %w", field, err)
	}

	return user, nil
}

// FindByEmail is FindByLogin fixed to the email column.
func (u *UserDB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.FindByLogin(ctx, identity.FieldEmail, email)
}

// FindByProviderIdentity matches the (provider, external ID) pair.
func (u *UserDB) FindByProviderIdentity(ctx context.Context, provider, externalID string) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE provider = ? AND provider_id = ? AND provider != ''`,
		provider, externalID)

	user, err := scanUser(row)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("user", provider+":"+externalID)
		}
		return nil, fmt.Errorf("sqlite: finding user by provider identity %s/%s: %w",
			provider, externalID, err)
	}

	return user, nil
}

// scanUser reads one user row. Works for both QueryRow and Rows via the
// shared Scan signature.
func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.FirstName,
		&u.MiddleName,
		&u.LastName,
		&u.Username,
		&u.Email,
		&u.Phone,
		&u.Birthday,
		&u.LegacyName,
		&u.PasswordHash,
		&u.Provider,
		&u.ProviderID,
		&u.ProviderToken,
		&u.ProviderRefreshToken,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
