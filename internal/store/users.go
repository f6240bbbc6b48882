package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/reconnoiter/reconnoiter/internal/model"
)

const userColumns = `id, email, provider_id, provider_login, provider_name, provider_avatar_url,
	provider, uid, admin, deleted_at, created_at, updated_at`

// CreateUser inserts a new user. A duplicate email or provider id yields an
// error wrapping ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}

	const q = `INSERT INTO users
		(email, provider_id, provider_login, provider_name, provider_avatar_url, provider, uid, admin,
		 created_at, updated_at)
		VALUES
		(:email, :provider_id, :provider_login, :provider_name, :provider_avatar_url, :provider, :uid, :admin,
		 :created_at, :updated_at)`

	id, err := s.insert(ctx, q, u)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	return nil
}

// GetUser returns a live (not soft-deleted) user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByProviderID returns the live user linked to a GitHub account id.
func (s *Store) GetUserByProviderID(ctx context.Context, providerID int64) (*model.User, error) {
	return s.getUser(ctx, "provider_id = ?", providerID)
}

// GetUserByEmail returns the live user with the given email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, "email = ?", email)
}

func (s *Store) getUser(ctx context.Context, where string, arg interface{}) (*model.User, error) {
	var u model.User
	q := s.rebind("SELECT " + userColumns + " FROM users WHERE " + where + " AND deleted_at IS NULL")
	if err := s.db.GetContext(ctx, &u, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// IsUserDeactivated reports whether a soft-deleted user still holds the
// GitHub account id or the email. Unique constraints cover deleted rows, so
// such an identity cannot be provisioned again.
func (s *Store) IsUserDeactivated(ctx context.Context, providerID int64, email string) (bool, error) {
	var n int
	q := s.rebind("SELECT COUNT(*) FROM users WHERE (provider_id = ? OR email = ?) AND deleted_at IS NOT NULL")
	if err := s.db.GetContext(ctx, &n, q, providerID, email); err != nil {
		return false, fmt.Errorf("check deactivated user: %w", err)
	}
	return n > 0, nil
}

// UpdateUserProfile refreshes the provider-sourced fields of a live user.
// The admin flag is never written by this method. UpdatedAt is refreshed.
func (s *Store) UpdateUserProfile(ctx context.Context, u *model.User) error {
	u.UpdatedAt = time.Now().UTC()

	const q = `UPDATE users SET
		email = :email, provider_id = :provider_id, provider_login = :provider_login,
		provider_name = :provider_name, provider_avatar_url = :provider_avatar_url,
		provider = :provider, uid = :uid, updated_at = :updated_at
		WHERE id = :id AND deleted_at IS NULL`

	query, args, err := s.db.BindNamed(q, u)
	if err != nil {
		return fmt.Errorf("bind update user: %w", err)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", s.classify(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns all live users ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	q := "SELECT " + userColumns + " FROM users WHERE deleted_at IS NULL ORDER BY id"
	if err := s.db.SelectContext(ctx, &users, q); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SetUserAdmin grants or removes the admin flag.
func (s *Store) SetUserAdmin(ctx context.Context, id int64, admin bool) error {
	q := s.rebind("UPDATE users SET admin = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL")
	return s.execOne(ctx, "set user admin", q, admin, time.Now().UTC(), id)
}

// SoftDeleteUser hides a user from every lookup. Session tokens for the user
// stop verifying immediately.
func (s *Store) SoftDeleteUser(ctx context.Context, id int64, at time.Time) error {
	at = at.UTC()
	q := s.rebind("UPDATE users SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL")
	return s.execOne(ctx, "soft delete user", q, at, at, id)
}

// execOne runs q and returns ErrNotFound when no row was affected.
func (s *Store) execOne(ctx context.Context, op, q string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
