package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/reconnoiter/reconnoiter/internal/model"
)

const credentialColumns = `id, name, secret_hash, prefix, owner_user_id, request_count,
	last_used_at, revoked_at, created_at, updated_at`

// CredentialFilter narrows ListCredentials.
type CredentialFilter struct {
	IncludeRevoked bool
	OwnerUserID    *int64
}

// CreateCredential inserts a new service credential. SecretHash and Prefix
// must already be set. The ID is populated after insert; CreatedAt and
// UpdatedAt default to now when zero.
func (s *Store) CreateCredential(ctx context.Context, c *model.ServiceCredential) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}

	const q = `INSERT INTO service_credentials
		(name, secret_hash, prefix, owner_user_id, request_count, last_used_at, revoked_at, created_at, updated_at)
		VALUES
		(:name, :secret_hash, :prefix, :owner_user_id, :request_count, :last_used_at, :revoked_at, :created_at, :updated_at)`

	id, err := s.insert(ctx, q, c)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	c.ID = id
	return nil
}

// GetCredential returns a credential by ID, revoked or not.
func (s *Store) GetCredential(ctx context.Context, id int64) (*model.ServiceCredential, error) {
	var c model.ServiceCredential
	q := s.rebind("SELECT " + credentialColumns + " FROM service_credentials WHERE id = ?")
	if err := s.db.GetContext(ctx, &c, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &c, nil
}

// ListActiveCredentialsByPrefix returns every non-revoked credential sharing
// prefix. More than one row is possible since prefixes are not unique.
func (s *Store) ListActiveCredentialsByPrefix(ctx context.Context, prefix string) ([]model.ServiceCredential, error) {
	var creds []model.ServiceCredential
	q := s.rebind("SELECT " + credentialColumns +
		" FROM service_credentials WHERE prefix = ? AND revoked_at IS NULL ORDER BY id")
	if err := s.db.SelectContext(ctx, &creds, q, prefix); err != nil {
		return nil, fmt.Errorf("list credentials by prefix: %w", err)
	}
	return creds, nil
}

// RecordCredentialUse increments request_count and stamps last_used_at in a
// single statement, then returns the updated record. Concurrent calls for
// the same credential never lose an increment.
func (s *Store) RecordCredentialUse(ctx context.Context, id int64, at time.Time) (*model.ServiceCredential, error) {
	at = at.UTC()
	q := s.rebind(`UPDATE service_credentials
		SET request_count = request_count + 1, last_used_at = ?, updated_at = ?
		WHERE id = ? AND revoked_at IS NULL`)

	result, err := s.db.ExecContext(ctx, q, at, at, id)
	if err != nil {
		return nil, fmt.Errorf("record credential use: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("record credential use rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.GetCredential(ctx, id)
}

// ListCredentials returns credentials newest first.
func (s *Store) ListCredentials(ctx context.Context, f CredentialFilter) ([]model.ServiceCredential, error) {
	q := "SELECT " + credentialColumns + " FROM service_credentials WHERE 1 = 1"
	var args []interface{}
	if !f.IncludeRevoked {
		q += " AND revoked_at IS NULL"
	}
	if f.OwnerUserID != nil {
		q += " AND owner_user_id = ?"
		args = append(args, *f.OwnerUserID)
	}
	q += " ORDER BY created_at DESC, id DESC"

	var creds []model.ServiceCredential
	if err := s.db.SelectContext(ctx, &creds, s.rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

// RevokeCredential marks a credential revoked at the given time. It returns
// false when the credential does not exist or was already revoked.
func (s *Store) RevokeCredential(ctx context.Context, id int64, at time.Time) (bool, error) {
	at = at.UTC()
	q := s.rebind("UPDATE service_credentials SET revoked_at = ?, updated_at = ? WHERE id = ? AND revoked_at IS NULL")
	result, err := s.db.ExecContext(ctx, q, at, at, id)
	if err != nil {
		return false, fmt.Errorf("revoke credential: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke credential rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteCredentialsRevokedBefore hard-deletes credentials revoked before
// cutoff and returns how many were removed.
func (s *Store) DeleteCredentialsRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	q := s.rebind("DELETE FROM service_credentials WHERE revoked_at IS NOT NULL AND revoked_at < ?")
	result, err := s.db.ExecContext(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete revoked credentials: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete revoked credentials rows affected: %w", err)
	}
	return n, nil
}

// CredentialStats counts total, active and revoked credentials.
func (s *Store) CredentialStats(ctx context.Context) (*model.CredentialStats, error) {
	var st model.CredentialStats
	const q = `SELECT COUNT(*) AS total, COUNT(revoked_at) AS revoked, 0 AS active FROM service_credentials`
	if err := s.db.GetContext(ctx, &st, q); err != nil {
		return nil, fmt.Errorf("credential stats: %w", err)
	}
	st.Active = st.Total - st.Revoked
	return &st, nil
}
