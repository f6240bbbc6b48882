package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/reconnoiter/reconnoiter/internal/model"
)

const allowListColumns = `id, provider_id, provider_login, email, notes, added_by, created_at`

// AddAllowListEntry admits a GitHub account. Adding the same provider id
// twice yields an error wrapping ErrConflict.
func (s *Store) AddAllowListEntry(ctx context.Context, e *model.AllowListEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO allow_list
		(provider_id, provider_login, email, notes, added_by, created_at)
		VALUES
		(:provider_id, :provider_login, :email, :notes, :added_by, :created_at)`

	id, err := s.insert(ctx, q, e)
	if err != nil {
		return fmt.Errorf("insert allow-list entry: %w", err)
	}
	e.ID = id
	return nil
}

// AllowListContains reports whether providerID is on the allow-list.
func (s *Store) AllowListContains(ctx context.Context, providerID int64) (bool, error) {
	var n int64
	q := s.rebind("SELECT COUNT(*) FROM allow_list WHERE provider_id = ?")
	if err := s.db.GetContext(ctx, &n, q, providerID); err != nil {
		return false, fmt.Errorf("check allow-list: %w", err)
	}
	return n > 0, nil
}

// GetAllowListEntry returns the entry for providerID.
func (s *Store) GetAllowListEntry(ctx context.Context, providerID int64) (*model.AllowListEntry, error) {
	var e model.AllowListEntry
	q := s.rebind("SELECT " + allowListColumns + " FROM allow_list WHERE provider_id = ?")
	if err := s.db.GetContext(ctx, &e, q, providerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get allow-list entry: %w", err)
	}
	return &e, nil
}

// ListAllowList returns all entries, newest first.
func (s *Store) ListAllowList(ctx context.Context) ([]model.AllowListEntry, error) {
	var entries []model.AllowListEntry
	q := "SELECT " + allowListColumns + " FROM allow_list ORDER BY created_at DESC, id DESC"
	if err := s.db.SelectContext(ctx, &entries, q); err != nil {
		return nil, fmt.Errorf("list allow-list: %w", err)
	}
	return entries, nil
}

// RemoveAllowListEntryByLogin deletes the entry for a GitHub login.
func (s *Store) RemoveAllowListEntryByLogin(ctx context.Context, login string) error {
	q := s.rebind("DELETE FROM allow_list WHERE provider_login = ?")
	return s.execOne(ctx, "remove allow-list entry", q, login)
}
