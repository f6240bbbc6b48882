package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reconnoiter/reconnoiter/internal/model"
	"github.com/reconnoiter/reconnoiter/internal/store"
)

// AllowListStore is the persistence the allow-list gate needs.
type AllowListStore interface {
	AllowListContains(ctx context.Context, providerID int64) (bool, error)
	AddAllowListEntry(ctx context.Context, e *model.AllowListEntry) error
	RemoveAllowListEntryByLogin(ctx context.Context, login string) error
	ListAllowList(ctx context.Context) ([]model.AllowListEntry, error)
}

// AllowListService decides which GitHub identities may obtain an account
// and administers the list.
type AllowListService struct {
	store  AllowListStore
	logger *slog.Logger
}

// NewAllowListService wires an allow-list service.
func NewAllowListService(st AllowListStore, logger *slog.Logger) *AllowListService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AllowListService{store: st, logger: logger}
}

// IsAllowed reports whether providerID is on the allow-list.
func (s *AllowListService) IsAllowed(ctx context.Context, providerID int64) (bool, error) {
	return s.store.AllowListContains(ctx, providerID)
}

// Add admits an identity. It returns ErrAlreadyAllowListed for duplicates.
func (s *AllowListService) Add(ctx context.Context, e *model.AllowListEntry) error {
	e.ProviderLogin = strings.TrimSpace(e.ProviderLogin)
	if e.ProviderID <= 0 || e.ProviderLogin == "" {
		return fmt.Errorf("%w: github id and username are required", ErrInvalidArgument)
	}

	if err := s.store.AddAllowListEntry(ctx, e); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("%w: github id %d", ErrAlreadyAllowListed, e.ProviderID)
		}
		return err
	}
	s.logger.Info("allow-list entry added", "github_id", e.ProviderID, "github_username", e.ProviderLogin)
	return nil
}

// Remove drops the entry for a GitHub login. Existing users keep their
// accounts. It returns ErrNotAllowListed when no entry matches.
func (s *AllowListService) Remove(ctx context.Context, login string) error {
	if err := s.store.RemoveAllowListEntryByLogin(ctx, login); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotAllowListed, login)
		}
		return err
	}
	s.logger.Info("allow-list entry removed", "github_username", login)
	return nil
}

// List returns all entries, newest first.
func (s *AllowListService) List(ctx context.Context) ([]model.AllowListEntry, error) {
	return s.store.ListAllowList(ctx)
}
