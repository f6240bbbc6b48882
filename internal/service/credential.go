package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/reconnoiter/reconnoiter/internal/model"
	"github.com/reconnoiter/reconnoiter/internal/store"
)

const (
	// SecretLength is the exact length of a raw service credential.
	SecretLength = 32
	// PrefixLength is how many leading characters are stored in clear for
	// candidate lookup.
	PrefixLength = 8
	// DefaultRetentionDays is how long revoked credentials are kept.
	DefaultRetentionDays = 90

	secretEntropyBytes = 32
)

// CredentialStore is the persistence the credential service needs.
type CredentialStore interface {
	CreateCredential(ctx context.Context, c *model.ServiceCredential) error
	ListActiveCredentialsByPrefix(ctx context.Context, prefix string) ([]model.ServiceCredential, error)
	RecordCredentialUse(ctx context.Context, id int64, at time.Time) (*model.ServiceCredential, error)
	RevokeCredential(ctx context.Context, id int64, at time.Time) (bool, error)
	DeleteCredentialsRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListCredentials(ctx context.Context, f store.CredentialFilter) ([]model.ServiceCredential, error)
	CredentialStats(ctx context.Context) (*model.CredentialStats, error)
}

// CredentialOptions configures a CredentialService.
type CredentialOptions struct {
	// AllowSystemKeys permits credentials without an owning user.
	AllowSystemKeys bool
	Logger          *slog.Logger
}

// CredentialService issues, verifies and revokes service credentials.
type CredentialService struct {
	store           CredentialStore
	hasher          SecretHasher
	allowSystemKeys bool
	logger          *slog.Logger

	now    func() time.Time
	random io.Reader
}

// NewCredentialService wires a credential service.
func NewCredentialService(st CredentialStore, hasher SecretHasher, opts CredentialOptions) *CredentialService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		store:           st,
		hasher:          hasher,
		allowSystemKeys: opts.AllowSystemKeys,
		logger:          logger,
		now:             time.Now,
		random:          rand.Reader,
	}
}

// Issue creates a credential and returns its raw secret. The secret is not
// recoverable afterwards.
func (s *CredentialService) Issue(ctx context.Context, name string, owner *int64) (string, *model.ServiceCredential, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("%w: credential name is required", ErrInvalidArgument)
	}
	if owner == nil && !s.allowSystemKeys {
		return "", nil, fmt.Errorf("%w: system credentials are disabled, an owner is required", ErrInvalidArgument)
	}

	raw, err := s.generateSecret()
	if err != nil {
		return "", nil, err
	}
	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return "", nil, err
	}

	now := s.now().UTC()
	cred := &model.ServiceCredential{
		Name:        name,
		SecretHash:  hash,
		Prefix:      raw[:PrefixLength],
		OwnerUserID: owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateCredential(ctx, cred); err != nil {
		return "", nil, fmt.Errorf("issue credential: %w", err)
	}

	s.logger.Info("service credential issued", "id", cred.ID, "name", name, "prefix", cred.Prefix)
	return raw, cred, nil
}

// Verify resolves a raw secret to its credential and records the use. It
// returns ErrCredentialNotFound for wrong-length, unknown or revoked secrets.
func (s *CredentialService) Verify(ctx context.Context, raw string) (*model.ServiceCredential, error) {
	if len(raw) != SecretLength {
		return nil, ErrCredentialNotFound
	}

	candidates, err := s.store.ListActiveCredentialsByPrefix(ctx, raw[:PrefixLength])
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		c := &candidates[i]
		if !s.hasher.Compare(c.SecretHash, raw) {
			continue
		}
		used, err := s.store.RecordCredentialUse(ctx, c.ID, s.now())
		if errors.Is(err, store.ErrNotFound) {
			// Revoked between lookup and update.
			return nil, ErrCredentialNotFound
		}
		if err != nil {
			return nil, err
		}
		return used, nil
	}

	s.logger.Debug("service credential rejected", "prefix", raw[:PrefixLength], "candidates", len(candidates))
	return nil, ErrCredentialNotFound
}

// Revoke marks a credential revoked. It returns false if the credential does
// not exist or is already revoked.
func (s *CredentialService) Revoke(ctx context.Context, id int64) (bool, error) {
	ok, err := s.store.RevokeCredential(ctx, id, s.now())
	if err != nil {
		return false, err
	}
	if ok {
		s.logger.Info("service credential revoked", "id", id)
	}
	return ok, nil
}

// Cleanup hard-deletes credentials revoked more than days ago. Non-positive
// days selects DefaultRetentionDays.
func (s *CredentialService) Cleanup(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	cutoff := s.now().AddDate(0, 0, -days)
	n, err := s.store.DeleteCredentialsRevokedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("revoked service credentials purged", "count", n, "retention_days", days)
	}
	return n, nil
}

// List returns credentials newest first.
func (s *CredentialService) List(ctx context.Context, f store.CredentialFilter) ([]model.ServiceCredential, error) {
	return s.store.ListCredentials(ctx, f)
}

// Stats counts total, active and revoked credentials.
func (s *CredentialService) Stats(ctx context.Context) (*model.CredentialStats, error) {
	return s.store.CredentialStats(ctx)
}

// generateSecret returns SecretLength URL-safe characters drawn from
// secretEntropyBytes random bytes.
func (s *CredentialService) generateSecret() (string, error) {
	b := make([]byte, secretEntropyBytes)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b)[:SecretLength], nil
}
