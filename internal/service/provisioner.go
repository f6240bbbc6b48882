package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/reconnoiter/reconnoiter/internal/model"
	"github.com/reconnoiter/reconnoiter/internal/store"
)

// UserStore is the persistence the provisioner and the session stage need.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByProviderID(ctx context.Context, providerID int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) error
	UpdateUserProfile(ctx context.Context, u *model.User) error
	IsUserDeactivated(ctx context.Context, providerID int64, email string) (bool, error)
}

// UserProvisioner finds or creates the local user for a GitHub identity.
type UserProvisioner struct {
	store  UserStore
	logger *slog.Logger
}

// NewUserProvisioner wires a provisioner.
func NewUserProvisioner(st UserStore, logger *slog.Logger) *UserProvisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserProvisioner{store: st, logger: logger}
}

// FindOrCreate returns the user linked to the profile, refreshing its
// profile fields, or creates one with admin=false. Two concurrent first
// logins may both try to insert; the loser re-reads the winner's row.
//
// A soft-deleted user stays deleted: an identity whose GitHub id or email
// belongs to one is rejected with CodeAccessDenied.
func (p *UserProvisioner) FindOrCreate(ctx context.Context, profile *model.Profile) (*model.User, error) {
	email := profileEmail(profile)

	u, err := p.lookup(ctx, profile.ID, email)
	if err == nil {
		return p.refresh(ctx, u, profile, email)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if err := p.rejectDeactivated(ctx, profile, email); err != nil {
		return nil, err
	}

	u = &model.User{Email: email}
	applyProfile(u, profile, email)
	err = p.store.CreateUser(ctx, u)
	if err == nil {
		p.logger.Info("user provisioned", "user_id", u.ID, "github_id", profile.ID)
		return u, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, err
	}

	existing, lerr := p.lookup(ctx, profile.ID, email)
	if errors.Is(lerr, store.ErrNotFound) {
		// Deleted between the first lookup and the insert.
		if derr := p.rejectDeactivated(ctx, profile, email); derr != nil {
			return nil, derr
		}
	}
	if lerr != nil {
		return nil, fmt.Errorf("provision user after conflict: %w", err)
	}
	return p.refresh(ctx, existing, profile, email)
}

func (p *UserProvisioner) rejectDeactivated(ctx context.Context, profile *model.Profile, email string) error {
	deactivated, err := p.store.IsUserDeactivated(ctx, profile.ID, email)
	if err != nil {
		return err
	}
	if deactivated {
		p.logger.Warn("exchange denied, account deactivated", "github_id", profile.ID, "github_username", profile.Login)
		return NewAuthError(CodeAccessDenied, "Access denied", "This account has been deactivated")
	}
	return nil
}

func (p *UserProvisioner) lookup(ctx context.Context, providerID int64, email string) (*model.User, error) {
	u, err := p.store.GetUserByProviderID(ctx, providerID)
	if !errors.Is(err, store.ErrNotFound) {
		return u, err
	}
	return p.store.GetUserByEmail(ctx, email)
}

func (p *UserProvisioner) refresh(ctx context.Context, u *model.User, profile *model.Profile, email string) (*model.User, error) {
	previousEmail := u.Email
	applyProfile(u, profile, email)

	err := p.store.UpdateUserProfile(ctx, u)
	if errors.Is(err, store.ErrConflict) && u.Email != previousEmail {
		// The new address belongs to another account; keep the old one.
		p.logger.Warn("email refresh skipped, address in use", "user_id", u.ID)
		u.Email = previousEmail
		err = p.store.UpdateUserProfile(ctx, u)
	}
	if err != nil {
		return nil, fmt.Errorf("refresh user profile: %w", err)
	}
	return u, nil
}

// applyProfile copies provider-sourced fields. Admin is never touched.
func applyProfile(u *model.User, profile *model.Profile, email string) {
	id := profile.ID
	login := profile.Login
	provider := model.ProviderGitHub
	uid := strconv.FormatInt(profile.ID, 10)

	u.Email = email
	u.ProviderID = &id
	u.ProviderLogin = &login
	u.Provider = &provider
	u.UID = &uid
	u.ProviderName = optional(profile.Name)
	u.ProviderAvatarURL = optional(profile.AvatarURL)
}

func profileEmail(profile *model.Profile) string {
	if profile.Email != "" {
		return profile.Email
	}
	return model.PlaceholderEmail(profile.Login)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
