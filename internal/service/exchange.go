package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reconnoiter/reconnoiter/internal/model"
)

// IdentityProvider resolves a GitHub access token to a profile. A nil
// profile with a nil error means the provider rejected the token.
type IdentityProvider interface {
	FetchProfile(ctx context.Context, token string) (*model.Profile, error)
}

// ExchangeResult is a successful exchange.
type ExchangeResult struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// ExchangeService turns a GitHub access token into a session token for an
// allow-listed identity.
type ExchangeService struct {
	provider    IdentityProvider
	allowList   *AllowListService
	provisioner *UserProvisioner
	codec       *SessionCodec
	logger      *slog.Logger
}

// NewExchangeService wires the exchange flow.
func NewExchangeService(provider IdentityProvider, allowList *AllowListService, provisioner *UserProvisioner, codec *SessionCodec, logger *slog.Logger) *ExchangeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExchangeService{
		provider:    provider,
		allowList:   allowList,
		provisioner: provisioner,
		codec:       codec,
		logger:      logger,
	}
}

// Exchange validates providerToken with GitHub, checks the allow-list, finds
// or creates the user and issues a session token.
//
// Expected rejections are returned as *AuthError with CodeInvalidProviderToken
// or CodeAccessDenied. Provider outages and store failures are returned as
// plain errors. The allow-list is consulted before any user row is written.
func (s *ExchangeService) Exchange(ctx context.Context, providerToken string) (*ExchangeResult, error) {
	providerToken = strings.TrimSpace(providerToken)
	if providerToken == "" {
		return nil, NewAuthError(CodeInvalidProviderToken, "Invalid GitHub token",
			"Could not verify GitHub token or fetch user data")
	}

	profile, err := s.provider.FetchProfile(ctx, providerToken)
	if err != nil {
		return nil, fmt.Errorf("fetch github profile: %w", err)
	}
	if profile == nil {
		return nil, NewAuthError(CodeInvalidProviderToken, "Invalid GitHub token",
			"Could not verify GitHub token or fetch user data")
	}

	allowed, err := s.allowList.IsAllowed(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("check allow-list: %w", err)
	}
	if !allowed {
		s.logger.Warn("exchange denied, identity not allow-listed", "github_id", profile.ID, "github_username", profile.Login)
		return nil, NewAuthError(CodeAccessDenied, "Access denied",
			"Your GitHub account is not whitelisted for access")
	}

	user, err := s.provisioner.FindOrCreate(ctx, profile)
	if err != nil {
		return nil, err
	}

	token, exp, err := s.codec.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	s.logger.Info("session issued", "user_id", user.ID, "github_id", profile.ID)
	return &ExchangeResult{Token: token, ExpiresAt: exp, User: user}, nil
}
