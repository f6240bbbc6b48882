package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/reconnoiter/reconnoiter/internal/model"
	"github.com/reconnoiter/reconnoiter/internal/service"
	"github.com/reconnoiter/reconnoiter/internal/store"
)

const (
	// DefaultSessionHeader carries the user session token.
	DefaultSessionHeader = "X-User-Token"

	bearerPrefix = "Bearer "
)

// CredentialVerifier resolves a raw service credential.
type CredentialVerifier interface {
	Verify(ctx context.Context, raw string) (*model.ServiceCredential, error)
}

// SessionVerifier checks a session token.
type SessionVerifier interface {
	Verify(token string) service.VerifyResult
}

// UserLookup loads live users by id.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
}

// ServiceCredentialStage authenticates the calling application from
// "Authorization: Bearer <secret>". Requests without the header pass
// through; route policy decides whether that is acceptable.
func ServiceCredentialStage(v CredentialVerifier) Stage {
	return func(r *http.Request, state *AuthState) (*Rejection, error) {
		values := r.Header.Values("Authorization")
		if len(values) == 0 {
			return nil, nil
		}

		// Servers strip trailing whitespace from header values, so
		// "Bearer " arrives as "Bearer".
		header := strings.TrimSpace(values[0])
		if header == strings.TrimSpace(bearerPrefix) {
			return Reject(service.CodeEmptyAPIKey, "API key is empty"), nil
		}
		if !strings.HasPrefix(header, bearerPrefix) {
			return Reject(service.CodeMalformedHeader, "Authorization header must use the Bearer scheme"), nil
		}
		raw := strings.TrimSpace(header[len(bearerPrefix):])
		if raw == "" {
			return Reject(service.CodeEmptyAPIKey, "API key is empty"), nil
		}

		cred, err := v.Verify(r.Context(), raw)
		if errors.Is(err, service.ErrCredentialNotFound) {
			return Reject(service.CodeInvalidAPIKey, "Invalid or revoked API key"), nil
		}
		if err != nil {
			return nil, err
		}

		state.Credential = cred
		state.ServiceAuthenticated = true
		return nil, nil
	}
}

// SessionStage authenticates the human user from the session header. It
// only honors a session after ServiceCredentialStage succeeded.
func SessionStage(header string, codec SessionVerifier, users UserLookup) Stage {
	if header == "" {
		header = DefaultSessionHeader
	}
	return func(r *http.Request, state *AuthState) (*Rejection, error) {
		values := r.Header.Values(header)
		if len(values) == 0 {
			return nil, nil
		}
		if !state.ServiceAuthenticated {
			return Reject(service.CodeMissingAPIKey, "A valid API key is required before a user token is accepted"), nil
		}

		res := codec.Verify(strings.TrimSpace(values[0]))
		switch res.Failure {
		case service.TokenValid:
		case service.TokenMalformed:
			return Reject(service.CodeMalformedToken, "User token is malformed"), nil
		case service.TokenExpired:
			return Reject(service.CodeTokenExpired, "User token has expired"), nil
		default:
			return Reject(service.CodeInvalidSignature, "User token signature is invalid"), nil
		}

		user, err := users.GetUser(r.Context(), res.Claims.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return Reject(service.CodeUserNotFound, "User not found"), nil
		}
		if err != nil {
			return nil, err
		}

		state.User = user
		return nil, nil
	}
}
