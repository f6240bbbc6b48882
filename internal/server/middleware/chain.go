package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/reconnoiter/reconnoiter/internal/model"
	"github.com/reconnoiter/reconnoiter/internal/service"
	"github.com/reconnoiter/reconnoiter/internal/telemetry"
)

type contextKeyAuth string

// AuthStateKey is the context key for the request's AuthState.
const AuthStateKey contextKeyAuth = "auth_state"

// AuthState is the request-scoped result of the authentication chain. Each
// stage reads and extends the same value.
type AuthState struct {
	Credential           *model.ServiceCredential
	ServiceAuthenticated bool
	User                 *model.User
}

// Rejection is an expected, taxonomized failure that ends the chain.
type Rejection struct {
	Code    service.ErrorCode
	Message string
}

// Reject builds a Rejection.
func Reject(code service.ErrorCode, message string) *Rejection {
	return &Rejection{Code: code, Message: message}
}

// Stage is one step of the authentication chain. It either leaves the state
// alone (pass through), extends it (authenticate), or returns a Rejection
// (terminate). A non-nil error is a defect and produces a generic 500.
type Stage func(r *http.Request, state *AuthState) (*Rejection, error)

// Chain runs its stages in order over one AuthState per request.
type Chain struct {
	stages   []Stage
	reporter telemetry.Reporter
	logger   *slog.Logger
	now      func() time.Time
}

// NewChain builds a chain from stages, run in the given order.
func NewChain(reporter telemetry.Reporter, logger *slog.Logger, stages ...Stage) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{stages: stages, reporter: reporter, logger: logger, now: time.Now}
}

// Handler returns the chain as HTTP middleware. On success the AuthState
// is attached to the request context and next runs.
func (c *Chain) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := &AuthState{}
		for _, stage := range c.stages {
			rej, err := stage(r, state)
			if err != nil {
				WriteDefect(w, r, c.reporter, "authentication chain failed", err)
				return
			}
			if rej != nil {
				c.logger.Debug("request rejected",
					"code", rej.Code,
					"path", r.URL.Path,
					"request_id", GetRequestID(r.Context()),
				)
				noteRejected(r.Context(), string(rej.Code))
				writeRejection(w, rej.Code.Status(), rej.Code, rej.Message, c.now())
				return
			}
		}

		noteAuthenticated(r.Context(), state)
		ctx := context.WithValue(r.Context(), AuthStateKey, state)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthState extracts the chain result from the context. Returns nil if
// the chain did not run.
func GetAuthState(ctx context.Context) *AuthState {
	if s, ok := ctx.Value(AuthStateKey).(*AuthState); ok {
		return s
	}
	return nil
}

// GetUser returns the session user, or nil.
func GetUser(ctx context.Context) *model.User {
	if s := GetAuthState(ctx); s != nil {
		return s.User
	}
	return nil
}

// GetCredential returns the verified service credential, or nil.
func GetCredential(ctx context.Context) *model.ServiceCredential {
	if s := GetAuthState(ctx); s != nil {
		return s.Credential
	}
	return nil
}

func writeRejection(w http.ResponseWriter, status int, code service.ErrorCode, message string, at time.Time) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.NewAuthErrorResponse(status, string(code), message, at))
}
