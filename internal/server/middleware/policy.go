package middleware

import (
	"net/http"
	"time"

	"github.com/reconnoiter/reconnoiter/internal/service"
)

// RequireServiceCredential rejects requests the chain did not authenticate
// with a service credential.
func RequireServiceCredential() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := GetAuthState(r.Context())
			if s == nil || !s.ServiceAuthenticated {
				rejectRoute(w, r, http.StatusUnauthorized, service.CodeMissingAPIKey, "API key required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser rejects requests without a session user.
func RequireUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetUser(r.Context()) == nil {
				rejectRoute(w, r, http.StatusUnauthorized, service.CodeAuthenticationRequired, "User authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin enforces the admin flag. It must be used after RequireUser.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := GetUser(r.Context())
			if u == nil || !u.Admin {
				rejectRoute(w, r, http.StatusForbidden, service.CodeForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectRoute(w http.ResponseWriter, r *http.Request, status int, code service.ErrorCode, message string) {
	noteRejected(r.Context(), string(code))
	writeRejection(w, status, code, message, time.Now())
}
