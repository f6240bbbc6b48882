package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type contextKeyAccess struct{}

// accessRecord collects what the authentication chain learned about the
// caller so the outer request log can include it. Only the credential
// prefix is kept, never the secret.
type accessRecord struct {
	credentialID     int64
	credentialPrefix string
	userID           int64
	rejection        string
}

func accessFrom(ctx context.Context) *accessRecord {
	rec, _ := ctx.Value(contextKeyAccess{}).(*accessRecord)
	return rec
}

// noteAuthenticated copies the caller identity from state onto the request
// log record, if one is installed.
func noteAuthenticated(ctx context.Context, state *AuthState) {
	rec := accessFrom(ctx)
	if rec == nil {
		return
	}
	if state.Credential != nil {
		rec.credentialID = state.Credential.ID
		rec.credentialPrefix = state.Credential.Prefix
	}
	if state.User != nil {
		rec.userID = state.User.ID
	}
}

func noteRejected(ctx context.Context, code string) {
	if rec := accessFrom(ctx); rec != nil {
		rec.rejection = code
	}
}

// Logger returns an HTTP middleware that logs every request using structured
// logging: method, path, status, size, duration, request ID and, once the
// authentication chain has run, the credential prefix and user ID.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			rec := &accessRecord{}

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), contextKeyAccess{}, rec)))

			level := slog.LevelInfo
			if ww.status >= 500 {
				level = slog.LevelError
			} else if ww.status >= 400 {
				level = slog.LevelWarn
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"bytes", ww.bytes,
				"request_id", GetRequestID(r.Context()),
				"remote_addr", r.RemoteAddr,
			}
			if rec.credentialPrefix != "" {
				attrs = append(attrs, "credential_id", rec.credentialID, "credential_prefix", rec.credentialPrefix)
			}
			if rec.userID != 0 {
				attrs = append(attrs, "user_id", rec.userID)
			}
			if rec.rejection != "" {
				attrs = append(attrs, "auth_error", rec.rejection)
			}
			logger.Log(r.Context(), level, "request", attrs...)
		})
	}
}

// responseWriter records status and size for the request log.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
