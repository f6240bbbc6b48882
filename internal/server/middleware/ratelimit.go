package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns an HTTP middleware that limits requests per IP address
// to the specified number per minute. Uses a sliding window algorithm.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// RateLimitByCredential limits requests per verified service credential.
// Requests without a credential are keyed by IP. It must run after the
// authentication chain.
func RateLimitByCredential(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if c := GetCredential(r.Context()); c != nil {
				return "credential:" + strconv.FormatInt(c.ID, 10), nil
			}
			return httprate.KeyByIP(r)
		}),
	)
}
