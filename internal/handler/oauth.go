package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/reconnoiter/reconnoiter/internal/server/middleware"
	"github.com/reconnoiter/reconnoiter/internal/service"
	"github.com/reconnoiter/reconnoiter/internal/telemetry"
)

const (
	stateCookie    = "reconnoiter_oauth_state"
	verifierCookie = "reconnoiter_oauth_verifier"
	oauthCookieTTL = 10 * time.Minute

	// Error codes passed to the frontend error page.
	oauthErrNotAllowListed = "not_whitelisted"
	oauthErrInvalidToken   = "invalid_token"
	oauthErrInvalidState   = "invalid_state"
	oauthErrProvider       = "access_denied"
	oauthErrServer         = "server_error"
)

// OAuthOptions configures the browser login flow.
type OAuthOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides GitHub's authorization server, for tests and
	// GitHub Enterprise.
	Endpoint      oauth2.Endpoint
	FrontendURL   string
	SecureCookies bool
	// HTTPClient is used for the code exchange. Defaults to a client with
	// a 10s timeout.
	HTTPClient *http.Client
}

// OAuthHandler drives the GitHub authorization-code flow and hands the
// resulting access token to the exchange service.
type OAuthHandler struct {
	cfg      *oauth2.Config
	exchange *service.ExchangeService
	frontend string
	secure   bool
	client   *http.Client
	reporter telemetry.Reporter
	logger   *slog.Logger
}

// NewOAuthHandler creates a new OAuthHandler.
func NewOAuthHandler(opts OAuthOptions, exchange *service.ExchangeService, reporter telemetry.Reporter, logger *slog.Logger) *OAuthHandler {
	endpoint := opts.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = github.Endpoint
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OAuthHandler{
		cfg: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		exchange: exchange,
		frontend: strings.TrimRight(opts.FrontendURL, "/"),
		secure:   opts.SecureCookies,
		client:   client,
		reporter: reporter,
		logger:   logger,
	}
}

// Login redirects the browser to GitHub's consent page.
// GET /oauth2/authorization/github
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	h.setCookie(w, stateCookie, state, oauthCookieTTL)
	h.setCookie(w, verifierCookie, verifier, oauthCookieTTL)

	http.Redirect(w, r, h.cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), http.StatusFound)
}

// Callback completes the flow and redirects to the frontend with either a
// session token or an error code.
// GET /login/oauth2/code/github
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state, _ := r.Cookie(stateCookie)
	verifier, _ := r.Cookie(verifierCookie)
	h.setCookie(w, stateCookie, "", -1)
	h.setCookie(w, verifierCookie, "", -1)

	if e := q.Get("error"); e != "" {
		h.fail(w, r, oauthErrProvider, q.Get("error_description"))
		return
	}
	if state == nil || verifier == nil || q.Get("state") == "" ||
		subtle.ConstantTimeCompare([]byte(state.Value), []byte(q.Get("state"))) != 1 {
		h.fail(w, r, oauthErrInvalidState, "Login session expired, please try again")
		return
	}
	code := q.Get("code")
	if code == "" {
		h.fail(w, r, oauthErrInvalidToken, "Missing authorization code")
		return
	}

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, h.client)
	tok, err := h.cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier.Value))
	if err != nil {
		h.logger.Warn("oauth code exchange failed", "error", err)
		h.fail(w, r, oauthErrInvalidToken, "Could not complete GitHub login")
		return
	}

	res, err := h.exchange.Exchange(r.Context(), tok.AccessToken)
	if err != nil {
		ae, ok := service.AsAuthError(err)
		switch {
		case ok && ae.Code == service.CodeAccessDenied:
			h.fail(w, r, oauthErrNotAllowListed, strings.Join(ae.Details, " "))
		case ok:
			h.fail(w, r, oauthErrInvalidToken, strings.Join(ae.Details, " "))
		default:
			h.report(r, err)
			h.fail(w, r, oauthErrServer, "An unexpected error occurred")
		}
		return
	}

	target := h.frontend + "/auth/callback?" + url.Values{"token": {res.Token}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *OAuthHandler) fail(w http.ResponseWriter, r *http.Request, code, message string) {
	v := url.Values{"error": {code}}
	if message != "" {
		v.Set("message", message)
	}
	http.Redirect(w, r, h.frontend+"/auth/error?"+v.Encode(), http.StatusFound)
}

func (h *OAuthHandler) report(r *http.Request, err error) {
	if h.reporter == nil {
		return
	}
	ev := telemetry.NewEvent("oauth callback failed", err)
	ev.RequestID = middleware.GetRequestID(r.Context())
	ev.Method = r.Method
	ev.Path = r.URL.Path
	h.reporter.Report(r.Context(), ev)
}

func (h *OAuthHandler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	}
	if ttl < 0 {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}
