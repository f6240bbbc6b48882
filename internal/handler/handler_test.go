package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/reconnoiter/reconnoiter/internal/model"
	"github.com/reconnoiter/reconnoiter/internal/provider"
	"github.com/reconnoiter/reconnoiter/internal/server/middleware"
	"github.com/reconnoiter/reconnoiter/internal/service"
	"github.com/reconnoiter/reconnoiter/internal/store"
	"github.com/reconnoiter/reconnoiter/internal/telemetry"
)

const (
	testSigningKey = "0123456789abcdef0123456789abcdef"
	frontendURL    = "http://frontend.test"

	tokenOctocat  = "gho_octocat"
	tokenStranger = "gho_stranger"
	tokenBroken   = "gho_broken"
	authCodeGood  = "code-good"
)

type recordingReporter struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *recordingReporter) Report(_ context.Context, ev telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// fakeGitHub serves GET /user and the OAuth token endpoint.
func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer " + tokenOctocat:
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"id":42,"login":"octocat","name":"The Octocat","email":"octocat@example.com","avatar_url":"https://avatars/42"}`)
		case "Bearer " + tokenStranger:
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"id":99,"login":"stranger","email":null}`)
		case "Bearer " + tokenBroken:
			http.Error(w, "boom", http.StatusBadGateway)
		default:
			http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
		}
	})
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("code_verifier") == "" {
			t.Error("expected a PKCE code_verifier")
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("code") {
		case authCodeGood:
			io.WriteString(w, `{"access_token":"`+tokenOctocat+`","token_type":"bearer"}`)
		case "code-stranger":
			io.WriteString(w, `{"access_token":"`+tokenStranger+`","token_type":"bearer"}`)
		case "code-revoked":
			io.WriteString(w, `{"access_token":"gho_revoked","token_type":"bearer"}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"bad_verification_code"}`)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	store    *store.Store
	creds    *service.CredentialService
	codec    *service.SessionCodec
	reporter *recordingReporter
	router   chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("store.NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hasher, err := service.NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcryptHasher: %v", err)
	}
	codec, err := service.NewSessionCodec([]byte(testSigningKey), time.Hour)
	if err != nil {
		t.Fatalf("NewSessionCodec: %v", err)
	}
	creds := service.NewCredentialService(st, hasher, service.CredentialOptions{AllowSystemKeys: true, Logger: logger})
	allowList := service.NewAllowListService(st, logger)

	gh := fakeGitHub(t)
	exchange := service.NewExchangeService(
		provider.NewGitHubClient(provider.GitHubOptions{BaseURL: gh.URL}),
		allowList,
		service.NewUserProvisioner(st, logger),
		codec, logger,
	)

	reporter := &recordingReporter{}
	authHandler := NewAuthHandler(exchange, reporter)
	oauthHandler := NewOAuthHandler(OAuthOptions{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://api.test/login/oauth2/code/github",
		Endpoint: oauth2.Endpoint{
			AuthURL:  gh.URL + "/login/oauth/authorize",
			TokenURL: gh.URL + "/login/oauth/access_token",
		},
		FrontendURL: frontendURL + "/",
	}, exchange, reporter, logger)
	adminHandler := NewAdminHandler(creds, st, allowList, reporter)

	// Mount routes without the auth chain for direct handler testing. Tests
	// that need a user inject an AuthState through the X-Test-User header.
	r := chi.NewRouter()
	r.Use(injectTestUser(st))
	r.Get("/", Root("X-User-Token"))
	r.Post("/api/v1/auth/exchange", authHandler.Exchange)
	r.Get("/oauth2/authorization/github", oauthHandler.Login)
	r.Get("/login/oauth2/code/github", oauthHandler.Callback)
	r.Get("/api/v1/profile", Profile)
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Get("/api-keys", adminHandler.ListAPIKeys)
		r.Post("/api-keys", adminHandler.CreateAPIKey)
		r.Delete("/api-keys/{id}", adminHandler.RevokeAPIKey)
		r.Get("/stats", adminHandler.Stats)
	})
	docs := NewOpenAPIHandler(openapiOptions())
	r.Get("/openapi.json", docs.ServeJSON)
	r.Get("/openapi.yml", docs.ServeYAML)

	return &testEnv{store: st, creds: creds, codec: codec, reporter: reporter, router: r}
}

func injectTestUser(st *store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := r.Header.Get("X-Test-User")
			if email == "" {
				next.ServeHTTP(w, r)
				return
			}
			u, err := st.GetUserByEmail(r.Context(), email)
			if err != nil {
				http.Error(w, "test user: "+err.Error(), http.StatusTeapot)
				return
			}
			state := &middleware.AuthState{ServiceAuthenticated: true, User: u}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), middleware.AuthStateKey, state)))
		})
	}
}

func (e *testEnv) seedUser(t *testing.T, email string, admin bool) *model.User {
	t.Helper()
	u := &model.User{Email: email}
	if err := e.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seedUser: %v", err)
	}
	if admin {
		if err := e.store.SetUserAdmin(context.Background(), u.ID, true); err != nil {
			t.Fatalf("SetUserAdmin: %v", err)
		}
		u.Admin = true
	}
	return u
}

func (e *testEnv) allow(t *testing.T, id int64, login string) {
	t.Helper()
	if err := e.store.AddAllowListEntry(context.Background(), &model.AllowListEntry{ProviderID: id, ProviderLogin: login}); err != nil {
		t.Fatalf("AddAllowListEntry: %v", err)
	}
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers ...map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range headers {
		for k, v := range h {
			req.Header.Set(k, v)
		}
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

func redirectTarget(t *testing.T, rr *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302; body = %s", rr.Code, rr.Body.String())
	}
	u, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	return u
}
