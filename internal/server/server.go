package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/reconnoiter/reconnoiter/internal/handler"
	"github.com/reconnoiter/reconnoiter/internal/openapi"
	"github.com/reconnoiter/reconnoiter/internal/server/middleware"
	"github.com/reconnoiter/reconnoiter/internal/service"
	"github.com/reconnoiter/reconnoiter/internal/store"
	"github.com/reconnoiter/reconnoiter/internal/telemetry"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxBodySize     int64 // bytes

	// SessionHeader carries the user session token.
	SessionHeader string
	// ExchangeRateLimit caps token exchanges per client IP per minute.
	ExchangeRateLimit int
	// CredentialRateLimit caps API requests per service credential per
	// minute. Zero disables the limit.
	CredentialRateLimit int
	// TrustProxyHeaders takes the client IP from the proxy headers chi's
	// RealIP reads. When false the per-IP limits key on the peer address.
	TrustProxyHeaders bool
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		ShutdownTimeout:   30 * time.Second,
		CORSOrigins:       []string{"http://localhost:3000"},
		MaxBodySize:       1 << 20, // 1MB
		SessionHeader:     middleware.DefaultSessionHeader,
		ExchangeRateLimit: 30,
	}
}

// Deps are the services the server routes to.
type Deps struct {
	Store       *store.Store
	Credentials *service.CredentialService
	Sessions    *service.SessionCodec
	AllowList   *service.AllowListService
	Exchange    *service.ExchangeService
	Reporter    telemetry.Reporter
	// OAuth enables the browser login routes when ClientID is set.
	OAuth   handler.OAuthOptions
	OpenAPI openapi.Options
}

// Server is the top-level HTTP server. It owns the Chi router and the
// authentication chain in front of every /api route.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if cfg.SessionHeader == "" {
		cfg.SessionHeader = middleware.DefaultSessionHeader
	}
	if deps.Reporter == nil {
		deps.Reporter = telemetry.NewLogReporter(logger)
	}
	if deps.OpenAPI.SessionHeader == "" {
		deps.OpenAPI.SessionHeader = cfg.SessionHeader
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Recoverer(s.deps.Reporter))
	if s.cfg.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", s.cfg.SessionHeader, "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}

	// --- Public routes (no auth required) ---
	r.Get("/", handler.Root(s.cfg.SessionHeader))
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	docs := handler.NewOpenAPIHandler(s.deps.OpenAPI)
	r.Get("/openapi.json", docs.ServeJSON)
	r.Get("/openapi.yml", docs.ServeYAML)

	// --- Browser login ---
	if s.deps.OAuth.ClientID != "" {
		oauthHandler := handler.NewOAuthHandler(s.deps.OAuth, s.deps.Exchange, s.deps.Reporter, s.logger)
		r.Get("/oauth2/authorization/github", oauthHandler.Login)
		r.Get("/login/oauth2/code/github", oauthHandler.Callback)
	}

	// --- API routes ---
	chain := middleware.NewChain(s.deps.Reporter, s.logger,
		middleware.ServiceCredentialStage(s.deps.Credentials),
		middleware.SessionStage(s.cfg.SessionHeader, s.deps.Sessions, s.deps.Store),
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chain.Handler)
		r.Use(middleware.RequireServiceCredential())
		if s.cfg.CredentialRateLimit > 0 {
			r.Use(middleware.RateLimitByCredential(s.cfg.CredentialRateLimit))
		}

		authHandler := handler.NewAuthHandler(s.deps.Exchange, s.deps.Reporter)
		r.Group(func(r chi.Router) {
			if s.cfg.ExchangeRateLimit > 0 {
				r.Use(middleware.RateLimit(s.cfg.ExchangeRateLimit))
			}
			r.Post("/auth/exchange", authHandler.Exchange)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser())
			r.Get("/profile", handler.Profile)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin())

				adminHandler := handler.NewAdminHandler(s.deps.Credentials, s.deps.Store, s.deps.AllowList, s.deps.Reporter)
				r.Get("/api-keys", adminHandler.ListAPIKeys)
				r.Post("/api-keys", adminHandler.CreateAPIKey)
				r.Delete("/api-keys/{id}", adminHandler.RevokeAPIKey)
				r.Get("/stats", adminHandler.Stats)
			})
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the store answers a
// ping, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "driver", s.deps.Store.Driver(), "error", err)
		checks["store"] = "unavailable"
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve runs the server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
