package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/reconnoiter/reconnoiter/internal/config"
	"github.com/reconnoiter/reconnoiter/internal/connector"
	"github.com/reconnoiter/reconnoiter/internal/service"
	"github.com/reconnoiter/reconnoiter/internal/store"
)

// loadSettings decodes the effective configuration. Commands that sign or
// verify tokens also call Validate; store-only commands skip it so an admin
// can manage keys before a signing key is configured.
func loadSettings() (*config.Settings, error) {
	return config.Load(viper.GetViper())
}

// newLogger builds the process logger from log.level and log.format.
func newLogger(s config.LogSettings, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(s.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(s.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openStore opens the configured store: the SQLite file under data_dir by
// default, or any registered driver when a DSN is set.
func openStore(s config.DatabaseSettings) (*store.Store, error) {
	if s.DSN == "" && (s.Driver == "" || s.Driver == "sqlite") {
		return store.NewStore(s.DataDir)
	}
	return store.Open(connector.ConnectionConfig{
		Driver:          s.Driver,
		DSN:             s.DSN,
		MaxOpenConns:    s.MaxOpenConns,
		MaxIdleConns:    s.MaxIdleConns,
		ConnMaxLifetime: s.ConnMaxLifetime.D(),
	})
}

// storeSession bundles what the store-only admin commands need.
type storeSession struct {
	settings *config.Settings
	store    *store.Store
	logger   *slog.Logger
}

func openSession() (*storeSession, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	st, err := openStore(settings.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &storeSession{
		settings: settings,
		store:    st,
		logger:   newLogger(config.LogSettings{Level: "warn", Format: settings.Log.Format}, os.Stderr),
	}, nil
}

func (s *storeSession) Close() error {
	return s.store.Close()
}

func (s *storeSession) credentials() (*service.CredentialService, error) {
	hasher, err := service.NewBcryptHasher(s.settings.Auth.BcryptCost)
	if err != nil {
		return nil, err
	}
	return service.NewCredentialService(s.store, hasher, service.CredentialOptions{
		AllowSystemKeys: s.settings.Auth.AllowSystemKeys,
		Logger:          s.logger,
	}), nil
}

func (s *storeSession) allowList() *service.AllowListService {
	return service.NewAllowListService(s.store, s.logger)
}

func cmdCtx() context.Context {
	return context.Background()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
