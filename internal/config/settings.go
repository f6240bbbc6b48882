package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/reconnoiter/reconnoiter/internal/connector"
)

const (
	// EnvPrefix namespaces environment overrides, e.g.
	// RECONNOITER_AUTH_JWT_SECRET for auth.jwt_secret.
	EnvPrefix = "RECONNOITER"
	// FileName is the config file looked up without an explicit --config.
	FileName = "reconnoiter"

	// MinSigningKeyLength is the shortest accepted auth.jwt_secret.
	MinSigningKeyLength = 32

	redacted = "********"
)

// Settings is the full process configuration. Signing key, hasher cost and
// TTL are read once at startup and handed to constructors; nothing re-reads
// them later.
type Settings struct {
	Server    ServerSettings    `mapstructure:"server" yaml:"server"`
	Database  DatabaseSettings  `mapstructure:"database" yaml:"database"`
	Auth      AuthSettings      `mapstructure:"auth" yaml:"auth"`
	GitHub    GitHubSettings    `mapstructure:"github" yaml:"github"`
	Frontend  FrontendSettings  `mapstructure:"frontend" yaml:"frontend"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit" yaml:"rate_limit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry" yaml:"telemetry"`
	Log       LogSettings       `mapstructure:"log" yaml:"log"`
}

// ServerSettings controls the HTTP server behavior.
type ServerSettings struct {
	Host            string   `mapstructure:"host" yaml:"host"`
	Port            int      `mapstructure:"port" yaml:"port"`
	CORSOrigins     []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	ShutdownTimeout Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodySize     int64    `mapstructure:"max_body_size" yaml:"max_body_size"`

	// TrustProxyHeaders reads the client IP from X-Forwarded-For and
	// X-Real-IP. Leave off unless a reverse proxy overwrites them.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers" yaml:"trust_proxy_headers"`
}

// DatabaseSettings selects the store backend. An empty DSN with the sqlite
// driver stores reconnoiter.db under DataDir.
type DatabaseSettings struct {
	Driver          string   `mapstructure:"driver" yaml:"driver"`
	DSN             string   `mapstructure:"dsn" yaml:"dsn"`
	DataDir         string   `mapstructure:"data_dir" yaml:"data_dir"`
	MaxOpenConns    int      `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int      `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// AuthSettings controls credentials and sessions.
type AuthSettings struct {
	JWTSecret        string   `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	SessionTTL       Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
	SessionHeader    string   `mapstructure:"session_header" yaml:"session_header"`
	BcryptCost       int      `mapstructure:"bcrypt_cost" yaml:"bcrypt_cost"`
	AllowSystemKeys  bool     `mapstructure:"allow_system_keys" yaml:"allow_system_keys"`
	KeyRetentionDays int      `mapstructure:"key_retention_days" yaml:"key_retention_days"`
	SweepInterval    Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// GitHubSettings configures the identity provider.
type GitHubSettings struct {
	ClientID        string   `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret    string   `mapstructure:"client_secret" yaml:"client_secret"`
	RedirectURL     string   `mapstructure:"redirect_url" yaml:"redirect_url"`
	APIBaseURL      string   `mapstructure:"api_base_url" yaml:"api_base_url"`
	ConnectTimeout  Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ResponseTimeout Duration `mapstructure:"response_timeout" yaml:"response_timeout"`
}

// FrontendSettings locates the browser application OAuth redirects land on.
type FrontendSettings struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// RateLimitSettings caps request rates. Zero disables a limit.
type RateLimitSettings struct {
	ExchangePerMinute      int `mapstructure:"exchange_per_minute" yaml:"exchange_per_minute"`
	PerCredentialPerMinute int `mapstructure:"per_credential_per_minute" yaml:"per_credential_per_minute"`
}

// TelemetrySettings controls defect reporting.
type TelemetrySettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// LogSettings controls log output.
type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults returns the built-in configuration.
func Defaults() Settings {
	return Settings{
		Server: ServerSettings{
			Host:            "0.0.0.0",
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000"},
			ShutdownTimeout: Duration(30 * time.Second),
			MaxBodySize:     1 << 20,
		},
		Database: DatabaseSettings{
			Driver:          "sqlite",
			DataDir:         defaultDataDir(),
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(30 * time.Minute),
		},
		Auth: AuthSettings{
			SessionTTL:       Duration(24 * time.Hour),
			SessionHeader:    "X-User-Token",
			BcryptCost:       bcrypt.DefaultCost,
			AllowSystemKeys:  true,
			KeyRetentionDays: 90,
			SweepInterval:    Duration(24 * time.Hour),
		},
		GitHub: GitHubSettings{
			RedirectURL:     "http://localhost:8080/login/oauth2/code/github",
			APIBaseURL:      "https://api.github.com",
			ConnectTimeout:  Duration(5 * time.Second),
			ResponseTimeout: Duration(10 * time.Second),
		},
		Frontend: FrontendSettings{
			BaseURL: "http://localhost:3000",
		},
		RateLimit: RateLimitSettings{
			ExchangePerMinute: 30,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".reconnoiter"
	}
	return home + "/.reconnoiter"
}

// SetDefaults registers every key with v so environment variables are
// honored by Load even when no config file sets the key.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout.String())
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.trust_proxy_headers", d.Server.TrustProxyHeaders)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.data_dir", d.Database.DataDir)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime.String())

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.session_ttl", d.Auth.SessionTTL.String())
	v.SetDefault("auth.session_header", d.Auth.SessionHeader)
	v.SetDefault("auth.bcrypt_cost", d.Auth.BcryptCost)
	v.SetDefault("auth.allow_system_keys", d.Auth.AllowSystemKeys)
	v.SetDefault("auth.key_retention_days", d.Auth.KeyRetentionDays)
	v.SetDefault("auth.sweep_interval", d.Auth.SweepInterval.String())

	v.SetDefault("github.client_id", d.GitHub.ClientID)
	v.SetDefault("github.client_secret", d.GitHub.ClientSecret)
	v.SetDefault("github.redirect_url", d.GitHub.RedirectURL)
	v.SetDefault("github.api_base_url", d.GitHub.APIBaseURL)
	v.SetDefault("github.connect_timeout", d.GitHub.ConnectTimeout.String())
	v.SetDefault("github.response_timeout", d.GitHub.ResponseTimeout.String())

	v.SetDefault("frontend.base_url", d.Frontend.BaseURL)

	v.SetDefault("rate_limit.exchange_per_minute", d.RateLimit.ExchangePerMinute)
	v.SetDefault("rate_limit.per_credential_per_minute", d.RateLimit.PerCredentialPerMinute)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// BindEnv makes v read RECONNOITER_SECTION_KEY for section.key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes v into Settings. It does not validate.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	err := v.Unmarshal(&s, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &s, nil
}

// Validate reports every problem at once.
func (s *Settings) Validate() error {
	var errs []error

	if len(s.Auth.JWTSecret) < MinSigningKeyLength {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least %d bytes (set %s_AUTH_JWT_SECRET)", MinSigningKeyLength, EnvPrefix))
	}
	if s.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("auth.session_ttl must be positive"))
	}
	if strings.TrimSpace(s.Auth.SessionHeader) == "" {
		errs = append(errs, errors.New("auth.session_header must not be empty"))
	}
	if c := s.Auth.BcryptCost; c != 0 && (c < bcrypt.MinCost || c > bcrypt.MaxCost) {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if s.Auth.KeyRetentionDays < 0 {
		errs = append(errs, errors.New("auth.key_retention_days must not be negative"))
	}

	switch s.Database.Driver {
	case "sqlite":
	case "postgres", "mysql":
		if s.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("database.dsn is required for driver %q", s.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported (sqlite, postgres, mysql)", s.Database.Driver))
	}

	if s.Server.Port < 0 || s.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", s.Server.Port))
	}
	if s.Telemetry.Enabled && s.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}
	if s.GitHub.ClientID != "" && s.GitHub.ClientSecret == "" {
		errs = append(errs, errors.New("github.client_secret is required when github.client_id is set"))
	}

	switch strings.ToLower(s.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", s.Log.Format))
	}
	switch strings.ToLower(s.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", s.Log.Level))
	}

	return errors.Join(errs...)
}

// Redacted returns a copy safe to print: secrets are masked and DSN
// passwords removed.
func (s Settings) Redacted() Settings {
	out := s
	out.Server.CORSOrigins = append([]string(nil), s.Server.CORSOrigins...)
	if out.Auth.JWTSecret != "" {
		out.Auth.JWTSecret = redacted
	}
	if out.GitHub.ClientSecret != "" {
		out.GitHub.ClientSecret = redacted
	}
	if out.Database.DSN != "" {
		out.Database.DSN = connector.RedactDSN(out.Database.Driver, out.Database.DSN)
	}
	return out
}

// Marshal renders s as YAML.
func Marshal(s Settings) ([]byte, error) {
	return yaml.Marshal(s)
}

// WriteFile writes s to path as YAML. It refuses to overwrite an existing
// file unless force is set.
func WriteFile(path string, s Settings, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := Marshal(s)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	header := []byte("# Reconnoiter configuration. Environment variables override every key,\n" +
		"# e.g. " + EnvPrefix + "_AUTH_JWT_SECRET for auth.jwt_secret.\n\n")
	return os.WriteFile(path, append(header, data...), 0600)
}
