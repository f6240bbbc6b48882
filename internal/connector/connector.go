package connector

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// ConnectionConfig holds everything needed to open the credential database.
type ConnectionConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Dialect abstracts the SQL differences between the supported backends:
// how to open a pool, the DDL that creates the auth tables, and how the
// driver reports a unique-constraint violation.
type Dialect interface {
	// Open connects and configures the pool.
	Open(cfg ConnectionConfig) (*sqlx.DB, error)

	// Migrations returns idempotent DDL statements, applied in order.
	Migrations() []string

	// IsUniqueViolation reports whether err is a unique-constraint failure.
	IsUniqueViolation(err error) bool

	// IsDuplicateSchemaObject reports whether err means a migration target
	// (column, index) already exists and the statement can be skipped.
	IsDuplicateSchemaObject(err error) bool

	DriverName() string
	SupportsReturning() bool
}

// ApplyPool copies the pool limits from cfg onto db. Zero values keep the
// database/sql defaults.
func ApplyPool(db *sqlx.DB, cfg ConnectionConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// SanitizeDSN ensures that URL-style DSNs (postgres://) have their userinfo
// properly percent-encoded. Raw passwords containing @, #, % or other
// URL-special characters otherwise make the URL parser mis-split the
// authority component.
//
// MySQL DSNs are normalized to use the tcp() wrapper required by
// go-sql-driver and always request parseTime so DATETIME columns scan into
// time.Time. SQLite paths are returned unchanged.
func SanitizeDSN(driver, dsn string) string {
	switch driver {
	case "postgres":
		return sanitizeURLDSN(dsn)
	case "mysql":
		return sanitizeMySQLDSN(dsn)
	default:
		return dsn
	}
}

// mysqlBareHostPort matches "user:pass@host:port/db" (no tcp() wrapper).
var mysqlBareHostPort = regexp.MustCompile(`^(.+)@([^(@]+:\d+)(/.*)?$`)

// sanitizeMySQLDSN rewrites the common malformed shapes into
//
//	user:pass@tcp(host:port)/dbname?parseTime=true
//
// When the password contains "@", the driver's ParseDSN splits on the last
// "@" before "/", which only works when "tcp(" is present.
func sanitizeMySQLDSN(dsn string) string {
	candidates := []string{dsn}

	if idx := strings.LastIndex(dsn, "@("); idx >= 0 {
		candidates = append(candidates, dsn[:idx]+"@tcp"+dsn[idx+1:])
	}
	if m := mysqlBareHostPort.FindStringSubmatch(dsn); m != nil {
		candidates = append(candidates, m[1]+"@tcp("+m[2]+")"+m[3])
	}

	for _, c := range candidates {
		cfg, err := mysqldriver.ParseDSN(c)
		if err != nil || (cfg.Net != "tcp" && cfg.Net != "unix") {
			continue
		}
		cfg.ParseTime = true
		return cfg.FormatDSN()
	}

	// Let the connect call produce a clear error.
	return dsn
}

// sanitizeURLDSN re-encodes the password of a scheme-prefixed DSN such as
// postgres://user:p@ss#word@host/db.
func sanitizeURLDSN(dsn string) string {
	schemeEnd := strings.Index(dsn, "://")
	if schemeEnd < 0 {
		return dsn // key=value form
	}

	scheme := dsn[:schemeEnd]
	rest := dsn[schemeEnd+3:]

	query := ""
	if qi := strings.IndexByte(rest, '?'); qi >= 0 {
		query = rest[qi:]
		rest = rest[:qi]
	}

	// Everything before the LAST '@' is userinfo.
	atIdx := strings.LastIndex(rest, "@")
	if atIdx < 0 {
		return dsn
	}

	userinfo := rest[:atIdx]
	hostpath := rest[atIdx+1:]

	user := userinfo
	pass := ""
	if ci := strings.IndexByte(userinfo, ':'); ci >= 0 {
		user = userinfo[:ci]
		pass = userinfo[ci+1:]
	}

	return scheme + "://" + url.UserPassword(user, pass).String() + "@" + hostpath + query
}

// RedactDSN hides the password of a DSN for logging.
func RedactDSN(driver, dsn string) string {
	switch driver {
	case "postgres":
		u, err := url.Parse(dsn)
		if err != nil || u.User == nil {
			return dsn
		}
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
		return u.String()
	case "mysql":
		cfg, err := mysqldriver.ParseDSN(dsn)
		if err != nil {
			return "(unparseable dsn)"
		}
		if cfg.Passwd != "" {
			cfg.Passwd = "xxxxx"
		}
		return cfg.FormatDSN()
	default:
		return dsn
	}
}
