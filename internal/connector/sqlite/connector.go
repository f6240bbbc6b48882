package sqlite

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/reconnoiter/reconnoiter/internal/connector"
)

// Dialect implements connector.Dialect for SQLite via the pure-Go
// modernc.org/sqlite driver.
type Dialect struct{}

// New creates a new SQLite dialect.
func New() connector.Dialect {
	return Dialect{}
}

// Open opens the SQLite database named by the DSN. The DSN is a file path
// (e.g. "/var/lib/reconnoiter/reconnoiter.db") or ":memory:".
func (Dialect) Open(cfg connector.ConnectionConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite connect: %w", err)
	}

	connector.ApplyPool(db, cfg)
	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrations returns the SQLite DDL for the auth tables.
func (Dialect) Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT UNIQUE NOT NULL,
			provider_id INTEGER UNIQUE,
			provider_login TEXT,
			provider_name TEXT,
			provider_avatar_url TEXT,
			provider TEXT,
			uid TEXT,
			admin INTEGER NOT NULL DEFAULT 0,
			deleted_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS service_credentials (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			secret_hash TEXT NOT NULL,
			prefix TEXT NOT NULL,
			owner_user_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
			request_count INTEGER NOT NULL DEFAULT 0,
			last_used_at DATETIME,
			revoked_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_service_credentials_prefix ON service_credentials(prefix)`,
		`CREATE INDEX IF NOT EXISTS idx_service_credentials_revoked_at ON service_credentials(revoked_at)`,

		`CREATE TABLE IF NOT EXISTS allow_list (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id INTEGER UNIQUE NOT NULL,
			provider_login TEXT NOT NULL,
			email TEXT,
			notes TEXT,
			added_by TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func (Dialect) IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsDuplicateSchemaObject reports whether an ALTER TABLE ADD COLUMN hit an
// existing column.
func (Dialect) IsDuplicateSchemaObject(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column")
}

func (Dialect) DriverName() string      { return "sqlite" }
func (Dialect) SupportsReturning() bool { return false }
