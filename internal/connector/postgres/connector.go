package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/reconnoiter/reconnoiter/internal/connector"
)

// SQLSTATE codes the store reacts to.
const (
	uniqueViolation = "23505"
	duplicateColumn = "42701"
	duplicateObject = "42710"
	duplicateTable  = "42P07"
)

// Dialect implements connector.Dialect for PostgreSQL through the pgx
// database/sql driver.
type Dialect struct{}

// New creates a new PostgreSQL dialect.
func New() connector.Dialect {
	return Dialect{}
}

// Open establishes a connection to PostgreSQL and configures the pool.
func (Dialect) Open(cfg connector.ConnectionConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	connector.ApplyPool(db, cfg)
	return db, nil
}

// Migrations returns the PostgreSQL DDL for the auth tables.
func (Dialect) Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			provider_id BIGINT UNIQUE,
			provider_login TEXT,
			provider_name TEXT,
			provider_avatar_url TEXT,
			provider TEXT,
			uid TEXT,
			admin BOOLEAN NOT NULL DEFAULT FALSE,
			deleted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS service_credentials (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			secret_hash TEXT NOT NULL,
			prefix VARCHAR(8) NOT NULL,
			owner_user_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
			request_count BIGINT NOT NULL DEFAULT 0,
			last_used_at TIMESTAMPTZ,
			revoked_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_service_credentials_prefix ON service_credentials(prefix)`,
		`CREATE INDEX IF NOT EXISTS idx_service_credentials_revoked_at ON service_credentials(revoked_at)`,

		`CREATE TABLE IF NOT EXISTS allow_list (
			id BIGSERIAL PRIMARY KEY,
			provider_id BIGINT UNIQUE NOT NULL,
			provider_login TEXT NOT NULL,
			email TEXT,
			notes TEXT,
			added_by TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
}

// IsUniqueViolation reports whether err carries SQLSTATE 23505.
func (Dialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// IsDuplicateSchemaObject reports whether err means the column, index or
// table already exists.
func (Dialect) IsDuplicateSchemaObject(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case duplicateColumn, duplicateObject, duplicateTable:
		return true
	}
	return false
}

func (Dialect) DriverName() string      { return "postgres" }
func (Dialect) SupportsReturning() bool { return true }
