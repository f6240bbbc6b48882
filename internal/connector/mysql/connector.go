package mysql

import (
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/reconnoiter/reconnoiter/internal/connector"
)

// Server error numbers the store reacts to.
const (
	errDupEntry     = 1062
	errDupFieldName = 1060
	errDupKeyName   = 1061
)

// Dialect implements connector.Dialect for MySQL 8+.
type Dialect struct{}

// New creates a new MySQL dialect.
func New() connector.Dialect {
	return Dialect{}
}

// Open establishes a connection to MySQL. The DSN must request parseTime;
// connector.SanitizeDSN adds it.
func (Dialect) Open(cfg connector.ConnectionConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql connect: %w", err)
	}
	connector.ApplyPool(db, cfg)
	return db, nil
}

// Migrations returns the MySQL DDL for the auth tables. Indexes are declared
// inline because MySQL has no CREATE INDEX IF NOT EXISTS.
func (Dialect) Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			email VARCHAR(320) NOT NULL,
			provider_id BIGINT NULL,
			provider_login VARCHAR(255) NULL,
			provider_name VARCHAR(255) NULL,
			provider_avatar_url VARCHAR(1024) NULL,
			provider VARCHAR(32) NULL,
			uid VARCHAR(64) NULL,
			admin BOOLEAN NOT NULL DEFAULT FALSE,
			deleted_at DATETIME(6) NULL,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			UNIQUE KEY uq_users_email (email),
			UNIQUE KEY uq_users_provider_id (provider_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS service_credentials (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			secret_hash VARCHAR(255) NOT NULL,
			prefix CHAR(8) NOT NULL,
			owner_user_id BIGINT NULL,
			request_count BIGINT NOT NULL DEFAULT 0,
			last_used_at DATETIME(6) NULL,
			revoked_at DATETIME(6) NULL,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			KEY idx_service_credentials_prefix (prefix),
			KEY idx_service_credentials_revoked_at (revoked_at),
			CONSTRAINT fk_service_credentials_owner FOREIGN KEY (owner_user_id)
				REFERENCES users(id) ON DELETE SET NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS allow_list (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			provider_id BIGINT NOT NULL,
			provider_login VARCHAR(255) NOT NULL,
			email VARCHAR(320) NULL,
			notes TEXT NULL,
			added_by VARCHAR(255) NULL,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			UNIQUE KEY uq_allow_list_provider_id (provider_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}
}

// IsUniqueViolation reports whether err is ER_DUP_ENTRY.
func (Dialect) IsUniqueViolation(err error) bool {
	var myErr *mysqldriver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errDupEntry
}

// IsDuplicateSchemaObject reports whether err is a duplicate column or key
// name from an ALTER TABLE.
func (Dialect) IsDuplicateSchemaObject(err error) bool {
	var myErr *mysqldriver.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	return myErr.Number == errDupFieldName || myErr.Number == errDupKeyName
}

func (Dialect) DriverName() string      { return "mysql" }
func (Dialect) SupportsReturning() bool { return false }
