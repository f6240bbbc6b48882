package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"

	"github.com/reconnoiter/reconnoiter/internal/connector"
	"github.com/reconnoiter/reconnoiter/internal/connector/sqlite"
)

// Store persists users, service credentials and the allow-list. It speaks
// to SQLite, PostgreSQL or MySQL through a connector.Dialect; all queries
// are written with ? placeholders and rebound for the active driver.
type Store struct {
	db      *sqlx.DB
	dialect connector.Dialect
}

// NewStore opens the default SQLite store under dataDir. Pass empty string
// for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "reconnoiter.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	d := sqlite.New()
	db, err := d.Open(connector.ConnectionConfig{Driver: "sqlite", DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("open auth database: %w", err)
	}
	return newStore(db, d)
}

// Open opens the store for any registered driver.
func Open(cfg connector.ConnectionConfig) (*Store, error) {
	d, db, err := DefaultRegistry().Open(cfg)
	if err != nil {
		return nil, err
	}
	return newStore(db, d)
}

func newStore(db *sqlx.DB, d connector.Dialect) (*Store, error) {
	s := &Store{db: db, dialect: d}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate auth database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	for _, m := range s.dialect.Migrations() {
		if _, err := s.db.Exec(m); err != nil {
			if s.dialect.IsDuplicateSchemaObject(err) {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the name of the active SQL driver.
func (s *Store) Driver() string {
	return s.dialect.DriverName()
}

// insert runs a named INSERT and returns the generated id, using RETURNING
// where the dialect supports it and LastInsertId otherwise.
func (s *Store) insert(ctx context.Context, q string, arg interface{}) (int64, error) {
	query, args, err := s.db.BindNamed(q, arg)
	if err != nil {
		return 0, err
	}

	if s.dialect.SupportsReturning() {
		var id int64
		if err := s.db.QueryRowxContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, s.classify(err)
		}
		return id, nil
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, s.classify(err)
	}
	return result.LastInsertId()
}

// classify maps driver-specific constraint errors onto ErrConflict.
func (s *Store) classify(err error) error {
	if s.dialect.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (s *Store) rebind(q string) string {
	return s.db.Rebind(q)
}
