package connector_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/reconnoiter/reconnoiter/internal/connector"
	"github.com/reconnoiter/reconnoiter/internal/connector/mysql"
	"github.com/reconnoiter/reconnoiter/internal/connector/postgres"
)

func TestMain(m *testing.M) {
	if os.Getenv("RECONNOITER_INTEGRATION") == "" {
		fmt.Println("skipping integration tests: set RECONNOITER_INTEGRATION=1 to run")
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// ---------------------------------------------------------------------------
// Helper: run a common suite of sub-tests against any dialect
// ---------------------------------------------------------------------------

func runDialectSuite(t *testing.T, d connector.Dialect, dsnEnv string) {
	t.Helper()

	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := connector.ConnectionConfig{
		Driver: d.DriverName(),
		DSN:    connector.SanitizeDSN(d.DriverName(), dsn),
	}
	db, err := d.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	t.Run("Ping", func(t *testing.T) {
		if err := db.PingContext(ctx); err != nil {
			t.Fatalf("Ping failed: %v", err)
		}
	})

	// Running the migrations twice must be a no-op the second time.
	t.Run("MigrationsIdempotent", func(t *testing.T) {
		for pass := 0; pass < 2; pass++ {
			for _, m := range d.Migrations() {
				if _, err := db.ExecContext(ctx, m); err != nil && !d.IsDuplicateSchemaObject(err) {
					t.Fatalf("pass %d: migration failed: %v\nSQL: %s", pass, err, m)
				}
			}
		}
	})

	t.Run("UniqueViolation", func(t *testing.T) {
		providerID := time.Now().UnixNano()
		q := db.Rebind("INSERT INTO allow_list (provider_id, provider_login, created_at) VALUES (?, ?, ?)")
		defer db.ExecContext(ctx, db.Rebind("DELETE FROM allow_list WHERE provider_id = ?"), providerID)

		if _, err := db.ExecContext(ctx, q, providerID, "first", time.Now().UTC()); err != nil {
			t.Fatalf("first insert: %v", err)
		}
		_, err := db.ExecContext(ctx, q, providerID, "second", time.Now().UTC())
		if err == nil {
			t.Fatal("expected duplicate insert to fail")
		}
		if !d.IsUniqueViolation(err) {
			t.Errorf("IsUniqueViolation(%v) = false, want true", err)
		}
	})
}

// ---------------------------------------------------------------------------
// Per-database integration tests
// ---------------------------------------------------------------------------

func TestPostgresIntegration(t *testing.T) {
	runDialectSuite(t, postgres.New(), "RECONNOITER_TEST_POSTGRES_DSN")
}

func TestMySQLIntegration(t *testing.T) {
	runDialectSuite(t, mysql.New(), "RECONNOITER_TEST_MYSQL_DSN")
}
