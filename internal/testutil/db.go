package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"inshokuten-api/internal/db"
)

// TestTable is the table name used by tests, matching the production default.
const TestTable = "TestTable"

// NewTestDB creates a fresh in-memory SQLite database with the item table.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	d, err := db.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if err := db.EnsureSchema(context.Background(), d, TestTable); err != nil {
		d.Close()
		t.Fatalf("Failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
	})

	return d
}

// NewPostgresTestDB connects to TEST_DATABASE_URL and recreates the item table.
// Without TEST_DATABASE_URL a throwaway Postgres container is started; the
// test is skipped when Docker is unavailable.
func NewPostgresTestDB(t *testing.T) *db.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = startPostgresContainer(t)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d, err := db.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
	})

	ResetTable(t, d)
	return d
}

func startPostgresContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	var (
		container *postgres.PostgresContainer
		err       error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Skipf("Skipping: could not start postgres container (Docker unavailable?): %v", r)
			}
		}()
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("inshokuten_test"),
			postgres.WithUsername("inshokuten"),
			postgres.WithPassword("inshokuten"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
	}()
	if err != nil {
		t.Skipf("Skipping: could not start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	return dsn
}

// ResetTable drops and recreates the item table.
func ResetTable(t *testing.T, d *db.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := d.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", db.QuoteTable(TestTable))); err != nil {
		t.Fatalf("Failed to drop table: %v", err)
	}
	if err := db.EnsureSchema(ctx, d, TestTable); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
}

// RequireIntegration skips the test unless INTEGRATION=1
func RequireIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION") != "1" {
		t.Skip("Skipping integration test. Set INTEGRATION=1 to run.")
	}
}
