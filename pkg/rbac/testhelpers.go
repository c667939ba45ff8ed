package rbac

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// SkipIfNoDatabase skips the test if DASHGATE_TEST_POSTGRES is not set.
// This allows tests to run in CI where the database is available, but skip
// locally if not configured.
func SkipIfNoDatabase(t *testing.T) string {
	t.Helper()

	dbURL := os.Getenv("DASHGATE_TEST_POSTGRES")
	if dbURL == "" {
		t.Skip("Skipping test: DASHGATE_TEST_POSTGRES environment variable not set (database not available)")
	}

	return dbURL
}

// RequireDatabase gets the Postgres connection or skips the test if not
// available.
func RequireDatabase(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := SkipIfNoDatabase(t)

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Database not reachable: %v", err)
	}

	return db
}
