// Package dbtest provides a migrated SQLite database for tests.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/maheshrc27/postqueue/internal/database"
)

// New returns a fresh database in t's temp dir with all migrations applied.
// It is closed when the test ends.
func New(t testing.TB) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "postqueue_test.db")
	if err := database.RunMigrations(database.DriverSQLite, path); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	db, err := database.Open(database.DriverSQLite, path)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Ping(); err != nil {
		t.Fatalf("ping test database: %v", err)
	}
	return db
}
