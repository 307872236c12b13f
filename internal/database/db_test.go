package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	dsn, err := DSN(DriverPostgres, "postgres://u:p@localhost:5432/postqueue?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/postqueue?sslmode=disable", dsn)

	dsn, err = DSN(DriverSQLite, "data/postqueue.db")
	require.NoError(t, err)
	assert.Contains(t, dsn, "data/postqueue.db?")
	assert.Contains(t, dsn, "_time_format=sqlite")

	_, err = DSN(DriverSQLite, " ")
	assert.Error(t, err)

	_, err = DSN("mysql", "x")
	assert.Error(t, err)
}

func TestRunMigrations_SQLiteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "migrate.db")

	require.NoError(t, RunMigrations(DriverSQLite, path))
	require.NoError(t, RunMigrations(DriverSQLite, path))

	db, err := Open(DriverSQLite, path)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"media_items", "posting_queue", "media_locks", "posting_history", "posting_settings", "instagram_accounts", "api_keys"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	require.NoError(t, RollbackMigrations(DriverSQLite, path))
}
