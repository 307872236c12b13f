// Package database opens the pipeline store and applies its migrations.
// Postgres is the primary backend; SQLite serves single-node deployments
// and tests. Both run the same SQL.
package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// sqliteParams keeps timestamps in a lexically ordered text form so that
// comparisons in SQL agree with time ordering.
var sqliteParams = url.Values{
	"_time_format": {"sqlite"},
	"_txlock":      {"immediate"},
	"_pragma":      {"busy_timeout(5000)", "journal_mode(WAL)", "foreign_keys(1)", "synchronous(NORMAL)"},
}

// DSN returns the driver-specific connection string for source.
// For sqlite, source is a file path.
func DSN(driver, source string) (string, error) {
	switch driver {
	case DriverPostgres:
		return source, nil
	case DriverSQLite:
		if strings.TrimSpace(source) == "" {
			return "", fmt.Errorf("sqlite path is required")
		}
		return source + "?" + sqliteParams.Encode(), nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// Open opens a connection pool for driver. sql.Open does not dial, callers
// Ping to check reachability.
func Open(driver, source string) (*sql.DB, error) {
	dsn, err := DSN(driver, source)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		if err := ensureDir(source); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// one writer at a time; claims serialize on the pool
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	return db, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create sqlite directory: %w", err)
	}
	return nil
}
