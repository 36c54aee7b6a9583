// Package store is the daemon-owned SQLite cache of the reconciled
// snapshot. It exists so projections have data to render immediately after
// startup, before the first full fetch lands; the in-memory snapshot stays
// authoritative.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection for cache.db.
type DB struct {
	*sql.DB
}

// Open creates a SQLite connection with WAL mode and busy timeout set.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}
