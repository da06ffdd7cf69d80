package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Database wraps the SQL handle for easier swapping/testing.
type Database struct {
	DB   *sql.DB
	path string
}

// New opens (and creates if needed) the SQLite database at path.
func New(path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers single writer.
	db.SetConnMaxLifetime(time.Hour)

	return &Database{DB: db, path: path}, nil
}

// Reopen closes and re-opens the underlying handle against the same path.
// Used by the persistence keepalive (C8) after a failed SELECT 1: per the
// no-prepared-statements resolution, reconnection only needs a fresh
// *sql.DB, never statement re-preparation.
func (d *Database) Reopen() error {
	if d.DB != nil {
		_ = d.DB.Close()
	}
	db, err := sql.Open("sqlite", d.path)
	if err != nil {
		return fmt.Errorf("reopen sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)
	d.DB = db
	return nil
}

// Close releases the underlying DB handle.
func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
