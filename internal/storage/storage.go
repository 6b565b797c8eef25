// Package storage owns the SQLite database file: schema, migrations, and
// the content-addressed caches. Encryption never happens here; callers
// hand in already-sealed blobs.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const (
	// RootGroupID is the always-present root of the group hierarchy.
	RootGroupID = 1

	// Cache freshness windows.
	FaviconTTL     = 14 * 24 * time.Hour
	PwnedPrefixTTL = 30 * 24 * time.Hour
)

var ErrInvalidPath = errors.New("database path is required")

// Store wraps the SQLite handle and its file path.
type Store struct {
	db   *sql.DB
	path string
}

func dsn(path string) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)", path)
}

// Open initializes the database at path, applying the schema and making
// sure the root group exists.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	if err := restrictPermissions(path); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// OpenWorker opens a dedicated handle for a background worker. The schema
// is assumed to exist; foreign keys are enforced on the new connection.
func OpenWorker(path string) (*sql.DB, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open worker connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping worker connection: %w", err)
	}
	return db, nil
}

// DB exposes the underlying handle for the repository layer.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path; workers open their own handles on it.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// restrictPermissions chmods the database to owner-only on Unix systems.
func restrictPermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to restrict database permissions: %w", err)
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS vault_meta (
		id             INTEGER PRIMARY KEY CHECK (id = 1),
		kdf_salt       BLOB    NOT NULL,
		kdf_iterations INTEGER NOT NULL,
		verifier       BLOB    NOT NULL,
		created_at     INTEGER NOT NULL,
		updated_at     INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS groups (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id  INTEGER REFERENCES groups(id),
		name       TEXT    NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS password_entries (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id     INTEGER NOT NULL DEFAULT 1 REFERENCES groups(id),
		entry_type   INTEGER NOT NULL DEFAULT 0,
		title        TEXT    NOT NULL,
		username     TEXT,
		password_enc BLOB    NOT NULL,
		url          TEXT,
		category     TEXT,
		notes_enc    BLOB,
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_password_entries_updated_at
		ON password_entries(updated_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_password_entries_category
		ON password_entries(category)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT    NOT NULL UNIQUE,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entry_tags (
		entry_id   INTEGER NOT NULL REFERENCES password_entries(id) ON DELETE CASCADE,
		tag_id     INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (entry_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS favicon_cache (
		host       TEXT PRIMARY KEY,
		icon       BLOB    NOT NULL,
		fetched_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pwned_prefix_cache (
		prefix     TEXT PRIMARY KEY,
		body       BLOB    NOT NULL,
		fetched_at INTEGER NOT NULL
	)`,
}

// migrate applies the forward-only schema and seeds the root group.
func (s *Store) migrate() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	now := time.Now().Unix()
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO groups(id, parent_id, name, created_at, updated_at) VALUES(?, NULL, ?, ?, ?)`,
		RootGroupID, "Root", now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to seed root group: %w", err)
	}
	return nil
}
