// Package prefs persists per-user settings in SQLite.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Keys under which settings are stored.
const (
	KeyUserAPIKey    = "puffnotes_groqUserApiKey_v1"
	KeyTheme         = "puffnotes_theme_v1"
	KeyLastDirectory = "puffnotes_lastDirectory_v1"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Settings is the subset of DB used by the editor and the rewrite workflow.
type Settings interface {
	UserKey(ctx context.Context) (string, error)
	SetUserKey(ctx context.Context, key string) error
	Theme(ctx context.Context) (string, error)
	SetTheme(ctx context.Context, name string) error
	LastDirectory(ctx context.Context) (string, error)
	SetLastDirectory(ctx context.Context, dir string) error
	Close() error
}

var _ Settings = (*DB)(nil)

// DB wraps a sql.DB holding the settings table.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("prefs: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("prefs: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("prefs: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Get returns the value stored under key, or "" when absent.
func (db *DB) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("prefs: get %s: %w", key, err)
	}
	return v, nil
}

// Set stores value under key. An empty value deletes the key.
func (db *DB) Set(ctx context.Context, key, value string) error {
	if value == "" {
		return db.Delete(ctx, key)
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("prefs: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (db *DB) Delete(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("prefs: delete %s: %w", key, err)
	}
	return nil
}

// UserKey returns the user's own rewrite API key.
func (db *DB) UserKey(ctx context.Context) (string, error) {
	return db.Get(ctx, KeyUserAPIKey)
}

// SetUserKey trims and stores key. A blank key clears it.
func (db *DB) SetUserKey(ctx context.Context, key string) error {
	return db.Set(ctx, KeyUserAPIKey, strings.TrimSpace(key))
}

func (db *DB) Theme(ctx context.Context) (string, error) {
	return db.Get(ctx, KeyTheme)
}

func (db *DB) SetTheme(ctx context.Context, name string) error {
	return db.Set(ctx, KeyTheme, strings.TrimSpace(name))
}

// LastDirectory returns the folder granted in the previous run.
func (db *DB) LastDirectory(ctx context.Context) (string, error) {
	return db.Get(ctx, KeyLastDirectory)
}

func (db *DB) SetLastDirectory(ctx context.Context, dir string) error {
	return db.Set(ctx, KeyLastDirectory, dir)
}
