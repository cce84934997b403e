// Package localstore keeps small JSON blobs (saved filters, settings) in a local SQLite file.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	schemaSQL = `CREATE TABLE IF NOT EXISTS kv (
        key        TEXT PRIMARY KEY,
        value      BLOB NOT NULL,
        updated_at INTEGER NOT NULL
    );`

	getSQL    = `SELECT value FROM kv WHERE key = ?;`
	putSQL    = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
    ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`
	deleteSQL = `DELETE FROM kv WHERE key = ?;`
	keysSQL   = `SELECT key FROM kv ORDER BY key;`
)

// Store is a key/value table on top of SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("localstore: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("localstore: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("localstore: open: %w", err)
	}
	// ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("localstore: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the blob stored under key. ok is false when the key is absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, getSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("localstore: get %s: %w", key, err)
	}
	return value, true, nil
}

// Put stores value under key, replacing any previous blob.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, putSQL, key, value, time.Now().UTC().Unix()); err != nil {
		return fmt.Errorf("localstore: put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, deleteSQL, key); err != nil {
		return fmt.Errorf("localstore: delete %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys in lexical order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, keysSQL)
	if err != nil {
		return nil, fmt.Errorf("localstore: list keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
