package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLite keeps every entry in a single snapshots table. The whole
// read-check-write runs in one transaction so the version check and the
// upsert cannot interleave with another writer.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = "./clinic.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The store is accessed from a single process; one connection keeps
	// modernc's file locking out of the way.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		key TEXT PRIMARY KEY,
		doc BLOB NOT NULL,
		version INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(ctx context.Context, key string) (Entry, error) {
	var doc []byte
	var version uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, version FROM snapshots WHERE key = ?`, key).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("load %s: %w", key, err)
	}
	return Entry{Doc: json.RawMessage(doc), Version: version}, nil
}

func (s *SQLite) Save(ctx context.Context, key string, doc json.RawMessage, expected uint64) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var current uint64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM snapshots WHERE key = ?`, key).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = 0
	case err != nil:
		return 0, fmt.Errorf("read version of %s: %w", key, err)
	}
	if expected != current {
		return 0, ErrConflict
	}

	next := expected + 1
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshots (key, doc, version)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET doc = excluded.doc, version = excluded.version`,
		key, []byte(doc), next); err != nil {
		return 0, fmt.Errorf("save %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s: %w", key, err)
	}
	return next, nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
