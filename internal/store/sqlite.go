// ABOUTME: SQLite medium keeping the JSON document in a single-row table
// ABOUTME: Uses modernc.org/sqlite in WAL mode; each write is one transaction

package store

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

// SQLiteMedium persists the document as a blob in SQLite.
type SQLiteMedium struct {
	db   *sql.DB
	path string
}

// NewSQLiteMedium opens (or creates) the database at path.
// Parent directories are created if needed.
func NewSQLiteMedium(path string) (*SQLiteMedium, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS document (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			payload BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteMedium{
		db:   db,
		path: path,
	}, nil
}

// NewSQLiteStore opens a DocumentStore persisting to the SQLite database at path.
func NewSQLiteStore(path string, opts ...Option) (*DocumentStore, error) {
	m, err := NewSQLiteMedium(path)
	if err != nil {
		return nil, err
	}
	return New(m, opts...), nil
}

// Read implements Medium.
func (s *SQLiteMedium) Read(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM document WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting document: %w", err)
	}
	if payload == nil {
		payload = []byte{}
	}
	return payload, nil
}

// Write implements Medium.
func (s *SQLiteMedium) Write(ctx context.Context, data []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO document (id, payload, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		data, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing document: %w", err)
	}
	return nil
}

// Close implements Medium.
func (s *SQLiteMedium) Close() error {
	return s.db.Close()
}

func (s *SQLiteMedium) String() string {
	return "sqlite:" + s.path
}
