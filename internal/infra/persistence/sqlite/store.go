// Package sqlite persists the record store to a single SQLite table, one
// JSON array per record table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"qitp/internal/infra/persistence/memory"
	"qitp/internal/infra/persistence/snapshot"
)

const defaultPath = "qitp.db"

// Store is a snapshot store backed by SQLite.
type Store struct {
	*snapshot.Store
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path and hydrates the
// in-memory state from it.
func NewStore(ctx context.Context, path string, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY between pool members.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	snap, err := snapshot.Open(ctx, stateTable{db: db}, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: snap, db: db, path: path}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

type stateTable struct {
	db *sql.DB
}

func (t stateTable) Load(ctx context.Context) (map[string][]byte, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := map[string][]byte{}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state: %w", err)
	}
	return out, nil
}

func (t stateTable) Save(ctx context.Context, bucket string, payload []byte) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`,
		bucket, payload)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", bucket, err)
	}
	return nil
}

func (t stateTable) Close() error { return t.db.Close() }
