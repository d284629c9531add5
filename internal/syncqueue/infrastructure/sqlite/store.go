// Package sqlite implements the durable pending queue on a local SQLite
// file so queued readings survive process restarts on the field device.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vmihailenco/msgpack/v5"

	readings "fieldlog/internal/readings/domain"
	"fieldlog/internal/syncqueue"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pending_entries (
	entry_key  TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	date_id    TEXT NOT NULL,
	hour       INTEGER NOT NULL,
	payload    BLOB NOT NULL,
	queued_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_project ON pending_entries(project_id, date_id);
`

// Store is a SQLite-backed durable queue.
type Store struct {
	db *sql.DB
}

// Open creates or opens the queue database at path and applies pragmas and
// schema. Safe to call repeatedly.
//
// The database is configured with WAL mode for concurrent reads, NORMAL
// synchronous mode, and a busy timeout; the connection pool is limited to a
// single connection because SQLite allows one writer at a time.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("syncqueue sqlite: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("syncqueue sqlite: connect: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("syncqueue sqlite: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("syncqueue sqlite: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle so co-located stores (audit trail) can
// share the same database file.
func (s *Store) DB() *sql.DB { return s.db }

// Put inserts or overwrites the pending entry at its key.
func (s *Store) Put(ctx context.Context, entry readings.PendingEntry) error {
	if err := entry.Reading.Validate(); err != nil {
		return err
	}
	payload, err := msgpack.Marshal(entry)
	if err != nil {
		return &syncqueue.StorageError{Op: "encode entry", Err: err}
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO pending_entries (entry_key, project_id, date_id, hour, payload, queued_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(entry_key) DO UPDATE SET
	payload   = excluded.payload,
	queued_at = excluded.queued_at`,
		entry.Key().String(),
		entry.Reading.ProjectID,
		entry.Reading.DateID,
		entry.Reading.Hour,
		payload,
		entry.QueuedAt.UTC(),
	)
	if err != nil {
		return &syncqueue.StorageError{Op: "put entry", Err: err}
	}
	return nil
}

// Get returns the pending entry at key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key readings.EntryKey) (*readings.PendingEntry, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM pending_entries WHERE entry_key = ?`, key.String(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, syncqueue.ErrNotFound
	}
	if err != nil {
		return nil, &syncqueue.StorageError{Op: "get entry", Err: err}
	}
	return decodeEntry(payload)
}

// List returns all pending entries ordered by key for deterministic drains.
func (s *Store) List(ctx context.Context) ([]readings.PendingEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM pending_entries ORDER BY entry_key`)
	if err != nil {
		return nil, &syncqueue.StorageError{Op: "list entries", Err: err}
	}
	defer rows.Close()

	var entries []readings.PendingEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, &syncqueue.StorageError{Op: "scan entry", Err: err}
		}
		entry, err := decodeEntry(payload)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &syncqueue.StorageError{Op: "list entries", Err: err}
	}
	return entries, nil
}

// Delete removes the pending entry at key. Deleting a missing key is a no-op.
func (s *Store) Delete(ctx context.Context, key readings.EntryKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_entries WHERE entry_key = ?`, key.String())
	if err != nil {
		return &syncqueue.StorageError{Op: "delete entry", Err: err}
	}
	return nil
}

// DeleteIfUnchanged removes the pending entry at key only while its
// queued_at still matches queuedAt. A row replaced by a newer Put since the
// entry was read no longer matches and stays queued.
func (s *Store) DeleteIfUnchanged(ctx context.Context, key readings.EntryKey, queuedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_entries WHERE entry_key = ? AND queued_at = ?`,
		key.String(), queuedAt.UTC())
	if err != nil {
		return &syncqueue.StorageError{Op: "delete entry", Err: err}
	}
	return nil
}

// Clear removes every pending entry.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_entries`)
	if err != nil {
		return &syncqueue.StorageError{Op: "clear entries", Err: err}
	}
	return nil
}

// HasPending reports whether any entry is queued.
func (s *Store) HasPending(ctx context.Context) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM pending_entries LIMIT 1`).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &syncqueue.StorageError{Op: "has pending", Err: err}
	}
	return true, nil
}

// Depth returns the number of queued entries, for gauges.
func (s *Store) Depth(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_entries`).Scan(&count)
	if err != nil {
		return 0, &syncqueue.StorageError{Op: "depth", Err: err}
	}
	return count, nil
}

func decodeEntry(payload []byte) (*readings.PendingEntry, error) {
	var entry readings.PendingEntry
	if err := msgpack.Unmarshal(payload, &entry); err != nil {
		return nil, &syncqueue.StorageError{Op: "decode entry", Err: err}
	}
	return &entry, nil
}
