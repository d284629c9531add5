package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository persists the audit trail. It shares the station's local
// database with the pending queue so the trail survives restarts and
// travels with the queue file.
type Repository struct {
	db *sql.DB
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS audit_trail (
	id             TEXT PRIMARY KEY,
	actor          TEXT NOT NULL,
	action         TEXT NOT NULL,
	entry_key      TEXT NOT NULL,
	project_id     TEXT NOT NULL,
	metadata       TEXT,
	payload_digest TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_trail_entry_key ON audit_trail (entry_key);
CREATE INDEX IF NOT EXISTS idx_audit_trail_created_at ON audit_trail (created_at);
`

// NewRepository constructs an audit repository over an open database.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// EnsureSchema creates the trail table when it does not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("audit repo: ensure schema: %w", err)
	}
	return nil
}

// Log writes an audit entry. Missing id, digest, and timestamp are filled
// in so callers only provide what they know.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_trail (
	id, actor, action, entry_key, project_id, metadata, payload_digest, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Actor, entry.Action, entry.EntryKey, entry.ProjectID,
		string(entry.Metadata), entry.PayloadDigest, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit repo: log %s: %w", entry.Action, err)
	}
	return nil
}

// ListByEntry returns the trail of one entry key, oldest first.
func (r *Repository) ListByEntry(ctx context.Context, entryKey string) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, actor, action, entry_key, project_id, metadata, payload_digest, created_at
FROM audit_trail
WHERE entry_key = ?
ORDER BY created_at, id`, entryKey)
	if err != nil {
		return nil, fmt.Errorf("audit repo: list %s: %w", entryKey, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListSince returns every entry recorded at or after the given time,
// oldest first.
func (r *Repository) ListSince(ctx context.Context, since time.Time) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, actor, action, entry_key, project_id, metadata, payload_digest, created_at
FROM audit_trail
WHERE created_at >= ?
ORDER BY created_at, id`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("audit repo: list since %s: %w", since.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var entry Entry
		var metadata string
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Action, &entry.EntryKey,
			&entry.ProjectID, &metadata, &entry.PayloadDigest, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit repo: scan: %w", err)
		}
		if metadata != "" {
			entry.Metadata = []byte(metadata)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
