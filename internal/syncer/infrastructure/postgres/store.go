// Package postgres is the remote-store adapter for deployments that share a
// Postgres database between field stations instead of the HTTP backend.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	readings "fieldlog/internal/readings/domain"
	"fieldlog/internal/syncer"
)

const defaultReadingsTable = "hourly_readings"

// Store persists hourly readings with an optimistic version check.
type Store struct {
	db    *sql.DB
	table string
}

// StoreOption configures the store.
type StoreOption func(*Store)

// WithTable overrides the default table.
func WithTable(table string) StoreOption {
	return func(s *Store) {
		if table != "" {
			s.table = table
		}
	}
}

// NewStore constructs a store over an open database handle.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects with the pgx stdlib driver and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the readings table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	project_id       TEXT        NOT NULL,
	date_id          TEXT        NOT NULL,
	hour             SMALLINT    NOT NULL,
	fields           JSONB       NOT NULL,
	version          BIGINT      NOT NULL,
	last_modified_by TEXT        NOT NULL DEFAULT '',
	last_modified_at TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (project_id, date_id, hour)
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// Fetch loads the current record for id.
func (s *Store) Fetch(ctx context.Context, id readings.Identity) (*readings.Reading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("postgres: nil db")
	}

	query := fmt.Sprintf(`
SELECT fields, version, last_modified_by, last_modified_at
FROM %s
WHERE project_id = $1 AND date_id = $2 AND hour = $3`, s.table)

	record := readings.Reading{ProjectID: id.ProjectID, DateID: id.DateID, Hour: id.Hour}
	var fieldsJSON []byte
	row := s.db.QueryRowContext(ctx, query, id.ProjectID, id.DateID, id.Hour)
	if err := row.Scan(&fieldsJSON, &record.Version, &record.LastModifiedBy, &record.LastModifiedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, syncer.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: fetch %s: %w", id.Key(), err)
	}
	if err := json.Unmarshal(fieldsJSON, &record.Fields); err != nil {
		return nil, fmt.Errorf("postgres: decode fields for %s: %w", id.Key(), err)
	}
	return &record, nil
}

// Put writes the reading if the stored version still equals baseVersion,
// assigning baseVersion+1. A concurrent write surfaces as a *ConflictError
// carrying the current record. The check and the write run in one
// transaction so two stations can never both win the same version.
func (s *Store) Put(ctx context.Context, reading readings.Reading, baseVersion int64) (newVersion int64, err error) {
	if s == nil || s.db == nil {
		return 0, errors.New("postgres: nil db")
	}
	id := reading.Identity()

	fieldsJSON, err := json.Marshal(reading.Fields)
	if err != nil {
		return 0, fmt.Errorf("postgres: encode fields for %s: %w", id.Key(), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	lockQuery := fmt.Sprintf(`
SELECT fields, version, last_modified_by, last_modified_at
FROM %s
WHERE project_id = $1 AND date_id = $2 AND hour = $3
FOR UPDATE`, s.table)

	current := readings.Reading{ProjectID: id.ProjectID, DateID: id.DateID, Hour: id.Hour}
	var currentFields []byte
	exists := true
	row := tx.QueryRowContext(ctx, lockQuery, id.ProjectID, id.DateID, id.Hour)
	if scanErr := row.Scan(&currentFields, &current.Version, &current.LastModifiedBy, &current.LastModifiedAt); scanErr != nil {
		if !errors.Is(scanErr, sql.ErrNoRows) {
			err = fmt.Errorf("postgres: lock %s: %w", id.Key(), scanErr)
			return 0, err
		}
		exists = false
	}

	currentVersion := int64(0)
	if exists {
		currentVersion = current.Version
	}
	if currentVersion != baseVersion {
		if exists {
			if decodeErr := json.Unmarshal(currentFields, &current.Fields); decodeErr != nil {
				err = fmt.Errorf("postgres: decode fields for %s: %w", id.Key(), decodeErr)
				return 0, err
			}
		}
		conflict := &syncer.ConflictError{BaseVersion: baseVersion, RemoteVersion: currentVersion}
		if exists {
			conflict.Remote = &current
		}
		err = conflict
		return 0, err
	}

	newVersion = baseVersion + 1
	upsert := fmt.Sprintf(`
INSERT INTO %s (project_id, date_id, hour, fields, version, last_modified_by, last_modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (project_id, date_id, hour)
DO UPDATE SET
	fields = EXCLUDED.fields,
	version = EXCLUDED.version,
	last_modified_by = EXCLUDED.last_modified_by,
	last_modified_at = EXCLUDED.last_modified_at,
	updated_at = NOW()`, s.table)

	if _, err = tx.ExecContext(ctx, upsert,
		id.ProjectID, id.DateID, id.Hour,
		fieldsJSON, newVersion, reading.LastModifiedBy, reading.LastModifiedAt.UTC(),
	); err != nil {
		err = fmt.Errorf("postgres: put %s: %w", id.Key(), err)
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("postgres: commit %s: %w", id.Key(), err)
		return 0, err
	}
	return newVersion, nil
}
