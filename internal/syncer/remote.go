// Package syncer drains the local durable queue into the shared remote
// store, retrying transient failures and resolving concurrent-write
// conflicts deterministically.
package syncer

import (
	"context"
	"errors"
	"fmt"

	readings "fieldlog/internal/readings/domain"
)

// ErrNotFound is returned when the remote store has no record for a key.
var ErrNotFound = errors.New("syncer: remote record not found")

// ConflictError reports that a remote write was rejected because the target
// record's version is ahead of the version the local write was based on.
// Remote carries the current record when the adapter could fetch it.
type ConflictError struct {
	BaseVersion   int64
	RemoteVersion int64
	Remote        *readings.Reading
}

// Error implements error.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("syncer: version conflict: base %d, remote %d", e.BaseVersion, e.RemoteVersion)
}

// RemoteStore is the write interface of the shared remote store. Put
// performs an optimistic check against baseVersion and returns the newly
// assigned version on success, or a *ConflictError when the record moved.
type RemoteStore interface {
	Fetch(ctx context.Context, id readings.Identity) (*readings.Reading, error)
	Put(ctx context.Context, reading readings.Reading, baseVersion int64) (int64, error)
}
