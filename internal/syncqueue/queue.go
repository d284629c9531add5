// Package syncqueue defines the local durable queue of not-yet-confirmed
// readings. The queue is the durability boundary of the core: once Put
// returns, the entry must survive process termination.
package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	readings "fieldlog/internal/readings/domain"
)

// ErrNotFound is returned when no pending entry exists for a key.
var ErrNotFound = errors.New("syncqueue: entry not found")

// StorageError wraps an I/O failure of the underlying store. Callers must
// surface it; the queue never swallows storage failures.
type StorageError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *StorageError) Error() string {
	return fmt.Sprintf("syncqueue: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying failure.
func (e *StorageError) Unwrap() error { return e.Err }

// Store is the narrow durable-queue interface. Put overwrites any existing
// entry at the same key; mutations are atomic per key.
//
// Delete removes unconditionally and is the operator-discard path.
// DeleteIfUnchanged removes the entry only while its QueuedAt still matches
// queuedAt: an entry replaced by a newer write since it was read stays
// queued. Missing keys and mismatches are no-ops for both.
type Store interface {
	Put(ctx context.Context, entry readings.PendingEntry) error
	Get(ctx context.Context, key readings.EntryKey) (*readings.PendingEntry, error)
	List(ctx context.Context) ([]readings.PendingEntry, error)
	Delete(ctx context.Context, key readings.EntryKey) error
	DeleteIfUnchanged(ctx context.Context, key readings.EntryKey, queuedAt time.Time) error
	Clear(ctx context.Context) error
	HasPending(ctx context.Context) (bool, error)
}
