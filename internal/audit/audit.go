// Package audit keeps a tamper-evident trail of everything that happens to
// a reading between capture and confirmed upload.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Actions recorded on the trail.
const (
	ActionReadingQueued    = "reading.queued"
	ActionReadingDiscarded = "reading.discarded"
	ActionSyncConfirmed    = "sync.confirmed"
	ActionSyncMerged       = "sync.merged"
	ActionSyncFailed       = "sync.failed"
	ActionConflictResolved = "conflict.resolved"
)

// Entry is one audit trail record.
type Entry struct {
	ID            string
	Actor         string
	Action        string
	EntryKey      string
	ProjectID     string
	Metadata      json.RawMessage
	PayloadDigest string
	CreatedAt     time.Time
}

// Trail writes audit entries.
type Trail interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads, so a
// tampered row is detectable against the stored digest.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
