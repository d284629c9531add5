package application

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"fieldlog/internal/audit"
	"fieldlog/internal/observability/metrics"
	"fieldlog/internal/syncer"
)

// NewSyncObserver builds the synchronizer callback that feeds metrics and
// the audit trail. Trail writes use their own short deadline so a slow disk
// never stalls a sync pass.
func NewSyncObserver(trail audit.Trail, logger *log.Logger) syncer.Observer {
	return func(outcome syncer.Outcome) {
		metrics.ObserveSync(string(outcome.Status), outcome.Duration)

		if outcome.Resolution != nil {
			for _, record := range outcome.Resolution.Records {
				metrics.IncConflictResolved(record.WinningSource)
			}
		}

		if trail == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		entry := audit.Entry{
			Actor:    "synchronizer",
			Action:   actionFor(outcome.Status),
			EntryKey: string(outcome.Key),
			Metadata: outcomeMetadata(outcome),
		}
		if err := trail.Log(ctx, entry); err != nil && logger != nil {
			logger.Printf("sync observer: audit log failed for %s: %v", outcome.Key, err)
		}

		if outcome.Resolution != nil && outcome.Resolution.Conflicted {
			for _, record := range outcome.Resolution.Records {
				metadata, _ := json.Marshal(record)
				conflictEntry := audit.Entry{
					Actor:    "synchronizer",
					Action:   audit.ActionConflictResolved,
					EntryKey: string(outcome.Key),
					Metadata: metadata,
				}
				if err := trail.Log(ctx, conflictEntry); err != nil && logger != nil {
					logger.Printf("sync observer: audit log failed for %s: %v", outcome.Key, err)
				}
			}
		}
	}
}

func actionFor(status syncer.Status) string {
	switch status {
	case syncer.StatusConfirmed:
		return audit.ActionSyncConfirmed
	case syncer.StatusMerged:
		return audit.ActionSyncMerged
	default:
		return audit.ActionSyncFailed
	}
}

func outcomeMetadata(outcome syncer.Outcome) json.RawMessage {
	payload := struct {
		Status     string `json:"status"`
		NewVersion int64  `json:"new_version,omitempty"`
		Error      string `json:"error,omitempty"`
	}{Status: string(outcome.Status), NewVersion: outcome.NewVersion}
	if outcome.Err != nil {
		payload.Error = outcome.Err.Error()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
