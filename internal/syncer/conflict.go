package syncer

import (
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	readings "fieldlog/internal/readings/domain"
)

// Resolution is the deterministic outcome of merging a local pending entry
// with a newer remote record.
type Resolution struct {
	// Entry is the merged entry, rebased onto the remote version.
	Entry readings.PendingEntry
	// Conflicted is true when at least one field was edited on both sides
	// and one side's value lost. Callers surface such entries as merged,
	// never as silent overwrites.
	Conflicted bool
	// Records retains every losing value for audit.
	Records []readings.ConflictRecord
}

// Resolver decides the surviving value when a remote write is rejected for
// a concurrent modification. Given the same two inputs the outcome is
// always the same, regardless of field iteration order.
type Resolver struct {
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

// NewResolver constructs a resolver.
func NewResolver(logger *log.Logger) *Resolver {
	return &Resolver{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Resolve merges local on top of remote. The remote record's fields become
// the base and only the fields the local entry actually edited are
// re-applied. A field edited on both sides goes to the most recent per-field
// timestamp; on an exact tie the remote side wins, since its write already
// landed. Losing values are retained in the entry's conflict history.
func (r *Resolver) Resolve(local readings.PendingEntry, remote readings.Reading) Resolution {
	if remote.Version < local.BaseVersion {
		// The store reported a conflict yet its version is behind our base.
		// There is no deterministic merge for that; keep the local entry
		// intact and make the defect visible.
		r.printf("syncer: DEFECT: remote version %d behind local base %d for %s, keeping local entry",
			remote.Version, local.BaseVersion, local.Key())
		return Resolution{Entry: local}
	}

	merged := local
	merged.Reading.Fields = remote.CloneFields()
	merged.BaseVersion = remote.Version
	merged.Reading.Version = remote.Version

	resolvedAt := r.now()
	var records []readings.ConflictRecord
	conflicted := false

	edited := append([]string(nil), local.EditedFields...)
	sort.Strings(edited)

	for _, field := range edited {
		localValue, hasLocal := local.Reading.Fields[field]
		if !hasLocal {
			continue
		}
		remoteValue, hasRemote := remote.Fields[field]
		if !hasRemote || localValue.SameValue(remoteValue) {
			merged.Reading.Fields[field] = localValue
			continue
		}

		// Both sides hold different values for an edited field: the most
		// recent per-field timestamp wins, remote on a tie.
		if localValue.ModifiedAt.After(remoteValue.ModifiedAt) {
			merged.Reading.Fields[field] = localValue
			records = append(records, readings.ConflictRecord{
				ID:            r.newID(),
				Field:         field,
				LosingSource:  readings.SourceRemote,
				WinningSource: readings.SourceLocal,
				LosingValue:   remoteValue,
				ResolvedAt:    resolvedAt,
			})
		} else {
			records = append(records, readings.ConflictRecord{
				ID:            r.newID(),
				Field:         field,
				LosingSource:  readings.SourceLocal,
				WinningSource: readings.SourceRemote,
				LosingValue:   localValue,
				ResolvedAt:    resolvedAt,
			})
		}
		conflicted = true
	}

	merged.ConflictHistory = append(merged.ConflictHistory, records...)
	if remote.LastModifiedAt.After(merged.Reading.LastModifiedAt) {
		merged.Reading.LastModifiedAt = remote.LastModifiedAt
		merged.Reading.LastModifiedBy = remote.LastModifiedBy
	}

	return Resolution{Entry: merged, Conflicted: conflicted, Records: records}
}

func (r *Resolver) printf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
