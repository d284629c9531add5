package readings

import (
	"sort"
	"time"
)

// Conflict sources recorded in audit history.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// ConflictRecord retains the losing side of one field-level conflict so a
// merge never silently discards data.
type ConflictRecord struct {
	ID            string     `json:"id" msgpack:"id"`
	Field         string     `json:"field" msgpack:"field"`
	LosingSource  string     `json:"losing_source" msgpack:"losing_source"`
	WinningSource string     `json:"winning_source" msgpack:"winning_source"`
	LosingValue   FieldValue `json:"losing_value" msgpack:"losing_value"`
	ResolvedAt    time.Time  `json:"resolved_at" msgpack:"resolved_at"`
}

// PendingEntry is a locally queued reading awaiting confirmed delivery to
// the remote store. At most one pending entry exists per entry key; a new
// write to the same key overwrites the prior pending value.
type PendingEntry struct {
	Reading Reading `json:"reading" msgpack:"reading"`

	// BaseVersion is the remote version the local edit was based on.
	BaseVersion int64     `json:"base_version" msgpack:"base_version"`
	QueuedAt    time.Time `json:"queued_at" msgpack:"queued_at"`

	// EditedFields names the fields the operator actually touched. Conflict
	// resolution re-applies only these on top of a newer remote record.
	EditedFields []string `json:"edited_fields" msgpack:"edited_fields"`

	// ConflictHistory retains losing values from prior merges for audit.
	ConflictHistory []ConflictRecord `json:"conflict_history,omitempty" msgpack:"conflict_history,omitempty"`
}

// Key returns the canonical entry key of the queued reading.
func (e PendingEntry) Key() EntryKey {
	return e.Reading.Key()
}

// Edited reports whether the named field was touched locally.
func (e PendingEntry) Edited(field string) bool {
	for _, f := range e.EditedFields {
		if f == field {
			return true
		}
	}
	return false
}

// NormalizeEditedFields sorts and deduplicates the edited-field set so merge
// outcomes do not depend on input order.
func (e *PendingEntry) NormalizeEditedFields() {
	if len(e.EditedFields) == 0 {
		return
	}
	sort.Strings(e.EditedFields)
	deduped := e.EditedFields[:0]
	for i, f := range e.EditedFields {
		if i == 0 || f != e.EditedFields[i-1] {
			deduped = append(deduped, f)
		}
	}
	e.EditedFields = deduped
}
