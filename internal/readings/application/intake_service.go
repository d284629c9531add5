// Package application coordinates the intake workflow: validate a reading
// against the project's rule set, stamp the acting operator, and queue it
// for upload.
package application

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"fieldlog/internal/audit"
	"fieldlog/internal/auth"
	equipment "fieldlog/internal/equipment/domain"
	"fieldlog/internal/observability/metrics"
	readings "fieldlog/internal/readings/domain"
	"fieldlog/internal/syncer"
	"fieldlog/internal/syncqueue"
	validation "fieldlog/internal/validation/domain"
)

// ErrValidationFailed is returned when a reading has blocking errors and was
// therefore not queued. The Result on the outcome carries the details.
var ErrValidationFailed = errors.New("intake: validation failed")

// ErrNoDrainer is returned by Flush when no synchronizer is attached.
var ErrNoDrainer = errors.New("intake: no synchronizer attached")

// Drainer pushes pending entries to the remote store.
type Drainer interface {
	SyncAll(ctx context.Context) ([]syncer.Outcome, error)
}

// IntakeService accepts operator readings into the pending queue.
type IntakeService struct {
	queue     syncqueue.Store
	engine    *validation.Engine
	fields    []validation.FieldSpec
	equipment equipment.Provider
	trail     audit.Trail
	drainer   Drainer
	logger    *log.Logger
	now       func() time.Time
}

// NewIntakeService constructs the service. The audit trail is optional;
// everything else is required.
func NewIntakeService(queue syncqueue.Store, engine *validation.Engine, fields []validation.FieldSpec, provider equipment.Provider, trail audit.Trail, logger *log.Logger) (*IntakeService, error) {
	if queue == nil {
		return nil, errors.New("intake: nil queue")
	}
	if engine == nil {
		return nil, errors.New("intake: nil engine")
	}
	if provider == nil {
		return nil, errors.New("intake: nil equipment provider")
	}
	return &IntakeService{
		queue:     queue,
		engine:    engine,
		fields:    fields,
		equipment: provider,
		trail:     trail,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// RecordInput is one operator submission for an hourly entry.
type RecordInput struct {
	ProjectID    string
	DateID       string
	Hour         int
	BaseVersion  int64
	Fields       map[string]readings.FieldValue
	EditedFields []string
}

// RecordOutcome reports what happened to a submission.
type RecordOutcome struct {
	Result validation.Result
	Entry  *readings.PendingEntry
	Queued bool
}

// Record validates the submission and, when it has no blocking errors,
// queues it for upload. Warnings never block. A resubmission for an hour
// that is already pending is merged into the existing entry so one hour
// occupies one queue slot.
func (s *IntakeService) Record(ctx context.Context, input RecordInput) (RecordOutcome, error) {
	identity, err := readings.NewIdentity(input.ProjectID, input.DateID, input.Hour)
	if err != nil {
		return RecordOutcome{}, err
	}

	equip, err := s.equipment.EquipmentContext(input.ProjectID)
	if err != nil {
		return RecordOutcome{}, err
	}

	result := s.engine.ValidateForm(s.fields, input.Fields, equip)
	if !result.Valid() {
		metrics.IncValidation(metrics.ResultError)
		return RecordOutcome{Result: result}, ErrValidationFailed
	}
	metrics.IncValidation(metrics.ResultSuccess)

	now := s.now()
	actor := s.actorFrom(ctx)

	entry := readings.PendingEntry{
		Reading: readings.Reading{
			ProjectID:      identity.ProjectID,
			DateID:         identity.DateID,
			Hour:           identity.Hour,
			Fields:         stampFields(input.Fields, actor, now),
			Version:        input.BaseVersion,
			LastModifiedBy: actor,
			LastModifiedAt: now,
		},
		BaseVersion:  input.BaseVersion,
		QueuedAt:     now,
		EditedFields: append([]string(nil), input.EditedFields...),
	}

	if existing, getErr := s.queue.Get(ctx, identity.Key()); getErr == nil {
		entry = mergePending(*existing, entry)
	} else if !errors.Is(getErr, syncqueue.ErrNotFound) {
		return RecordOutcome{Result: result}, getErr
	}
	entry.NormalizeEditedFields()

	if err := s.queue.Put(ctx, entry); err != nil {
		return RecordOutcome{Result: result}, err
	}
	metrics.IncQueued()
	s.record(ctx, audit.Entry{
		Actor:     actor,
		Action:    audit.ActionReadingQueued,
		EntryKey:  string(identity.Key()),
		ProjectID: identity.ProjectID,
		Metadata:  recordMetadata(entry),
	})

	return RecordOutcome{Result: result, Entry: &entry, Queued: true}, nil
}

// AttachDrainer wires the synchronizer used by Flush. Set once during
// startup; the service and synchronizer reference each other so neither
// constructor can take the other.
func (s *IntakeService) AttachDrainer(drainer Drainer) {
	s.drainer = drainer
}

// Flush pushes everything pending to the remote store now, for the
// connectivity-restored and manual-retry paths.
func (s *IntakeService) Flush(ctx context.Context) ([]syncer.Outcome, error) {
	if s.drainer == nil {
		return nil, ErrNoDrainer
	}
	return s.drainer.SyncAll(ctx)
}

// Pending lists everything awaiting upload, ordered by key.
func (s *IntakeService) Pending(ctx context.Context) ([]readings.PendingEntry, error) {
	return s.queue.List(ctx)
}

// Discard drops a pending entry that should not be uploaded.
func (s *IntakeService) Discard(ctx context.Context, key readings.EntryKey) error {
	entry, err := s.queue.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := s.queue.Delete(ctx, key); err != nil {
		return err
	}
	metrics.IncDiscarded()
	s.record(ctx, audit.Entry{
		Actor:     s.actorFrom(ctx),
		Action:    audit.ActionReadingDiscarded,
		EntryKey:  string(key),
		ProjectID: entry.Reading.ProjectID,
	})
	return nil
}

// mergePending folds a resubmission into the entry already queued for the
// same hour. The older base version is kept so the remote conflict check
// still sees the original starting point.
func mergePending(existing, update readings.PendingEntry) readings.PendingEntry {
	merged := existing
	if merged.Reading.Fields == nil {
		merged.Reading.Fields = make(map[string]readings.FieldValue)
	}
	for key, value := range update.Reading.Fields {
		merged.Reading.Fields[key] = value
	}
	merged.EditedFields = append(merged.EditedFields, update.EditedFields...)
	merged.Reading.LastModifiedBy = update.Reading.LastModifiedBy
	merged.Reading.LastModifiedAt = update.Reading.LastModifiedAt
	merged.QueuedAt = update.QueuedAt
	return merged
}

// stampFields fills in per-field modification metadata the client left
// blank. Client-supplied timestamps are kept; they are what conflict
// resolution compares.
func stampFields(fields map[string]readings.FieldValue, actor string, now time.Time) map[string]readings.FieldValue {
	stamped := make(map[string]readings.FieldValue, len(fields))
	for key, value := range fields {
		if value.ModifiedBy == "" {
			value.ModifiedBy = actor
		}
		if value.ModifiedAt.IsZero() {
			value.ModifiedAt = now
		}
		stamped[key] = value
	}
	return stamped
}

func (s *IntakeService) actorFrom(ctx context.Context) string {
	if claims, ok := auth.OperatorFrom(ctx); ok {
		return claims.OperatorID
	}
	return "unknown"
}

func (s *IntakeService) record(ctx context.Context, entry audit.Entry) {
	if s.trail == nil {
		return
	}
	if err := s.trail.Log(ctx, entry); err != nil {
		s.printf("intake: audit log failed for %s: %v", entry.EntryKey, err)
	}
}

func (s *IntakeService) printf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func recordMetadata(entry readings.PendingEntry) json.RawMessage {
	payload, err := json.Marshal(struct {
		BaseVersion  int64    `json:"base_version"`
		EditedFields []string `json:"edited_fields"`
	}{entry.BaseVersion, entry.EditedFields})
	if err != nil {
		return nil
	}
	return payload
}
