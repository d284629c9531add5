package syncer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	readings "fieldlog/internal/readings/domain"
	"fieldlog/internal/retry"
	"fieldlog/internal/syncqueue"
)

// Status of one sync attempt.
type Status string

// Sync outcomes.
const (
	// StatusConfirmed means the remote store accepted the write and the
	// local pending entry was deleted.
	StatusConfirmed Status = "confirmed"
	// StatusMerged means a conflict was resolved and the merged record was
	// accepted. The entry is flagged so the operator sees the merge.
	StatusMerged Status = "merged"
	// StatusFailed means retries were exhausted or the error was permanent.
	// The pending entry stays queued for the next pass or manual action.
	StatusFailed Status = "failed"
)

const defaultMaxParallel = 4

// Outcome is the per-entry result of a sync attempt.
type Outcome struct {
	Key        readings.EntryKey
	Status     Status
	NewVersion int64
	Resolution *Resolution
	Duration   time.Duration
	Err        error
}

// Observer is notified of every outcome, for metrics and audit.
type Observer func(Outcome)

// Synchronizer drains pending entries into the remote store.
type Synchronizer struct {
	queue    syncqueue.Store
	remote   RemoteStore
	exec     *retry.Executor
	resolver *Resolver
	logger   *log.Logger
	observer Observer

	maxParallel int

	// drainMu serializes queue-drain passes: at most one SyncAll runs at a
	// time per process.
	drainMu sync.Mutex

	// keyMu guards keyLocks; writes to the same key are serialized so the
	// conflict resolver never races itself.
	keyMu    sync.Mutex
	keyLocks map[readings.EntryKey]*sync.Mutex
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer)

// WithMaxParallel bounds concurrent deliveries of distinct keys.
func WithMaxParallel(n int) SyncOption {
	return func(s *Synchronizer) {
		if n > 0 {
			s.maxParallel = n
		}
	}
}

// WithObserver registers an outcome callback.
func WithObserver(observer Observer) SyncOption {
	return func(s *Synchronizer) { s.observer = observer }
}

// NewSynchronizer constructs a synchronizer. The executor's classification
// is extended so version conflicts are never retried blindly; they go to
// the resolver instead.
func NewSynchronizer(queue syncqueue.Store, remote RemoteStore, exec *retry.Executor, resolver *Resolver, logger *log.Logger, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		queue:       queue,
		remote:      remote,
		exec:        exec,
		resolver:    resolver,
		logger:      logger,
		maxParallel: defaultMaxParallel,
		keyLocks:    make(map[readings.EntryKey]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncOne delivers a single pending entry. Three outcomes: confirmed (entry
// deleted from the queue), merged (conflict resolved, merged record
// delivered, entry deleted), failed (entry left queued).
func (s *Synchronizer) SyncOne(ctx context.Context, entry readings.PendingEntry) Outcome {
	lock := s.lockFor(entry.Key())
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	outcome := s.syncLocked(ctx, entry)
	outcome.Duration = time.Since(start)
	if s.observer != nil {
		s.observer(outcome)
	}
	return outcome
}

func (s *Synchronizer) syncLocked(ctx context.Context, entry readings.PendingEntry) Outcome {
	key := entry.Key()

	version, err := s.putWithRetry(ctx, entry)
	if err == nil {
		return s.confirm(ctx, entry, version, nil)
	}

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		s.printf("syncer: delivery failed for %s: %v", key, err)
		return Outcome{Key: key, Status: StatusFailed, Err: err}
	}

	remote := conflict.Remote
	if remote == nil {
		fetched, fetchErr := s.remote.Fetch(ctx, entry.Reading.Identity())
		if fetchErr != nil {
			s.printf("syncer: conflict fetch failed for %s: %v", key, fetchErr)
			return Outcome{Key: key, Status: StatusFailed, Err: fetchErr}
		}
		remote = fetched
	}

	resolution := s.resolver.Resolve(entry, *remote)
	merged := resolution.Entry

	version, err = s.putWithRetry(ctx, merged)
	if err != nil {
		// A second conflict inside one pass means the record is hot;
		// persist the merged entry (history included) and leave it for the
		// next pass.
		if putErr := s.queue.Put(ctx, merged); putErr != nil {
			s.printf("syncer: persisting merged entry for %s failed: %v", key, putErr)
		}
		s.printf("syncer: resubmit after merge failed for %s: %v", key, err)
		return Outcome{Key: key, Status: StatusFailed, Resolution: &resolution, Err: err}
	}

	return s.confirm(ctx, entry, version, &resolution)
}

// confirm dequeues the entry after a confirmed remote write. The delete is
// conditional on the entry's QueuedAt: a reading queued for the same key
// while the write was in flight has a newer QueuedAt, does not match, and
// stays queued for the next pass. A delete failure is logged loudly but
// does not undo the confirmation: the entry will simply be re-delivered on
// a later pass (at-least-once per key).
func (s *Synchronizer) confirm(ctx context.Context, entry readings.PendingEntry, version int64, resolution *Resolution) Outcome {
	key := entry.Key()
	if err := s.queue.DeleteIfUnchanged(ctx, key, entry.QueuedAt); err != nil {
		s.printf("syncer: confirmed %s at version %d but dequeue failed: %v", key, version, err)
	}
	status := StatusConfirmed
	if resolution != nil {
		status = StatusMerged
	}
	return Outcome{Key: key, Status: status, NewVersion: version, Resolution: resolution}
}

func (s *Synchronizer) putWithRetry(ctx context.Context, entry readings.PendingEntry) (int64, error) {
	return retry.Do(ctx, s.exec, func(ctx context.Context) (int64, error) {
		version, err := s.remote.Put(ctx, entry.Reading, entry.BaseVersion)
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			// Retrying a version conflict cannot succeed; route it to the
			// resolver instead of the backoff loop.
			return 0, retry.MarkPermanent(err)
		}
		return version, err
	})
}

// SyncAll drains the queue with bounded concurrency across distinct keys.
// One failing entry never blocks the delivery of others; the returned slice
// holds an outcome for every pending entry, in queue-listing order.
// Cancelling ctx stops further deliveries; unconfirmed entries stay queued.
func (s *Synchronizer) SyncAll(ctx context.Context) ([]Outcome, error) {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	entries, err := s.queue.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	outcomes := make([]Outcome, len(entries))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.maxParallel)

	for i, entry := range entries {
		i, entry := i, entry
		group.Go(func() error {
			outcomes[i] = s.SyncOne(groupCtx, entry)
			return nil
		})
	}
	_ = group.Wait()

	return outcomes, ctx.Err()
}

func (s *Synchronizer) lockFor(key readings.EntryKey) *sync.Mutex {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	lock, ok := s.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.keyLocks[key] = lock
	}
	return lock
}

func (s *Synchronizer) printf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
