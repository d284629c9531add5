package retry

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Config bounds the retry loop.
type Config struct {
	// MaxRetries is the number of re-attempts after the first try.
	MaxRetries int
	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration
	// MaxDelay caps the pre-jitter backoff delay.
	MaxDelay time.Duration
	// JitterFactor in [0,1] spreads the delay by ±delay*JitterFactor.
	JitterFactor float64
}

// ExhaustedError is returned when all attempts failed on transient errors.
type ExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements error.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap exposes the last attempt's error.
func (e *ExhaustedError) Unwrap() error { return e.Last }

// AbortedError is returned when a permanent error stopped the loop early.
type AbortedError struct {
	Err error
}

// Error implements error.
func (e *AbortedError) Error() string { return "retry: aborted: " + e.Err.Error() }

// Unwrap exposes the aborting error.
func (e *AbortedError) Unwrap() error { return e.Err }

// Observer is notified after each backoff suspension, just before the next
// attempt runs, for logging and progress reporting outside the loop itself.
type Observer func(attempt int, delay time.Duration, err error)

// Executor runs operations with bounded exponential backoff and jitter.
// Delay suspension is context-aware and never blocks other goroutines.
type Executor struct {
	cfg      Config
	stats    *Stats
	classify func(error) bool
	observer Observer
	logger   *log.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures an Executor.
type Option func(*Executor)

// WithClassifier overrides the built-in retryable/permanent classification.
func WithClassifier(classify func(error) bool) Option {
	return func(e *Executor) { e.classify = classify }
}

// WithObserver registers a retry progress callback.
func WithObserver(observer Observer) Option {
	return func(e *Executor) { e.observer = observer }
}

// WithLogger attaches a logger for retry progress lines.
func WithLogger(logger *log.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithStats attaches a shared statistics accumulator.
func WithStats(stats *Stats) Option {
	return func(e *Executor) { e.stats = stats }
}

// withSleeper replaces the suspension primitive, for tests.
func withSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// withRandSource seeds the jitter source, for tests.
func withRandSource(src rand.Source) Option {
	return func(e *Executor) { e.rng = rand.New(src) }
}

// NewExecutor constructs an executor. Invalid config values are clamped to
// safe bounds.
func NewExecutor(cfg Config, opts ...Option) *Executor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.JitterFactor < 0 {
		cfg.JitterFactor = 0
	}
	if cfg.JitterFactor > 1 {
		cfg.JitterFactor = 1
	}

	e := &Executor{
		cfg:      cfg,
		stats:    NewStats(),
		classify: Retryable,
		sleep:    sleepContext,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats returns the executor's statistics accumulator.
func (e *Executor) Stats() *Stats { return e.stats }

// Config returns the executor's bounds.
func (e *Executor) Config() Config { return e.cfg }

// BackoffDelay computes the pre-jitter delay for the n-th retry (1-indexed):
// min(baseDelay * 2^(n-1), maxDelay).
func (e *Executor) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(e.cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(e.cfg.MaxDelay) {
		return e.cfg.MaxDelay
	}
	return time.Duration(delay)
}

// jittered spreads the delay by a symmetric uniform jitter, floored at zero.
func (e *Executor) jittered(delay time.Duration) time.Duration {
	if e.cfg.JitterFactor == 0 {
		return delay
	}
	e.mu.Lock()
	u := e.rng.Float64() // uniform in [0,1)
	e.mu.Unlock()

	jitter := (2*u - 1) * e.cfg.JitterFactor * float64(delay)
	result := time.Duration(float64(delay) + jitter)
	if result < 0 {
		return 0
	}
	return result
}

// Run executes an error-only operation with retries.
func (e *Executor) Run(ctx context.Context, op func(context.Context) error) error {
	_, err := Do(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do executes op, retrying transient failures with exponential backoff and
// jitter. Permanent failures return an *AbortedError immediately; exhausted
// attempts return an *ExhaustedError wrapping the last error. Context
// cancellation during a suspension aborts with the context error.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, &AbortedError{Err: err}
		}

		value, err := op(ctx)
		e.stats.recordAttempt(err)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if !e.classify(err) {
			e.stats.recordAborted()
			e.printf("retry: permanent failure on attempt %d: %v", attempt, err)
			return zero, &AbortedError{Err: err}
		}
		if attempt > e.cfg.MaxRetries {
			e.stats.recordExhausted()
			e.printf("retry: gave up after %d attempts: %v", attempt, err)
			return zero, &ExhaustedError{Attempts: attempt, Last: lastErr}
		}

		delay := e.jittered(e.BackoffDelay(attempt))
		e.stats.recordRetry(delay)

		// Suspend first; the observer only hears about retries that
		// actually run. A cancellation during the suspension aborts
		// without reporting one.
		if err := e.sleep(ctx, delay); err != nil {
			return zero, &AbortedError{Err: err}
		}
		if e.observer != nil {
			e.observer(attempt, delay, err)
		}
		e.printf("retry: attempt %d failed (%v), retrying after %s backoff", attempt, err, delay)
	}
}

func (e *Executor) printf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// sleepContext suspends for d without blocking other goroutines and wakes
// early on context cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
