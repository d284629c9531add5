package retry

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

// instantSleep skips real suspension but still honors cancellation.
func instantSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func newTestExecutor(cfg Config, opts ...Option) *Executor {
	opts = append([]Option{withSleeper(instantSleep)}, opts...)
	return NewExecutor(cfg, opts...)
}

func TestBackoffDelayFormula(t *testing.T) {
	e := NewExecutor(Config{MaxRetries: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second})

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1600 * time.Millisecond},
		{6, 2 * time.Second}, // capped
		{12, 2 * time.Second},
	}
	for _, c := range cases {
		if got := e.BackoffDelay(c.attempt); got != c.want {
			t.Errorf("attempt %d: got %s, want %s", c.attempt, got, c.want)
		}
	}
}

func TestJitterBounds(t *testing.T) {
	const factor = 0.3
	e := NewExecutor(
		Config{MaxRetries: 1, BaseDelay: time.Second, MaxDelay: time.Minute, JitterFactor: factor},
		withRandSource(rand.NewSource(42)),
	)

	base := e.BackoffDelay(3)
	lower := time.Duration(float64(base) * (1 - factor))
	upper := time.Duration(float64(base) * (1 + factor))
	for i := 0; i < 1000; i++ {
		got := e.jittered(base)
		if got < lower || got > upper {
			t.Fatalf("jittered delay %s outside [%s, %s]", got, lower, upper)
		}
		if got < 0 {
			t.Fatalf("jittered delay below zero: %s", got)
		}
	}
}

func TestTimeoutErrorRetriedUpToMaxRetries(t *testing.T) {
	e := newTestExecutor(Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	attempts := 0
	err := e.Run(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("request timeout while contacting store")
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if attempts != 4 { // first try + 3 retries
		t.Fatalf("expected 4 attempts, got %d", attempts)
	}
}

func TestUnauthorizedFailsWithoutRetry(t *testing.T) {
	e := newTestExecutor(Config{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	attempts := 0
	err := e.Run(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("unauthorized: token rejected")
	})

	var aborted *AbortedError
	if !errors.As(err, &aborted) {
		t.Fatalf("expected AbortedError, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestTaggedClassificationBeatsHeuristic(t *testing.T) {
	e := newTestExecutor(Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	// The message says timeout, but the origin tagged it permanent.
	attempts := 0
	err := e.Run(context.Background(), func(context.Context) error {
		attempts++
		return MarkPermanent(errors.New("timeout budget policy violation"))
	})
	var aborted *AbortedError
	if !errors.As(err, &aborted) || attempts != 1 {
		t.Fatalf("expected immediate abort, got %v after %d attempts", err, attempts)
	}

	// And the other way around.
	attempts = 0
	err = e.Run(context.Background(), func(context.Context) error {
		attempts++
		return MarkTransient(errors.New("invalid frame, try again"))
	})
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) || attempts != 3 {
		t.Fatalf("expected exhaustion after 3 attempts, got %v after %d", err, attempts)
	}
}

func TestCustomClassifier(t *testing.T) {
	marker := errors.New("do not touch")
	e := newTestExecutor(
		Config{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		WithClassifier(func(err error) bool { return !errors.Is(err, marker) }),
	)

	attempts := 0
	err := e.Run(context.Background(), func(context.Context) error {
		attempts++
		return marker
	})
	var aborted *AbortedError
	if !errors.As(err, &aborted) || attempts != 1 {
		t.Fatalf("custom classifier not honored: %v after %d attempts", err, attempts)
	}
}

func TestObserverSeesEveryRetry(t *testing.T) {
	var seen []int
	e := newTestExecutor(
		Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		WithObserver(func(attempt int, delay time.Duration, err error) {
			if err == nil {
				t.Error("observer called without error")
			}
			if delay < 0 {
				t.Errorf("negative delay %s", delay)
			}
			seen = append(seen, attempt)
		}),
	)

	_ = e.Run(context.Background(), func(context.Context) error {
		return errors.New("connection reset by peer")
	})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("expected observer calls for attempts [1 2], got %v", seen)
	}
}

// A cancellation during the backoff suspension aborts the loop before the
// observer hears about the retry, so nothing reports a retry that never ran.
func TestObserverSilentWhenSuspensionCancelled(t *testing.T) {
	calls := 0
	e := NewExecutor(
		Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		WithObserver(func(int, time.Duration, error) { calls++ }),
		withSleeper(func(context.Context, time.Duration) error { return context.Canceled }),
	)

	err := e.Run(context.Background(), func(context.Context) error {
		return errors.New("connection refused")
	})
	var aborted *AbortedError
	if !errors.As(err, &aborted) {
		t.Fatalf("expected AbortedError, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("observer reported %d retries that never ran", calls)
	}
}

func TestObserverRunsAfterSuspension(t *testing.T) {
	var events []string
	e := NewExecutor(
		Config{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		WithObserver(func(int, time.Duration, error) { events = append(events, "observed") }),
		withSleeper(func(context.Context, time.Duration) error {
			events = append(events, "slept")
			return nil
		}),
	)

	attempts := 0
	_ = e.Run(context.Background(), func(context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New("service unavailable")
		}
		return nil
	})
	if len(events) != 2 || events[0] != "slept" || events[1] != "observed" {
		t.Fatalf("expected suspension before notification, got %v", events)
	}
}

func TestSuccessAfterRetries(t *testing.T) {
	e := newTestExecutor(Config{MaxRetries: 4, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	attempts := 0
	value, err := Do(context.Background(), e, func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("service unavailable")
		}
		return "written", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "written" || attempts != 3 {
		t.Fatalf("got %q after %d attempts", value, attempts)
	}
}

func TestCancelledContextAborts(t *testing.T) {
	e := NewExecutor(Config{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Run(ctx, func(context.Context) error {
		return errors.New("connection refused")
	})
	var aborted *AbortedError
	if !errors.As(err, &aborted) {
		t.Fatalf("expected AbortedError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

func TestStatsAccumulate(t *testing.T) {
	e := newTestExecutor(Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	attempts := 0
	_ = e.Run(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("gateway timeout")
		}
		return nil
	})
	_ = e.Run(context.Background(), func(context.Context) error {
		return errors.New("forbidden")
	})

	summary := e.Stats().Snapshot()
	if summary.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", summary.Attempts)
	}
	if summary.Successes != 1 || summary.Failures != 2 {
		t.Fatalf("unexpected success/failure counts: %+v", summary)
	}
	if summary.Retries != 1 || summary.Aborted != 1 {
		t.Fatalf("unexpected retry/abort counts: %+v", summary)
	}
	if summary.ByClass[ClassTransient] != 1 || summary.ByClass[ClassPermanent] != 1 {
		t.Fatalf("unexpected class counts: %v", summary.ByClass)
	}
	if summary.SuccessRate <= 0.3 || summary.SuccessRate >= 0.4 {
		t.Fatalf("unexpected success rate %f", summary.SuccessRate)
	}
}
