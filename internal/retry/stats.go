package retry

import (
	"sync"
	"time"
)

// Stats accumulates attempt-level retry statistics for observability. It is
// owned by an executor for its lifetime and has no persistence requirement.
type Stats struct {
	mu         sync.Mutex
	attempts   int
	successes  int
	failures   int
	retries    int
	aborted    int
	exhausted  int
	totalDelay time.Duration
	byClass    map[string]int
}

// Summary is an immutable snapshot of accumulated statistics.
type Summary struct {
	Attempts     int
	Successes    int
	Failures     int
	Retries      int
	Aborted      int
	Exhausted    int
	TotalDelay   time.Duration
	AverageDelay time.Duration
	SuccessRate  float64
	ByClass      map[string]int
}

// NewStats returns an empty accumulator.
func NewStats() *Stats {
	return &Stats{byClass: make(map[string]int)}
}

func (s *Stats) recordAttempt(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if err == nil {
		s.successes++
		return
	}
	s.failures++
	s.byClass[Class(err)]++
}

func (s *Stats) recordRetry(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
	s.totalDelay += delay
}

func (s *Stats) recordAborted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted++
}

func (s *Stats) recordExhausted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exhausted++
}

// Snapshot returns a copy of the current statistics.
func (s *Stats) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := Summary{
		Attempts:   s.attempts,
		Successes:  s.successes,
		Failures:   s.failures,
		Retries:    s.retries,
		Aborted:    s.aborted,
		Exhausted:  s.exhausted,
		TotalDelay: s.totalDelay,
		ByClass:    make(map[string]int, len(s.byClass)),
	}
	for class, count := range s.byClass {
		summary.ByClass[class] = count
	}
	if s.retries > 0 {
		summary.AverageDelay = s.totalDelay / time.Duration(s.retries)
	}
	if s.attempts > 0 {
		summary.SuccessRate = float64(s.successes) / float64(s.attempts)
	}
	return summary
}
