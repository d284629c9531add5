// Package metrics exposes station health over Prometheus: how many
// readings validate cleanly, how deep the pending queue is, and how sync
// passes behave.
package metrics

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "fieldlog_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	readingsValidated *prometheus.CounterVec
	readingsQueued    prometheus.Counter
	readingsDiscarded prometheus.Counter

	queueDepth prometheus.Gauge

	syncOutcomes *prometheus.CounterVec
	syncLatency  *prometheus.HistogramVec

	retryAttempts *prometheus.CounterVec

	conflictsResolved *prometheus.CounterVec
)

// QueueDepthFunc reports the current pending queue depth.
type QueueDepthFunc func(ctx context.Context) (int, error)

// Init registers station metrics. Safe to call more than once.
func Init(depth QueueDepthFunc, logger *log.Logger) {
	registerOnce.Do(func() {
		readingsValidated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_validated_total",
				Help: "Total reading validations by result",
			},
			[]string{"result"},
		)
		readingsQueued = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_queued_total",
				Help: "Total readings accepted into the pending queue",
			},
		)
		readingsDiscarded = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_discarded_total",
				Help: "Total pending readings discarded by an operator",
			},
		)

		queueDepth = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "queue_depth",
				Help: "Pending entries awaiting upload",
			},
		)

		syncOutcomes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sync_outcomes_total",
				Help: "Total per-entry sync outcomes by status",
			},
			[]string{"status"},
		)
		syncLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "sync_latency_seconds",
				Help:    "Per-entry sync latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		)

		retryAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "retry_attempts_total",
				Help: "Total retried upload attempts by error class",
			},
			[]string{"class"},
		)

		conflictsResolved = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "conflicts_resolved_total",
				Help: "Total field conflicts resolved by winning side",
			},
			[]string{"winner"},
		)

		prometheus.MustRegister(
			readingsValidated,
			readingsQueued,
			readingsDiscarded,
			queueDepth,
			syncOutcomes,
			syncLatency,
			retryAttempts,
			conflictsResolved,
		)

		if depth != nil {
			registerQueueDepth(depth, logger)
		}
	})
}

// registerQueueDepth samples the queue depth on a fixed interval. The gauge
// lags by at most one sample period, which is fine for dashboards.
func registerQueueDepth(depth QueueDepthFunc, logger *log.Logger) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := depth(ctx)
			cancel()
			if err != nil {
				if logger != nil {
					logger.Printf("metrics: queue depth sample failed: %v", err)
				}
				continue
			}
			SetQueueDepth(n)
		}
	}()
}

// IncValidation counts one form validation by result.
func IncValidation(result string) {
	if result == "" {
		result = resultSuccess
	}
	if readingsValidated != nil {
		readingsValidated.WithLabelValues(result).Inc()
	}
}

// IncQueued counts one accepted reading.
func IncQueued() {
	if readingsQueued != nil {
		readingsQueued.Inc()
	}
}

// IncDiscarded counts one operator discard.
func IncDiscarded() {
	if readingsDiscarded != nil {
		readingsDiscarded.Inc()
	}
}

// SetQueueDepth sets the pending queue depth gauge directly.
func SetQueueDepth(n int) {
	if queueDepth != nil {
		queueDepth.Set(float64(n))
	}
}

// ObserveSync records one per-entry sync outcome and its latency.
func ObserveSync(status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	if syncOutcomes != nil {
		syncOutcomes.WithLabelValues(status).Inc()
	}
	if syncLatency != nil {
		syncLatency.WithLabelValues(status).Observe(duration.Seconds())
	}
}

// IncRetry counts one retried attempt by error class.
func IncRetry(class string) {
	if class == "" {
		class = "unknown"
	}
	if retryAttempts != nil {
		retryAttempts.WithLabelValues(class).Inc()
	}
}

// IncConflictResolved counts one resolved field conflict by winning side.
func IncConflictResolved(winner string) {
	if winner == "" {
		winner = "unknown"
	}
	if conflictsResolved != nil {
		conflictsResolved.WithLabelValues(winner).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
