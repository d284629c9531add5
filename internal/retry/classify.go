package retry

import (
	"errors"
	"strings"
)

// Error classes recorded in retry statistics.
const (
	ClassTransient = "transient"
	ClassPermanent = "permanent"
)

// ClassifiedError tags an error as retryable or permanent at its origin.
// This is the primary classification mechanism; the message-pattern scan
// below is only a fallback for errors crossing untyped boundaries.
type ClassifiedError struct {
	err       error
	retryable bool
}

// MarkTransient tags an error as safe to retry.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{err: err, retryable: true}
}

// MarkPermanent tags an error as never worth retrying.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{err: err, retryable: false}
}

// Error implements error.
func (e *ClassifiedError) Error() string { return e.err.Error() }

// Unwrap exposes the tagged error.
func (e *ClassifiedError) Unwrap() error { return e.err }

// IsRetryable returns the tag.
func (e *ClassifiedError) IsRetryable() bool { return e.retryable }

// Message fragments that identify well-known transient conditions:
// network/connectivity flaps, timeouts, and overloaded services.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"broken pipe",
	"network",
	"no route to host",
	"temporarily",
	"unavailable",
	"resource exhausted",
	"rate limit",
	"too many requests",
	"bad gateway",
	"gateway timeout",
}

// Message fragments that identify permanent conditions: authorization,
// malformed input, missing targets, duplicates.
var permanentPatterns = []string{
	"unauthorized",
	"unauthenticated",
	"permission denied",
	"forbidden",
	"not found",
	"invalid",
	"malformed",
	"bad request",
	"already exists",
}

// Retryable reports whether an error should be retried. A ClassifiedError
// tag anywhere in the chain wins; otherwise the message heuristic applies,
// with permanent patterns taking precedence. Unmatched errors default to
// retryable: the durable queue retains the entry either way, so a wasted
// retry is cheaper than stranding a transient failure.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.IsRetryable()
	}

	message := strings.ToLower(err.Error())
	for _, pattern := range permanentPatterns {
		if strings.Contains(message, pattern) {
			return false
		}
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return true
}

// Class returns the statistics class of an error.
func Class(err error) string {
	if Retryable(err) {
		return ClassTransient
	}
	return ClassPermanent
}
