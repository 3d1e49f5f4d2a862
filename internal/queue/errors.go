package queue

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a handler error and decides what the queue
// does with the operation that produced it.
type FailureKind int

const (
	// KindTransient retries with exponential backoff. The default for
	// unclassified errors.
	KindTransient FailureKind = iota
	// KindAuth halts the cycle and requests a token refresh; the
	// operation is left untouched.
	KindAuth
	// KindRateLimit reschedules to the server-provided time without
	// counting an attempt.
	KindRateLimit
	// KindCorrupted moves the operation to the permanently-failed set
	// with no retry.
	KindCorrupted
	// KindValidation rejects immediately, permanent failure.
	KindValidation
	// KindPersistence keeps the operation in memory for the next
	// cycle and surfaces a diagnostic.
	KindPersistence
)

func (k FailureKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindCorrupted:
		return "corrupted"
	case KindValidation:
		return "validation"
	case KindPersistence:
		return "persistence"
	default:
		return "transient"
	}
}

// TransientNetworkError wraps a failure worth retrying with backoff.
type TransientNetworkError struct {
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error: %v", e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// AuthenticationError signals the remote rejected our credentials.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication error: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// RateLimitError carries the server-provided retry-after delay.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// DataCorruptionError marks a payload the handler cannot interpret.
type DataCorruptionError struct {
	Err error
}

func (e *DataCorruptionError) Error() string {
	return fmt.Sprintf("data corruption: %v", e.Err)
}

func (e *DataCorruptionError) Unwrap() error { return e.Err }

// ValidationError marks a payload the remote will never accept.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PersistenceError marks a failure of the durable store itself.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Classify maps an error to its failure kind. Unclassified errors
// default to transient treatment with the standard backoff.
func Classify(err error) FailureKind {
	var (
		authErr    *AuthenticationError
		rateErr    *RateLimitError
		corruptErr *DataCorruptionError
		validErr   *ValidationError
		persistErr *PersistenceError
	)
	switch {
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &rateErr):
		return KindRateLimit
	case errors.As(err, &corruptErr):
		return KindCorrupted
	case errors.As(err, &validErr):
		return KindValidation
	case errors.As(err, &persistErr):
		return KindPersistence
	default:
		return KindTransient
	}
}

// RetryAfter extracts the server delay from a rate-limit error, or
// zero when err is not one.
func RetryAfter(err error) time.Duration {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return rateErr.RetryAfter
	}
	return 0
}
