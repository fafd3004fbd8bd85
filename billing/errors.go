/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify with the helper predicates rather than matching
  individual sentinels.

ERROR CATEGORIES:
  1. Not-found errors - referenced cycle/room/charge/payment missing;
     always surfaced, never silently defaulted
  2. Validation errors - rejected before any mutation occurs
  3. Concurrency errors - lost compare-and-swap on a charge snapshot

Degenerate computations (zero payers, zero billed total, empty presence)
are NOT errors: they resolve to safe zero/empty results, since they are
expected steady states for a freshly created room.
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrCycleNotFound is returned when a referenced billing cycle doesn't exist.
	ErrCycleNotFound = errors.New("billing cycle not found")

	// ErrRoomNotFound is returned when a referenced room doesn't exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrChargeNotFound is returned when a cycle has no charge for the member.
	ErrChargeNotFound = errors.New("member charge not found")

	// ErrPaymentNotFound is returned when a referenced payment doesn't exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrMemberNotFound is returned when a referenced room member doesn't exist.
	ErrMemberNotFound = errors.New("room member not found")

	// ErrValidation is the base of all input-validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrCycleClosed is returned when mutating a completed or archived cycle.
	ErrCycleClosed = errors.New("cycle is closed")

	// ErrConcurrentModification is returned when the charge-snapshot version
	// check fails. The caller may reload and retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a rejected input. The operation has not mutated
// anything when this is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCycleNotFound) ||
		errors.Is(err, ErrRoomNotFound) ||
		errors.Is(err, ErrChargeNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrMemberNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrCycleClosed)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
