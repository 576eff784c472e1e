/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every error here is local and recoverable: callers surface it to the
  user and let them correct the input. None is a fatal process condition.

ERROR CATEGORIES:
  1. Calendar errors - InvalidRangeError
  2. Ledger errors   - InsufficientBalanceError, OverCreditError,
                       AlreadyInitializedError, duplicate idempotency keys
  3. Store errors    - not found, concurrent modification

USAGE:
  var insufficient *generic.InsufficientBalanceError
  if errors.As(err, &insufficient) {
      fmt.Println(insufficient.Available, insufficient.Requested)
  }

SEE ALSO:
  - ledger.go: Returns these errors
  - leave/errors.go: ValidationFailed and request lifecycle errors
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is wrapped by InvalidRangeError.
	ErrInvalidRange = errors.New("invalid range: end before start")

	// ErrInsufficientBalance is wrapped by InsufficientBalanceError.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrOverCredit is wrapped by OverCreditError.
	ErrOverCredit = errors.New("credit exceeds used days")

	// ErrAlreadyInitialized is wrapped by AlreadyInitializedError.
	ErrAlreadyInitialized = errors.New("balance already initialized")

	// ErrDuplicateIdempotencyKey is returned when a ledger entry with the same
	// idempotency key already exists. Expected for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrNotFound is the root of every "missing record" error.
	ErrNotFound = errors.New("not found")

	// ErrBalanceNotFound is returned by stores for a missing balance row.
	ErrBalanceNotFound = fmt.Errorf("balance %w", ErrNotFound)

	// ErrConcurrentModification is returned when a version check fails.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidAmount is returned for non-positive debit/credit amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrStoreRequired is returned when an operation requires a store capability
	// the injected store does not provide.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRangeError is returned when an interval ends before it starts.
type InvalidRangeError struct {
	Start TimePoint
	End   TimePoint
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: end %s is before start %s", e.End, e.Start)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	Key       BalanceKey
	Available Amount
	Requested Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance. Available: %s, Requested: %s",
		e.Available.Value, e.Requested.Value)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// OverCreditError is returned when a credit would make used days negative.
type OverCreditError struct {
	Key      BalanceKey
	Used     Amount
	Credited Amount
}

func (e *OverCreditError) Error() string {
	return fmt.Sprintf("cannot credit %s days: only %s used", e.Credited.Value, e.Used.Value)
}

func (e *OverCreditError) Unwrap() error { return ErrOverCredit }

// AlreadyInitializedError lists the resources that were already granted for
// the employee/year. Resources not listed were created by the same call.
type AlreadyInitializedError struct {
	EmployeeID EmployeeID
	Year       int
	Resources  []ResourceType
}

func (e *AlreadyInitializedError) Error() string {
	ids := make([]string, len(e.Resources))
	for i, r := range e.Resources {
		ids[i] = r.ResourceID()
	}
	return fmt.Sprintf("balance already initialized for %s in %d: %s",
		e.EmployeeID, e.Year, strings.Join(ids, ", "))
}

func (e *AlreadyInitializedError) Unwrap() error { return ErrAlreadyInitialized }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true for any missing-record error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrOverCredit) ||
		errors.Is(err, ErrAlreadyInitialized) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidAmount)
}
