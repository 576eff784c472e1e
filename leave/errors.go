package leave

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/leave-engine/generic"
)

var (
	ErrUnknownCategory     = errors.New("unknown leave category")
	ErrUnknownContractType = errors.New("unknown contract type")

	ErrRequestNotFound  = fmt.Errorf("leave request %w", generic.ErrNotFound)
	ErrEmployeeNotFound = fmt.Errorf("employee %w", generic.ErrNotFound)

	// ErrInvalidTransition is returned for a status change the request
	// lifecycle does not allow (e.g. approving a cancelled request).
	ErrInvalidTransition = errors.New("invalid request status transition")

	// ErrValidationFailed is wrapped by ValidationFailed.
	ErrValidationFailed = errors.New("validation failed")
)

// ValidationFailed carries every reason a request was rejected.
type ValidationFailed struct {
	Reasons []string
}

func (e *ValidationFailed) Error() string {
	return "validation failed: " + strings.Join(e.Reasons, "; ")
}

func (e *ValidationFailed) Unwrap() error { return ErrValidationFailed }

// TransitionError describes a rejected status change.
type TransitionError struct {
	RequestID RequestID
	From      Status
	To        Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("request %s: cannot move from %s to %s", e.RequestID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// IsClientError extends generic.IsClientError with leave-level errors.
func IsClientError(err error) bool {
	return generic.IsClientError(err) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrUnknownContractType)
}
