package marketplace

import (
	"errors"

	"github.com/jeka-org/agent-forge/pkg/marketplace/storage"
)

// Operation failures, grouped by taxonomy. Every precondition failure
// surfaces one of these, wrapped with call context; nothing is swallowed and
// nothing partially applies.

// Validation failures: bad input shape or value.
var (
	ErrInvalidBudget      = errors.New("budget must be greater than zero")
	ErrInvalidDeadline    = errors.New("deadline must be in the future")
	ErrInvalidRate        = errors.New("hourly rate is not a valid non-negative integer")
	ErrNameTooLong        = errors.New("agent name exceeds maximum length")
	ErrTooManyCaps        = errors.New("too many capabilities")
	ErrCapabilityTooLong  = errors.New("capability exceeds maximum length")
	ErrDescriptionTooLong = errors.New("description exceeds maximum length")
	ErrResultURITooLong   = errors.New("result URI exceeds maximum length")
	ErrEmptyResultURI     = errors.New("result URI must not be empty")
)

// State failures: the operation is invalid for the record's current status.
var (
	ErrInvalidState       = errors.New("operation invalid for current task status")
	ErrTaskExpired        = errors.New("task deadline has passed")
	ErrDeadlineNotReached = errors.New("task deadline has not been reached")
	ErrAlreadyRegistered  = errors.New("agent already registered for this owner")
	ErrAgentInactive      = errors.New("agent is not active")
)

// Authorization failure: the caller is not who the operation requires.
var ErrUnauthorized = errors.New("caller is not authorized for this operation")

// Not-found failures.
var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrAgentNotFound = errors.New("agent not found")
)

// Resource failure: the caller cannot cover the escrow.
var ErrInsufficientFunds = errors.New("insufficient balance to escrow budget")

// IsValidation reports whether err is a bad-input failure.
func IsValidation(err error) bool {
	return errorsIsAny(err,
		ErrInvalidBudget, ErrInvalidDeadline, ErrInvalidRate,
		ErrNameTooLong, ErrTooManyCaps, ErrCapabilityTooLong,
		ErrDescriptionTooLong, ErrResultURITooLong, ErrEmptyResultURI,
	)
}

// IsStateError reports whether err is a wrong-status failure.
func IsStateError(err error) bool {
	return errorsIsAny(err,
		ErrInvalidState, ErrTaskExpired, ErrDeadlineNotReached,
		ErrAlreadyRegistered, ErrAgentInactive,
	)
}

// IsAuthorization reports whether err is an identity failure.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNotFound reports whether err is a missing-record failure.
func IsNotFound(err error) bool {
	return errorsIsAny(err, ErrTaskNotFound, ErrAgentNotFound, storage.ErrNotFound)
}

// IsResourceError reports whether err is a funds failure.
func IsResourceError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
