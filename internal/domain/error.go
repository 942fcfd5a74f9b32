package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrValidation      = errors.New("invalid argument")
	ErrForbidden       = errors.New("operation not permitted")
	ErrPlanDowngrade   = errors.New("cannot downgrade plan while current period is active")
	ErrSeatLimit       = errors.New("additional employees must be between 1 and 100")
	ErrUnknownPlan     = errors.New("unknown subscription plan")
	ErrUnknownPurpose  = errors.New("unknown payment purpose")
	ErrBadMetadata     = errors.New("intent metadata does not match purpose")
	ErrBadSignature    = errors.New("webhook signature mismatch")
	ErrUnknownProvider = errors.New("unknown payment provider")

	// Provider errors. Declined means the gateway answered and said no;
	// Unreachable means we never got a usable answer.
	ErrProviderDeclined    = errors.New("payment provider declined the request")
	ErrProviderUnreachable = errors.New("payment provider unreachable")

	// Storage-level errors
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid transaction execution context")
)
