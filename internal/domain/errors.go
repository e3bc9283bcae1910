package domain

import "errors"

var (
	// ErrInvalidPercentage is returned at the write boundary for a percentage outside [0, 100]
	// or finer than PercentPlaces
	ErrInvalidPercentage = errors.New("invalid percentage")

	// ErrInvalidPaymentCount is returned when a deal is scheduled into fewer than one payment
	ErrInvalidPaymentCount = errors.New("number of payments must be positive")

	// ErrInvalidAmount is returned for negative fees or override amounts
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidInput marks any other malformed write rejected at the boundary
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingActor is returned when an override does not say who made it
	ErrMissingActor = errors.New("override requires an actor")

	// ErrNotFound is returned by repositories when a row does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when scheduling a deal whose ID is taken
	ErrAlreadyExists = errors.New("already exists")

	// ErrRecomputeConflict signals a concurrent write to the same payment.
	// The whole batch was rolled back and is safe to retry from scratch.
	ErrRecomputeConflict = errors.New("recompute conflict")

	// ErrPartialFailure wraps any failure inside a recompute batch.
	// Nothing from the batch was committed.
	ErrPartialFailure = errors.New("recompute aborted")
)

// IsRetryable reports whether err is a conflict the caller may retry
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRecomputeConflict)
}
