package credit

import "errors"

var (
	// ErrUnknownPlan is returned when the plan is not in the catalog
	ErrUnknownPlan = errors.New("unknown plan")

	// ErrUserNotFound is returned when user doesn't exist
	ErrUserNotFound = errors.New("user not found")

	// ErrAlreadyAllocated is returned when credits for the payment were already granted
	ErrAlreadyAllocated = errors.New("credits already allocated for payment")

	// ErrNotAllocatable is returned when the payment is missing or not successful
	ErrNotAllocatable = errors.New("payment is not eligible for credit allocation")

	// ErrInvalidAmount is returned when amount is <= 0
	ErrInvalidAmount = errors.New("invalid amount: must be greater than 0")

	ErrInternal = errors.New("internal error")
)
