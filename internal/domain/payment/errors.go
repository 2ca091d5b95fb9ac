package payment

import "errors"

var (
	ErrMissingReference     = errors.New("missing reference")
	ErrPaymentNotSuccessful = errors.New("payment not successful")
	ErrIncompleteMetadata   = errors.New("payment metadata is missing user or plan")
	ErrAmountMismatch       = errors.New("charged amount does not match payment")
	ErrMetadataMismatch     = errors.New("charge metadata does not match payment")
	ErrPlanPriceMismatch    = errors.New("amount does not match plan price")
	ErrPaymentNotFound      = errors.New("payment not found")

	// ErrAllocationFailed wraps unexpected credit allocator failures
	ErrAllocationFailed = errors.New("credit allocation failed")

	// ErrLedgerWrite wraps payment ledger persistence failures
	ErrLedgerWrite = errors.New("payment ledger write failed")

	ErrSignatureMissing  = errors.New("webhook signature or secret missing")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)
