package credit

import "time"

// TxType defines supported credit transaction types.
type TxType string

const (
	TxTypePurchase   TxType = "CREDIT_PURCHASE"
	TxTypeAdminGrant TxType = "ADMIN_GRANT"
	TxTypeRefund     TxType = "REFUND"
)

// Pagination controls simple list pagination.
type Pagination struct {
	Limit  int
	Offset int
}

// CreditTransaction is a ledger row.
type CreditTransaction struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"userId"`
	AmountDelta      int       `db:"amount_delta" json:"amountDelta"`
	TxType           string    `db:"tx_type" json:"txType"`
	PaymentReference *string   `db:"payment_reference" json:"paymentReference,omitempty"`
	Plan             *string   `db:"plan" json:"plan,omitempty"`
	Description      string    `db:"description" json:"description"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

// Purchase is the outcome of allocating credits for one payment.
type Purchase struct {
	Transaction *CreditTransaction
	Credits     int
	// AlreadyAllocated is set when a concurrent or earlier call did the allocation
	AlreadyAllocated bool
}
