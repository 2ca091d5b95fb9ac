package credit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

// pq code for unique_violation
const uniqueViolation = "23505"

type Repository interface {
	// AllocatePurchase marks the payment allocated, credits the user and writes the
	// CREDIT_PURCHASE row in one transaction.
	AllocatePurchase(ctx context.Context, userID, plan, paymentReference string, credits int) (*CreditTransaction, error)
	GetBalance(ctx context.Context, userID string) (int, error)
	ListTransactions(ctx context.Context, userID string, pagination Pagination) ([]CreditTransaction, error)
}

// CreditRepository provides credit ledger and balance operations.
type CreditRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) AllocatePurchase(ctx context.Context, userID, plan, paymentReference string, credits int) (*CreditTransaction, error) {
	if credits <= 0 {
		return nil, ErrInvalidAmount
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	// Single mutual exclusion point: only one caller flips the marker
	result, err := tx.ExecContext(ctx2, `
		UPDATE payments
		SET credits_allocated = TRUE, allocated_at = NOW(), updated_at = NOW()
		WHERE reference = $1 AND status = 'SUCCESS' AND credits_allocated = FALSE
	`, paymentReference)
	if err != nil {
		return nil, fmt.Errorf("%w: claim payment: %v", ErrInternal, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: rows affected", ErrInternal)
	}
	if rows == 0 {
		var allocated bool
		err := tx.GetContext(ctx2, &allocated, `SELECT credits_allocated FROM payments WHERE reference = $1`, paymentReference)
		if err == nil && allocated {
			return nil, ErrAlreadyAllocated
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: read allocation marker", ErrInternal)
		}
		return nil, ErrNotAllocatable
	}

	result, err = tx.ExecContext(ctx2, `
		UPDATE users
		SET credit_balance = credit_balance + $2, updated_at = NOW()
		WHERE id = $1
	`, userID, credits)
	if err != nil {
		return nil, fmt.Errorf("%w: update user balance", ErrInternal)
	}

	rows, err = result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: rows affected", ErrInternal)
	}
	if rows == 0 {
		return nil, ErrUserNotFound
	}

	ref := paymentReference
	planName := plan
	ledger := &CreditTransaction{
		ID:               uuid.New().String(),
		UserID:           userID,
		AmountDelta:      credits,
		TxType:           string(TxTypePurchase),
		PaymentReference: &ref,
		Plan:             &planName,
		Description:      fmt.Sprintf("purchase of %s plan", plan),
	}

	err = tx.QueryRowContext(ctx2, `
		INSERT INTO credit_transactions (
			id, user_id, amount_delta, tx_type, payment_reference, plan, description
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, ledger.ID, ledger.UserID, ledger.AmountDelta, ledger.TxType, ref, planName, ledger.Description).Scan(&ledger.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyAllocated
		}
		return nil, fmt.Errorf("%w: insert transaction", ErrInternal)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx", ErrInternal)
	}

	return ledger, nil
}

func (r *CreditRepository) GetBalance(ctx context.Context, userID string) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var balance int
	err := r.db.GetContext(ctx2, &balance, `SELECT credit_balance FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("%w: get balance", ErrInternal)
	}

	return balance, nil
}

func (r *CreditRepository) ListTransactions(ctx context.Context, userID string, pagination Pagination) ([]CreditTransaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	limit := pagination.Limit
	if limit <= 0 {
		limit = 20
	}

	transactions := make([]CreditTransaction, 0)
	err := r.db.SelectContext(ctx2, &transactions, `
		SELECT id, user_id, amount_delta, tx_type, payment_reference, plan, description, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, pagination.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions", ErrInternal)
	}

	return transactions, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}
