package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

const paymentColumns = `
	id, reference, user_id, email, amount, currency, plan, status, provider, source,
	channel, gateway_code, gateway_message, paid_at, credits_allocated, allocated_at,
	created_at, updated_at`

// Repository defines payment data access
type Repository interface {
	// InsertPending creates the init row; an existing reference is left untouched
	InsertPending(ctx context.Context, p *Payment) error
	// GetByReference returns nil, nil when no row exists
	GetByReference(ctx context.Context, reference string) (*Payment, error)
	// Upsert writes a reconciled row and returns what is stored afterwards.
	// Terminal rows are never changed; identifying fields are only filled when empty.
	Upsert(ctx context.Context, p *Payment) (*Payment, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Payment, error)
	RecordEvent(ctx context.Context, ev *Event) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates payment repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) InsertPending(ctx context.Context, p *Payment) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO payments (id, reference, user_id, email, amount, currency, plan, status, provider, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING', $8, $9, NOW(), NOW())
		ON CONFLICT (reference) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Reference,
		p.UserID,
		p.Email,
		p.Amount,
		p.Currency,
		p.Plan,
		p.Provider,
		p.Source,
	)
	if err != nil {
		return fmt.Errorf("insert pending payment: %w", err)
	}
	return nil
}

func (r *repository) GetByReference(ctx context.Context, reference string) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`
	var p Payment
	err := r.db.GetContext(ctx, &p, query, reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by reference: %w", err)
	}
	return &p, nil
}

func (r *repository) Upsert(ctx context.Context, p *Payment) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// SET expressions see the pre-update row as "payments"
	query := `
		INSERT INTO payments (
			id, reference, user_id, email, amount, currency, plan, status, provider, source,
			channel, gateway_code, gateway_message, paid_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		ON CONFLICT (reference) DO UPDATE SET
			user_id         = COALESCE(payments.user_id, EXCLUDED.user_id),
			email           = COALESCE(payments.email, EXCLUDED.email),
			plan            = COALESCE(payments.plan, EXCLUDED.plan),
			status          = CASE WHEN payments.status = 'PENDING' THEN EXCLUDED.status ELSE payments.status END,
			amount          = CASE WHEN payments.status = 'PENDING' THEN EXCLUDED.amount ELSE payments.amount END,
			currency        = CASE WHEN payments.status = 'PENDING' THEN EXCLUDED.currency ELSE payments.currency END,
			channel         = CASE WHEN payments.status = 'PENDING' THEN EXCLUDED.channel ELSE payments.channel END,
			gateway_code    = CASE WHEN payments.status = 'PENDING' THEN EXCLUDED.gateway_code ELSE payments.gateway_code END,
			gateway_message = CASE WHEN payments.status = 'PENDING' THEN EXCLUDED.gateway_message ELSE payments.gateway_message END,
			paid_at         = CASE WHEN payments.status = 'PENDING' THEN EXCLUDED.paid_at ELSE payments.paid_at END,
			updated_at      = CASE WHEN payments.status = 'PENDING' THEN NOW() ELSE payments.updated_at END
		RETURNING ` + paymentColumns

	var stored Payment
	err := r.db.GetContext(ctx, &stored, query,
		p.ID,
		p.Reference,
		p.UserID,
		p.Email,
		p.Amount,
		p.Currency,
		p.Plan,
		p.Status,
		p.Provider,
		p.Source,
		p.Channel,
		p.GatewayCode,
		p.GatewayMessage,
		p.PaidAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert payment: %w", err)
	}
	return &stored, nil
}

func (r *repository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	payments := make([]*Payment, 0)
	if err := r.db.SelectContext(ctx, &payments, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

func (r *repository) RecordEvent(ctx context.Context, ev *Event) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}

	var payload sql.NullString
	if len(ev.Payload) > 0 {
		payload = sql.NullString{String: string(ev.Payload), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_events (id, reference, origin, event_type, payload)
		VALUES ($1, $2, $3, $4, $5::jsonb)
	`, ev.ID, ev.Reference, ev.Origin, ev.EventType, payload)
	if err != nil {
		return fmt.Errorf("record payment event: %w", err)
	}
	return nil
}
