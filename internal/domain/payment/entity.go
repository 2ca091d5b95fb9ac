package payment

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents payment status
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// IsTerminal reports whether the status can no longer change
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// MapStatus maps a raw provider status. Only "success" is a successful charge.
func MapStatus(raw string) Status {
	if strings.EqualFold(strings.TrimSpace(raw), "success") {
		return StatusSuccess
	}
	return StatusFailed
}

// Origin identifies the channel that observed a charge
type Origin string

const (
	OriginInit    Origin = "init"
	OriginVerify  Origin = "verify"
	OriginWebhook Origin = "webhook"
)

const ProviderPaystack = "paystack"

// JSONRawMessage handles NULL json fields from DB
type JSONRawMessage []byte

func (j *JSONRawMessage) Scan(src any) error {
	if src == nil {
		*j = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return fmt.Errorf("unsupported type: %T", src)
	}
	return nil
}

func (j JSONRawMessage) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// Payment is one ledger row per gateway reference
type Payment struct {
	ID               uuid.UUID      `db:"id"`
	Reference        string         `db:"reference"`
	UserID           sql.NullString `db:"user_id"`
	Email            sql.NullString `db:"email"`
	Amount           int64          `db:"amount"`
	Currency         string         `db:"currency"`
	Plan             sql.NullString `db:"plan"`
	Status           Status         `db:"status"`
	Provider         string         `db:"provider"`
	Source           string         `db:"source"`
	Channel          sql.NullString `db:"channel"`
	GatewayCode      sql.NullString `db:"gateway_code"`
	GatewayMessage   sql.NullString `db:"gateway_message"`
	PaidAt           sql.NullTime   `db:"paid_at"`
	CreditsAllocated bool           `db:"credits_allocated"`
	AllocatedAt      sql.NullTime   `db:"allocated_at"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

// ChargeResult is the gateway's report of a charge, from verify or a webhook
type ChargeResult struct {
	Reference       string     `json:"reference"`
	Status          string     `json:"status"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
	Channel         string     `json:"channel,omitempty"`
	GatewayResponse string     `json:"gatewayResponse,omitempty"`
	UserID          string     `json:"userId,omitempty"`
	Plan            string     `json:"plan,omitempty"`
	Email           string     `json:"email,omitempty"`
}

// Event is an append-only audit row of a gateway observation
type Event struct {
	ID        uuid.UUID      `db:"id"`
	Reference string         `db:"reference"`
	Origin    Origin         `db:"origin"`
	EventType string         `db:"event_type"`
	Payload   JSONRawMessage `db:"payload"`
	CreatedAt time.Time      `db:"created_at"`
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
