package payment

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/carebook-api/internal/domain/credit"
)

// Reason explains why a decision does not allocate credits
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonMissingReference     Reason = "missing_reference"
	ReasonPaymentNotSuccessful Reason = "payment_not_successful"
	ReasonIncompleteMetadata   Reason = "incomplete_metadata"
	ReasonAmountMismatch       Reason = "amount_mismatch"
	ReasonMetadataMismatch     Reason = "metadata_mismatch"
)

// Err returns the sentinel error for the reason, nil for ReasonNone
func (r Reason) Err() error {
	switch r {
	case ReasonNone:
		return nil
	case ReasonMissingReference:
		return ErrMissingReference
	case ReasonPaymentNotSuccessful:
		return ErrPaymentNotSuccessful
	case ReasonIncompleteMetadata:
		return ErrIncompleteMetadata
	case ReasonAmountMismatch:
		return ErrAmountMismatch
	case ReasonMetadataMismatch:
		return ErrMetadataMismatch
	default:
		return fmt.Errorf("unknown reconcile reason %q", string(r))
	}
}

// Decision is the outcome of reconciling one charge observation
type Decision struct {
	// Record is the row to persist; nil when nothing can be written
	Record           *Payment
	Reason           Reason
	Allocate         bool
	AlreadyAllocated bool
}

// Decide reconciles a gateway charge against the stored row, if any.
// It has no side effects; both the verify and webhook channels go through it.
func Decide(existing *Payment, charge ChargeResult, origin Origin, catalog credit.Catalog, now time.Time) Decision {
	reference := strings.TrimSpace(charge.Reference)
	if reference == "" {
		return Decision{Reason: ReasonMissingReference}
	}

	var rec Payment
	if existing != nil {
		rec = *existing
	} else {
		rec = Payment{
			ID:        uuid.New(),
			Reference: reference,
			Amount:    charge.Amount,
			Currency:  charge.Currency,
			Status:    StatusPending,
			Provider:  ProviderPaystack,
			Source:    string(origin),
			CreatedAt: now,
		}
	}

	mismatch := ReasonNone
	if !rec.Status.IsTerminal() {
		mismatch = crossCheck(existing, &rec, charge, catalog)

		if !rec.UserID.Valid {
			rec.UserID = nullString(charge.UserID)
		}
		if !rec.Plan.Valid {
			rec.Plan = nullString(strings.ToLower(charge.Plan))
		}
		if !rec.Email.Valid {
			rec.Email = nullString(charge.Email)
		}

		applyCharge(&rec, charge, mismatch, now)
	}

	d := Decision{Record: &rec}
	d.Allocate, d.AlreadyAllocated, d.Reason = Guard(&rec)
	if mismatch != ReasonNone {
		d.Allocate = false
		d.Reason = mismatch
	}
	return d
}

// Guard evaluates whether a stored row may receive credits.
// Allocated rows report alreadyAllocated instead of allocate.
func Guard(p *Payment) (allocate, alreadyAllocated bool, reason Reason) {
	if p == nil || p.Status != StatusSuccess {
		return false, false, ReasonPaymentNotSuccessful
	}
	if !p.UserID.Valid || p.UserID.String == "" || !p.Plan.Valid || p.Plan.String == "" {
		return false, false, ReasonIncompleteMetadata
	}
	if p.CreditsAllocated {
		return false, true, ReasonNone
	}
	return true, false, ReasonNone
}

// crossCheck compares a successful charge with what we expected at init.
// Without an init row the catalog price of the charged plan is the expectation.
func crossCheck(existing *Payment, rec *Payment, charge ChargeResult, catalog credit.Catalog) Reason {
	if MapStatus(charge.Status) != StatusSuccess {
		return ReasonNone
	}

	if existing != nil {
		if existing.UserID.Valid && charge.UserID != "" && existing.UserID.String != charge.UserID {
			rec.GatewayMessage = nullString(fmt.Sprintf("metadata mismatch: userId %q, expected %q", charge.UserID, existing.UserID.String))
			return ReasonMetadataMismatch
		}
		if existing.Plan.Valid && charge.Plan != "" && !strings.EqualFold(existing.Plan.String, charge.Plan) {
			rec.GatewayMessage = nullString(fmt.Sprintf("metadata mismatch: plan %q, expected %q", charge.Plan, existing.Plan.String))
			return ReasonMetadataMismatch
		}
		if existing.Currency != "" && charge.Currency != "" && !strings.EqualFold(existing.Currency, charge.Currency) {
			rec.GatewayMessage = nullString(fmt.Sprintf("currency mismatch: charged %s, expected %s", charge.Currency, existing.Currency))
			return ReasonAmountMismatch
		}
	}

	expected := int64(0)
	if existing != nil && existing.Amount > 0 {
		expected = existing.Amount
	} else {
		plan := charge.Plan
		if existing != nil && existing.Plan.Valid {
			plan = existing.Plan.String
		}
		if p, ok := catalog.Lookup(plan); ok {
			expected = p.Price
		}
	}
	if expected > 0 && charge.Amount != expected {
		rec.GatewayMessage = nullString(fmt.Sprintf("amount mismatch: charged %d, expected %d", charge.Amount, expected))
		return ReasonAmountMismatch
	}

	return ReasonNone
}

// applyCharge moves a PENDING row to its terminal state
func applyCharge(rec *Payment, charge ChargeResult, mismatch Reason, now time.Time) {
	rec.GatewayCode = nullString(charge.Status)
	if charge.Channel != "" {
		rec.Channel = nullString(charge.Channel)
	}
	if charge.Currency != "" && rec.Currency == "" {
		rec.Currency = charge.Currency
	}
	rec.UpdatedAt = now

	if mismatch != ReasonNone {
		rec.Status = StatusFailed
		rec.PaidAt = sql.NullTime{}
		return
	}

	rec.Status = MapStatus(charge.Status)
	rec.GatewayMessage = nullString(charge.GatewayResponse)
	if charge.Amount > 0 {
		rec.Amount = charge.Amount
	}
	if charge.Currency != "" {
		rec.Currency = charge.Currency
	}

	if rec.Status == StatusSuccess {
		paidAt := now
		if charge.PaidAt != nil && !charge.PaidAt.IsZero() {
			paidAt = *charge.PaidAt
		}
		rec.PaidAt = sql.NullTime{Time: paidAt, Valid: true}
	} else {
		rec.PaidAt = sql.NullTime{}
	}
}
