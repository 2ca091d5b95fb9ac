package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/carebook-api/internal/domain/credit"
	"github.com/carebook/carebook-api/internal/pkg/logger"
	"github.com/carebook/carebook-api/internal/pkg/paystack"
)

// Config holds payment service settings
type Config struct {
	WebhookSecret string
	Currency      string
}

// Service reconciles gateway charges into the ledger and credits
type Service struct {
	repo    Repository
	gateway Gateway
	credits credit.Service
	config  Config
	now     func() time.Time
}

// NewService creates payment service
func NewService(repo Repository, gateway Gateway, credits credit.Service, cfg Config) *Service {
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	return &Service{
		repo:    repo,
		gateway: gateway,
		credits: credits,
		config:  cfg,
		now:     time.Now,
	}
}

// InitPaymentRequest is a checkout request for a credit plan
type InitPaymentRequest struct {
	Email  string
	UserID string
	Plan   string
	Amount int64
}

// InitPaymentResult is returned to the client for redirect
type InitPaymentResult struct {
	AuthorizationURL string `json:"authorizationUrl"`
	Reference        string `json:"reference"`
}

// Outcome describes a completed reconciliation
type Outcome struct {
	Payment          *Payment
	Credits          int
	AlreadyAllocated bool
}

// InitPayment starts a gateway checkout and records the PENDING row
func (s *Service) InitPayment(ctx context.Context, req InitPaymentRequest) (*InitPaymentResult, error) {
	plan, ok := s.credits.Catalog().Lookup(req.Plan)
	if !ok {
		return nil, fmt.Errorf("%w: %q", credit.ErrUnknownPlan, req.Plan)
	}
	if req.Amount != plan.Price {
		return nil, fmt.Errorf("%w: got %d, plan %s costs %d", ErrPlanPriceMismatch, req.Amount, plan.Name, plan.Price)
	}

	reference := newReference()
	out, err := s.gateway.Initialize(ctx, InitRequest{
		Email:     req.Email,
		Amount:    req.Amount,
		Currency:  s.config.Currency,
		Reference: reference,
		UserID:    req.UserID,
		Plan:      plan.Name,
	})
	if err != nil {
		return nil, err
	}
	if out.Reference != "" {
		reference = out.Reference
	}

	log := logger.FromContext(ctx)

	now := s.now()
	pending := &Payment{
		ID:        uuid.New(),
		Reference: reference,
		UserID:    nullString(req.UserID),
		Email:     nullString(req.Email),
		Amount:    req.Amount,
		Currency:  s.config.Currency,
		Plan:      nullString(plan.Name),
		Status:    StatusPending,
		Provider:  ProviderPaystack,
		Source:    string(OriginInit),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertPending(ctx, pending); err != nil {
		// verify and webhook can still synthesize the row
		log.Warn().Err(err).Str("reference", reference).Msg("failed to record pending payment")
	}

	log.Info().
		Str("reference", reference).
		Str("user_id", req.UserID).
		Str("plan", plan.Name).
		Int64("amount", req.Amount).
		Msg("payment initialized")

	return &InitPaymentResult{AuthorizationURL: out.AuthorizationURL, Reference: reference}, nil
}

// VerifyPayment asks the gateway for the charge state and reconciles it
func (s *Service) VerifyPayment(ctx context.Context, reference string) (*Outcome, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrMissingReference
	}

	charge, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	if charge.Reference == "" {
		charge.Reference = reference
	}

	return s.Reconcile(ctx, charge, OriginVerify)
}

// HandleWebhook authenticates a raw webhook body and reconciles charge.success events.
// Only signature failures are returned; everything after a valid signature is logged.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if s.config.WebhookSecret == "" || strings.TrimSpace(signature) == "" {
		return ErrSignatureMissing
	}
	if !paystack.VerifySignature(body, signature, s.config.WebhookSecret) {
		return ErrSignatureMismatch
	}

	log := logger.FromContext(ctx)

	ev, err := paystack.ParseEvent(body)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring malformed webhook payload")
		return nil
	}

	if ev.Event != paystack.EventChargeSuccess {
		log.Debug().Str("event", ev.Event).Str("reference", ev.Data.Reference).Msg("ignoring webhook event")
		return nil
	}

	outcome, err := s.Reconcile(ctx, ChargeFromTransaction(ev.Data), OriginWebhook)
	if err != nil {
		log.Warn().Err(err).Str("reference", ev.Data.Reference).Msg("webhook reconcile did not allocate credits")
		return nil
	}

	log.Info().
		Str("reference", ev.Data.Reference).
		Bool("already_allocated", outcome.AlreadyAllocated).
		Msg("webhook reconciled")
	return nil
}

// Reconcile is the single convergence point of verify and webhook observations
func (s *Service) Reconcile(ctx context.Context, charge ChargeResult, origin Origin) (*Outcome, error) {
	charge.Reference = strings.TrimSpace(charge.Reference)
	if charge.Reference == "" {
		return nil, ErrMissingReference
	}
	if charge.Currency == "" {
		charge.Currency = s.config.Currency
	}

	log := logger.FromContext(ctx).With().
		Str("reference", charge.Reference).
		Str("origin", string(origin)).
		Logger()

	s.recordEvent(ctx, charge, origin)

	existing, err := s.repo.GetByReference(ctx, charge.Reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}

	decision := Decide(existing, charge, origin, s.credits.Catalog(), s.now())
	if decision.Record == nil {
		return nil, decision.Reason.Err()
	}

	stored, err := s.repo.Upsert(ctx, decision.Record)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}

	if decision.Reason == ReasonAmountMismatch || decision.Reason == ReasonMetadataMismatch {
		if stored.Status == StatusFailed {
			log.Warn().Str("reason", string(decision.Reason)).Msg("charge rejected by cross-check")
			return nil, decision.Reason.Err()
		}
	}

	// A concurrent writer may have settled the row first; trust what is stored
	allocate, already, reason := Guard(stored)
	if reason != ReasonNone {
		return &Outcome{Payment: stored}, reason.Err()
	}
	if already {
		return &Outcome{Payment: stored, AlreadyAllocated: true}, nil
	}
	if !allocate {
		return &Outcome{Payment: stored}, ErrPaymentNotSuccessful
	}

	purchase, err := s.credits.PurchaseCredits(ctx, stored.UserID.String, stored.Plan.String, stored.Reference)
	if err != nil {
		switch {
		case errors.Is(err, credit.ErrUnknownPlan), errors.Is(err, credit.ErrUserNotFound):
			return &Outcome{Payment: stored}, err
		default:
			log.Error().Err(err).Msg("credit allocation failed")
			return &Outcome{Payment: stored}, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
		}
	}

	stored.CreditsAllocated = true
	return &Outcome{Payment: stored, Credits: purchase.Credits, AlreadyAllocated: purchase.AlreadyAllocated}, nil
}

// History lists a user's payments, newest first
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]*Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// GetForUser returns a payment owned by userID
func (s *Service) GetForUser(ctx context.Context, userID, reference string) (*Payment, error) {
	p, err := s.repo.GetByReference(ctx, strings.TrimSpace(reference))
	if err != nil {
		return nil, err
	}
	if p == nil || !p.UserID.Valid || p.UserID.String != userID {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

func (s *Service) recordEvent(ctx context.Context, charge ChargeResult, origin Origin) {
	payload, err := json.Marshal(charge)
	if err != nil {
		return
	}
	eventType := "verify"
	if origin == OriginWebhook {
		eventType = paystack.EventChargeSuccess
	}
	err = s.repo.RecordEvent(ctx, &Event{
		ID:        uuid.New(),
		Reference: charge.Reference,
		Origin:    origin,
		EventType: eventType,
		Payload:   payload,
	})
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("reference", charge.Reference).Msg("failed to record payment event")
	}
}

func newReference() string {
	return "cb_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
