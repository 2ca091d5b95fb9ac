package credit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/carebook/carebook-api/internal/pkg/logger"
)

// Service interface defines the credit service operations
type Service interface {
	// PurchaseCredits grants the plan's credits for a successful payment exactly once.
	// A lost race is reported as a Purchase with AlreadyAllocated set, not an error.
	PurchaseCredits(ctx context.Context, userID, plan, paymentReference string) (*Purchase, error)

	// GetBalance returns the current credit balance for a user
	GetBalance(ctx context.Context, userID string) (int, error)

	// ListTransactions returns paginated transaction history for a user
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]CreditTransaction, error)

	// Catalog returns the configured plans
	Catalog() Catalog
}

// service implements the Service interface
type service struct {
	repo    Repository
	catalog Catalog
}

// NewService creates a new credit service
func NewService(repo Repository, catalog Catalog) Service {
	return &service{
		repo:    repo,
		catalog: catalog,
	}
}

func (s *service) PurchaseCredits(ctx context.Context, userID, plan, paymentReference string) (*Purchase, error) {
	userID = strings.TrimSpace(userID)
	paymentReference = strings.TrimSpace(paymentReference)
	if userID == "" || paymentReference == "" {
		return nil, ErrNotAllocatable
	}

	p, ok := s.catalog.Lookup(plan)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
	}

	log := logger.FromContext(ctx)

	tx, err := s.repo.AllocatePurchase(ctx, userID, p.Name, paymentReference, p.Credits)
	if err != nil {
		if errors.Is(err, ErrAlreadyAllocated) {
			log.Info().
				Str("reference", paymentReference).
				Str("user_id", userID).
				Msg("credits already allocated for payment")
			return &Purchase{Credits: p.Credits, AlreadyAllocated: true}, nil
		}
		return nil, err
	}

	log.Info().
		Str("reference", paymentReference).
		Str("user_id", userID).
		Str("plan", p.Name).
		Int("credits", p.Credits).
		Msg("credits allocated")

	return &Purchase{Transaction: tx, Credits: p.Credits}, nil
}

func (s *service) GetBalance(ctx context.Context, userID string) (int, error) {
	return s.repo.GetBalance(ctx, userID)
}

func (s *service) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]CreditTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.ListTransactions(ctx, userID, Pagination{Limit: limit, Offset: offset})
}

func (s *service) Catalog() Catalog {
	return s.catalog
}
