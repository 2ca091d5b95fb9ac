package payment

import (
	"context"
	"strings"

	"github.com/carebook/carebook-api/internal/pkg/paystack"
)

// InitRequest is what the gateway needs to start a checkout
type InitRequest struct {
	Email     string
	Amount    int64
	Currency  string
	Reference string
	UserID    string
	Plan      string
}

// InitResponse carries the checkout redirect
type InitResponse struct {
	AuthorizationURL string
	Reference        string
}

// Gateway is the payment provider as seen by the reconciler
type Gateway interface {
	Initialize(ctx context.Context, req InitRequest) (*InitResponse, error)
	// Verify reports the charge state. A non-successful charge is a result, not an error.
	Verify(ctx context.Context, reference string) (ChargeResult, error)
}

// PaystackGateway adapts the Paystack client to Gateway
type PaystackGateway struct {
	client      *paystack.Client
	callbackURL string
}

func NewPaystackGateway(client *paystack.Client, callbackURL string) *PaystackGateway {
	return &PaystackGateway{client: client, callbackURL: callbackURL}
}

func (g *PaystackGateway) Initialize(ctx context.Context, req InitRequest) (*InitResponse, error) {
	out, err := g.client.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:       req.Email,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Reference:   req.Reference,
		CallbackURL: g.callbackURL,
		Metadata:    paystack.Metadata{UserID: req.UserID, Plan: req.Plan},
	})
	if err != nil {
		return nil, err
	}
	return &InitResponse{AuthorizationURL: out.AuthorizationURL, Reference: out.Reference}, nil
}

func (g *PaystackGateway) Verify(ctx context.Context, reference string) (ChargeResult, error) {
	tx, err := g.client.VerifyTransaction(ctx, reference)
	if err != nil {
		return ChargeResult{}, err
	}
	return ChargeFromTransaction(*tx), nil
}

// ChargeFromTransaction shapes a Paystack transaction into a ChargeResult
func ChargeFromTransaction(tx paystack.Transaction) ChargeResult {
	return ChargeResult{
		Reference:       strings.TrimSpace(tx.Reference),
		Status:          strings.TrimSpace(tx.Status),
		Amount:          tx.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(tx.Currency)),
		PaidAt:          tx.PaidAt,
		Channel:         tx.Channel,
		GatewayResponse: tx.GatewayResponse,
		UserID:          tx.Metadata.UserID,
		Plan:            tx.Metadata.Plan,
		Email:           strings.TrimSpace(tx.Customer.Email),
	}
}
