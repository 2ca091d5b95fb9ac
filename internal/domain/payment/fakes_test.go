package payment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/carebook/carebook-api/internal/domain/credit"
	"github.com/carebook/carebook-api/internal/pkg/paystack"
)

// fakeStore backs both the payment ledger and the credit allocator.
// The mutex stands in for the database's row-level atomicity.
type fakeStore struct {
	mu       sync.Mutex
	payments map[string]*Payment
	balances map[string]int
	ledger   []credit.CreditTransaction
	events   []Event

	getCalls    int
	upsertCalls int
	insertErr   error
	upsertErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments: map[string]*Payment{},
		balances: map[string]int{"u1": 0},
	}
}

func (f *fakeStore) InsertPending(_ context.Context, p *Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.payments[p.Reference]; ok {
		return nil
	}
	cp := *p
	cp.Status = StatusPending
	f.payments[p.Reference] = &cp
	return nil
}

func (f *fakeStore) GetByReference(_ context.Context, reference string) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	p, ok := f.payments[reference]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) Upsert(_ context.Context, p *Payment) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}

	cur, ok := f.payments[p.Reference]
	if !ok {
		cp := *p
		cp.CreditsAllocated = false
		f.payments[p.Reference] = &cp
		out := cp
		return &out, nil
	}

	if !cur.UserID.Valid {
		cur.UserID = p.UserID
	}
	if !cur.Email.Valid {
		cur.Email = p.Email
	}
	if !cur.Plan.Valid {
		cur.Plan = p.Plan
	}
	if cur.Status == StatusPending {
		cur.Status = p.Status
		cur.Amount = p.Amount
		cur.Currency = p.Currency
		cur.Channel = p.Channel
		cur.GatewayCode = p.GatewayCode
		cur.GatewayMessage = p.GatewayMessage
		cur.PaidAt = p.PaidAt
		cur.UpdatedAt = p.UpdatedAt
	}
	out := *cur
	return &out, nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID string, limit, offset int) ([]*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Payment, 0)
	for _, p := range f.payments {
		if p.UserID.String == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) RecordEvent(_ context.Context, ev *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *ev)
	return nil
}

func (f *fakeStore) AllocatePurchase(_ context.Context, userID, plan, ref string, credits int) (*credit.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.payments[ref]
	if !ok || p.Status != StatusSuccess {
		return nil, credit.ErrNotAllocatable
	}
	if p.CreditsAllocated {
		return nil, credit.ErrAlreadyAllocated
	}
	if _, ok := f.balances[userID]; !ok {
		return nil, credit.ErrUserNotFound
	}

	p.CreditsAllocated = true
	f.balances[userID] += credits
	r, pl := ref, plan
	tx := credit.CreditTransaction{
		UserID:           userID,
		AmountDelta:      credits,
		TxType:           string(credit.TxTypePurchase),
		PaymentReference: &r,
		Plan:             &pl,
	}
	f.ledger = append(f.ledger, tx)
	return &tx, nil
}

func (f *fakeStore) GetBalance(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[userID]
	if !ok {
		return 0, credit.ErrUserNotFound
	}
	return b, nil
}

func (f *fakeStore) ListTransactions(_ context.Context, userID string, _ credit.Pagination) ([]credit.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]credit.CreditTransaction, 0)
	for _, tx := range f.ledger {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeStore) purchasesFor(ref string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, tx := range f.ledger {
		if tx.PaymentReference != nil && *tx.PaymentReference == ref && tx.TxType == string(credit.TxTypePurchase) {
			n++
		}
	}
	return n
}

func (f *fakeStore) payment(ref string) *Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[ref]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (f *fakeStore) balance(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID]
}

type fakeGateway struct {
	mu        sync.Mutex
	charges   map[string]ChargeResult
	initErr   error
	verifyErr error
	authURL   string
	lastInit  InitRequest
	initCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{charges: map[string]ChargeResult{}, authURL: "https://checkout.paystack.com/abc"}
}

func (g *fakeGateway) Initialize(_ context.Context, req InitRequest) (*InitResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls++
	g.lastInit = req
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &InitResponse{AuthorizationURL: g.authURL, Reference: req.Reference}, nil
}

func (g *fakeGateway) Verify(_ context.Context, reference string) (ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return ChargeResult{}, g.verifyErr
	}
	c, ok := g.charges[reference]
	if !ok {
		return ChargeResult{}, &paystack.GatewayError{Op: "verify", StatusCode: 404, Err: errors.New("not found")}
	}
	return c, nil
}

const testWebhookSecret = "whsec_test"

func testCatalog() credit.Catalog {
	c, _ := credit.ParseCatalog(credit.DefaultCatalog)
	return c
}

func newTestService(store *fakeStore, gw Gateway) *Service {
	svc := NewService(store, gw, credit.NewService(store, testCatalog()), Config{
		WebhookSecret: testWebhookSecret,
		Currency:      "NGN",
	})
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func successCharge(ref string) ChargeResult {
	paid := time.Date(2024, 5, 1, 11, 59, 0, 0, time.UTC)
	return ChargeResult{
		Reference:       ref,
		Status:          "success",
		Amount:          10000,
		Currency:        "NGN",
		PaidAt:          &paid,
		Channel:         "card",
		GatewayResponse: "Approved",
		UserID:          "u1",
		Plan:            "standard",
	}
}

func pendingPayment(ref string) *Payment {
	return &Payment{
		Reference: ref,
		UserID:    nullString("u1"),
		Email:     nullString("a@x.com"),
		Amount:    10000,
		Currency:  "NGN",
		Plan:      nullString("standard"),
		Status:    StatusPending,
		Provider:  ProviderPaystack,
		Source:    string(OriginInit),
	}
}

func webhookBody(event string, c ChargeResult) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"event": event,
		"data": map[string]interface{}{
			"reference":        c.Reference,
			"status":           c.Status,
			"amount":           c.Amount,
			"currency":         c.Currency,
			"channel":          c.Channel,
			"gateway_response": c.GatewayResponse,
			"metadata":         map[string]string{"userId": c.UserID, "plan": c.Plan},
		},
	})
	return body
}
