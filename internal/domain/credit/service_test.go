package credit

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakePayment struct {
	status    string
	allocated bool
}

// fakeRepo emulates the conditional update with a mutex
type fakeRepo struct {
	mu       sync.Mutex
	payments map[string]*fakePayment
	balances map[string]int
	ledger   []CreditTransaction
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		payments: map[string]*fakePayment{},
		balances: map[string]int{},
	}
}

func (f *fakeRepo) AllocatePurchase(_ context.Context, userID, plan, ref string, credits int) (*CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.payments[ref]
	if !ok || p.status != "SUCCESS" {
		return nil, ErrNotAllocatable
	}
	if p.allocated {
		return nil, ErrAlreadyAllocated
	}
	if _, ok := f.balances[userID]; !ok {
		return nil, ErrUserNotFound
	}

	p.allocated = true
	f.balances[userID] += credits
	r, pl := ref, plan
	tx := CreditTransaction{UserID: userID, AmountDelta: credits, TxType: string(TxTypePurchase), PaymentReference: &r, Plan: &pl}
	f.ledger = append(f.ledger, tx)
	return &tx, nil
}

func (f *fakeRepo) GetBalance(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return b, nil
}

func (f *fakeRepo) ListTransactions(_ context.Context, userID string, p Pagination) ([]CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CreditTransaction, 0)
	for _, tx := range f.ledger {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func testCatalog() Catalog {
	c, _ := ParseCatalog(DefaultCatalog)
	return c
}

func TestPurchaseCredits_GrantsPlanCredits(t *testing.T) {
	repo := newFakeRepo()
	repo.balances["u1"] = 0
	repo.payments["ref1"] = &fakePayment{status: "SUCCESS"}
	svc := NewService(repo, testCatalog())

	purchase, err := svc.PurchaseCredits(context.Background(), "u1", "standard", "ref1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if purchase.AlreadyAllocated || purchase.Credits != 10 || purchase.Transaction == nil {
		t.Fatalf("unexpected purchase: %+v", purchase)
	}

	balance, _ := svc.GetBalance(context.Background(), "u1")
	if balance != 10 {
		t.Fatalf("expected balance 10, got %d", balance)
	}
}

func TestPurchaseCredits_SecondCallIsAlreadyAllocated(t *testing.T) {
	repo := newFakeRepo()
	repo.balances["u1"] = 0
	repo.payments["ref1"] = &fakePayment{status: "SUCCESS"}
	svc := NewService(repo, testCatalog())

	if _, err := svc.PurchaseCredits(context.Background(), "u1", "basic", "ref1"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	purchase, err := svc.PurchaseCredits(context.Background(), "u1", "basic", "ref1")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !purchase.AlreadyAllocated {
		t.Fatal("expected AlreadyAllocated on replay")
	}
	if len(repo.ledger) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(repo.ledger))
	}
}

func TestPurchaseCredits_Errors(t *testing.T) {
	repo := newFakeRepo()
	repo.balances["u1"] = 0
	repo.payments["ok"] = &fakePayment{status: "SUCCESS"}
	repo.payments["pending"] = &fakePayment{status: "PENDING"}
	svc := NewService(repo, testCatalog())

	tests := []struct {
		name    string
		userID  string
		plan    string
		ref     string
		wantErr error
	}{
		{name: "unknown plan", userID: "u1", plan: "gold", ref: "ok", wantErr: ErrUnknownPlan},
		{name: "unknown user", userID: "ghost", plan: "basic", ref: "ok", wantErr: ErrUserNotFound},
		{name: "not successful", userID: "u1", plan: "basic", ref: "pending", wantErr: ErrNotAllocatable},
		{name: "empty reference", userID: "u1", plan: "basic", ref: "", wantErr: ErrNotAllocatable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PurchaseCredits(context.Background(), tt.userID, tt.plan, tt.ref)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if repo.payments["ok"].allocated {
		t.Fatal("failed allocation must not leave the marker set")
	}
}

func TestPurchaseCredits_ConcurrentSingleGrant(t *testing.T) {
	repo := newFakeRepo()
	repo.balances["u1"] = 0
	repo.payments["ref1"] = &fakePayment{status: "SUCCESS"}
	svc := NewService(repo, testCatalog())

	const goroutines = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := svc.PurchaseCredits(context.Background(), "u1", "premium", "ref1")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if !p.AlreadyAllocated {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 1 {
		t.Fatalf("expected exactly one grant, got %d", granted)
	}
	if balance, _ := svc.GetBalance(context.Background(), "u1"); balance != 30 {
		t.Fatalf("expected balance 30, got %d", balance)
	}
}
