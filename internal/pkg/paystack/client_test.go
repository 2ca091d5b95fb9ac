package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, SecretKey: "sk_test", RetryMax: 0})
}

func TestInitializeTransaction_Success(t *testing.T) {
	var got InitializeRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/initialize" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			t.Errorf("missing bearer secret, got %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://checkout/x","access_code":"ac","reference":"cb_1"}}`))
	})

	out, err := client.InitializeTransaction(context.Background(), InitializeRequest{
		Email:     "a@x.com",
		Amount:    10000,
		Reference: "cb_1",
		Metadata:  Metadata{UserID: "u1", Plan: "standard"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.AuthorizationURL != "https://checkout/x" || out.Reference != "cb_1" {
		t.Fatalf("unexpected response: %+v", out)
	}
	if got.Metadata.UserID != "u1" || got.Metadata.Plan != "standard" || got.Amount != 10000 {
		t.Fatalf("request not forwarded correctly: %+v", got)
	}
}

func TestInitializeTransaction_MissingAuthorizationURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"reference":"cb_1"}}`))
	})

	_, err := client.InitializeTransaction(context.Background(), InitializeRequest{Email: "a@x.com", Amount: 100})
	if !errors.Is(err, ErrMissingAuthorizationURL) {
		t.Fatalf("expected ErrMissingAuthorizationURL, got %v", err)
	}
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %T", err)
	}
}

func TestClient_NotConfigured(t *testing.T) {
	client := NewClient(Config{})
	if _, err := client.VerifyTransaction(context.Background(), "ref"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := client.InitializeTransaction(context.Background(), InitializeRequest{Email: "a@x.com", Amount: 1}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestVerifyTransaction_Non2xx(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
	})

	_, err := client.VerifyTransaction(context.Background(), "missing")
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected GatewayError with 400, got %v", err)
	}
}

func TestVerifyTransaction_StatusFalseEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":false,"message":"nope"}`))
	})

	_, err := client.VerifyTransaction(context.Background(), "r")
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
}

func TestVerifyTransaction_DecodesMetadataShapes(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
		wantUser string
		wantPlan string
	}{
		{name: "object", metadata: `{"userId":"u1","plan":"standard"}`, wantUser: "u1", wantPlan: "standard"},
		{name: "encoded string", metadata: `"{\"user_id\":\"u2\",\"plan\":\"basic\"}"`, wantUser: "u2", wantPlan: "basic"},
		{name: "empty string", metadata: `""`},
		{name: "null", metadata: `null`},
		{name: "numeric user", metadata: `{"userId":42,"plan":"premium"}`, wantUser: "42", wantPlan: "premium"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/transaction/verify/ref_1" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"reference":"ref_1","status":"success","amount":10000,"currency":"NGN","paid_at":"2024-01-02T03:04:05Z","gateway_response":"Approved","metadata":` + tt.metadata + `}}`))
			})

			tx, err := client.VerifyTransaction(context.Background(), "ref_1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tx.Status != "success" || tx.Amount != 10000 || tx.PaidAt == nil {
				t.Fatalf("unexpected transaction: %+v", tx)
			}
			if tx.Metadata.UserID != tt.wantUser || tx.Metadata.Plan != tt.wantPlan {
				t.Fatalf("metadata = %+v, want user=%q plan=%q", tx.Metadata, tt.wantUser, tt.wantPlan)
			}
		})
	}
}
