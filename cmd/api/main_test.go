package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carebook/carebook-api/internal/config"
	"github.com/carebook/carebook-api/internal/domain/credit"
	"github.com/carebook/carebook-api/internal/domain/payment"
	"github.com/carebook/carebook-api/internal/pkg/jwt"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	catalog, err := credit.ParseCatalog("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	creditService := credit.NewService(nil, catalog)
	paymentService := payment.NewService(nil, nil, creditService, payment.Config{WebhookSecret: "whsec"})

	return newRouter(routerDeps{
		cfg:            &config.Config{AllowedOrigins: []string{"http://localhost:3000"}, InitRateLimit: 20},
		jwt:            jwt.NewService("secret", time.Minute),
		paymentHandler: payment.NewHandler(paymentService),
		creditHandler:  credit.NewHandler(creditService),
	})
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{name: "health", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "plans are public", method: http.MethodGet, path: "/credits/plans", want: http.StatusOK},
		{name: "webhook without signature", method: http.MethodPost, path: "/payments/webhook", want: http.StatusUnauthorized},
		{name: "history requires auth", method: http.MethodGet, path: "/payments", want: http.StatusUnauthorized},
		{name: "balance requires auth", method: http.MethodGet, path: "/credits/balance", want: http.StatusUnauthorized},
		{name: "unknown route", method: http.MethodGet, path: "/nope", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rr.Code)
			}
			if rr.Header().Get("X-Request-ID") == "" {
				t.Fatal("expected request id header")
			}
		})
	}
}
