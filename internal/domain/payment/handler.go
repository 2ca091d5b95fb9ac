package payment

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carebook/carebook-api/internal/domain/credit"
	"github.com/carebook/carebook-api/internal/middleware"
	"github.com/carebook/carebook-api/internal/pkg/errorhandler"
	"github.com/carebook/carebook-api/internal/pkg/paystack"
	"github.com/carebook/carebook-api/internal/pkg/response"
	"github.com/carebook/carebook-api/internal/pkg/validator"
)

const maxWebhookBody = 1 << 20

// Handler handles payment HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates payment handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type InitRequestBody struct {
	Email  string `json:"email" validate:"required,email,max=254"`
	UserID string `json:"userId" validate:"required,max=128"`
	Plan   string `json:"plan" validate:"required,plan"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
}

type VerifyRequestBody struct {
	Reference string `json:"reference"`
}

type VerifyResponse struct {
	Success          bool   `json:"success"`
	Reference        string `json:"reference"`
	AlreadyAllocated bool   `json:"alreadyAllocated,omitempty"`
}

// PaymentResponse is the client view of a ledger row
type PaymentResponse struct {
	Reference        string     `json:"reference"`
	Status           Status     `json:"status"`
	Amount           int64      `json:"amount"`
	Currency         string     `json:"currency"`
	Plan             string     `json:"plan,omitempty"`
	Channel          string     `json:"channel,omitempty"`
	GatewayMessage   string     `json:"gatewayMessage,omitempty"`
	CreditsAllocated bool       `json:"creditsAllocated"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func newPaymentResponse(p *Payment) PaymentResponse {
	out := PaymentResponse{
		Reference:        p.Reference,
		Status:           p.Status,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Plan:             p.Plan.String,
		Channel:          p.Channel.String,
		GatewayMessage:   p.GatewayMessage.String,
		CreditsAllocated: p.CreditsAllocated,
		CreatedAt:        p.CreatedAt,
	}
	if p.PaidAt.Valid {
		t := p.PaidAt.Time
		out.PaidAt = &t
	}
	return out
}

// Init handles POST /payments/init
func (h *Handler) Init(w http.ResponseWriter, r *http.Request) {
	var req InitRequestBody
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.UserID = strings.TrimSpace(req.UserID)
	req.Plan = strings.ToLower(strings.TrimSpace(req.Plan))

	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	if uid := middleware.GetUserID(r.Context()); uid != "" && uid != req.UserID {
		errorhandler.LogSecurityEvent(r.Context(), r, "payment init for another user")
		response.Forbidden(w, "Cannot initialize payment for another user")
		return
	}

	out, err := h.service.InitPayment(r.Context(), InitPaymentRequest{
		Email:  req.Email,
		UserID: req.UserID,
		Plan:   req.Plan,
		Amount: req.Amount,
	})
	if err != nil {
		h.writeError(w, r, "initialize", err)
		return
	}

	response.OK(w, out)
}

// Verify handles POST /payments/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequestBody
	if r.ContentLength != 0 {
		if err := response.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
			response.BadRequest(w, "Invalid request body")
			return
		}
	}
	if strings.TrimSpace(req.Reference) == "" {
		req.Reference = r.URL.Query().Get("reference")
	}

	outcome, err := h.service.VerifyPayment(r.Context(), req.Reference)
	if err != nil {
		h.writeError(w, r, "verify", err)
		return
	}

	response.OK(w, VerifyResponse{
		Success:          true,
		Reference:        outcome.Payment.Reference,
		AlreadyAllocated: outcome.AlreadyAllocated,
	})
}

// Webhook handles POST /payments/webhook. The body is read raw for signature checks.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	err = h.service.HandleWebhook(r.Context(), body, r.Header.Get(paystack.SignatureHeader))
	switch {
	case errors.Is(err, ErrSignatureMissing):
		errorhandler.LogSecurityEvent(r.Context(), r, "webhook signature missing")
		response.Unauthorized(w, "Missing signature")
		return
	case errors.Is(err, ErrSignatureMismatch):
		errorhandler.LogSecurityEvent(r.Context(), r, "webhook signature mismatch")
		response.Forbidden(w, "Invalid signature")
		return
	case err != nil:
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Webhook processing failed", err)
		return
	}

	response.OK(w, map[string]bool{"ok": true})
}

// List handles GET /payments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	payments, err := h.service.History(r.Context(), userID, limit, offset)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load payments", err)
		return
	}

	items := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		items = append(items, newPaymentResponse(p))
	}
	response.OK(w, map[string]interface{}{"items": items})
}

// Get handles GET /payments/{reference}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	p, err := h.service.GetForUser(r.Context(), userID, chi.URLParam(r, "reference"))
	if err != nil {
		h.writeError(w, r, "get", err)
		return
	}
	response.OK(w, newPaymentResponse(p))
}

// Routes returns payment routes. init takes an optional identity and a rate
// limiter; verify and webhook are public; history requires a bearer identity.
func (h *Handler) Routes(authMiddleware, optionalAuth, initLimiter func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.With(initLimiter, optionalAuth).Post("/init", h.Init)
	r.Post("/verify", h.Verify)
	r.Post("/webhook", h.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.List)
		r.Get("/{reference}", h.Get)
	})

	return r
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	var gwErr *paystack.GatewayError

	switch {
	case errors.Is(err, ErrMissingReference):
		response.Error(w, http.StatusBadRequest, "MISSING_REFERENCE", "Missing reference")
	case errors.Is(err, paystack.ErrNotConfigured):
		errorhandler.HandleError(ctx, w, http.StatusInternalServerError, "PROVIDER_NOT_CONFIGURED", "Payment provider is not configured", err)
	case errors.Is(err, paystack.ErrMissingAuthorizationURL):
		errorhandler.HandleError(ctx, w, http.StatusInternalServerError, "MISSING_AUTHORIZATION_URL", "Payment provider returned no authorization URL", err)
	case errors.As(err, &gwErr):
		errorhandler.LogExternalServiceError(ctx, "paystack", op, gwErr.StatusCode, err, gwErr.Body)
		response.Error(w, http.StatusBadGateway, "GATEWAY_ERROR", "Payment provider request failed")
	case errors.Is(err, ErrPaymentNotSuccessful):
		response.Error(w, http.StatusBadRequest, "PAYMENT_NOT_SUCCESSFUL", "Payment not successful")
	case errors.Is(err, ErrIncompleteMetadata):
		response.Error(w, http.StatusBadRequest, "INCOMPLETE_METADATA", "Payment metadata is incomplete")
	case errors.Is(err, ErrAmountMismatch):
		response.Error(w, http.StatusBadRequest, "AMOUNT_MISMATCH", "Charged amount does not match payment")
	case errors.Is(err, ErrMetadataMismatch):
		response.Error(w, http.StatusBadRequest, "METADATA_MISMATCH", "Payment metadata does not match")
	case errors.Is(err, ErrPlanPriceMismatch):
		response.Error(w, http.StatusBadRequest, "INVALID_AMOUNT", "Amount does not match plan price")
	case errors.Is(err, credit.ErrUnknownPlan):
		response.Error(w, http.StatusBadRequest, "UNKNOWN_PLAN", "Unknown plan")
	case errors.Is(err, credit.ErrUserNotFound):
		response.NotFound(w, "User not found")
	case errors.Is(err, ErrPaymentNotFound):
		response.NotFound(w, "Payment not found")
	case errors.Is(err, ErrAllocationFailed):
		errorhandler.HandleError(ctx, w, http.StatusInternalServerError, "ALLOCATION_FAILED", "Credit allocation failed", err)
	case errors.Is(err, ErrLedgerWrite):
		errorhandler.HandleError(ctx, w, http.StatusInternalServerError, "LEDGER_WRITE_FAILED", "Failed to record payment", err)
	default:
		errorhandler.HandleError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", err)
	}
}
