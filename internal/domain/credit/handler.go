package credit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/carebook/carebook-api/internal/middleware"
	"github.com/carebook/carebook-api/internal/pkg/errorhandler"
	"github.com/carebook/carebook-api/internal/pkg/response"
)

// Handler exposes a user's credit balance and ledger
type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type BalanceResponse struct {
	Balance int `json:"balance"`
}

type TransactionsResponse struct {
	Items  []CreditTransaction `json:"items"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// Balance handles GET /credits/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.NotFound(w, "User not found")
			return
		}
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load balance", err)
		return
	}

	response.OK(w, BalanceResponse{Balance: balance})
}

// Transactions handles GET /credits/transactions
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	items, err := h.service.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load transactions", err)
		return
	}

	response.OK(w, TransactionsResponse{Items: items, Limit: limit, Offset: offset})
}

// Plans handles GET /credits/plans
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.service.Catalog().Plans())
}

// Routes returns credit routes. Balance and history require a bearer identity.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/plans", h.Plans)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/balance", h.Balance)
		r.Get("/transactions", h.Transactions)
	})
	return r
}
