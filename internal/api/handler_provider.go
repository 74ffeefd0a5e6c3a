package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/fastprodman/QuantumCredits/internal/services/generation"
	"github.com/fastprodman/QuantumCredits/internal/services/ledger"
	"github.com/fastprodman/QuantumCredits/internal/services/notifier"
	"github.com/fastprodman/QuantumCredits/internal/services/withdrawal"
	"github.com/shopspring/decimal"
)

type Ledger interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
	Transactions(ctx context.Context) ([]ledger.Transaction, error)
	Reset(ctx context.Context) error
	ConversionRate() decimal.Decimal
}

type Generator interface {
	Generate(ctx context.Context) (generation.Result, error)
}

type Withdrawer interface {
	Withdraw(ctx context.Context, req withdrawal.Request) (withdrawal.Receipt, error)
}

// HandlerProvider exposes the credits services over HTTP.
type HandlerProvider struct {
	ledger     Ledger
	generator  Generator
	withdrawer Withdrawer
	notifier   *notifier.Notifier
}

func NewHandler(l Ledger, g Generator, w Withdrawer, n *notifier.Notifier) *HandlerProvider {
	return &HandlerProvider{
		ledger:     l,
		generator:  g,
		withdrawer: w,
		notifier:   n,
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors to status codes. Anything unknown is
// logged and reported as 500 without details.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		insufficient *ledger.InsufficientBalanceError
		invalid      *withdrawal.ValidationError
		payout       *withdrawal.PayoutFailedError
		unconfirmed  *withdrawal.PayoutUnconfirmedError
	)

	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "validation failed",
			"violations": invalid.Violations,
		})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "insufficient balance",
			"requested": insufficient.Requested,
			"available": insufficient.Available,
		})
	case errors.As(err, &unconfirmed):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":     "payout unconfirmed, withdrawal held for reconciliation",
			"reference": unconfirmed.Reference,
			"refunded":  false,
		})
	case errors.As(err, &payout):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":     "payout failed",
			"reference": payout.Reference,
			"refunded":  payout.Refunded,
		})
	case errors.Is(err, ledger.ErrConcurrentUpdate):
		writeError(w, http.StatusServiceUnavailable, "ledger busy, retry")
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// --- Handlers ---

type balanceResponse struct {
	Balance        decimal.Decimal `json:"balance"`
	MonetaryValue  decimal.Decimal `json:"monetaryValue"`
	ConversionRate decimal.Decimal `json:"conversionRate"`
}

// GetBalanceHandler handles GET /credits/balance
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	bal, err := h.ledger.Balance(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	rate := h.ledger.ConversionRate()

	writeJSON(w, http.StatusOK, balanceResponse{
		Balance:        bal,
		MonetaryValue:  bal.Mul(rate),
		ConversionRate: rate,
	})
}

// ListTransactionsHandler handles GET /credits/transactions
func (h *HandlerProvider) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	txns, err := h.ledger.Transactions(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

// GenerateHandler handles POST /credits/generate
func (h *HandlerProvider) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.generator.Generate(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// WithdrawHandler handles POST /credits/withdrawals
func (h *HandlerProvider) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	var req withdrawal.Request

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(&req)
	if err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "empty body")
			return
		}

		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	receipt, err := h.withdrawer.Withdraw(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// ResetHandler handles DELETE /admin/ledger
func (h *HandlerProvider) ResetHandler(w http.ResponseWriter, r *http.Request) {
	err := h.ledger.Reset(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
