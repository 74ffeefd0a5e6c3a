package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/fastprodman/QuantumCredits/internal/services/withdrawal"
	"github.com/shopspring/decimal"
)

// IdempotencyHeader carries the withdrawal reference so a retried or
// reconciled transfer is executed at most once by the gateway.
const IdempotencyHeader = "Idempotency-Key"

// ErrSubCentAmount is returned, before anything is sent, for amounts that
// cannot be paid in whole minor units.
var ErrSubCentAmount = errors.New("amount is not a whole number of cents")

// HTTP posts transfers to a payout endpoint as JSON. The amount is sent in
// minor units (cents).
type HTTP struct {
	url      string
	currency string
	client   *http.Client
}

type transferRequest struct {
	Reference     string `json:"reference"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	AccountNumber string `json:"account_number"`
	RoutingCode   string `json:"routing_code"`
	AmountMinor   int64  `json:"amount_minor"`
	Currency      string `json:"currency"`
}

type transferResponse struct {
	Reference string `json:"reference"`
	Error     string `json:"error"`
}

func NewHTTP(url, currency string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTP{url: url, currency: currency, client: client}
}

// Transfer returns an error wrapping withdrawal.ErrOutcomeUnknown whenever
// the request may have reached the gateway without a readable answer: a
// transport failure after dialing, or a 2xx whose body has no reference.
// A non-2xx status or a failure to connect means no money moved.
func (h *HTTP) Transfer(ctx context.Context, dest withdrawal.Destination, amount decimal.Decimal) (string, error) {
	minor := amount.Shift(2)
	if !minor.IsInteger() {
		return "", fmt.Errorf("transfer %s: %w", amount, ErrSubCentAmount)
	}

	body, err := json.Marshal(transferRequest{
		Reference:     dest.Reference,
		Name:          dest.Name,
		Email:         dest.Email,
		AccountNumber: dest.AccountNumber,
		RoutingCode:   dest.RoutingCode,
		AmountMinor:   minor.IntPart(),
		Currency:      h.currency,
	})
	if err != nil {
		return "", fmt.Errorf("marshal transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, dest.Reference)

	resp, err := h.client.Do(req)
	if err != nil {
		if notSent(err) {
			return "", fmt.Errorf("post transfer: %w", err)
		}

		return "", fmt.Errorf("post transfer: %w: %w", withdrawal.ErrOutcomeUnknown, err)
	}
	defer resp.Body.Close()

	var out transferResponse

	derr := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if out.Error != "" {
			return "", fmt.Errorf("payout rejected (status %d): %s", resp.StatusCode, out.Error)
		}

		return "", fmt.Errorf("payout rejected: status %d", resp.StatusCode)
	}

	if derr != nil {
		return "", fmt.Errorf("status %d, decode transfer response: %w: %w", resp.StatusCode, withdrawal.ErrOutcomeUnknown, derr)
	}

	if out.Reference == "" {
		return "", fmt.Errorf("status %d, response has no reference: %w", resp.StatusCode, withdrawal.ErrOutcomeUnknown)
	}

	return out.Reference, nil
}

// notSent reports transport errors raised before the request could be
// written, which leave the gateway untouched.
func notSent(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	var dnsErr *net.DNSError

	return errors.As(err, &dnsErr)
}
