package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fastprodman/QuantumCredits/internal/clients/randomsource"
	"github.com/fastprodman/QuantumCredits/internal/infra/metrics"
	"github.com/fastprodman/QuantumCredits/internal/repos/kvstore/memory"
	"github.com/fastprodman/QuantumCredits/internal/services/generation"
	"github.com/fastprodman/QuantumCredits/internal/services/ledger"
	"github.com/fastprodman/QuantumCredits/internal/services/notifier"
	"github.com/fastprodman/QuantumCredits/internal/services/withdrawal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

type fixedDrawer byte

func (d fixedDrawer) Draw(context.Context) randomsource.Draw {
	return randomsource.Draw{Value: byte(d)}
}

type gatewayFunc func() (string, error)

func (f gatewayFunc) Transfer(context.Context, withdrawal.Destination, decimal.Decimal) (string, error) {
	return f()
}

type stubWithdrawer struct{ err error }

func (s stubWithdrawer) Withdraw(context.Context, withdrawal.Request) (withdrawal.Receipt, error) {
	return withdrawal.Receipt{}, s.err
}

type testAPI struct {
	handler http.Handler
	ledger  *ledger.Ledger
}

func newTestAPI(t *testing.T, gw withdrawal.Gateway, opts RouterOptions) testAPI {
	t.Helper()

	n := notifier.New()
	l := ledger.New(memory.New(), n)
	m := metrics.New(prometheus.NewRegistry())

	h := NewHandler(l,
		generation.NewService(fixedDrawer(85), l, m),
		withdrawal.NewService(l, gw, m),
		n,
	)

	return testAPI{handler: NewRouter(h, opts), ledger: l}
}

func okGateway() withdrawal.Gateway {
	return gatewayFunc(func() (string, error) { return "po_1", nil })
}

func (a testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequestWithContext(t.Context(), method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	return rec
}

func (a testAPI) seed(t *testing.T, credits int64) {
	t.Helper()

	_, err := a.ledger.Credit(t.Context(), decimal.NewFromInt(credits), "seed")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T

	err := json.Unmarshal(rec.Body.Bytes(), &v)
	if err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}

	return v
}

func withdrawalBody(amount string) string {
	return fmt.Sprintf(`{"name":"Ada Lovelace","email":"ada@example.com","accountNumber":"12345678","routingCode":"123456","amount":%q}`, amount)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := newTestAPI(t, okGateway(), RouterOptions{}).do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestGetBalance_EmptyLedger(t *testing.T) {
	t.Parallel()

	rec := newTestAPI(t, okGateway(), RouterOptions{}).do(t, http.MethodGet, "/credits/balance", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	got := decodeBody[map[string]string](t, rec)
	want := map[string]string{"balance": "0", "monetaryValue": "0", "conversionRate": "1"}

	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s: got %q, want %q", k, got[k], v)
		}
	}
}

func TestGenerateThenList(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t, okGateway(), RouterOptions{})

	rec := a.do(t, http.MethodPost, "/credits/generate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("generate status: got %d", rec.Code)
	}

	res := decodeBody[generation.Result](t, rec)
	if res.Sample != 85 || res.Awarded != 7 || !res.Balance.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("unexpected result: %+v", res)
	}

	rec = a.do(t, http.MethodGet, "/credits/transactions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: got %d", rec.Code)
	}

	list := decodeBody[struct {
		Transactions []ledger.Transaction `json:"transactions"`
	}](t, rec)

	if len(list.Transactions) != 1 || list.Transactions[0].Narrative != "sample=85 source=qrng" {
		t.Fatalf("unexpected transactions: %+v", list.Transactions)
	}
}

func TestListTransactions_EmptyIsArray(t *testing.T) {
	t.Parallel()

	rec := newTestAPI(t, okGateway(), RouterOptions{}).do(t, http.MethodGet, "/credits/transactions", "")

	if body := strings.TrimSpace(rec.Body.String()); body != `{"transactions":[]}` {
		t.Fatalf("body: got %s", body)
	}
}

func TestWithdraw(t *testing.T) {
	t.Parallel()

	failing := gatewayFunc(func() (string, error) { return "", errors.New("declined") })

	cases := []struct {
		name        string
		gateway     withdrawal.Gateway
		body        string
		wantStatus  int
		wantBalance string
	}{
		{name: "completed", gateway: okGateway(), body: withdrawalBody("10"), wantStatus: http.StatusOK, wantBalance: "4"},
		{name: "empty body", gateway: okGateway(), body: "", wantStatus: http.StatusBadRequest, wantBalance: "14"},
		{name: "invalid json", gateway: okGateway(), body: "{", wantStatus: http.StatusBadRequest, wantBalance: "14"},
		{name: "unknown field", gateway: okGateway(), body: `{"iban":"x"}`, wantStatus: http.StatusBadRequest, wantBalance: "14"},
		{name: "validation", gateway: okGateway(), body: withdrawalBody("15"), wantStatus: http.StatusUnprocessableEntity, wantBalance: "14"},
		{name: "payout failed", gateway: failing, body: withdrawalBody("10"), wantStatus: http.StatusBadGateway, wantBalance: "14"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a := newTestAPI(t, tc.gateway, RouterOptions{})
			a.seed(t, 14)

			rec := a.do(t, http.MethodPost, "/credits/withdrawals", tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d (%s)", rec.Code, tc.wantStatus, rec.Body.String())
			}

			bal, err := a.ledger.Balance(t.Context())
			if err != nil {
				t.Fatalf("balance: %v", err)
			}

			if bal.String() != tc.wantBalance {
				t.Fatalf("balance: got %s, want %s", bal, tc.wantBalance)
			}
		})
	}
}

func TestWithdraw_ValidationBody(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t, okGateway(), RouterOptions{})
	a.seed(t, 7)

	rec := a.do(t, http.MethodPost, "/credits/withdrawals", withdrawalBody("10"))

	body := decodeBody[struct {
		Violations []withdrawal.Violation `json:"violations"`
	}](t, rec)

	want := withdrawal.Violation{Field: withdrawal.FieldAmount, Message: "Maximum withdrawal amount is 7."}
	if len(body.Violations) != 1 || body.Violations[0] != want {
		t.Fatalf("violations: got %+v", body.Violations)
	}
}

func TestWriteServiceError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "insufficient balance",
			err:        fmt.Errorf("debit: %w", &ledger.InsufficientBalanceError{Requested: decimal.NewFromInt(10), Available: decimal.NewFromInt(7)}),
			wantStatus: http.StatusConflict,
			wantBody:   `"requested":"10"`,
		},
		{
			name:       "concurrent update",
			err:        fmt.Errorf("debit: %w", ledger.ErrConcurrentUpdate),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "payout",
			err:        &withdrawal.PayoutFailedError{Reference: "ref-1", Refunded: true, Err: errors.New("x")},
			wantStatus: http.StatusBadGateway,
			wantBody:   `"refunded":true`,
		},
		{
			name:       "payout unconfirmed",
			err:        &withdrawal.PayoutUnconfirmedError{Reference: "ref-2", Err: withdrawal.ErrOutcomeUnknown},
			wantStatus: http.StatusBadGateway,
			wantBody:   `"refunded":false`,
		},
		{
			name:       "unknown",
			err:        errors.New("disk on fire"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `"internal error"`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			n := notifier.New()
			l := ledger.New(memory.New(), n)
			h := NewHandler(l, nil, stubWithdrawer{err: tc.err}, n)

			rec := testAPI{handler: NewRouter(h, RouterOptions{})}.do(t, http.MethodPost, "/credits/withdrawals", withdrawalBody("1"))
			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d", rec.Code, tc.wantStatus)
			}

			if !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Fatalf("body %s does not contain %s", rec.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestAdminReset(t *testing.T) {
	t.Parallel()

	disabled := newTestAPI(t, okGateway(), RouterOptions{})
	if rec := disabled.do(t, http.MethodDelete, "/admin/ledger", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("disabled admin: got %d, want 404", rec.Code)
	}

	a := newTestAPI(t, okGateway(), RouterOptions{AdminEnabled: true})
	a.seed(t, 14)

	if rec := a.do(t, http.MethodDelete, "/admin/ledger", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("reset: got %d, want 204", rec.Code)
	}

	bal, _ := a.ledger.Balance(t.Context())
	if !bal.IsZero() {
		t.Fatalf("balance after reset: %s", bal)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SetBalance(14)

	a := newTestAPI(t, okGateway(), RouterOptions{Gatherer: reg})

	rec := a.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "quantum_credits_balance_credits 14") {
		t.Fatalf("balance gauge missing:\n%s", rec.Body.String())
	}
}

func TestStream(t *testing.T) {
	t.Parallel()

	a := newTestAPI(t, okGateway(), RouterOptions{})

	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/credits/events", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: got %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)

	readLine := func() string {
		if !lines.Scan() {
			t.Fatalf("stream ended: %v", lines.Err())
		}

		return lines.Text()
	}

	if got := readLine(); got != ": connected" {
		t.Fatalf("first frame: got %q", got)
	}

	a.seed(t, 7)

	for {
		line := readLine()
		if line == "event: creditsUpdated" {
			break
		}

		if line != "" {
			t.Fatalf("unexpected frame line %q", line)
		}
	}

	if got := readLine(); got != "data: {}" {
		t.Fatalf("data line: got %q", got)
	}
}
