//go:build e2e

// Package e2etests drives a running API started with ADMIN_ENABLED=true and
// the simulated payout gateway. Run with: go test -tags e2e ./e2e_tests
package e2etests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

const (
	timeout       = 5 * time.Second
	waitReady     = 20 * time.Second
	maxGenerateTx = 50
)

var httpClient = &http.Client{Timeout: timeout}

func baseURL() string {
	if u := os.Getenv("E2E_BASE_URL"); u != "" {
		return u
	}

	return "http://localhost:8080"
}

type balanceBody struct {
	Balance string `json:"balance"`
}

type generateBody struct {
	Sample  int    `json:"sample"`
	Awarded int64  `json:"awarded"`
	Balance string `json:"balance"`
}

type transactionsBody struct {
	Transactions []struct {
		Kind      string `json:"kind"`
		Credits   string `json:"credits"`
		Narrative string `json:"narrative"`
	} `json:"transactions"`
}

func TestE2E_CreditsFlow(t *testing.T) {
	waitUntilReady(t)

	code, body := do(t, http.MethodDelete, "/admin/ledger", "")
	if code == http.StatusNotFound {
		t.Skip("admin endpoints disabled; start the API with ADMIN_ENABLED=true")
	}

	if code != http.StatusNoContent {
		t.Fatalf("reset: want 204, got %d (%s)", code, body)
	}

	t.Run("initial_balance_zero", func(t *testing.T) {
		if got := getBalance(t); got != "0" {
			t.Fatalf("initial balance: want 0, got %s", got)
		}
	})

	var earned string

	t.Run("generate_until_awarded", func(t *testing.T) {
		for range maxGenerateTx {
			var res generateBody

			code, body := do(t, http.MethodPost, "/credits/generate", "")
			if code != http.StatusOK {
				t.Fatalf("generate: want 200, got %d (%s)", code, body)
			}

			decode(t, body, &res)

			if res.Sample > 70 && res.Awarded != 7 {
				t.Fatalf("sample %d should award 7, got %d", res.Sample, res.Awarded)
			}

			if res.Sample <= 70 && res.Awarded != 0 {
				t.Fatalf("sample %d should award 0, got %d", res.Sample, res.Awarded)
			}

			if res.Awarded > 0 {
				earned = res.Balance
				return
			}
		}

		t.Fatalf("no award in %d generations", maxGenerateTx)
	})

	t.Run("withdraw_above_balance_rejected", func(t *testing.T) {
		code, body := do(t, http.MethodPost, "/credits/withdrawals", withdrawal("1000000"))
		if code != http.StatusUnprocessableEntity {
			t.Fatalf("want 422, got %d (%s)", code, body)
		}

		if got := getBalance(t); got != earned {
			t.Fatalf("balance changed by rejected withdrawal: want %s, got %s", earned, got)
		}
	})

	t.Run("withdraw_invalid_routing_rejected", func(t *testing.T) {
		req := `{"name":"Ada Lovelace","email":"ada@example.com","accountNumber":"12345678","routingCode":"12345","amount":"1"}`

		code, body := do(t, http.MethodPost, "/credits/withdrawals", req)
		if code != http.StatusUnprocessableEntity {
			t.Fatalf("want 422, got %d (%s)", code, body)
		}
	})

	t.Run("withdraw_whole_balance", func(t *testing.T) {
		code, body := do(t, http.MethodPost, "/credits/withdrawals", withdrawal(earned))
		if code != http.StatusOK {
			t.Fatalf("want 200, got %d (%s)", code, body)
		}

		if got := getBalance(t); got != "0" {
			t.Fatalf("balance after withdrawal: want 0, got %s", got)
		}

		var txns transactionsBody

		code, body = do(t, http.MethodGet, "/credits/transactions", "")
		if code != http.StatusOK {
			t.Fatalf("list: want 200, got %d (%s)", code, body)
		}

		decode(t, body, &txns)

		if len(txns.Transactions) < 2 || txns.Transactions[0].Kind != "withdrawal" {
			t.Fatalf("newest transaction should be the withdrawal: %+v", txns.Transactions)
		}

		if !bytes.Contains([]byte(txns.Transactions[0].Narrative), []byte("****5678")) {
			t.Fatalf("narrative should carry the masked account: %q", txns.Transactions[0].Narrative)
		}
	})
}

func withdrawal(amount string) string {
	return fmt.Sprintf(`{"name":"Ada Lovelace","email":"ada@example.com","accountNumber":"12345678","routingCode":"123456","amount":%q}`, amount)
}

func getBalance(t *testing.T) string {
	t.Helper()

	code, body := do(t, http.MethodGet, "/credits/balance", "")
	if code != http.StatusOK {
		t.Fatalf("get balance: want 200, got %d (%s)", code, body)
	}

	var b balanceBody
	decode(t, body, &b)

	return b.Balance
}

func decode(t *testing.T, body string, v any) {
	t.Helper()

	err := json.Unmarshal([]byte(body), v)
	if err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
}

func do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), timeout)
	defer cancel()

	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL()+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)

	return resp.StatusCode, string(b)
}

// waitUntilReady polls /healthz until it answers 200 or waitReady passes.
func waitUntilReady(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), waitReady)
	defer cancel()

	u := baseURL() + "/healthz"

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("service not ready at %s within %s", u, waitReady)
		case <-tick.C:
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)

			resp, err := httpClient.Do(req)
			if err != nil {
				continue
			}

			_ = resp.Body.Close()

			if resp.StatusCode == http.StatusOK {
				return
			}
		}
	}
}
