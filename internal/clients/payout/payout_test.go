package payout

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fastprodman/QuantumCredits/internal/services/withdrawal"
	"github.com/shopspring/decimal"
)

var dest = withdrawal.Destination{
	Reference:            "wd-1",
	Name:                 "Ada Lovelace",
	Email:                "ada@example.com",
	AccountNumber:        "12345678",
	RoutingCode:          "123456",
	MaskedAccount:        "****5678",
	FormattedRoutingCode: "12-34-56",
}

func TestHTTPTransfer(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		status      int
		body        string
		wantRef     string
		wantErr     string
		wantUnknown bool
	}{
		{name: "accepted", status: http.StatusOK, body: `{"reference":"po_42"}`, wantRef: "po_42"},
		{name: "rejected with reason", status: http.StatusUnprocessableEntity, body: `{"error":"account closed"}`, wantErr: "account closed"},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantErr: "status 500"},
		{name: "accepted without reference", status: http.StatusOK, body: `{}`, wantErr: "no reference", wantUnknown: true},
		{name: "accepted with garbled body", status: http.StatusOK, body: `{`, wantErr: "decode", wantUnknown: true},
		{name: "accepted with plain text body", status: http.StatusOK, body: `OK`, wantErr: "decode", wantUnknown: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var (
				got    transferRequest
				gotKey string
			)

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method: got %s", r.Method)
				}

				gotKey = r.Header.Get(IdempotencyHeader)

				_ = json.NewDecoder(r.Body).Decode(&got)

				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			ref, err := NewHTTP(srv.URL, "usd", srv.Client()).Transfer(t.Context(), dest, decimal.RequireFromString("12.35"))

			if gotKey != "wd-1" {
				t.Fatalf("idempotency key: got %q, want wd-1", gotKey)
			}

			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("error: got %v, want containing %q", err, tc.wantErr)
				}

				if unknown := errors.Is(err, withdrawal.ErrOutcomeUnknown); unknown != tc.wantUnknown {
					t.Fatalf("outcome unknown: got %v, want %v (%v)", unknown, tc.wantUnknown, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("transfer: %v", err)
			}

			if ref != tc.wantRef {
				t.Fatalf("reference: got %q, want %q", ref, tc.wantRef)
			}

			want := transferRequest{
				Reference:     "wd-1",
				Name:          "Ada Lovelace",
				Email:         "ada@example.com",
				AccountNumber: "12345678",
				RoutingCode:   "123456",
				AmountMinor:   1235,
				Currency:      "usd",
			}
			if got != want {
				t.Fatalf("request: got %+v, want %+v", got, want)
			}
		})
	}
}

func TestHTTPTransferUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTP(url, "usd", nil).Transfer(t.Context(), dest, decimal.NewFromInt(1))
	if err == nil {
		t.Fatal("expected error for closed endpoint")
	}

	if errors.Is(err, withdrawal.ErrOutcomeUnknown) {
		t.Fatalf("refused connection cannot have moved money: %v", err)
	}
}

func TestHTTPTransferTimeoutIsUnknown(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := &http.Client{Timeout: 50 * time.Millisecond}

	_, err := NewHTTP(srv.URL, "usd", client).Transfer(t.Context(), dest, decimal.NewFromInt(1))
	if !errors.Is(err, withdrawal.ErrOutcomeUnknown) {
		t.Fatalf("expected ErrOutcomeUnknown after the request was sent, got %v", err)
	}
}

func TestHTTPTransferRejectsSubCent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"reference":"po_1"}`))
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, "usd", srv.Client()).Transfer(t.Context(), dest, decimal.RequireFromString("1.005"))
	if !errors.Is(err, ErrSubCentAmount) {
		t.Fatalf("expected ErrSubCentAmount, got %v", err)
	}

	if calls.Load() != 0 {
		t.Fatalf("gateway called %d times for a sub-cent amount", calls.Load())
	}
}

func TestSimulatedTransfer(t *testing.T) {
	t.Parallel()

	ref, err := Simulated{}.Transfer(t.Context(), dest, decimal.NewFromInt(7))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if !strings.HasPrefix(ref, "sim_") {
		t.Fatalf("reference: got %q", ref)
	}
}
