package generation_test

import (
	"context"
	"testing"

	"github.com/fastprodman/QuantumCredits/internal/clients/randomsource"
	"github.com/fastprodman/QuantumCredits/internal/infra/metrics"
	"github.com/fastprodman/QuantumCredits/internal/repos/kvstore/memory"
	"github.com/fastprodman/QuantumCredits/internal/services/generation"
	"github.com/fastprodman/QuantumCredits/internal/services/ledger"
	"github.com/fastprodman/QuantumCredits/internal/services/notifier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

type fixedDrawer randomsource.Draw

func (d fixedDrawer) Draw(context.Context) randomsource.Draw {
	return randomsource.Draw(d)
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		draw          randomsource.Draw
		wantAwarded   int64
		wantNarrative string
	}{
		{
			name:          "above threshold",
			draw:          randomsource.Draw{Value: 85},
			wantAwarded:   7,
			wantNarrative: "sample=85 source=qrng",
		},
		{
			name:          "fallback above threshold",
			draw:          randomsource.Draw{Value: 201, Fallback: true},
			wantAwarded:   7,
			wantNarrative: "sample=201 source=fallback",
		},
		{
			name:        "at threshold",
			draw:        randomsource.Draw{Value: 70},
			wantAwarded: 0,
		},
		{
			name:        "zero",
			draw:        randomsource.Draw{Value: 0, Fallback: true},
			wantAwarded: 0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			n := notifier.New()
			l := ledger.New(memory.New(), n)
			m := metrics.New(prometheus.NewRegistry())

			notified := 0
			n.Subscribe(func() { notified++ })

			res, err := generation.NewService(fixedDrawer(tc.draw), l, m).Generate(t.Context())
			if err != nil {
				t.Fatalf("generate: %v", err)
			}

			if res.Sample != tc.draw.Value || res.Fallback != tc.draw.Fallback || res.Awarded != tc.wantAwarded {
				t.Fatalf("unexpected result: %+v", res)
			}

			if !res.Balance.Equal(decimal.NewFromInt(tc.wantAwarded)) {
				t.Fatalf("balance: got %s, want %d", res.Balance, tc.wantAwarded)
			}

			txns, err := l.Transactions(t.Context())
			if err != nil {
				t.Fatalf("transactions: %v", err)
			}

			if tc.wantAwarded == 0 {
				if len(txns) != 0 || notified != 0 {
					t.Fatalf("zero award touched the ledger: %d txns, %d notifications", len(txns), notified)
				}

				return
			}

			if len(txns) != 1 || txns[0].Narrative != tc.wantNarrative || txns[0].Kind != ledger.KindGeneration {
				t.Fatalf("unexpected transactions: %+v", txns)
			}

			if notified != 1 {
				t.Fatalf("notifications: got %d, want 1", notified)
			}

			source := "qrng"
			if tc.draw.Fallback {
				source = "fallback"
			}

			if got := testutil.ToFloat64(m.Draws.WithLabelValues(source)); got != 1 {
				t.Fatalf("draws{source=%s}: got %v", source, got)
			}

			if got := testutil.ToFloat64(m.CreditsAwarded); got != 7 {
				t.Fatalf("credits awarded: got %v", got)
			}
		})
	}
}
