// Package generation draws a random sample, applies the award policy and
// credits the ledger with the result.
package generation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fastprodman/QuantumCredits/internal/clients/randomsource"
	"github.com/fastprodman/QuantumCredits/internal/infra/metrics"
	"github.com/fastprodman/QuantumCredits/internal/services/award"
	"github.com/shopspring/decimal"
)

// Drawer never fails; it degrades to a local sample instead.
type Drawer interface {
	Draw(ctx context.Context) randomsource.Draw
}

type Ledger interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
	Credit(ctx context.Context, amount decimal.Decimal, narrative string) (decimal.Decimal, error)
}

type Result struct {
	Sample   byte            `json:"sample"`
	Fallback bool            `json:"fallback"`
	Awarded  int64           `json:"awarded"`
	Balance  decimal.Decimal `json:"balance"`
}

type Service struct {
	drawer  Drawer
	ledger  Ledger
	metrics *metrics.Metrics
}

func NewService(d Drawer, l Ledger, m *metrics.Metrics) *Service {
	return &Service{drawer: d, ledger: l, metrics: m}
}

// Generate runs one generation. A sample at or below the threshold awards
// nothing and leaves the ledger untouched.
func (s *Service) Generate(ctx context.Context) (Result, error) {
	draw := s.drawer.Draw(ctx)
	s.metrics.ObserveDraw(draw.Fallback)

	res := Result{
		Sample:   draw.Value,
		Fallback: draw.Fallback,
		Awarded:  award.Award(draw.Value),
	}

	if res.Awarded == 0 {
		balance, err := s.ledger.Balance(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("read balance: %w", err)
		}

		res.Balance = balance

		return res, nil
	}

	balance, err := s.ledger.Credit(ctx, decimal.NewFromInt(res.Awarded), narrative(draw))
	if err != nil {
		return Result{}, fmt.Errorf("credit award: %w", err)
	}

	s.metrics.ObserveAward(float64(res.Awarded))

	slog.InfoContext(ctx, "credits generated",
		"sample", draw.Value,
		"fallback", draw.Fallback,
		"awarded", res.Awarded,
	)

	res.Balance = balance

	return res, nil
}

func narrative(d randomsource.Draw) string {
	source := "qrng"
	if d.Fallback {
		source = "fallback"
	}

	return fmt.Sprintf("sample=%d source=%s", d.Value, source)
}
