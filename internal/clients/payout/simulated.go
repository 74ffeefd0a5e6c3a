// Package payout moves money for completed withdrawals.
package payout

import (
	"context"
	"log/slog"

	"github.com/fastprodman/QuantumCredits/internal/services/withdrawal"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	_ withdrawal.Gateway = (*Simulated)(nil)
	_ withdrawal.Gateway = (*HTTP)(nil)
)

// Simulated accepts every transfer without moving money. It stands in for
// a processor in development.
type Simulated struct{}

func (Simulated) Transfer(ctx context.Context, dest withdrawal.Destination, amount decimal.Decimal) (string, error) {
	ref := "sim_" + uuid.NewString()

	slog.InfoContext(ctx, "simulated bank transfer",
		"reference", ref,
		"withdrawal", dest.Reference,
		"amount", amount.StringFixed(2),
		"account", dest.MaskedAccount,
		"routing_code", dest.FormattedRoutingCode,
	)

	return ref, nil
}
