// Package withdrawal validates withdrawal requests and turns them into a
// ledger debit followed by a bank transfer.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fastprodman/QuantumCredits/internal/infra/metrics"
	"github.com/fastprodman/QuantumCredits/internal/services/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is the part of the ledger a withdrawal needs.
type Ledger interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
	Debit(ctx context.Context, amount decimal.Decimal, narrative string) (decimal.Decimal, error)
	Credit(ctx context.Context, amount decimal.Decimal, narrative string) (decimal.Decimal, error)
	ConversionRate() decimal.Decimal
}

// Destination is where a payout goes. The raw fields are for the gateway
// only; anything logged or stored uses the masked/formatted ones.
// Reference identifies the withdrawal and doubles as the gateway's
// idempotency key.
type Destination struct {
	Reference            string
	Name                 string
	Email                string
	AccountNumber        string
	RoutingCode          string
	MaskedAccount        string
	FormattedRoutingCode string
}

// Gateway performs the real-world transfer and returns its reference.
// An error means no money moved, unless it wraps ErrOutcomeUnknown.
type Gateway interface {
	Transfer(ctx context.Context, dest Destination, amount decimal.Decimal) (string, error)
}

type Receipt struct {
	Reference       string          `json:"reference"`
	Amount          decimal.Decimal `json:"amount"`
	MonetaryValue   decimal.Decimal `json:"monetaryValue"`
	Balance         decimal.Decimal `json:"balance"`
	MaskedAccount   string          `json:"maskedAccount"`
	RoutingCode     string          `json:"routingCode"`
	PayoutReference string          `json:"payoutReference"`
}

type Service struct {
	ledger  Ledger
	gateway Gateway
	metrics *metrics.Metrics
}

func NewService(l Ledger, g Gateway, m *metrics.Metrics) *Service {
	return &Service{ledger: l, gateway: g, metrics: m}
}

// Withdraw validates req against the live balance, debits the ledger and
// asks the gateway to move the money. When the transfer fails the debit is
// reversed with a compensating credit and a *PayoutFailedError returned.
// When the gateway cannot say whether money moved, the debit stands and a
// *PayoutUnconfirmedError is returned instead.
func (s *Service) Withdraw(ctx context.Context, req Request) (Receipt, error) {
	balance, err := s.ledger.Balance(ctx)
	if err != nil {
		s.metrics.ObserveWithdrawal(metrics.OutcomeError, 0)
		return Receipt{}, fmt.Errorf("read balance: %w", err)
	}

	v, err := Validate(req, balance)
	if err != nil {
		s.metrics.ObserveWithdrawal(metrics.OutcomeInvalid, 0)
		return Receipt{}, err
	}

	monetary := v.Amount.Mul(s.ledger.ConversionRate())
	if !monetary.Equal(monetary.Truncate(maxAmountPlaces)) {
		s.metrics.ObserveWithdrawal(metrics.OutcomeInvalid, 0)

		return Receipt{}, &ValidationError{Violations: []Violation{{
			Field:   FieldAmount,
			Message: "Amount does not convert to whole cents at the current rate.",
		}}}
	}

	ref := uuid.NewString()
	dest := Destination{
		Reference:            ref,
		Name:                 v.Name,
		Email:                v.Email,
		AccountNumber:        v.AccountNumber,
		RoutingCode:          v.RoutingCode,
		MaskedAccount:        MaskAccount(v.AccountNumber),
		FormattedRoutingCode: FormatRoutingCode(v.RoutingCode),
	}

	narrative := fmt.Sprintf("Bank transfer to %s, Account: %s, Routing: %s, Ref: %s",
		dest.Name, dest.MaskedAccount, dest.FormattedRoutingCode, ref)

	newBalance, err := s.ledger.Debit(ctx, v.Amount, narrative)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			s.metrics.ObserveWithdrawal(metrics.OutcomeInsufficient, 0)
		} else {
			s.metrics.ObserveWithdrawal(metrics.OutcomeError, 0)
		}

		return Receipt{}, fmt.Errorf("debit: %w", err)
	}

	payoutRef, err := s.gateway.Transfer(ctx, dest, monetary)
	if errors.Is(err, ErrOutcomeUnknown) {
		s.metrics.ObserveWithdrawal(metrics.OutcomeUnknown, 0)

		slog.ErrorContext(ctx, "payout outcome unknown, debit kept for reconciliation",
			"reference", ref,
			"amount", v.Amount.String(),
			"account", dest.MaskedAccount,
			"error", err,
		)

		return Receipt{}, &PayoutUnconfirmedError{Reference: ref, Amount: v.Amount, Err: err}
	}

	if err != nil {
		s.metrics.ObserveWithdrawal(metrics.OutcomePayoutFailed, 0)
		return Receipt{}, s.refund(ctx, ref, v.Amount, dest, err)
	}

	s.metrics.ObserveWithdrawal(metrics.OutcomeCompleted, v.Amount.InexactFloat64())

	slog.InfoContext(ctx, "withdrawal completed",
		"reference", ref,
		"payout_reference", payoutRef,
		"amount", v.Amount.String(),
		"account", dest.MaskedAccount,
	)

	return Receipt{
		Reference:       ref,
		Amount:          v.Amount,
		MonetaryValue:   monetary,
		Balance:         newBalance,
		MaskedAccount:   dest.MaskedAccount,
		RoutingCode:     dest.FormattedRoutingCode,
		PayoutReference: payoutRef,
	}, nil
}

// refund puts the debited amount back after a failed transfer. It runs even
// if the caller's context is already gone: no money moved, so the credits
// must return.
func (s *Service) refund(ctx context.Context, ref string, amount decimal.Decimal, dest Destination, payoutErr error) error {
	failed := &PayoutFailedError{Reference: ref, Amount: amount, Err: payoutErr}

	slog.WarnContext(ctx, "payout failed, reversing debit",
		"reference", ref,
		"amount", amount.String(),
		"account", dest.MaskedAccount,
		"error", payoutErr,
	)

	_, err := s.ledger.Credit(context.WithoutCancel(ctx), amount,
		fmt.Sprintf("Reversal of withdrawal %s: payout failed", ref))
	if err != nil {
		slog.ErrorContext(ctx, "reversing failed payout debit",
			"reference", ref,
			"amount", amount.String(),
			"error", err,
		)

		return errors.Join(failed, fmt.Errorf("refund: %w", err))
	}

	failed.Refunded = true
	s.metrics.ObserveRefund()

	return failed
}
