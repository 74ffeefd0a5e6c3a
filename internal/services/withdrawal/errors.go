package withdrawal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	FieldName          = "name"
	FieldEmail         = "email"
	FieldAccountNumber = "accountNumber"
	FieldRoutingCode   = "routingCode"
	FieldAmount        = "amount"
)

var (
	ErrValidationFailed = errors.New("validation failed")
	ErrPayoutFailed     = errors.New("payout failed")

	// ErrOutcomeUnknown is wrapped by gateways when a transfer may have
	// been executed but could not be confirmed. Such a debit is never
	// reversed automatically.
	ErrOutcomeUnknown = errors.New("payout outcome unknown")
)

type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed. It matches
// ErrValidationFailed.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// PayoutFailedError reports a transfer the gateway did not complete.
// Refunded tells whether the debited credits were put back.
type PayoutFailedError struct {
	Reference string
	Amount    decimal.Decimal
	Refunded  bool
	Err       error
}

func (e *PayoutFailedError) Error() string {
	return fmt.Sprintf("payout failed for withdrawal %s of %s: %v", e.Reference, e.Amount, e.Err)
}

func (e *PayoutFailedError) Unwrap() error {
	return e.Err
}

func (e *PayoutFailedError) Is(target error) bool {
	return target == ErrPayoutFailed
}

// PayoutUnconfirmedError reports a transfer that may have moved money. The
// debit stands until the transfer is reconciled with the gateway under
// Reference. It matches ErrOutcomeUnknown.
type PayoutUnconfirmedError struct {
	Reference string
	Amount    decimal.Decimal
	Err       error
}

func (e *PayoutUnconfirmedError) Error() string {
	return fmt.Sprintf("payout of withdrawal %s for %s unconfirmed: %v", e.Reference, e.Amount, e.Err)
}

func (e *PayoutUnconfirmedError) Unwrap() error {
	return e.Err
}

func (e *PayoutUnconfirmedError) Is(target error) bool {
	return target == ErrOutcomeUnknown
}
