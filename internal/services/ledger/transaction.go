package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindGeneration Kind = "generation"
	KindWithdrawal Kind = "withdrawal"
)

// Transaction is an immutable ledger record. Credits is always positive;
// Kind decides the sign. Rate is the conversion rate in force when the
// record was committed.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	Kind          Kind            `json:"kind"`
	Credits       decimal.Decimal `json:"credits"`
	Rate          decimal.Decimal `json:"rate"`
	MonetaryValue decimal.Decimal `json:"monetaryValue"`
	Timestamp     time.Time       `json:"timestamp"`
	Narrative     string          `json:"narrative"`
}

// Delta is the signed effect of t on the balance.
func (t Transaction) Delta() decimal.Decimal {
	if t.Kind == KindWithdrawal {
		return t.Credits.Neg()
	}

	return t.Credits
}

// Sum returns the balance implied by txns.
func Sum(txns []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		total = total.Add(t.Delta())
	}

	return total
}
