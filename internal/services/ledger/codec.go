package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fastprodman/QuantumCredits/internal/repos/kvstore"
	"github.com/shopspring/decimal"
)

// snapshot is the ledger as read from the store. A zero version means the
// key was absent.
type snapshot struct {
	balance        decimal.Decimal
	txns           []Transaction
	creditsVersion int64
	txnsVersion    int64
}

func encodeBalance(d decimal.Decimal) []byte {
	return []byte(d.String())
}

func decodeBalance(raw []byte) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(string(raw)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: credits %q: %w", ErrCorruptState, raw, err)
	}

	return d, nil
}

func encodeTransactions(txns []Transaction) ([]byte, error) {
	if txns == nil {
		txns = []Transaction{}
	}

	b, err := json.Marshal(txns)
	if err != nil {
		return nil, fmt.Errorf("marshal transactions: %w", err)
	}

	return b, nil
}

func decodeTransactions(raw []byte) ([]Transaction, error) {
	txns := []Transaction{}

	err := json.Unmarshal(raw, &txns)
	if err != nil {
		return nil, fmt.Errorf("%w: transactions: %w", ErrCorruptState, err)
	}

	return txns, nil
}

// puts builds the write set turning prev into next. The transaction log
// goes first so a store that applies puts one by one never holds a
// balance without the record that explains it.
func puts(prev, next snapshot) ([]kvstore.Put, error) {
	txns, err := encodeTransactions(next.txns)
	if err != nil {
		return nil, err
	}

	return []kvstore.Put{
		{Key: kvstore.KeyTransactions, Value: txns, Version: prev.txnsVersion},
		{Key: kvstore.KeyCredits, Value: encodeBalance(next.balance), Version: prev.creditsVersion},
	}, nil
}
