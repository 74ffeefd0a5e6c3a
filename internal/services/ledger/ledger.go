// Package ledger owns the credit balance and its transaction log.
//
// Both live in a kvstore under the keys "credits" and "transactions" and are
// always written together. Writers use optimistic concurrency: each mutation
// reads both keys with their versions, computes the next state and commits
// it with a compare-and-set, retrying from a fresh read when another actor
// got there first. Callers inside one process are additionally serialized.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fastprodman/QuantumCredits/internal/repos/kvstore"
	"github.com/fastprodman/QuantumCredits/internal/services/notifier"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultConversionRate is the currency value of one credit.
var DefaultConversionRate = decimal.NewFromInt(1)

const DefaultMaxAttempts = 5

// errNoChange makes a mutation skip the write.
var errNoChange = errors.New("no change")

type Ledger struct {
	store       kvstore.Store
	notifier    *notifier.Notifier
	rate        decimal.Decimal
	maxAttempts int
	now         func() time.Time
	logger      *slog.Logger

	mu sync.Mutex
}

type Option func(*Ledger)

func WithConversionRate(rate decimal.Decimal) Option {
	return func(l *Ledger) { l.rate = rate }
}

func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func New(store kvstore.Store, n *notifier.Notifier, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		notifier:    n,
		rate:        DefaultConversionRate,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// ConversionRate returns the rate applied to new transactions.
func (l *Ledger) ConversionRate() decimal.Decimal {
	return l.rate
}

// Balance returns the current balance, initializing an empty store.
func (l *Ledger) Balance(ctx context.Context) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap, err := l.loadInitialized(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}

	return snap.balance, nil
}

// Transactions returns the log newest first. The slice is never nil.
func (l *Ledger) Transactions(ctx context.Context) ([]Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap, err := l.loadInitialized(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	return slices.Clone(snap.txns), nil
}

// Credit adds amount and records a generation transaction.
func (l *Ledger) Credit(ctx context.Context, amount decimal.Decimal, narrative string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("credit %s: %w", amount, ErrInvalidAmount)
	}

	balance, err := l.mutate(ctx, func(s *snapshot) error {
		s.balance = s.balance.Add(amount)
		s.txns = slices.Insert(s.txns, 0, l.record(KindGeneration, amount, narrative))

		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("credit: %w", err)
	}

	return balance, nil
}

// Debit subtracts amount and records a withdrawal transaction. It fails
// with *InsufficientBalanceError, leaving the ledger untouched, when amount
// exceeds the balance.
func (l *Ledger) Debit(ctx context.Context, amount decimal.Decimal, narrative string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("debit %s: %w", amount, ErrInvalidAmount)
	}

	balance, err := l.mutate(ctx, func(s *snapshot) error {
		if amount.GreaterThan(s.balance) {
			return &InsufficientBalanceError{Requested: amount, Available: s.balance}
		}

		s.balance = s.balance.Sub(amount)
		s.txns = slices.Insert(s.txns, 0, l.record(KindWithdrawal, amount, narrative))

		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("debit: %w", err)
	}

	return balance, nil
}

// Reset clears the balance and the log. Administrative use only.
func (l *Ledger) Reset(ctx context.Context) error {
	_, err := l.mutate(ctx, func(s *snapshot) error {
		s.balance = decimal.Zero
		s.txns = []Transaction{}

		return nil
	})
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	l.logger.Info("ledger reset")

	return nil
}

// Reconcile rewrites the balance from the transaction log when the two
// disagree, which only happens after a write was torn between the keys.
// It reports whether a repair was made.
func (l *Ledger) Reconcile(ctx context.Context) (bool, error) {
	_, err := l.mutate(ctx, func(s *snapshot) error {
		derived := Sum(s.txns)
		if derived.Equal(s.balance) {
			return errNoChange
		}

		l.logger.Warn("ledger balance disagrees with transaction log, repairing",
			"persisted", s.balance.String(),
			"derived", derived.String(),
			"transactions", len(s.txns),
		)

		s.balance = derived

		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("reconcile: %w", err)
	}

	return true, nil
}

func (l *Ledger) record(kind Kind, amount decimal.Decimal, narrative string) Transaction {
	return Transaction{
		ID:            uuid.New(),
		Kind:          kind,
		Credits:       amount,
		Rate:          l.rate,
		MonetaryValue: amount.Mul(l.rate),
		Timestamp:     l.now().UTC(),
		Narrative:     narrative,
	}
}

// mutate commits apply's result and, once the lock is released, notifies
// observers. Notification happens only after a successful commit.
func (l *Ledger) mutate(ctx context.Context, apply func(*snapshot) error) (decimal.Decimal, error) {
	l.mu.Lock()
	balance, err := l.commit(ctx, apply)
	l.mu.Unlock()

	if err != nil {
		return decimal.Zero, err
	}

	l.notifier.Publish()

	return balance, nil
}

func (l *Ledger) commit(ctx context.Context, apply func(*snapshot) error) (decimal.Decimal, error) {
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		prev, err := l.load(ctx)
		if err != nil {
			return decimal.Zero, err
		}

		next := snapshot{
			balance: prev.balance,
			txns:    slices.Clone(prev.txns),
		}

		err = apply(&next)
		if err != nil {
			return decimal.Zero, err
		}

		batch, err := puts(prev, next)
		if err != nil {
			return decimal.Zero, err
		}

		err = l.store.PutAll(ctx, batch)
		if err == nil {
			return next.balance, nil
		}

		if !errors.Is(err, kvstore.ErrVersionConflict) {
			return decimal.Zero, fmt.Errorf("commit: %w", err)
		}

		l.logger.Warn("ledger changed underneath, retrying", "attempt", attempt, "error", err)
	}

	return decimal.Zero, ErrConcurrentUpdate
}

func (l *Ledger) load(ctx context.Context) (snapshot, error) {
	snap := snapshot{balance: decimal.Zero, txns: []Transaction{}}

	txns, err := l.store.Get(ctx, kvstore.KeyTransactions)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
	case err != nil:
		return snapshot{}, fmt.Errorf("load transactions: %w", err)
	default:
		snap.txns, err = decodeTransactions(txns.Value)
		if err != nil {
			return snapshot{}, err
		}

		snap.txnsVersion = txns.Version
	}

	credits, err := l.store.Get(ctx, kvstore.KeyCredits)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		// a log without a balance is a torn first write
		snap.balance = Sum(snap.txns)
	case err != nil:
		return snapshot{}, fmt.Errorf("load credits: %w", err)
	default:
		snap.balance, err = decodeBalance(credits.Value)
		if err != nil {
			return snapshot{}, err
		}

		snap.creditsVersion = credits.Version
	}

	return snap, nil
}

// loadInitialized reads the ledger and creates whichever key is missing.
// Losing the creation race to another actor is fine; its state is re-read.
func (l *Ledger) loadInitialized(ctx context.Context) (snapshot, error) {
	snap, err := l.load(ctx)
	if err != nil {
		return snapshot{}, err
	}

	if snap.creditsVersion != 0 && snap.txnsVersion != 0 {
		return snap, nil
	}

	var batch []kvstore.Put

	if snap.txnsVersion == 0 {
		batch = append(batch, kvstore.Put{Key: kvstore.KeyTransactions, Value: []byte(`[]`)})
	}

	if snap.creditsVersion == 0 {
		batch = append(batch, kvstore.Put{Key: kvstore.KeyCredits, Value: encodeBalance(snap.balance)})
	}

	err = l.store.PutAll(ctx, batch)
	if err != nil && !errors.Is(err, kvstore.ErrVersionConflict) {
		return snapshot{}, fmt.Errorf("initialize store: %w", err)
	}

	return l.load(ctx)
}
