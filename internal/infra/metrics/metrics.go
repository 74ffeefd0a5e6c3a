// Package metrics holds the Prometheus instruments of the service. All
// methods are safe on a nil *Metrics so callers need not guard them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quantum_credits"

// Withdrawal outcomes.
const (
	OutcomeCompleted    = "completed"
	OutcomeInvalid      = "invalid"
	OutcomeInsufficient = "insufficient"
	OutcomePayoutFailed = "payout_failed"
	OutcomeUnknown      = "payout_unknown"
	OutcomeError        = "error"
)

type Metrics struct {
	Draws            *prometheus.CounterVec
	CreditsAwarded   prometheus.Counter
	Withdrawals      *prometheus.CounterVec
	CreditsWithdrawn prometheus.Counter
	Refunds          prometheus.Counter
	Balance          prometheus.Gauge
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Draws: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "random_draws_total",
			Help:      "Random samples drawn for generation, by origin",
		}, []string{"source"}),

		CreditsAwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_awarded_total",
			Help:      "Credits granted by the award policy",
		}),

		Withdrawals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_total",
			Help:      "Withdrawal attempts, by outcome",
		}, []string{"outcome"}),

		CreditsWithdrawn: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_withdrawn_total",
			Help:      "Credits paid out by completed withdrawals",
		}),

		Refunds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payout_refunds_total",
			Help:      "Debits reversed after a failed payout",
		}),

		Balance: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "balance_credits",
			Help:      "Ledger balance as last observed after a change",
		}),
	}
}

func (m *Metrics) ObserveDraw(fallback bool) {
	if m == nil {
		return
	}

	source := "qrng"
	if fallback {
		source = "fallback"
	}

	m.Draws.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveAward(credits float64) {
	if m == nil || credits <= 0 {
		return
	}

	m.CreditsAwarded.Add(credits)
}

func (m *Metrics) ObserveWithdrawal(outcome string, credits float64) {
	if m == nil {
		return
	}

	m.Withdrawals.WithLabelValues(outcome).Inc()

	if outcome == OutcomeCompleted {
		m.CreditsWithdrawn.Add(credits)
	}
}

func (m *Metrics) ObserveRefund() {
	if m == nil {
		return
	}

	m.Refunds.Inc()
}

func (m *Metrics) SetBalance(credits float64) {
	if m == nil {
		return
	}

	m.Balance.Set(credits)
}
