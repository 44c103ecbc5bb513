package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics tracks wallet movement volume and the loud-failure
// counter for balances forced below zero.
type LedgerMetrics struct {
	movements  *prometheus.CounterVec
	volume     *prometheus.CounterVec
	shortfalls prometheus.Counter
}

// NewLedgerMetrics registers the wallet ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_movements_total",
		Help: "Count of wallet credits and debits by kind.",
	}, []string{"kind"})
	volume := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_volume_cents_total",
		Help: "Total cents moved through wallets by kind.",
	}, []string{"kind"})
	shortfalls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wallet_forced_shortfalls_total",
		Help: "Forced debits that pushed a wallet balance below zero.",
	})
	reg.MustRegister(movements, volume, shortfalls)
	return &LedgerMetrics{
		movements:  movements,
		volume:     volume,
		shortfalls: shortfalls,
	}
}

// ObserveMovement records one balance change of the given kind.
func (l *LedgerMetrics) ObserveMovement(kind string, amountCents int64) {
	if l == nil || l.movements == nil {
		return
	}
	l.movements.WithLabelValues(kind).Inc()
	l.volume.WithLabelValues(kind).Add(float64(amountCents))
}

// IncShortfall counts a forced debit that overdrew a wallet.
func (l *LedgerMetrics) IncShortfall() {
	if l == nil || l.shortfalls == nil {
		return
	}
	l.shortfalls.Inc()
}
