package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks ledger operations by kind and outcome.
type LedgerMetrics struct {
	duration  *prometheus.HistogramVec
	results   *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	volume    *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger collectors on reg. A nil registerer yields no-op metrics.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_duration_seconds",
		Help:    "Duration of ledger operations including conflict retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Ledger operations by outcome code.",
	}, []string{"operation", "result"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_conflict_retries_total",
		Help: "Transactions retried after a concurrent write conflict.",
	}, []string{"operation"})
	volume := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_tokens_moved_total",
		Help: "BUKKcoins moved by successful operations.",
	}, []string{"operation"})
	reg.MustRegister(duration, results, conflicts, volume)
	return &LedgerMetrics{
		duration:  duration,
		results:   results,
		conflicts: conflicts,
		volume:    volume,
	}
}

// Observe records one finished operation. result is "ok" or an error code.
func (m *LedgerMetrics) Observe(operation, result string, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	op := normalizeLabel(operation)
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	m.results.WithLabelValues(op, normalizeLabel(result)).Inc()
}

// IncConflict counts one retried transaction.
func (m *LedgerMetrics) IncConflict(operation string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

// AddVolume adds the amount moved by a committed operation.
func (m *LedgerMetrics) AddVolume(operation string, amount int64) {
	if m == nil || m.volume == nil || amount <= 0 {
		return
	}
	m.volume.WithLabelValues(normalizeLabel(operation)).Add(float64(amount))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
