package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HousekeepingMetrics records scheduled maintenance job runs.
type HousekeepingMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     *prometheus.CounterVec
}

func NewHousekeepingMetrics(reg prometheus.Registerer) *HousekeepingMetrics {
	if reg == nil {
		return &HousekeepingMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "housekeeping_job_runs_total",
		Help: "Housekeeping job executions by result.",
	}, []string{"job", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "housekeeping_job_duration_seconds",
		Help:    "Duration of housekeeping jobs.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "housekeeping_rows_affected_total",
		Help: "Rows purged or flagged by housekeeping jobs.",
	}, []string{"job"})
	reg.MustRegister(runs, duration, rows)
	return &HousekeepingMetrics{runs: runs, duration: duration, rows: rows}
}

// ObserveRun records one job execution. ok=false counts as a failure.
func (m *HousekeepingMetrics) ObserveRun(job string, ok bool, elapsed time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.runs.WithLabelValues(normalizeLabel(job), result).Inc()
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(elapsed.Seconds())
}

func (m *HousekeepingMetrics) AddRows(job string, n int64) {
	if m == nil || m.rows == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(normalizeLabel(job)).Add(float64(n))
}
