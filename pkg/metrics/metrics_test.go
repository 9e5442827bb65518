package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)
	m.Observe("transfer", "ok", 25*time.Millisecond)
	m.Observe("transfer", "INSUFFICIENT_BALANCE", time.Millisecond)
	m.IncConflict("transfer")
	m.AddVolume("transfer", 10)
	m.AddVolume("transfer", -5)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "ledger_operations_total", map[string]string{"operation": "transfer", "result": "ok"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = fetchCounterValue(mfs, "ledger_conflict_retries_total", map[string]string{"operation": "transfer"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = fetchCounterValue(mfs, "ledger_tokens_moved_total", map[string]string{"operation": "transfer"})
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)

	mf := findMetricFamily(mfs, "ledger_operation_duration_seconds")
	require.NotNil(t, mf)
	assert.EqualValues(t, 2, mf.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestOfferAndOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	offers := NewOfferMetrics(reg)
	outbox := NewOutboxMetrics(reg)

	offers.IncTransition("accepted")
	offers.IncRefusal("create", "")
	outbox.IncPublished("offer_created")
	outbox.IncDeadLettered("offer_created", "max_attempts")
	outbox.ObserveBatch(time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "offer_refusals_total", map[string]string{"operation": "create", "code": "unknown"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = fetchCounterValue(mfs, "outbox_dead_lettered_total", map[string]string{"event_type": "offer_created", "reason": "max_attempts"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestNilRegistererIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		NewLedgerMetrics(nil).Observe("transfer", "ok", time.Second)
		NewOfferMetrics(nil).IncTransition("accepted")
		NewOutboxMetrics(nil).IncFailed("offer_created")
		var m *OutboxMetrics
		m.ObserveBatch(time.Second)
		var h *HTTPMetrics
		h.Observe("GET", "/api/v1/wallet", 200, time.Millisecond)
	})
}

func TestHTTPMetricsCountsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Observe("POST", "/api/v1/offers/{offerId}/accept", 409, 5*time.Millisecond)
	m.Observe("POST", "/api/v1/offers/{offerId}/accept", 409, 5*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got, err := fetchCounterValue(mfs, "http_requests_total", map[string]string{"method": "POST", "route": "/api/v1/offers/{offerId}/accept", "status": "409"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)
}

func TestHousekeepingMetricsRecordsResultsAndRows(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHousekeepingMetrics(reg)

	m.ObserveRun("outbox-retention", true, time.Second)
	m.ObserveRun("ledger-audit", false, time.Second)
	m.AddRows("outbox-retention", 12)
	m.AddRows("outbox-retention", 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got, err := fetchCounterValue(mfs, "housekeeping_job_runs_total", map[string]string{"job": "ledger-audit", "result": "failure"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
	got, err = fetchCounterValue(mfs, "housekeeping_rows_affected_total", map[string]string{"job": "outbox-retention"})
	require.NoError(t, err)
	assert.Equal(t, 12.0, got)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
