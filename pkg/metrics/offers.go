package metrics

import "github.com/prometheus/client_golang/prometheus"

// OfferMetrics counts offer lifecycle transitions.
type OfferMetrics struct {
	transitions *prometheus.CounterVec
	refusals    *prometheus.CounterVec
}

func NewOfferMetrics(reg prometheus.Registerer) *OfferMetrics {
	if reg == nil {
		return &OfferMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offer_transitions_total",
		Help: "Offers entering each status.",
	}, []string{"status"})
	refusals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offer_refusals_total",
		Help: "Offer operations refused by a business rule.",
	}, []string{"operation", "code"})
	reg.MustRegister(transitions, refusals)
	return &OfferMetrics{transitions: transitions, refusals: refusals}
}

func (m *OfferMetrics) IncTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *OfferMetrics) IncRefusal(operation, code string) {
	if m == nil || m.refusals == nil {
		return
	}
	m.refusals.WithLabelValues(normalizeLabel(operation), normalizeLabel(code)).Inc()
}
