package billing

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes billing counters.
type Metrics struct {
	generated *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	resolved  *prometheus.CounterVec
}

// NewMetrics registers billing collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	generated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsline_bills_generated_total",
		Help: "Bills generated, partitioned by billing month.",
	}, []string{"month"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsline_billing_outcomes_total",
		Help: "Billing operation outcomes by operation and result.",
	}, []string{"op", "outcome"})
	resolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsline_payment_requests_resolved_total",
		Help: "Payment requests resolved by agents, by action.",
	}, []string{"action"})
	registerer.MustRegister(generated, outcomes, resolved)
	return &Metrics{generated: generated, outcomes: outcomes, resolved: resolved}
}

func (m *Metrics) observe(op string, reason error) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(op, outcomeLabel(reason)).Inc()
}

func (m *Metrics) billGenerated(month int) {
	if m == nil {
		return
	}
	m.generated.WithLabelValues(monthLabel(month)).Inc()
}

func (m *Metrics) requestResolved(action ResolveAction) {
	if m == nil {
		return
	}
	m.resolved.WithLabelValues(string(action)).Inc()
}

func monthLabel(month int) string {
	if month < 1 || month > 12 {
		return "unknown"
	}
	return [...]string{"01", "02", "03", "04", "05", "06", "07", "08", "09", "10", "11", "12"}[month-1]
}
