package notify

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts delivered and failed notifications. A nil *Metrics records nothing.
type Metrics struct {
	processed *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healpoint",
			Subsystem: "notifications",
			Name:      "processed_total",
			Help:      "Notifications processed by kind, provider and outcome",
		}, []string{"kind", "provider", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.processed)
	}
	return m
}

func (m *Metrics) record(kind, provider, status string) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(kind, provider, status).Inc()
}
