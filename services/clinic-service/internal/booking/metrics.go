package booking

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts booking domain events. A nil *Metrics records nothing.
type Metrics struct {
	transitions *prometheus.CounterVec
	slots       prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healpoint",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Appointment status changes by source and target status",
		}, []string{"from", "to"}),
		slots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "healpoint",
			Subsystem: "slots",
			Name:      "generated_total",
			Help:      "Candidate slots produced by slot generation",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.transitions, m.slots)
	}
	return m
}

func (m *Metrics) transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) slotsGenerated(n int) {
	if m == nil {
		return
	}
	m.slots.Add(float64(n))
}
