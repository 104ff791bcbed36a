package statemachine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the state machine engine.
type Metrics struct {
	Transitions      *prometheus.CounterVec
	EventsNotAccepted *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_state_transitions_total",
			Help: "Total number of committed state transitions",
		}, []string{"event", "source", "target"}),
		EventsNotAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_state_events_not_accepted_total",
			Help: "Total number of events rejected in their current state",
		}, []string{"event", "state"}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "onboarding_state_dispatch_duration_seconds",
			Help:    "Duration of state machine dispatches",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}
