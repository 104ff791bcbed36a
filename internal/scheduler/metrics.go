package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the job runner.
type Metrics struct {
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_scheduler_job_runs_total",
			Help: "Total number of scheduled job runs by outcome",
		}, []string{"job", "outcome"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_scheduler_job_duration_seconds",
			Help:    "Duration of scheduled job runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"job"}),
	}
}
