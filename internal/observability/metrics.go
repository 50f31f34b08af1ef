package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects job-lifecycle metrics.
//
// The orchestrator is a single process without an HTTP listener, so
// collectors register on the given registerer and are read by tests or by
// an embedding process that exposes them.
type Metrics struct {
	// JobsEnqueued counts enqueued jobs.
	// Labels: tool (claude|codex|cursor)
	JobsEnqueued *prometheus.CounterVec

	// JobsFinished counts finished jobs.
	// Labels: tool, state (success|failed)
	JobsFinished *prometheus.CounterVec

	// JobsRunning gauges currently running jobs.
	JobsRunning prometheus.Gauge

	// JobDuration measures adapter run time in seconds.
	// Labels: tool
	// Buckets: 1s .. 900s
	JobDuration *prometheus.HistogramVec

	// EventsAppended counts durable log appends.
	// Labels: type
	EventsAppended *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors. Pass a fresh registry
// in tests; nil uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		JobsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_jobs_enqueued_total",
			Help: "Jobs enqueued, by tool.",
		}, []string{"tool"}),
		JobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_jobs_finished_total",
			Help: "Jobs finished, by tool and terminal state.",
		}, []string{"tool", "state"}),
		JobsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "conduit_jobs_running",
			Help: "Jobs currently running.",
		}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conduit_job_duration_seconds",
			Help:    "Adapter run duration in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}, []string{"tool"}),
		EventsAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_events_appended_total",
			Help: "Durable events appended, by type.",
		}, []string{"type"}),
	}
}
