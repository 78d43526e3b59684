// Package metrics exposes Prometheus instrumentation for the engine and the
// transformation worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	NavTransitions    *prometheus.CounterVec
	TransformTriggers prometheus.Counter
	TransformFailures prometheus.Counter
	EngineErrors      *prometheus.CounterVec
	TransformDuration prometheus.Histogram
}

// New creates and registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "boothflow_sessions_started_total",
			Help: "Number of engine sessions started.",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "boothflow_sessions_completed_total",
			Help: "Number of engine sessions that reached the completed state.",
		}),
		NavTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "boothflow_nav_transitions_total",
			Help: "Number of committed navigation transitions by direction.",
		}, []string{"direction"}),
		TransformTriggers: factory.NewCounter(prometheus.CounterOpts{
			Name: "boothflow_transform_triggers_total",
			Help: "Number of transformation jobs triggered.",
		}),
		TransformFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "boothflow_transform_failures_total",
			Help: "Number of transformation trigger or job failures.",
		}),
		EngineErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "boothflow_engine_errors_total",
			Help: "Number of engine errors by code.",
		}, []string{"code"}),
		TransformDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "boothflow_transform_duration_seconds",
			Help:    "Wall-clock duration of transformation job executions.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
}
