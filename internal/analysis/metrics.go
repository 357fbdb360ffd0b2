package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus instruments of the queue.
type Metrics struct {
	queued    prometheus.Counter
	rejected  prometheus.Counter
	finished  *prometheus.CounterVec
	depth     prometheus.Gauge
	durations prometheus.Histogram
}

// NewMetrics registers the queue metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		queued: f.NewCounter(prometheus.CounterOpts{
			Namespace: "vibecheck", Subsystem: "analysis",
			Name: "jobs_queued_total", Help: "Analysis jobs accepted into the queue.",
		}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "vibecheck", Subsystem: "analysis",
			Name: "jobs_rejected_total", Help: "Analysis jobs rejected because the queue was full.",
		}),
		finished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vibecheck", Subsystem: "analysis",
			Name: "jobs_finished_total", Help: "Analysis jobs that reached a terminal state.",
		}, []string{"status"}),
		depth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "vibecheck", Subsystem: "analysis",
			Name: "queue_depth", Help: "Jobs waiting for a worker.",
		}),
		durations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vibecheck", Subsystem: "analysis",
			Name: "job_duration_seconds", Help: "Wall time from dequeue to terminal state.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 900, 1800},
		}),
	}
}
