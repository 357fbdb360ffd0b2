package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter mirrors recorded responses into Prometheus metrics.
type PrometheusExporter struct {
	responses *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	dropped   prometheus.Counter
}

// NewPrometheusExporter registers the mentor metrics on reg.
func NewPrometheusExporter(reg prometheus.Registerer) *PrometheusExporter {
	f := promauto.With(reg)
	return &PrometheusExporter{
		responses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vibecheck",
			Subsystem: "mentor",
			Name:      "responses_total",
			Help:      "Mentor responses by route type, outcome and cache hit",
		}, []string{"route", "success", "cache_hit"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vibecheck",
			Subsystem: "mentor",
			Name:      "response_latency_milliseconds",
			Help:      "Mentor response latency in milliseconds",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}, []string{"route"}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "vibecheck",
			Subsystem: "mentor",
			Name:      "metrics_dropped_total",
			Help:      "Response metrics rejected by validation",
		}),
	}
}

func (e *PrometheusExporter) observe(m ResponseMetrics) {
	e.responses.WithLabelValues(m.RouteType, strconv.FormatBool(m.Success), strconv.FormatBool(m.CacheHit)).Inc()
	e.latency.WithLabelValues(m.RouteType).Observe(m.LatencyMS)
}
