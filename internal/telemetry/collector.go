package telemetry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/HendryAvila/vibe-check/internal/breaker"
	"github.com/HendryAvila/vibe-check/internal/cache"
)

// DefaultWindowSize is the number of responses kept for percentile math.
const DefaultWindowSize = 1000

// BreakerSource exposes a circuit breaker snapshot.
type BreakerSource interface {
	Stats() breaker.Stats
}

// CacheSource exposes response cache counters.
type CacheSource interface {
	Stats() cache.Stats
}

// RecordParams are the inputs of a single RecordResponse call.
type RecordParams struct {
	RouteType      string
	LatencyMS      float64
	Success        bool
	Intent         string
	QueryLength    int
	ResponseLength int
	ErrorType      string
	CacheHit       bool
}

// Config configures a Collector.
type Config struct {
	WindowSize int `yaml:"window_size"`
}

// Collector aggregates response metrics. One Collector is shared by the
// router, the mentor engine and the sampling path; it is safe for
// concurrent use and recording never fails the caller.
type Collector struct {
	windowSize int
	logger     *slog.Logger
	now        func() time.Time

	breaker  BreakerSource
	cache    CacheSource
	exporter *PrometheusExporter

	mu         sync.Mutex
	window     []ResponseMetrics
	aggregates map[string]*RouteAggregate
	dropped    int64
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger used for dropped metrics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBreaker attaches the breaker whose state is stamped on every metric.
func WithBreaker(b BreakerSource) Option {
	return func(c *Collector) { c.breaker = b }
}

// WithCache attaches the response cache reported in summaries.
func WithCache(cs CacheSource) Option {
	return func(c *Collector) { c.cache = cs }
}

// WithExporter mirrors every recorded metric into Prometheus.
func WithExporter(e *PrometheusExporter) Option {
	return func(c *Collector) { c.exporter = e }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// NewCollector creates a Collector.
func NewCollector(cfg Config, opts ...Option) *Collector {
	size := cfg.WindowSize
	if size <= 0 {
		size = DefaultWindowSize
	}
	c := &Collector{
		windowSize: size,
		logger:     slog.Default(),
		now:        time.Now,
		window:     make([]ResponseMetrics, 0, size),
		aggregates: make(map[string]*RouteAggregate),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordResponse records one response. Invalid input and internal failures
// are logged and the metric is dropped.
func (c *Collector) RecordResponse(p RecordParams) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("telemetry: recording panicked, metric dropped", "panic", r)
		}
	}()

	if err := c.record(p); err != nil {
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		if c.exporter != nil {
			c.exporter.dropped.Inc()
		}
		c.logger.Warn("telemetry: metric dropped", "error", err, "route", p.RouteType)
	}
}

func (c *Collector) record(p RecordParams) error {
	state := "unknown"
	if c.breaker != nil {
		state = c.breaker.Stats().State
	}

	m, err := NewResponseMetrics(c.now(), p, state)
	if err != nil {
		return fmt.Errorf("building metric: %w", err)
	}

	c.mu.Lock()
	if len(c.window) >= c.windowSize {
		// Oldest first out; shift keeps the backing array bounded.
		copy(c.window, c.window[1:])
		c.window = c.window[:len(c.window)-1]
	}
	c.window = append(c.window, m)

	agg, ok := c.aggregates[m.RouteType]
	if !ok {
		agg = &RouteAggregate{}
		c.aggregates[m.RouteType] = agg
	}
	agg.add(m)
	c.mu.Unlock()

	if c.exporter != nil {
		c.exporter.observe(m)
	}
	return nil
}

// RouteSummary is the per-route part of a Summary.
type RouteSummary struct {
	Total       int64        `json:"total"`
	Successes   int64        `json:"successes"`
	Failures    int64        `json:"failures"`
	CacheHits   int64        `json:"cache_hits"`
	SuccessRate float64      `json:"success_rate"`
	FailureRate float64      `json:"failure_rate"`
	Latency     LatencyStats `json:"latency"`
}

// Summary is the aggregated telemetry view.
type Summary struct {
	GeneratedAt    time.Time               `json:"generated_at"`
	WindowSize     int                     `json:"window_size"`
	WindowCount    int                     `json:"window_count"`
	TotalRequests  int64                   `json:"total_requests"`
	Successes      int64                   `json:"successes"`
	Failures       int64                   `json:"failures"`
	SuccessRate    float64                 `json:"success_rate"`
	CacheHits      int64                   `json:"cache_hits"`
	Dropped        int64                   `json:"dropped"`
	Routes         map[string]RouteSummary `json:"routes"`
	CircuitBreaker *breaker.Stats          `json:"circuit_breaker,omitempty"`
	Cache          *cache.Stats            `json:"cache,omitempty"`
}

// Summary computes the current summary. The window is copied under the
// lock; percentile math runs on the copy.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	window := make([]ResponseMetrics, len(c.window))
	copy(window, c.window)
	aggs := make(map[string]RouteAggregate, len(c.aggregates))
	for k, v := range c.aggregates {
		aggs[k] = *v
	}
	dropped := c.dropped
	c.mu.Unlock()

	s := Summary{
		GeneratedAt: c.now(),
		WindowSize:  c.windowSize,
		WindowCount: len(window),
		Dropped:     dropped,
		Routes:      make(map[string]RouteSummary, len(aggs)),
	}

	latencies := make(map[string][]float64)
	for _, m := range window {
		if m.Success && m.LatencyMS >= 0 {
			latencies[m.RouteType] = append(latencies[m.RouteType], m.LatencyMS)
		}
	}

	for route, agg := range aggs {
		s.TotalRequests += agg.Total
		s.Successes += agg.Successes
		s.Failures += agg.Failures
		s.CacheHits += agg.CacheHits
		s.Routes[route] = RouteSummary{
			Total:       agg.Total,
			Successes:   agg.Successes,
			Failures:    agg.Failures,
			CacheHits:   agg.CacheHits,
			SuccessRate: agg.SuccessRate(),
			FailureRate: agg.FailureRate(),
			Latency:     computeLatencyStats(latencies[route]),
		}
	}
	if s.TotalRequests > 0 {
		s.SuccessRate = float64(s.Successes) / float64(s.TotalRequests)
	}

	if c.breaker != nil {
		bs := c.breaker.Stats()
		s.CircuitBreaker = &bs
	}
	if c.cache != nil {
		cs := c.cache.Stats()
		s.Cache = &cs
	}
	return s
}

// Recent returns up to n of the most recent metrics, newest last.
func (c *Collector) Recent(n int) []ResponseMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n > len(c.window) {
		n = len(c.window)
	}
	out := make([]ResponseMetrics, n)
	copy(out, c.window[len(c.window)-n:])
	return out
}
