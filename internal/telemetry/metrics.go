// Package telemetry aggregates per-response latency and success metrics for
// the mentor pipeline and exposes percentile summaries.
package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// Route types recorded by the router and the mentor engine.
const (
	RouteStatic  = "static"
	RouteDynamic = "dynamic"
	RouteHybrid  = "hybrid"
)

// ResponseMetrics is one recorded response. Values are immutable once built.
type ResponseMetrics struct {
	Timestamp           time.Time `json:"timestamp"`
	RouteType           string    `json:"route_type"`
	LatencyMS           float64   `json:"latency_ms"`
	Success             bool      `json:"success"`
	Intent              string    `json:"intent"`
	QueryLength         int       `json:"query_length"`
	ResponseLength      int       `json:"response_length"`
	ErrorType           string    `json:"error_type,omitempty"`
	CacheHit            bool      `json:"cache_hit"`
	CircuitBreakerState string    `json:"circuit_breaker_state"`
}

var errInvalidMetric = errors.New("invalid response metric")

// NewResponseMetrics validates p and builds a ResponseMetrics stamped at ts.
func NewResponseMetrics(ts time.Time, p RecordParams, breakerState string) (ResponseMetrics, error) {
	switch {
	case p.RouteType == "":
		return ResponseMetrics{}, fmt.Errorf("%w: empty route type", errInvalidMetric)
	case p.LatencyMS < 0:
		return ResponseMetrics{}, fmt.Errorf("%w: negative latency %.2f", errInvalidMetric, p.LatencyMS)
	case p.QueryLength < 0:
		return ResponseMetrics{}, fmt.Errorf("%w: negative query length %d", errInvalidMetric, p.QueryLength)
	case p.ResponseLength < 0:
		return ResponseMetrics{}, fmt.Errorf("%w: negative response length %d", errInvalidMetric, p.ResponseLength)
	}
	return ResponseMetrics{
		Timestamp:           ts,
		RouteType:           p.RouteType,
		LatencyMS:           p.LatencyMS,
		Success:             p.Success,
		Intent:              p.Intent,
		QueryLength:         p.QueryLength,
		ResponseLength:      p.ResponseLength,
		ErrorType:           p.ErrorType,
		CacheHit:            p.CacheHit,
		CircuitBreakerState: breakerState,
	}, nil
}

// RouteAggregate holds running counters for one route type.
type RouteAggregate struct {
	Total     int64
	Successes int64
	Failures  int64
	CacheHits int64

	latencySum float64
	latencyMin float64
	latencyMax float64
}

func (a *RouteAggregate) add(m ResponseMetrics) {
	a.Total++
	if m.Success {
		a.Successes++
	} else {
		a.Failures++
	}
	if m.CacheHit {
		a.CacheHits++
	}
	if a.Total == 1 || m.LatencyMS < a.latencyMin {
		a.latencyMin = m.LatencyMS
	}
	if m.LatencyMS > a.latencyMax {
		a.latencyMax = m.LatencyMS
	}
	a.latencySum += m.LatencyMS
}

// SuccessRate is the fraction of successful responses, 0 with no data.
func (a RouteAggregate) SuccessRate() float64 {
	if a.Total == 0 {
		return 0
	}
	return float64(a.Successes) / float64(a.Total)
}

// FailureRate is the fraction of failed responses, 0 with no data.
func (a RouteAggregate) FailureRate() float64 {
	if a.Total == 0 {
		return 0
	}
	return float64(a.Failures) / float64(a.Total)
}

// MeanLatency is the lifetime mean latency across all recorded responses.
func (a RouteAggregate) MeanLatency() float64 {
	if a.Total == 0 {
		return 0
	}
	return a.latencySum / float64(a.Total)
}
