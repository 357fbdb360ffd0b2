// Package routing decides, per mentor query, whether to answer with a
// static canned response, a dynamically generated one, or a hybrid of the
// two, based on a heuristic confidence score.
package routing

import "github.com/HendryAvila/vibe-check/internal/telemetry"

// Decision is the chosen response strategy.
type Decision int

const (
	Static Decision = iota
	Dynamic
	Hybrid
)

// String returns the route name used in telemetry.
func (d Decision) String() string {
	switch d {
	case Static:
		return telemetry.RouteStatic
	case Dynamic:
		return telemetry.RouteDynamic
	case Hybrid:
		return telemetry.RouteHybrid
	default:
		return "unknown"
	}
}

// MarshalText renders the decision as its route name.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UsesGeneration reports whether the decision needs a dynamic response.
// Hybrid shares the dynamic generation path with a tighter latency budget.
func (d Decision) UsesGeneration() bool {
	return d == Dynamic || d == Hybrid
}

// Latency estimates per decision, in milliseconds.
const (
	StaticLatencyMS  = 50
	HybridLatencyMS  = 500
	DynamicLatencyMS = 2000

	// SlowResponseMS is the latency above which a generated response is
	// replaced by the static fallback.
	SlowResponseMS = 5000
)

// RouteMetrics describes one routing decision. It is a value and is never
// mutated after the router returns it.
type RouteMetrics struct {
	Decision          Decision `json:"decision"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	LatencyEstimateMS int      `json:"latency_estimate_ms"`
	FallbackAvailable bool     `json:"fallback_available"`
	CacheHit          bool     `json:"cache_hit"`
}

// QueryContext is the extracted context of a mentor query.
type QueryContext struct {
	Technologies   []string
	Patterns       []string
	FileReferences []string
}

// RouteRequest is the input of Router.DecideRoute.
type RouteRequest struct {
	Query               string
	Intent              string
	Context             QueryContext
	HasWorkspaceContext bool
	HasStaticResponse   bool
	ForceDynamic        bool
}
