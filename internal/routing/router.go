package routing

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/HendryAvila/vibe-check/internal/cache"
	"github.com/HendryAvila/vibe-check/internal/telemetry"
)

// Recorder receives one telemetry record per routing decision.
type Recorder interface {
	RecordResponse(p telemetry.RecordParams)
}

// Config configures a Router.
type Config struct {
	// Threshold is the confidence at or above which a static response is used.
	Threshold float64 `yaml:"threshold"`

	// PreferSpeed enables the hybrid route for mid-confidence queries.
	PreferSpeed bool `yaml:"prefer_speed"`

	DecisionCacheSize int           `yaml:"decision_cache_size"`
	DecisionCacheTTL  time.Duration `yaml:"decision_cache_ttl"`

	// OptimizeEvery is the number of recorded outcomes between automatic
	// threshold optimizations. Zero disables auto-tuning.
	OptimizeEvery int `yaml:"optimize_every"`

	// FeedbackHistory bounds the outcome history kept for optimization.
	FeedbackHistory int `yaml:"feedback_history"`
}

// DefaultConfig returns the router defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:         0.7,
		PreferSpeed:       true,
		DecisionCacheSize: 1000,
		DecisionCacheTTL:  time.Hour,
		OptimizeEvery:     50,
		FeedbackHistory:   500,
	}
}

// Router is the hybrid response router. It is safe for concurrent use.
type Router struct {
	cfg       Config
	scorer    Scorer
	optimizer Optimizer
	decisions *cache.LRU[RouteMetrics]
	recorder  Recorder
	logger    *slog.Logger

	mu        sync.Mutex
	threshold float64
	feedback  []Feedback
	outcomes  int
}

// NewRouter creates a Router. recorder may be nil.
func NewRouter(cfg Config, recorder Recorder, logger *slog.Logger) *Router {
	def := DefaultConfig()
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = def.Threshold
	}
	if cfg.FeedbackHistory <= 0 {
		cfg.FeedbackHistory = def.FeedbackHistory
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:       cfg,
		optimizer: DefaultOptimizer(),
		decisions: cache.NewLRU[RouteMetrics](cfg.DecisionCacheSize, cfg.DecisionCacheTTL),
		recorder:  recorder,
		logger:    logger,
		threshold: cfg.Threshold,
	}
}

// Threshold returns the current static-route confidence threshold.
func (r *Router) Threshold() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threshold
}

// DecisionCacheStats returns the decision cache counters.
func (r *Router) DecisionCacheStats() cache.Stats {
	return r.decisions.Stats()
}

// DecideRoute chooses a route for req and records the decision in telemetry.
func (r *Router) DecideRoute(req RouteRequest) RouteMetrics {
	m := r.decide(req)
	r.record(req, m)
	return m
}

func (r *Router) decide(req RouteRequest) RouteMetrics {
	if req.ForceDynamic {
		return RouteMetrics{
			Decision:          Dynamic,
			Confidence:        0,
			Reasoning:         "dynamic generation forced by caller",
			LatencyEstimateMS: DynamicLatencyMS,
			FallbackAvailable: req.HasStaticResponse,
		}
	}

	// Without a static response there is nothing to choose between, and
	// the decision must not come from a cache entry made when one existed.
	if !req.HasStaticResponse {
		return RouteMetrics{
			Decision:          Dynamic,
			Confidence:        0,
			Reasoning:         "no static response available for this intent",
			LatencyEstimateMS: DynamicLatencyMS,
		}
	}

	key := decisionKey(req)
	if cached, ok := r.decisions.Get(key); ok {
		cached.CacheHit = true
		return cached
	}

	confidence := r.scorer.Calculate(req.Query, req.Intent, req.Context, req.HasWorkspaceContext)
	threshold := r.Threshold()

	m := RouteMetrics{Confidence: confidence, FallbackAvailable: true}
	switch {
	case confidence >= threshold:
		m.Decision = Static
		m.LatencyEstimateMS = StaticLatencyMS
		m.Reasoning = fmt.Sprintf("confidence %.2f meets threshold %.2f, static guidance fits", confidence, threshold)
	case confidence >= 0.4 && r.cfg.PreferSpeed:
		m.Decision = Hybrid
		m.LatencyEstimateMS = HybridLatencyMS
		m.Reasoning = fmt.Sprintf("confidence %.2f is moderate, hybrid response preferred for speed", confidence)
	default:
		m.Decision = Dynamic
		m.LatencyEstimateMS = DynamicLatencyMS
		m.Reasoning = fmt.Sprintf("confidence %.2f below threshold %.2f, query needs a tailored answer", confidence, threshold)
	}

	r.decisions.Put(key, m)
	return m
}

func (r *Router) record(req RouteRequest, m RouteMetrics) {
	if r.recorder == nil {
		return
	}
	r.recorder.RecordResponse(telemetry.RecordParams{
		RouteType:   m.Decision.String(),
		LatencyMS:   float64(m.LatencyEstimateMS),
		Success:     true,
		Intent:      req.Intent,
		QueryLength: len(req.Query),
		CacheHit:    m.CacheHit,
	})
}

// ShouldFallback reports whether a generated response should be replaced by
// the static fallback: only when one exists and generation failed or was slow.
func (r *Router) ShouldFallback(m RouteMetrics, generationFailed bool, latencyMS int64) bool {
	if !m.FallbackAvailable {
		return false
	}
	return generationFailed || latencyMS > SlowResponseMS
}

// RecordOutcome feeds the result of a routed response back into the router.
// Every OptimizeEvery outcomes the threshold is re-tuned.
func (r *Router) RecordOutcome(d Decision, success bool) {
	r.mu.Lock()
	r.feedback = append(r.feedback, Feedback{Decision: d, Success: success})
	if over := len(r.feedback) - r.cfg.FeedbackHistory; over > 0 {
		r.feedback = r.feedback[over:]
	}
	r.outcomes++
	if r.cfg.OptimizeEvery <= 0 || r.outcomes%r.cfg.OptimizeEvery != 0 {
		r.mu.Unlock()
		return
	}

	old := r.threshold
	r.threshold = r.optimizer.OptimizeThreshold(old, r.feedback)
	changed := r.threshold != old
	r.mu.Unlock()

	if changed {
		r.decisions.Clear()
		r.logger.Info("routing: threshold tuned", "from", old, "to", r.Threshold())
	}
}

// decisionKey is built from the first 50 characters of the query, the
// intent, the technology count and the workspace flag.
func decisionKey(req RouteRequest) string {
	q := []rune(req.Query)
	if len(q) > 50 {
		q = q[:50]
	}
	return fmt.Sprintf("%s|%s|%d|%t", string(q), req.Intent, len(req.Context.Technologies), req.HasWorkspaceContext)
}
