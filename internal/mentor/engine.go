// Package mentor runs the vibe_check_mentor pipeline: context extraction,
// routing between static and generated guidance, response caching and
// session tracking.
package mentor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/HendryAvila/vibe-check/internal/cache"
	"github.com/HendryAvila/vibe-check/internal/patterns"
	"github.com/HendryAvila/vibe-check/internal/routing"
	"github.com/HendryAvila/vibe-check/internal/sampling"
	"github.com/HendryAvila/vibe-check/internal/telemetry"
)

// ErrEmptyQuery is returned when a request has no query text.
var ErrEmptyQuery = errors.New("mentor: query is required")

// Generator produces dynamic responses.
type Generator interface {
	GenerateDynamicResponse(ctx context.Context, req sampling.GenerateRequest) (*sampling.DynamicResponse, error)
}

// Config configures an Engine.
type Config struct {
	SessionCacheSize int           `yaml:"session_cache_size"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{SessionCacheSize: 500, SessionTTL: time.Hour}
}

// Deps are the collaborators of an Engine. Generator, Responses and
// Recorder may be nil.
type Deps struct {
	Router    *routing.Router
	Generator Generator
	Responses *cache.LRU[sampling.DynamicResponse]
	Recorder  routing.Recorder
	Detector  *patterns.Detector
	Logger    *slog.Logger
	Now       func() time.Time
}

// Engine answers mentor queries. It is safe for concurrent use.
type Engine struct {
	router    *routing.Router
	generator Generator
	responses *cache.LRU[sampling.DynamicResponse]
	recorder  routing.Recorder
	detector  *patterns.Detector
	sessions  *sessionStore
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an Engine.
func New(cfg Config, d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Detector == nil {
		d.Detector = patterns.NewDetector()
	}
	if d.Router == nil {
		d.Router = routing.NewRouter(routing.DefaultConfig(), d.Recorder, d.Logger)
	}
	return &Engine{
		router:    d.Router,
		generator: d.Generator,
		responses: d.Responses,
		recorder:  d.Recorder,
		detector:  d.Detector,
		sessions:  newSessionStore(cfg.SessionCacheSize, cfg.SessionTTL, d.Now),
		logger:    d.Logger,
		now:       d.Now,
	}
}

// Request is one mentor query.
type Request struct {
	Query            string
	Context          string
	SessionID        string
	ReasoningDepth   string
	Mode             string
	Phase            string
	FilePaths        []string
	WorkingDirectory string
	WorkspaceData    string
	ForceDynamic     bool
}

// Result is the mentor answer.
type Result struct {
	Status                string                `json:"status"`
	ImmediateFeedback     ImmediateFeedback     `json:"immediate_feedback"`
	CollaborativeInsights CollaborativeInsights `json:"collaborative_insights"`
	CoachingGuidance      CoachingGuidance      `json:"coaching_guidance"`
	SessionInfo           Session               `json:"session_info"`
}

// ImmediateFeedback lists anti-patterns spotted in the query.
type ImmediateFeedback struct {
	Summary          string           `json:"summary"`
	DetectedPatterns []patterns.Match `json:"detected_patterns"`
}

// CollaborativeInsights carries the routed answer.
type CollaborativeInsights struct {
	Source         string               `json:"source"`
	Content        string               `json:"content"`
	Route          routing.RouteMetrics `json:"route"`
	ModelUsed      string               `json:"model_used,omitempty"`
	FallbackReason string               `json:"fallback_reason,omitempty"`
}

// CoachingGuidance holds next steps for the caller.
type CoachingGuidance struct {
	Intent         string   `json:"intent"`
	Mode           string   `json:"mode"`
	Phase          string   `json:"phase"`
	ReasoningDepth string   `json:"reasoning_depth"`
	NextSteps      []string `json:"next_steps"`
}

// Source values of CollaborativeInsights.
const (
	SourceStatic   = "static"
	SourceDynamic  = "dynamic"
	SourceHybrid   = "hybrid"
	SourceCached   = "cached"
	SourceFallback = "static_fallback"
	SourceBasic    = "basic"
)

// Mentor runs the full pipeline for req.
func (e *Engine) Mentor(ctx context.Context, req Request) (*Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	intent := ClassifyIntent(query)
	qc := ExtractContext(query+"\n"+req.Context, req.FilePaths, e.detector)
	static, hasStatic := staticResponse(intent)
	matches := e.detector.Detect(query + "\n" + req.Context)

	route := e.router.DecideRoute(routing.RouteRequest{
		Query:               query,
		Intent:              intent.String(),
		Context:             qc,
		HasWorkspaceContext: req.WorkspaceData != "" || req.WorkingDirectory != "",
		HasStaticResponse:   hasStatic,
		ForceDynamic:        req.ForceDynamic,
	})

	insights := e.answer(ctx, req, query, intent, qc, route, static, hasStatic)

	res := &Result{
		Status: "success",
		ImmediateFeedback: ImmediateFeedback{
			Summary:          feedbackSummary(matches),
			DetectedPatterns: matches,
		},
		CollaborativeInsights: insights,
		CoachingGuidance: CoachingGuidance{
			Intent:         intent.String(),
			Mode:           orDefault(req.Mode, "standard"),
			Phase:          orDefault(req.Phase, "planning"),
			ReasoningDepth: orDefault(req.ReasoningDepth, "standard"),
			NextSteps:      nextSteps(static, matches, req.ReasoningDepth),
		},
		SessionInfo: e.sessions.advance(req.SessionID, intent),
	}
	return res, nil
}

func (e *Engine) answer(ctx context.Context, req Request, query string, intent Intent, qc routing.QueryContext,
	route routing.RouteMetrics, static StaticResponse, hasStatic bool,
) CollaborativeInsights {
	ins := CollaborativeInsights{Route: route}

	if !route.Decision.UsesGeneration() {
		ins.Source = SourceStatic
		ins.Content = static.Guidance
		// A static answer counts as a success only when it was written for
		// a specific intent.
		e.router.RecordOutcome(routing.Static, intent != IntentGeneral)
		return ins
	}

	key := cache.ResponseKey(intent.String(), query, qc.Technologies, qc.Patterns)
	if e.responses != nil && !req.ForceDynamic {
		if cached, ok := e.responses.Get(key); ok {
			ins.Source = SourceCached
			ins.Content = cached.Content
			ins.ModelUsed = cached.ModelUsed
			e.record(route, intent, query, 0, true, "", true, len(cached.Content))
			return ins
		}
	}

	var (
		resp *sampling.DynamicResponse
		err  = sampling.ErrUnavailable
	)
	start := e.now()
	if e.generator != nil {
		resp, err = e.generator.GenerateDynamicResponse(ctx, sampling.GenerateRequest{
			Intent:        intent.String(),
			Query:         query,
			Context:       req.Context,
			Technologies:  qc.Technologies,
			WorkspaceData: req.WorkspaceData,
		})
	}
	latency := e.now().Sub(start).Milliseconds()

	slow := err == nil && latency > routing.SlowResponseMS
	e.record(route, intent, query, latency, err == nil, errorType(err), false, responseLen(resp))
	e.router.RecordOutcome(route.Decision, err == nil && !slow)

	if err == nil && !e.router.ShouldFallback(route, false, latency) {
		if e.responses != nil {
			e.responses.Put(key, *resp)
		}
		ins.Source = SourceDynamic
		if route.Decision == routing.Hybrid {
			ins.Source = SourceHybrid
		}
		ins.Content = resp.Content
		ins.ModelUsed = resp.ModelUsed
		return ins
	}

	if err != nil {
		e.logger.Debug("mentor: dynamic generation unavailable", "intent", intent, "error", err)
		ins.FallbackReason = err.Error()
	} else {
		ins.FallbackReason = "dynamic response exceeded latency budget"
	}

	if hasStatic {
		ins.Source = SourceFallback
		ins.Content = static.Guidance
		return ins
	}
	ins.Source = SourceBasic
	ins.Content = "Describe the concrete requirement and the simplest documented way to meet it. " +
		"Prefer official SDKs and standard tooling before building custom layers."
	return ins
}

func (e *Engine) record(route routing.RouteMetrics, intent Intent, query string, latency int64, ok bool, errType string, cacheHit bool, respLen int) {
	if e.recorder == nil {
		return
	}
	e.recorder.RecordResponse(telemetry.RecordParams{
		RouteType:      route.Decision.String(),
		LatencyMS:      float64(latency),
		Success:        ok,
		Intent:         intent.String(),
		QueryLength:    len(query),
		ResponseLength: respLen,
		ErrorType:      errType,
		CacheHit:       cacheHit,
	})
}

func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, sampling.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, sampling.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, sampling.ErrTimeout):
		return "timeout"
	case errors.Is(err, sampling.ErrRateLimited):
		return "rate_limited"
	default:
		return "generation_error"
	}
}

func responseLen(r *sampling.DynamicResponse) int {
	if r == nil {
		return 0
	}
	return len(r.Content)
}

func feedbackSummary(ms []patterns.Match) string {
	if len(ms) == 0 {
		return "No common anti-patterns detected."
	}
	titles := make([]string, len(ms))
	for i, m := range ms {
		titles[i] = m.Title
	}
	return "Watch out for: " + strings.Join(titles, "; ") + "."
}

func nextSteps(static StaticResponse, ms []patterns.Match, depth string) []string {
	steps := append([]string(nil), static.NextSteps...)
	for _, m := range ms {
		steps = append(steps, m.Advice)
	}
	limit := 4
	switch depth {
	case "quick":
		limit = 2
	case "comprehensive":
		limit = len(steps)
	}
	if len(steps) > limit {
		steps = steps[:limit]
	}
	return steps
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
