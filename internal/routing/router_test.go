package routing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/vibe-check/internal/telemetry"
)

type recordingSink struct {
	mu      sync.Mutex
	records []telemetry.RecordParams
}

func (s *recordingSink) RecordResponse(p telemetry.RecordParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, p)
}

func (s *recordingSink) all() []telemetry.RecordParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]telemetry.RecordParams(nil), s.records...)
}

func newTestRouter(t *testing.T, mutate func(*Config)) (*Router, *recordingSink) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	sink := &recordingSink{}
	return NewRouter(cfg, sink, nil), sink
}

func TestDecideRoute_DecisionTable(t *testing.T) {
	tests := []struct {
		name        string
		req         RouteRequest
		preferSpeed bool
		want        Decision
		latency     int
	}{
		{
			name: "high confidence takes static",
			req: RouteRequest{
				Query:             "Which is better, REST API or GraphQL?",
				Intent:            IntentArchitectureDecision,
				HasStaticResponse: true,
			},
			preferSpeed: true,
			want:        Static,
			latency:     StaticLatencyMS,
		},
		{
			name: "moderate confidence prefers hybrid",
			req: RouteRequest{
				Query:             "Explain dependency injection in plain words for a new teammate on the team",
				HasStaticResponse: true,
			},
			preferSpeed: true,
			want:        Hybrid,
			latency:     HybridLatencyMS,
		},
		{
			name: "moderate confidence without speed preference goes dynamic",
			req: RouteRequest{
				Query:             "Explain dependency injection in plain words for a new teammate on the team",
				HasStaticResponse: true,
			},
			preferSpeed: false,
			want:        Dynamic,
			latency:     DynamicLatencyMS,
		},
		{
			name: "low confidence goes dynamic",
			req: RouteRequest{
				Query:               "In our case, our custom auth layer breaks when given that tokens rotate",
				Intent:              IntentDebuggingHelp,
				HasWorkspaceContext: true,
				HasStaticResponse:   true,
			},
			preferSpeed: true,
			want:        Dynamic,
			latency:     DynamicLatencyMS,
		},
		{
			name: "missing static response forces dynamic",
			req: RouteRequest{
				Query:  "Which is better, REST API or GraphQL?",
				Intent: IntentArchitectureDecision,
			},
			preferSpeed: true,
			want:        Dynamic,
			latency:     DynamicLatencyMS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(t, func(c *Config) { c.PreferSpeed = tt.preferSpeed })
			m := r.DecideRoute(tt.req)
			assert.Equal(t, tt.want, m.Decision, m.Reasoning)
			assert.Equal(t, tt.latency, m.LatencyEstimateMS)
			assert.NotEmpty(t, m.Reasoning)
			assert.GreaterOrEqual(t, m.Confidence, 0.0)
			assert.LessOrEqual(t, m.Confidence, 1.0)
		})
	}
}

func TestDecideRoute_NoStaticResponseHasNoFallback(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	m := r.DecideRoute(RouteRequest{Query: "anything"})

	assert.Equal(t, Dynamic, m.Decision)
	assert.False(t, m.FallbackAvailable)
	assert.False(t, r.ShouldFallback(m, true, 10_000))
}

func TestDecideRoute_ForceDynamic(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	m := r.DecideRoute(RouteRequest{
		Query:             "Which is better, REST API or GraphQL?",
		Intent:            IntentArchitectureDecision,
		HasStaticResponse: true,
		ForceDynamic:      true,
	})

	assert.Equal(t, Dynamic, m.Decision)
	assert.Zero(t, m.Confidence)
	assert.True(t, m.FallbackAvailable)
}

func TestDecideRoute_CacheHitIsFlaggedAndRecorded(t *testing.T) {
	r, sink := newTestRouter(t, nil)
	req := RouteRequest{
		Query:             "Which is better, REST API or GraphQL?",
		Intent:            IntentArchitectureDecision,
		HasStaticResponse: true,
	}

	first := r.DecideRoute(req)
	second := r.DecideRoute(req)

	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Decision, second.Decision)

	records := sink.all()
	require.Len(t, records, 2)
	assert.False(t, records[0].CacheHit)
	assert.True(t, records[1].CacheHit)
	assert.Equal(t, telemetry.RouteStatic, records[1].RouteType)
	assert.InDelta(t, StaticLatencyMS, records[1].LatencyMS, 0.001)
}

func TestDecideRoute_MissingStaticBypassesDecisionCache(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	req := RouteRequest{
		Query:             "Which is better, REST API or GraphQL?",
		Intent:            IntentArchitectureDecision,
		HasStaticResponse: true,
	}
	require.Equal(t, Static, r.DecideRoute(req).Decision)

	req.HasStaticResponse = false
	m := r.DecideRoute(req)

	assert.Equal(t, Dynamic, m.Decision)
	assert.False(t, m.CacheHit)
}

func TestShouldFallback(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	withFallback := RouteMetrics{Decision: Dynamic, FallbackAvailable: true}

	assert.True(t, r.ShouldFallback(withFallback, true, 100))
	assert.True(t, r.ShouldFallback(withFallback, false, SlowResponseMS+1))
	assert.False(t, r.ShouldFallback(withFallback, false, SlowResponseMS))
	assert.False(t, r.ShouldFallback(RouteMetrics{}, true, SlowResponseMS+1))
}

func TestRecordOutcome_TunesThresholdAndClearsDecisionCache(t *testing.T) {
	r, _ := newTestRouter(t, func(c *Config) { c.OptimizeEvery = 10 })
	r.DecideRoute(RouteRequest{
		Query:             "Which is better, REST API or GraphQL?",
		Intent:            IntentArchitectureDecision,
		HasStaticResponse: true,
	})
	require.Equal(t, 1, r.DecisionCacheStats().Size)

	for range 10 {
		r.RecordOutcome(Static, false)
	}

	assert.InDelta(t, 0.75, r.Threshold(), 1e-9)
	assert.Zero(t, r.DecisionCacheStats().Size)
}

func TestRecordOutcome_DisabledAutoTune(t *testing.T) {
	r, _ := newTestRouter(t, func(c *Config) { c.OptimizeEvery = 0 })

	for range 100 {
		r.RecordOutcome(Static, false)
	}

	assert.InDelta(t, 0.7, r.Threshold(), 1e-9)
}

func TestRouter_ConcurrentDecisions(t *testing.T) {
	r, sink := newTestRouter(t, func(c *Config) { c.OptimizeEvery = 5 })
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := r.DecideRoute(RouteRequest{Query: "best practice for logging", HasStaticResponse: i%2 == 0})
			r.RecordOutcome(m.Decision, true)
		}()
	}
	wg.Wait()

	assert.Len(t, sink.all(), 20)
}
