package degradation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/vibe-check/internal/analysis"
	"github.com/HendryAvila/vibe-check/internal/breaker"
	"github.com/HendryAvila/vibe-check/internal/monitor"
)

type fakeSource struct {
	mu    sync.Mutex
	st    analysis.SystemStatus
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (f *fakeSource) OverallStatus(context.Context) (analysis.SystemStatus, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st, f.err
}

func healthySource() *fakeSource {
	return &fakeSource{st: analysis.SystemStatus{RunningWorkers: 2, Queue: analysis.QueueStatus{Utilization: 0.1}}}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, src StatusSource) (*Manager, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.DefaultTimeout = time.Second
	cfg.Breaker = breaker.Config{FailureThreshold: 3, RecoveryTimeout: time.Minute, SuccessThreshold: 1}
	m := New(cfg, src, WithClock(c.Now))
	m.sleep = func(context.Context, time.Duration) error { return nil }
	return m, c
}

func info(t *testing.T, res map[string]any) map[string]any {
	t.Helper()
	di, ok := res["degradation_info"].(map[string]any)
	require.True(t, ok, "result carries degradation_info")
	return di
}

func TestExecuteWithFallback_PrimarySucceeds(t *testing.T) {
	m, _ := newTestManager(t, healthySource())

	res := m.ExecuteWithFallback(context.Background(), Operation{
		Name:    "start",
		Primary: func(context.Context) (map[string]any, error) { return map[string]any{"status": "ok"}, nil },
	})

	assert.Equal(t, "ok", res["status"])
	di := info(t, res)
	assert.Equal(t, false, di["used_fallback"])
	assert.Equal(t, FullyAvailable, di["system_availability"])
	assert.Equal(t, "start", di["operation"])
	assert.NotContains(t, di, "fallback_reason")
}

func TestExecuteWithFallback_RetriesThenSucceeds(t *testing.T) {
	m, _ := newTestManager(t, healthySource())
	var calls atomic.Int32

	res := m.ExecuteWithFallback(context.Background(), Operation{
		Name: "start",
		Primary: func(context.Context) (map[string]any, error) {
			if calls.Add(1) < 3 {
				return nil, errors.New("transient")
			}
			return map[string]any{"status": "ok"}, nil
		},
	})

	assert.Equal(t, "ok", res["status"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecuteWithFallback_ExhaustedUsesFallback(t *testing.T) {
	m, _ := newTestManager(t, healthySource())
	var calls atomic.Int32

	res := m.ExecuteWithFallback(context.Background(), Operation{
		Name: "start",
		Primary: func(context.Context) (map[string]any, error) {
			calls.Add(1)
			return nil, errors.New("down")
		},
		Fallback: func(context.Context) (map[string]any, error) {
			return map[string]any{"status": "basic"}, nil
		},
	})

	assert.Equal(t, "basic", res["status"])
	di := info(t, res)
	assert.Equal(t, true, di["used_fallback"])
	assert.Contains(t, di["fallback_reason"], "down")
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecuteWithFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	m, _ := newTestManager(t, healthySource())
	for range 3 {
		m.Breaker().RecordFailure()
	}
	var called atomic.Bool

	res := m.ExecuteWithFallback(context.Background(), Operation{
		Name: "start",
		Primary: func(context.Context) (map[string]any, error) {
			called.Store(true)
			return nil, nil
		},
		Fallback: func(context.Context) (map[string]any, error) { return map[string]any{"status": "fb"}, nil },
	})

	assert.False(t, called.Load())
	assert.Equal(t, "fb", res["status"])
	assert.Equal(t, "circuit breaker open", info(t, res)["fallback_reason"])
}

func TestExecuteWithFallback_TimeoutIsRetryable(t *testing.T) {
	m, _ := newTestManager(t, healthySource())
	var calls atomic.Int32

	res := m.ExecuteWithFallback(context.Background(), Operation{
		Name:    "status",
		Timeout: 10 * time.Millisecond,
		Primary: func(ctx context.Context) (map[string]any, error) {
			calls.Add(1)
			<-ctx.Done()
			return nil, ctx.Err()
		},
		Fallback: func(context.Context) (map[string]any, error) { return map[string]any{"status": "fb"}, nil },
	})

	assert.Equal(t, "fb", res["status"])
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, breaker.Open, m.Breaker().State())
}

func TestExecuteWithFallback_FallbackFails(t *testing.T) {
	m, _ := newTestManager(t, healthySource())

	res := m.ExecuteWithFallback(context.Background(), Operation{
		Name:     "start",
		Primary:  func(context.Context) (map[string]any, error) { panic("primary blew up") },
		Fallback: func(context.Context) (map[string]any, error) { return nil, errors.New("fallback broke") },
	})

	assert.Equal(t, StatusFallbackFailed, res["status"])
	assert.Equal(t, "fallback broke", res["error"])
	assert.Contains(t, info(t, res)["fallback_reason"], "panic")
}

func TestCheckSystemAvailability_CachedForTTL(t *testing.T) {
	src := healthySource()
	m, c := newTestManager(t, src)
	ctx := context.Background()

	assert.Equal(t, FullyAvailable, m.CheckSystemAvailability(ctx))
	src.mu.Lock()
	src.st.RunningWorkers = 0
	src.mu.Unlock()
	assert.Equal(t, FullyAvailable, m.CheckSystemAvailability(ctx), "cached")
	assert.Equal(t, int32(1), src.calls.Load())

	c.Advance(31 * time.Second)
	assert.Equal(t, PartialFailure, m.CheckSystemAvailability(ctx))
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestCheckSystemAvailability_ConcurrentRefreshCollapses(t *testing.T) {
	src := healthySource()
	src.delay = 50 * time.Millisecond
	m, _ := newTestManager(t, src)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, FullyAvailable, m.CheckSystemAvailability(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestClassify(t *testing.T) {
	violating := &monitor.Status{Check: monitor.LimitCheck{Violations: []string{"cpu"}}}
	tests := []struct {
		name string
		st   analysis.SystemStatus
		err  error
		want Availability
	}{
		{"status error", analysis.SystemStatus{}, errors.New("x"), Unavailable},
		{"no workers", analysis.SystemStatus{}, nil, PartialFailure},
		{"violations", analysis.SystemStatus{RunningWorkers: 1, Resources: violating}, nil, Degraded},
		{"busy queue", analysis.SystemStatus{RunningWorkers: 1, Queue: analysis.QueueStatus{Utilization: 0.8}}, nil, Degraded},
		{"healthy", analysis.SystemStatus{RunningWorkers: 1, Queue: analysis.QueueStatus{Utilization: 0.5}}, nil, FullyAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.st, tt.err))
		})
	}
}

func TestStrategyFor(t *testing.T) {
	small := analysis.PRData{Additions: 100, ChangedFiles: 3}
	medium := analysis.PRData{Additions: 1000, ChangedFiles: 12}
	large := analysis.PRData{Additions: 5000, ChangedFiles: 40}
	massive := analysis.PRData{Additions: 50000, ChangedFiles: 300}

	tests := []struct {
		avail Availability
		pr    analysis.PRData
		name  string
		conf  float64
	}{
		{FullyAvailable, small, StrategyStandard, 0.95},
		{FullyAvailable, medium, StrategyChunked, 0.90},
		{FullyAvailable, large, StrategyAsync, 0.90},
		{FullyAvailable, massive, StrategyAsync, 0.85},
		{Degraded, large, StrategyFastSummary, 0.65},
		{PartialFailure, massive, StrategyBasic, 0.55},
		{Unavailable, small, StrategyBasic, 0.60},
		{Availability("bogus"), small, StrategyBasic, 0.60},
	}
	for _, tt := range tests {
		s := StrategyFor(tt.avail, tt.pr)
		assert.Equal(t, tt.name, s.Name, "%s/%s", tt.avail, s.SizeBucket)
		assert.InDelta(t, tt.conf, s.Confidence, 1e-9)
		assert.NotEmpty(t, s.Reasoning)
	}
}

func TestRecommendedStrategy_UsesAvailability(t *testing.T) {
	m, _ := newTestManager(t, nil)

	s := m.RecommendedStrategy(context.Background(), analysis.PRData{Additions: 100, ChangedFiles: 1})

	assert.Equal(t, Unavailable, s.Availability)
	assert.Equal(t, StrategyBasic, s.Name)
}
