package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/vibe-check/internal/analysis"
	"github.com/HendryAvila/vibe-check/internal/monitor"
)

type fakeQueue struct{ st analysis.QueueStatus }

func (f fakeQueue) Status() analysis.QueueStatus { return f.st }

type fakeWorkers struct {
	running  int
	statuses []analysis.WorkerStatus
}

func (f fakeWorkers) Statuses() []analysis.WorkerStatus { return f.statuses }
func (f fakeWorkers) Running() int                      { return f.running }

type fakeResources struct{ st monitor.Status }

func (f fakeResources) Status() monitor.Status { return f.st }

type pinger func(ctx context.Context) error

func (p pinger) Ping(ctx context.Context) error { return p(ctx) }

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

func healthyDeps() Deps {
	return Deps{
		Queue:     fakeQueue{analysis.QueueStatus{QueueSize: 1, MaxQueueSize: 10, Utilization: 0.1}},
		Workers:   fakeWorkers{running: 2},
		Resources: fakeResources{},
		API:       pinger(func(context.Context) error { return nil }),
	}
}

func newTestMonitor(deps Deps) (*Monitor, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.CheckTimeout = 50 * time.Millisecond
	cfg.HistorySize = 3
	return New(cfg, deps, WithClock(c.Now)), c
}

func byComponent(r Report) map[string]Check {
	out := map[string]Check{}
	for _, c := range r.Checks {
		out[c.Component] = c
	}
	return out
}

func TestPerformCheck_AllHealthy(t *testing.T) {
	m, _ := newTestMonitor(healthyDeps())

	r := m.PerformCheck(context.Background())

	assert.Equal(t, Healthy, r.Overall)
	require.Len(t, r.Checks, 5)
	for _, c := range r.Checks {
		assert.Equal(t, Healthy, c.Status, c.Component)
	}
	assert.Empty(t, m.Alerts())
}

func TestPerformCheck_FailingCheckDoesNotAbortOthers(t *testing.T) {
	deps := healthyDeps()
	deps.API = pinger(func(context.Context) error { panic("boom") })
	m, _ := newTestMonitor(deps)

	r := m.PerformCheck(context.Background())

	checks := byComponent(r)
	assert.Equal(t, Critical, checks[ComponentAPI].Status)
	assert.Contains(t, checks[ComponentAPI].Message, "panicked")
	assert.Equal(t, Healthy, checks[ComponentQueue].Status)
	assert.Equal(t, Healthy, checks[ComponentWorkers].Status)
	assert.Equal(t, Critical, r.Overall)
}

func TestPerformCheck_SlowCheckTimesOut(t *testing.T) {
	deps := healthyDeps()
	deps.API = pinger(func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	m, _ := newTestMonitor(deps)

	r := m.PerformCheck(context.Background())

	api := byComponent(r)[ComponentAPI]
	assert.Equal(t, Critical, api.Status)
	assert.Contains(t, api.Message, "timed out")
}

func TestPerformCheck_ComponentStatuses(t *testing.T) {
	deps := Deps{
		Queue:     fakeQueue{analysis.QueueStatus{QueueSize: 8, MaxQueueSize: 10, Utilization: 0.8}},
		Workers:   fakeWorkers{running: 1},
		Resources: fakeResources{monitor.Status{Check: monitor.LimitCheck{Violations: []string{"memory over limit"}}}},
		API:       pinger(func(context.Context) error { return errors.New("401") }),
	}
	m, _ := newTestMonitor(deps)

	checks := byComponent(m.PerformCheck(context.Background()))

	assert.Equal(t, Warning, checks[ComponentQueue].Status)
	assert.Equal(t, Warning, checks[ComponentWorkers].Status)
	assert.Equal(t, Critical, checks[ComponentResources].Status)
	assert.Equal(t, "memory over limit", checks[ComponentResources].Message)
	assert.Equal(t, Warning, checks[ComponentAPI].Status)
}

func TestPerformCheck_MissingComponents(t *testing.T) {
	m, _ := newTestMonitor(Deps{})

	r := m.PerformCheck(context.Background())

	checks := byComponent(r)
	assert.Equal(t, Critical, checks[ComponentSystem].Status)
	assert.Equal(t, Unavailable, checks[ComponentQueue].Status)
	assert.Equal(t, Unavailable, checks[ComponentAPI].Status)
	assert.Equal(t, Critical, r.Overall)
}

func TestHistory_Bounded(t *testing.T) {
	m, _ := newTestMonitor(healthyDeps())
	for range 5 {
		m.PerformCheck(context.Background())
	}
	assert.Len(t, m.History(), 3)
}

func TestAlerts_DedupAndPurge(t *testing.T) {
	deps := healthyDeps()
	deps.Workers = fakeWorkers{running: 0}
	m, c := newTestMonitor(deps)
	ctx := context.Background()

	m.PerformCheck(ctx)
	m.PerformCheck(ctx)
	require.Len(t, m.Alerts(), 1, "same component and severity within window")

	c.Advance(6 * time.Minute)
	m.PerformCheck(ctx)
	assert.Len(t, m.Alerts(), 2, "window elapsed")

	c.Advance(61 * time.Minute)
	m.deps.Workers = fakeWorkers{running: 2}
	m.PerformCheck(ctx)
	assert.Empty(t, m.Alerts(), "old alerts purged")
}

func TestSummary(t *testing.T) {
	m, _ := newTestMonitor(healthyDeps())
	assert.Equal(t, Unavailable, m.Summary().Overall)

	m.PerformCheck(context.Background())
	s := m.Summary()
	assert.Equal(t, Healthy, s.Overall)
	assert.Len(t, s.Components, 5)
}

func TestOverall(t *testing.T) {
	c := func(s Status) Check { return Check{Status: s} }
	assert.Equal(t, Healthy, overall([]Check{c(Healthy), c(Unavailable)}))
	assert.Equal(t, Warning, overall([]Check{c(Healthy), c(Warning)}))
	assert.Equal(t, Critical, overall([]Check{c(Warning), c(Critical), c(Healthy)}))
}
