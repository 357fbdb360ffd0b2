// Package health runs periodic composite health checks over the async
// analysis system and raises deduplicated alerts.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HendryAvila/vibe-check/internal/analysis"
	"github.com/HendryAvila/vibe-check/internal/monitor"
)

// Status is the health of one component or of the whole system.
type Status string

const (
	Healthy     Status = "healthy"
	Warning     Status = "warning"
	Critical    Status = "critical"
	Unavailable Status = "unavailable"
)

// Component names.
const (
	ComponentSystem    = "system_initialization"
	ComponentQueue     = "analysis_queue"
	ComponentWorkers   = "worker_manager"
	ComponentResources = "resource_monitor"
	ComponentAPI       = "external_api"
)

// Check is the outcome of one component check.
type Check struct {
	Component      string         `json:"component"`
	Status         Status         `json:"status"`
	Message        string         `json:"message"`
	Details        map[string]any `json:"details,omitempty"`
	ResponseTimeMS float64        `json:"response_time_ms"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Report is one full round of checks.
type Report struct {
	Overall   Status    `json:"overall_status"`
	Checks    []Check   `json:"checks"`
	Timestamp time.Time `json:"timestamp"`
}

// Alert is raised for a warning or critical check.
type Alert struct {
	Component string    `json:"component"`
	Severity  Status    `json:"severity"`
	Message   string    `json:"message"`
	RaisedAt  time.Time `json:"raised_at"`
}

// QueueSource reports queue state.
type QueueSource interface {
	Status() analysis.QueueStatus
}

// ResourceSource reports resource monitor state.
type ResourceSource interface {
	Status() monitor.Status
}

// Pinger probes an external API.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the monitor checks. Any of them may be nil; a nil
// dependency is reported by the relevant check rather than skipped.
type Deps struct {
	Queue     QueueSource
	Workers   analysis.WorkerPool
	Resources ResourceSource
	API       Pinger
}

// Config configures a Monitor.
type Config struct {
	Interval     time.Duration `yaml:"interval"`
	CheckTimeout time.Duration `yaml:"check_timeout"`
	HistorySize  int           `yaml:"history_size"`
	AlertWindow  time.Duration `yaml:"alert_window"`
	AlertMaxAge  time.Duration `yaml:"alert_max_age"`
	// ExpectedWorkers is the configured pool size; fewer running workers is
	// a warning.
	ExpectedWorkers int `yaml:"expected_workers"`
}

// DefaultConfig returns the monitor defaults.
func DefaultConfig() Config {
	return Config{
		Interval:        time.Minute,
		CheckTimeout:    5 * time.Second,
		HistorySize:     100,
		AlertWindow:     5 * time.Minute,
		AlertMaxAge:     time.Hour,
		ExpectedWorkers: 2,
	}
}

// Queue utilization thresholds.
const (
	queueWarning  = 0.7
	queueCritical = 0.9
)

// Monitor runs health checks. It is safe for concurrent use.
type Monitor struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	history []Report
	alerts  []Alert
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a Monitor.
func New(cfg Config, deps Deps, opts ...Option) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = def.CheckTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.AlertWindow <= 0 {
		cfg.AlertWindow = def.AlertWindow
	}
	if cfg.AlertMaxAge <= 0 {
		cfg.AlertMaxAge = def.AlertMaxAge
	}
	m := &Monitor{cfg: cfg, deps: deps, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type checkFunc func(ctx context.Context) Check

// PerformCheck runs every component check concurrently. A check that
// panics, or does not finish within CheckTimeout, is reported critical
// without affecting the others.
func (m *Monitor) PerformCheck(ctx context.Context) Report {
	checks := []struct {
		name string
		fn   checkFunc
	}{
		{ComponentSystem, m.checkSystem},
		{ComponentQueue, m.checkQueue},
		{ComponentWorkers, m.checkWorkers},
		{ComponentResources, m.checkResources},
		{ComponentAPI, m.checkAPI},
	}

	results := make([]Check, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		g.Go(func() error {
			results[i] = m.run(gctx, c.name, c.fn)
			return nil
		})
	}
	_ = g.Wait()

	r := Report{Overall: overall(results), Checks: results, Timestamp: m.now()}
	m.mu.Lock()
	m.history = append(m.history, r)
	if over := len(m.history) - m.cfg.HistorySize; over > 0 {
		m.history = append([]Report(nil), m.history[over:]...)
	}
	m.processAlerts(results)
	m.mu.Unlock()

	if r.Overall != Healthy {
		m.logger.Warn("health: check degraded", "overall", r.Overall)
	}
	return r
}

// run executes one check under its own timeout and panic guard.
func (m *Monitor) run(ctx context.Context, name string, fn checkFunc) Check {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
	defer cancel()

	start := m.now()
	done := make(chan Check, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Check{Component: name, Status: Critical, Message: fmt.Sprintf("check panicked: %v", r)}
			}
		}()
		done <- fn(ctx)
	}()

	var c Check
	select {
	case c = <-done:
	case <-ctx.Done():
		c = Check{Component: name, Status: Critical, Message: fmt.Sprintf("check timed out: %v", ctx.Err())}
	}
	c.Component = name
	c.Timestamp = m.now()
	c.ResponseTimeMS = float64(c.Timestamp.Sub(start).Microseconds()) / 1000
	return c
}

func (m *Monitor) checkSystem(context.Context) Check {
	missing := []string{}
	if m.deps.Queue == nil {
		missing = append(missing, "queue")
	}
	if m.deps.Workers == nil {
		missing = append(missing, "workers")
	}
	if m.deps.Resources == nil {
		missing = append(missing, "resources")
	}
	if len(missing) > 0 {
		return Check{Status: Critical, Message: "async analysis system not initialized",
			Details: map[string]any{"missing": missing}}
	}
	return Check{Status: Healthy, Message: "all components initialized"}
}

func (m *Monitor) checkQueue(context.Context) Check {
	if m.deps.Queue == nil {
		return Check{Status: Unavailable, Message: "queue not configured"}
	}
	st := m.deps.Queue.Status()
	details := map[string]any{
		"queue_size":     st.QueueSize,
		"max_queue_size": st.MaxQueueSize,
		"utilization":    st.Utilization,
		"processing":     st.Processing,
	}
	switch {
	case st.Utilization >= queueCritical:
		return Check{Status: Critical, Message: fmt.Sprintf("queue nearly full (%d/%d)", st.QueueSize, st.MaxQueueSize), Details: details}
	case st.Utilization >= queueWarning:
		return Check{Status: Warning, Message: fmt.Sprintf("queue busy (%d/%d)", st.QueueSize, st.MaxQueueSize), Details: details}
	default:
		return Check{Status: Healthy, Message: "queue operating normally", Details: details}
	}
}

func (m *Monitor) checkWorkers(context.Context) Check {
	if m.deps.Workers == nil {
		return Check{Status: Unavailable, Message: "worker manager not configured"}
	}
	running := m.deps.Workers.Running()
	busy := 0
	for _, w := range m.deps.Workers.Statuses() {
		if w.CurrentJob != "" {
			busy++
		}
	}
	details := map[string]any{"running": running, "busy": busy, "expected": m.cfg.ExpectedWorkers}
	switch {
	case running == 0:
		return Check{Status: Critical, Message: "no workers running", Details: details}
	case running < m.cfg.ExpectedWorkers:
		return Check{Status: Warning, Message: fmt.Sprintf("%d of %d workers running", running, m.cfg.ExpectedWorkers), Details: details}
	default:
		return Check{Status: Healthy, Message: fmt.Sprintf("%d workers running", running), Details: details}
	}
}

func (m *Monitor) checkResources(context.Context) Check {
	if m.deps.Resources == nil {
		return Check{Status: Unavailable, Message: "resource monitor not configured"}
	}
	st := m.deps.Resources.Status()
	details := map[string]any{
		"memory_percent": st.System.MemoryPercent,
		"cpu_percent":    st.System.CPUPercent,
		"active_jobs":    st.ActiveJobs,
	}
	switch {
	case len(st.Check.Violations) > 0:
		details["violations"] = st.Check.Violations
		return Check{Status: Critical, Message: st.Check.Violations[0], Details: details}
	case len(st.Check.Warnings) > 0:
		details["warnings"] = st.Check.Warnings
		return Check{Status: Warning, Message: st.Check.Warnings[0], Details: details}
	default:
		return Check{Status: Healthy, Message: "resources within limits", Details: details}
	}
}

// checkAPI degrades to a warning on failure: PR analysis still produces
// immediate results without the external API.
func (m *Monitor) checkAPI(ctx context.Context) Check {
	if m.deps.API == nil {
		return Check{Status: Unavailable, Message: "external API not configured"}
	}
	if err := m.deps.API.Ping(ctx); err != nil {
		return Check{Status: Warning, Message: fmt.Sprintf("external API unreachable: %v", err)}
	}
	return Check{Status: Healthy, Message: "external API reachable"}
}

// overall is critical if any check is critical, else warning if any is a
// warning, else healthy. Unavailable checks do not lower the result.
func overall(checks []Check) Status {
	s := Healthy
	for _, c := range checks {
		switch c.Status {
		case Critical:
			return Critical
		case Warning:
			s = Warning
		}
	}
	return s
}

// processAlerts records an alert per non-healthy check unless the same
// component and severity alerted within AlertWindow, and drops alerts older
// than AlertMaxAge. Callers hold m.mu.
func (m *Monitor) processAlerts(checks []Check) {
	now := m.now()
	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if now.Sub(a.RaisedAt) < m.cfg.AlertMaxAge {
			kept = append(kept, a)
		}
	}
	m.alerts = kept

	for _, c := range checks {
		if c.Status != Warning && c.Status != Critical {
			continue
		}
		if m.recentAlert(c.Component, c.Status, now) {
			continue
		}
		m.alerts = append(m.alerts, Alert{Component: c.Component, Severity: c.Status, Message: c.Message, RaisedAt: now})
		m.logger.Warn("health: alert", "component", c.Component, "severity", c.Status, "message", c.Message)
	}
}

func (m *Monitor) recentAlert(component string, sev Status, now time.Time) bool {
	for _, a := range m.alerts {
		if a.Component == component && a.Severity == sev && now.Sub(a.RaisedAt) < m.cfg.AlertWindow {
			return true
		}
	}
	return false
}

// Alerts returns the retained alerts, oldest first.
func (m *Monitor) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert(nil), m.alerts...)
}

// History returns the retained reports, oldest first.
func (m *Monitor) History() []Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Report(nil), m.history...)
}

// Summary reduces the latest report to one status.
type Summary struct {
	Overall      Status            `json:"overall_status"`
	Components   map[string]Status `json:"components"`
	ActiveAlerts int               `json:"active_alerts"`
	LastCheck    time.Time         `json:"last_check,omitzero"`
}

// Summary returns the summary of the latest report. Before the first check
// the overall status is unavailable.
func (m *Monitor) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Summary{Overall: Unavailable, Components: map[string]Status{}, ActiveAlerts: len(m.alerts)}
	if len(m.history) == 0 {
		return s
	}
	last := m.history[len(m.history)-1]
	s.Overall = last.Overall
	s.LastCheck = last.Timestamp
	for _, c := range last.Checks {
		s.Components[c.Component] = c.Status
	}
	return s
}

// Run performs a check immediately and then every Interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.PerformCheck(ctx)
	t := time.NewTicker(m.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.PerformCheck(ctx)
		}
	}
}
