// Package monitor tracks system and per-job resource usage for the async
// analysis system and gates admission of new jobs. It never stops jobs; it
// only records and reports violations.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Monitor is the resource monitor. It is safe for concurrent use.
type Monitor struct {
	limits   Limits
	sampler  OSSampler
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	trackers map[string]*JobTracker
	system   Usage
	sampled  bool
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

// WithInterval sets the Run refresh interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a Monitor. A nil sampler uses GopsutilSampler.
func New(limits Limits, sampler OSSampler, opts ...Option) *Monitor {
	if sampler == nil {
		sampler = GopsutilSampler{}
	}
	m := &Monitor{
		limits:   limits,
		sampler:  sampler,
		interval: 30 * time.Second,
		logger:   slog.Default(),
		now:      time.Now,
		trackers: make(map[string]*JobTracker),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Limits returns the configured limits.
func (m *Monitor) Limits() Limits { return m.limits }

// RegisterJob starts tracking jobID, bound to process pid.
func (m *Monitor) RegisterJob(jobID string, pid int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackers[jobID] = &JobTracker{JobID: jobID, PID: pid, StartTime: m.now()}
	m.logger.Debug("monitor: job registered", "job_id", jobID, "pid", pid)
}

// UnregisterJob stops tracking jobID and returns its final tracker.
func (m *Monitor) UnregisterJob(jobID string) (JobTracker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[jobID]
	if !ok {
		return JobTracker{}, false
	}
	delete(m.trackers, jobID)
	m.logger.Debug("monitor: job unregistered", "job_id", jobID, "peak_memory_mb", t.PeakMemoryMB)
	return t.clone(), true
}

// ActiveJobs returns the number of tracked jobs.
func (m *Monitor) ActiveJobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trackers)
}

// Tracker returns a copy of the tracker for jobID.
func (m *Monitor) Tracker(jobID string) (JobTracker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[jobID]
	if !ok {
		return JobTracker{}, false
	}
	return t.clone(), true
}

// SystemUsage samples system-wide usage. A sampling error is logged and
// yields a zeroed reading.
func (m *Monitor) SystemUsage(ctx context.Context) Usage {
	u, err := m.sampler.SystemUsage(ctx)
	if err != nil {
		m.logger.Warn("monitor: system sampling failed", "error", err)
		return Usage{Timestamp: m.now()}
	}
	m.mu.Lock()
	m.system = u
	m.sampled = true
	m.mu.Unlock()
	return u
}

// JobUsage samples the process bound to jobID. It returns false when the
// job is not tracked or its process has exited.
func (m *Monitor) JobUsage(ctx context.Context, jobID string) (*Usage, bool) {
	m.mu.Lock()
	t, ok := m.trackers[jobID]
	var pid int32
	if ok {
		pid = t.PID
	}
	m.mu.Unlock()
	if !ok {
		return nil, false
	}

	u, err := m.sampler.ProcessUsage(ctx, pid)
	if err != nil {
		if !errors.Is(err, ErrProcessGone) {
			m.logger.Warn("monitor: job sampling failed", "job_id", jobID, "error", err)
		}
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// The job may have been unregistered while sampling.
	if t, ok := m.trackers[jobID]; ok {
		t.record(u)
		if m.limits.MaxJobMemoryMB > 0 && u.MemoryMB > m.limits.MaxJobMemoryMB {
			msg := fmt.Sprintf("job memory %.0fMB exceeds limit %.0fMB", u.MemoryMB, m.limits.MaxJobMemoryMB)
			if t.addViolation(msg) {
				m.logger.Warn("monitor: job limit violated", "job_id", jobID, "violation", msg)
			}
		}
	}
	return &u, true
}

// CheckSystemLimits compares the latest samples against the limits.
func (m *Monitor) CheckSystemLimits() LimitCheck {
	m.mu.Lock()
	system, sampled := m.system, m.sampled
	jobs := len(m.trackers)
	var tracked float64
	for _, t := range m.trackers {
		if u, ok := t.Latest(); ok {
			tracked += u.MemoryMB
		}
	}
	m.mu.Unlock()

	var c LimitCheck
	l := m.limits

	if l.MaxTotalMemoryMB > 0 {
		switch {
		case tracked > l.MaxTotalMemoryMB:
			c.Violations = append(c.Violations, fmt.Sprintf("tracked job memory %.0fMB exceeds limit %.0fMB", tracked, l.MaxTotalMemoryMB))
		case tracked > l.MaxTotalMemoryMB*warningRatio:
			c.Warnings = append(c.Warnings, fmt.Sprintf("tracked job memory %.0fMB above %.0f%% of limit", tracked, warningRatio*100))
		}
	}
	if l.MaxConcurrentJobs > 0 && jobs > l.MaxConcurrentJobs {
		c.Violations = append(c.Violations, fmt.Sprintf("%d concurrent jobs exceed limit %d", jobs, l.MaxConcurrentJobs))
	}

	if !sampled {
		return c
	}
	if l.CriticalCPUPercent > 0 && system.CPUPercent > l.CriticalCPUPercent {
		c.Violations = append(c.Violations, fmt.Sprintf("system CPU %.0f%% above critical %.0f%%", system.CPUPercent, l.CriticalCPUPercent))
	} else if l.MaxCPUPercent > 0 && system.CPUPercent > l.MaxCPUPercent {
		c.Warnings = append(c.Warnings, fmt.Sprintf("system CPU %.0f%% above %.0f%%", system.CPUPercent, l.MaxCPUPercent))
	}
	if l.CriticalMemoryPercent > 0 && system.MemoryPercent > l.CriticalMemoryPercent {
		c.Warnings = append(c.Warnings, fmt.Sprintf("system memory %.0f%% above %.0f%%", system.MemoryPercent, l.CriticalMemoryPercent))
	}
	return c
}

// ShouldAcceptNewJob reports whether another job may be admitted, and the
// reason when it may not.
func (m *Monitor) ShouldAcceptNewJob() (bool, string) {
	check := m.CheckSystemLimits()
	if !check.OK() {
		return false, "resource limits violated: " + check.Violations[0]
	}

	m.mu.Lock()
	jobs := len(m.trackers)
	system, sampled := m.system, m.sampled
	m.mu.Unlock()

	if m.limits.MaxConcurrentJobs > 0 && jobs >= m.limits.MaxConcurrentJobs {
		return false, fmt.Sprintf("maximum concurrent jobs reached (%d/%d)", jobs, m.limits.MaxConcurrentJobs)
	}
	if sampled && m.limits.MaxJobMemoryMB > 0 && system.AvailableMemoryMB < m.limits.MaxJobMemoryMB {
		return false, fmt.Sprintf("insufficient memory: %.0fMB available, %.0fMB needed per job",
			system.AvailableMemoryMB, m.limits.MaxJobMemoryMB)
	}
	return true, "resources available"
}

// Status is a snapshot for health checks and status reporting.
type Status struct {
	ActiveJobs int          `json:"active_jobs"`
	System     Usage        `json:"system"`
	Limits     Limits       `json:"limits"`
	Check      LimitCheck   `json:"check"`
	Jobs       []JobTracker `json:"jobs"`
}

// Status returns the current monitor state without sampling.
func (m *Monitor) Status() Status {
	check := m.CheckSystemLimits()
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Status{ActiveJobs: len(m.trackers), System: m.system, Limits: m.limits, Check: check}
	for _, t := range m.trackers {
		s.Jobs = append(s.Jobs, t.clone())
	}
	sort.Slice(s.Jobs, func(i, j int) bool { return s.Jobs[i].StartTime.Before(s.Jobs[j].StartTime) })
	return s
}

// Refresh samples system usage and every tracked job once.
func (m *Monitor) Refresh(ctx context.Context) LimitCheck {
	m.SystemUsage(ctx)

	m.mu.Lock()
	ids := make([]string, 0, len(m.trackers))
	for id := range m.trackers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.JobUsage(ctx, id)
	}

	check := m.CheckSystemLimits()
	for _, v := range check.Violations {
		m.logger.Warn("monitor: limit violated", "violation", v)
	}
	return check
}

// Run refreshes usage every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}
