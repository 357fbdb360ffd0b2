// Package degradation wraps the async analysis entry points with retries,
// a circuit breaker and fallbacks, and classifies overall system
// availability.
package degradation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/HendryAvila/vibe-check/internal/analysis"
	"github.com/HendryAvila/vibe-check/internal/breaker"
)

// StatusFallbackFailed tags the payload returned when the fallback fails too.
const StatusFallbackFailed = "fallback_failed"

// Config configures a Manager.
type Config struct {
	MaxRetries      int            `yaml:"max_retries"`
	BaseDelay       time.Duration  `yaml:"base_delay"`
	MaxDelay        time.Duration  `yaml:"max_delay"`
	Exponential     bool           `yaml:"exponential"`
	DefaultTimeout  time.Duration  `yaml:"default_timeout"`
	AvailabilityTTL time.Duration  `yaml:"availability_ttl"`
	Breaker         breaker.Config `yaml:"breaker"`
}

// DefaultConfig returns the manager defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		BaseDelay:       time.Second,
		MaxDelay:        10 * time.Second,
		Exponential:     true,
		DefaultTimeout:  30 * time.Second,
		AvailabilityTTL: 30 * time.Second,
		Breaker:         breaker.Config{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second, SuccessThreshold: 2},
	}
}

// Func is a primary or fallback operation.
type Func func(ctx context.Context) (map[string]any, error)

// Operation describes one guarded call.
type Operation struct {
	Name     string
	Primary  Func
	Fallback Func
	// Timeout bounds each primary attempt. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// Manager executes operations with retries and fallbacks.
type Manager struct {
	cfg     Config
	breaker *breaker.Breaker
	source  StatusSource
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	group   singleflight.Group
	mu      sync.Mutex
	avail   Availability
	checked time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock replaces time.Now for the availability cache and annotations.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager. source may be nil, in which case the system is
// reported unavailable.
func New(cfg Config, source StatusSource, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = def.AvailabilityTTL
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	m := &Manager{
		cfg:    cfg,
		source: source,
		logger: slog.Default(),
		now:    time.Now,
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.breaker = breaker.New("degradation", cfg.Breaker, breaker.WithClock(m.now))
	return m
}

// Breaker returns the manager's own circuit breaker.
func (m *Manager) Breaker() *breaker.Breaker { return m.breaker }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExecuteWithFallback runs op.Primary with retries, falling back to
// op.Fallback when the breaker is open or every attempt fails. The result is
// always a payload annotated with degradation_info; it never returns an
// error.
func (m *Manager) ExecuteWithFallback(ctx context.Context, op Operation) map[string]any {
	avail := m.CheckSystemAvailability(ctx)

	var reason string
	if !m.breaker.CanExecute() {
		reason = "circuit breaker open"
	} else {
		res, err := m.retry(ctx, op)
		if err == nil {
			return m.annotate(res, op.Name, avail, false, "")
		}
		reason = err.Error()
	}

	m.logger.Warn("degradation: using fallback", "operation", op.Name, "reason", reason)
	if op.Fallback == nil {
		return m.fallbackFailed(op.Name, avail, reason, errors.New("no fallback configured"))
	}
	res, err := guard(ctx, op.Fallback)
	if err != nil {
		return m.fallbackFailed(op.Name, avail, reason, err)
	}
	return m.annotate(res, op.Name, avail, true, reason)
}

func (m *Manager) retry(ctx context.Context, op Operation) (map[string]any, error) {
	timeout := op.Timeout
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}

	var lastErr error
	for attempt := range m.cfg.MaxRetries {
		if attempt > 0 {
			if err := m.sleep(ctx, m.backoff(attempt)); err != nil {
				return nil, err
			}
			if !m.breaker.CanExecute() {
				return nil, fmt.Errorf("circuit breaker opened after %d attempts: %w", attempt, lastErr)
			}
		}

		res, err := m.attempt(ctx, op.Primary, timeout)
		if err == nil {
			m.breaker.RecordSuccess()
			return res, nil
		}
		m.breaker.RecordFailure()
		lastErr = err
		m.logger.Debug("degradation: attempt failed", "operation", op.Name, "attempt", attempt+1, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%d attempts failed: %w", m.cfg.MaxRetries, lastErr)
}

// attempt runs fn under timeout. A primary that ignores its context is
// abandoned when the timeout fires.
func (m *Manager) attempt(ctx context.Context, fn Func, timeout time.Duration) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res map[string]any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := guard(ctx, fn)
		done <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("timed out after %s: %w", timeout, ctx.Err())
	case o := <-done:
		return o.res, o.err
	}
}

func (m *Manager) backoff(attempt int) time.Duration {
	d := m.cfg.BaseDelay
	if m.cfg.Exponential {
		d = time.Duration(float64(m.cfg.BaseDelay) * math.Pow(2, float64(attempt-1)))
	}
	return min(d, m.cfg.MaxDelay)
}

func guard(ctx context.Context, fn Func) (res map[string]any, err error) {
	if fn == nil {
		return nil, errors.New("no operation configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (m *Manager) annotate(res map[string]any, op string, avail Availability, usedFallback bool, reason string) map[string]any {
	if res == nil {
		res = map[string]any{}
	}
	info := map[string]any{
		"used_fallback":       usedFallback,
		"system_availability": avail,
		"operation":           op,
		"timestamp":           m.now().UTC().Format(time.RFC3339),
	}
	if reason != "" {
		info["fallback_reason"] = reason
	}
	res["degradation_info"] = info
	return res
}

func (m *Manager) fallbackFailed(op string, avail Availability, reason string, err error) map[string]any {
	m.logger.Error("degradation: fallback failed", "operation", op, "error", err)
	return m.annotate(map[string]any{
		"status": StatusFallbackFailed,
		"error":  err.Error(),
	}, op, avail, true, reason)
}

// CheckSystemAvailability classifies the system, refreshing at most once
// per AvailabilityTTL. Concurrent refreshes share one status query.
func (m *Manager) CheckSystemAvailability(ctx context.Context) Availability {
	m.mu.Lock()
	if !m.checked.IsZero() && m.now().Sub(m.checked) < m.cfg.AvailabilityTTL {
		a := m.avail
		m.mu.Unlock()
		return a
	}
	m.mu.Unlock()

	v, _, _ := m.group.Do("availability", func() (any, error) {
		m.mu.Lock()
		if !m.checked.IsZero() && m.now().Sub(m.checked) < m.cfg.AvailabilityTTL {
			a := m.avail
			m.mu.Unlock()
			return a, nil
		}
		m.mu.Unlock()

		var (
			st  analysis.SystemStatus
			err = errors.New("no status source")
		)
		if m.source != nil {
			st, err = m.source.OverallStatus(ctx)
		}
		a := Classify(st, err)
		if err != nil {
			m.logger.Warn("degradation: status unavailable", "error", err)
		}
		m.mu.Lock()
		m.avail, m.checked = a, m.now()
		m.mu.Unlock()
		return a, nil
	})
	return v.(Availability)
}

// RecommendedStrategy returns the analysis strategy for p given current
// availability.
func (m *Manager) RecommendedStrategy(ctx context.Context, p analysis.PRData) Strategy {
	return StrategyFor(m.CheckSystemAvailability(ctx), p)
}
