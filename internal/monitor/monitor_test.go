package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSampler struct {
	mu        sync.Mutex
	system    Usage
	systemErr error
	procs     map[int32]Usage
}

func (f *fakeSampler) SystemUsage(context.Context) (Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.system, f.systemErr
}

func (f *fakeSampler) ProcessUsage(_ context.Context, pid int32) (Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.procs[pid]
	if !ok {
		return Usage{}, ErrProcessGone
	}
	return u, nil
}

func newFakeSampler() *fakeSampler {
	return &fakeSampler{
		system: Usage{CPUPercent: 10, MemoryPercent: 40, AvailableMemoryMB: 8000},
		procs:  map[int32]Usage{},
	}
}

func TestShouldAcceptNewJob_RejectsAtJobLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxConcurrentJobs = 1
	m := New(limits, newFakeSampler())

	m.RegisterJob("job-1", 100)
	ok, reason := m.ShouldAcceptNewJob()

	assert.False(t, ok)
	assert.Contains(t, reason, "jobs")
}

func TestShouldAcceptNewJob_AcceptsWithHeadroom(t *testing.T) {
	m := New(DefaultLimits(), newFakeSampler())
	m.SystemUsage(context.Background())

	ok, _ := m.ShouldAcceptNewJob()
	assert.True(t, ok)
}

func TestShouldAcceptNewJob_RejectsLowMemory(t *testing.T) {
	s := newFakeSampler()
	s.system.AvailableMemoryMB = 100
	m := New(DefaultLimits(), s)
	m.SystemUsage(context.Background())

	ok, reason := m.ShouldAcceptNewJob()

	assert.False(t, ok)
	assert.Contains(t, reason, "memory")
}

func TestShouldAcceptNewJob_RejectsOnCriticalCPU(t *testing.T) {
	s := newFakeSampler()
	s.system.CPUPercent = 97
	m := New(DefaultLimits(), s)
	m.SystemUsage(context.Background())

	ok, reason := m.ShouldAcceptNewJob()

	assert.False(t, ok)
	assert.Contains(t, reason, "CPU")
}

func TestSystemUsage_ErrorYieldsZeroReading(t *testing.T) {
	s := newFakeSampler()
	s.systemErr = errors.New("no /proc")
	m := New(DefaultLimits(), s)

	u := m.SystemUsage(context.Background())

	assert.Zero(t, u.MemoryMB)
	assert.Zero(t, u.CPUPercent)
	assert.False(t, u.Timestamp.IsZero())
}

func TestJobUsage_TracksPeakAndDedupesViolations(t *testing.T) {
	s := newFakeSampler()
	limits := DefaultLimits()
	limits.MaxJobMemoryMB = 100
	m := New(limits, s)
	ctx := context.Background()
	m.RegisterJob("job-1", 7)

	s.procs[7] = Usage{MemoryMB: 150}
	_, ok := m.JobUsage(ctx, "job-1")
	require.True(t, ok)
	s.procs[7] = Usage{MemoryMB: 150}
	m.JobUsage(ctx, "job-1")
	s.procs[7] = Usage{MemoryMB: 50}
	m.JobUsage(ctx, "job-1")

	tr, ok := m.Tracker("job-1")
	require.True(t, ok)
	assert.InDelta(t, 150, tr.PeakMemoryMB, 1e-9)
	assert.Len(t, tr.History, 3)
	assert.Len(t, tr.Violations, 1)
}

func TestJobUsage_GoneOrUntracked(t *testing.T) {
	m := New(DefaultLimits(), newFakeSampler())
	m.RegisterJob("job-1", 42)

	_, ok := m.JobUsage(context.Background(), "job-1")
	assert.False(t, ok, "process gone")

	_, ok = m.JobUsage(context.Background(), "nope")
	assert.False(t, ok, "untracked")
}

func TestTrackerHistoryIsBounded(t *testing.T) {
	s := newFakeSampler()
	s.procs[1] = Usage{MemoryMB: 1}
	m := New(DefaultLimits(), s)
	m.RegisterJob("j", 1)

	for range trackerHistorySize + 20 {
		m.JobUsage(context.Background(), "j")
	}

	tr, _ := m.Tracker("j")
	assert.Len(t, tr.History, trackerHistorySize)
}

func TestCheckSystemLimits_TrackedMemory(t *testing.T) {
	s := newFakeSampler()
	limits := DefaultLimits()
	limits.MaxTotalMemoryMB = 1000
	limits.MaxJobMemoryMB = 2000
	m := New(limits, s)
	ctx := context.Background()

	s.procs[1] = Usage{MemoryMB: 450}
	s.procs[2] = Usage{MemoryMB: 400}
	m.RegisterJob("a", 1)
	m.RegisterJob("b", 2)
	m.Refresh(ctx)

	check := m.CheckSystemLimits()
	assert.True(t, check.OK())
	assert.Len(t, check.Warnings, 1)

	s.procs[2] = Usage{MemoryMB: 700}
	m.Refresh(ctx)
	check = m.CheckSystemLimits()
	assert.False(t, check.OK())
}

func TestUnregisterJob(t *testing.T) {
	m := New(DefaultLimits(), newFakeSampler())
	m.RegisterJob("a", 1)

	tr, ok := m.UnregisterJob("a")
	assert.True(t, ok)
	assert.Equal(t, "a", tr.JobID)
	assert.Zero(t, m.ActiveJobs())

	_, ok = m.UnregisterJob("a")
	assert.False(t, ok)
}

func TestRun_StopsOnCancel(t *testing.T) {
	m := New(DefaultLimits(), newFakeSampler(), WithInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Equal(t, 40.0, m.Status().System.MemoryPercent)
}
