package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(t *testing.T) (*Breaker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New("test", Config{
		FailureThreshold: 3,
		RecoveryTimeout:  10 * time.Second,
		SuccessThreshold: 2,
	}, WithClock(clock.Now))
	return b, clock
}

func TestNew_DefaultsForZeroConfig(t *testing.T) {
	b := New("zero", Config{})
	assert.Equal(t, DefaultConfig(), b.cfg)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, Closed, b.State())
	assert.True(t, b.CanExecute())

	b.RecordFailure()
	assert.Equal(t, Open, b.State())
	assert.False(t, b.CanExecute())
}

func TestBreaker_RecoveryTransitionsOnceToHalfOpen(t *testing.T) {
	b, clock := newTestBreaker(t)
	for range 3 {
		b.RecordFailure()
	}

	clock.Advance(5 * time.Second)
	assert.False(t, b.CanExecute(), "still inside recovery timeout")

	clock.Advance(6 * time.Second)
	assert.True(t, b.CanExecute())
	assert.Equal(t, HalfOpen, b.State())
	assert.True(t, b.CanExecute(), "half-open keeps allowing probes")
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(t)
	for range 3 {
		b.RecordFailure()
	}
	clock.Advance(11 * time.Second)
	require.True(t, b.CanExecute())

	b.RecordSuccess()
	b.RecordFailure()
	assert.Equal(t, Open, b.State())
	assert.Equal(t, 0, b.Stats().SuccessCount)
	assert.False(t, b.CanExecute())
}

func TestBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b, clock := newTestBreaker(t)
	for range 3 {
		b.RecordFailure()
	}
	clock.Advance(11 * time.Second)
	require.True(t, b.CanExecute())

	b.RecordSuccess()
	assert.Equal(t, HalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 0, b.Stats().FailureCount)
}

func TestBreaker_ClosedSuccessHealsFailures(t *testing.T) {
	b, _ := newTestBreaker(t)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	assert.Equal(t, 1, b.Stats().FailureCount)

	b.RecordSuccess()
	b.RecordSuccess()
	assert.Equal(t, 0, b.Stats().FailureCount, "failure count never goes negative")

	// Two more failures are not enough after healing.
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_Execute(t *testing.T) {
	b, _ := newTestBreaker(t)
	boom := errors.New("boom")

	for range 3 {
		err := b.Execute(func() error { return boom })
		assert.ErrorIs(t, err, boom)
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "open breaker must not run the call")
	assert.Equal(t, int64(1), b.Stats().TotalRejections)
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(t)
	for range 3 {
		b.RecordFailure()
	}
	b.Reset()
	assert.Equal(t, Closed, b.State())
	assert.True(t, b.CanExecute())
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half_open"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
