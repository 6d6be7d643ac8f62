package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetflow/handover-service/internal/observability"
	"github.com/assetflow/handover-service/internal/testfixtures"
)

func TestPeriodic_RunTicksOnVirtualTime(t *testing.T) {
	clk := testfixtures.NewClock(time.Time{})
	ticks := make(chan time.Time, 10)
	p := &Periodic{
		Name:     "test",
		Interval: time.Hour,
		Clock:    clk,
		Task: func(_ context.Context, now time.Time) error {
			ticks <- now
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	first := <-ticks
	assert.True(t, first.Equal(testfixtures.ReferenceTime()))
	require.Eventually(t, func() bool { return clk.Tickers() == 1 }, time.Second, time.Millisecond)

	clk.Advance(30 * time.Minute)
	select {
	case <-ticks:
		t.Fatal("ticked before the interval elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	clk.Advance(30 * time.Minute)
	second := <-ticks
	assert.True(t, second.Equal(testfixtures.ReferenceTime().Add(time.Hour)))

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, clk.Tickers())
}

func TestPeriodic_TaskErrorDoesNotStopLoop(t *testing.T) {
	clk := testfixtures.NewClock(time.Time{})
	var calls atomic.Int32
	p := &Periodic{
		Name:     "flaky",
		Interval: time.Minute,
		Clock:    clk,
		Task: func(context.Context, time.Time) error {
			calls.Add(1)
			return errors.New("database unavailable")
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 && clk.Tickers() == 1 }, time.Second, time.Millisecond)
	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestPeriodic_RunRejectsBadInterval(t *testing.T) {
	p := &Periodic{Name: "bad", Task: func(context.Context, time.Time) error { return nil }}
	require.Error(t, p.Run(context.Background()))
	_, err := (&Periodic{Name: "empty"}).RunOnce(context.Background())
	require.Error(t, err)
}

func TestPeriodic_RunOnceSkipsWhenLeaseHeld(t *testing.T) {
	ctx := context.Background()
	clk := testfixtures.NewClock(time.Time{})
	lease := NewLocalLease(clk)
	var calls int
	p := &Periodic{
		Name:     ExpirySweepName,
		Interval: time.Minute,
		LeaseTTL: 5 * time.Minute,
		Clock:    clk,
		Lease:    lease,
		Metrics:  observability.NewMetrics(),
		Task: func(context.Context, time.Time) error {
			calls++
			return nil
		},
	}

	release, ok, err := lease.Acquire(ctx, ExpirySweepName, 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ran, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 0, calls)

	require.NoError(t, release(ctx))
	ran, err = p.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, calls)

	// Released after the tick, so the next one can run.
	ran, err = p.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
}

type brokenLease struct{}

func (brokenLease) Acquire(context.Context, string, time.Duration) (ReleaseFunc, bool, error) {
	return noopRelease, false, errors.New("redis: connection refused")
}

func TestPeriodic_RunsWhenLeaseStoreDown(t *testing.T) {
	var calls int
	p := &Periodic{
		Name:     ReminderSweepName,
		Interval: time.Minute,
		Lease:    brokenLease{},
		Task: func(context.Context, time.Time) error {
			calls++
			return nil
		},
	}
	ran, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, calls)
}

func TestLocalLease_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	clk := testfixtures.NewClock(time.Time{})
	lease := NewLocalLease(clk)

	staleRelease, ok, err := lease.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = lease.Acquire(ctx, "k", time.Minute)
	assert.False(t, ok)

	clk.Advance(time.Minute)
	_, ok, err = lease.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// A stale holder cannot release the new holder's lease.
	require.NoError(t, staleRelease(ctx))
	_, ok, _ = lease.Acquire(ctx, "k", time.Minute)
	assert.False(t, ok)
}
