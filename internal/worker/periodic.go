package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/assetflow/handover-service/internal/clock"
	"github.com/assetflow/handover-service/internal/observability"
)

// Task performs one sweep tick at now.
type Task func(ctx context.Context, now time.Time) error

// Periodic runs a Task on a fixed interval. Each tick takes the lease, when
// one is configured, and is skipped if another holder has it.
type Periodic struct {
	Name     string
	Interval time.Duration
	LeaseTTL time.Duration
	Clock    clock.Clock
	Lease    Lease
	Task     Task
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// RunOnce executes a single tick. It reports false when the lease was held
// elsewhere and the task did not run.
func (p *Periodic) RunOnce(ctx context.Context) (bool, error) {
	if p.Task == nil {
		return false, errors.New("worker: periodic task not set")
	}
	clk := p.clock()
	logger := observability.OrNop(p.Logger)

	release := noopRelease
	if p.Lease != nil {
		ttl := p.LeaseTTL
		if ttl <= 0 {
			ttl = p.Interval
		}
		rel, acquired, err := p.Lease.Acquire(ctx, p.Name, ttl)
		if err != nil {
			// Lease store unavailable; the repository CAS still guards every row.
			logger.Warn("sweep lease unavailable, running unguarded", zap.String("sweep", p.Name), zap.Error(err))
		} else if !acquired {
			logger.Debug("sweep lease held elsewhere, skipping tick", zap.String("sweep", p.Name))
			p.Metrics.RecordSweepItems(p.Name, "lease_skipped", 1)
			return false, nil
		} else {
			release = rel
		}
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("sweep lease release failed", zap.String("sweep", p.Name), zap.Error(err))
		}
	}()

	start := clk.Now()
	err := p.Task(ctx, start)
	p.Metrics.ObserveSweep(p.Name, clk.Now().Sub(start))
	return true, err
}

// Run ticks until ctx is cancelled. The first tick runs immediately.
func (p *Periodic) Run(ctx context.Context) error {
	if p.Interval <= 0 {
		return errors.New("worker: periodic interval must be positive")
	}
	logger := observability.OrNop(p.Logger)
	ticker := p.clock().NewTicker(p.Interval)
	defer ticker.Stop()

	logger.Info("sweep started", zap.String("sweep", p.Name), zap.Duration("interval", p.Interval))
	for {
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Error("sweep tick failed", zap.String("sweep", p.Name), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			logger.Info("sweep stopped", zap.String("sweep", p.Name))
			return nil
		case <-ticker.C():
		}
	}
}

func (p *Periodic) clock() clock.Clock {
	if p.Clock == nil {
		return clock.System()
	}
	return p.Clock
}
