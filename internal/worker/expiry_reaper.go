package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assetflow/handover-service/internal/config"
	"github.com/assetflow/handover-service/internal/domain"
	"github.com/assetflow/handover-service/internal/events"
	"github.com/assetflow/handover-service/internal/observability"
	"github.com/assetflow/handover-service/internal/repository"
)

// ExpiryReaper moves pending assignments past their deadline to Expired.
type ExpiryReaper struct {
	repo       repository.AssignmentRepository
	dispatcher events.Dispatcher
	batchSize  int
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewExpiryReaper creates the reaper.
func NewExpiryReaper(cfg config.ExpiryConfig, deps SweeperDependencies) *ExpiryReaper {
	return &ExpiryReaper{
		repo:       deps.Repo,
		dispatcher: deps.Dispatcher,
		batchSize:  cfg.BatchSize,
		logger:     observability.OrNop(deps.Logger),
		metrics:    deps.Metrics,
	}
}

// Task adapts the reaper to Periodic.
func (r *ExpiryReaper) Task() Task {
	return func(ctx context.Context, now time.Time) error {
		_, err := r.Sweep(ctx, now)
		return err
	}
}

// Sweep expires one batch. Rows finalized concurrently are skipped, so
// re-running a sweep is a no-op.
func (r *ExpiryReaper) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	candidates, err := r.repo.ListExpirable(ctx, now, r.batchSize)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list expirable: %w", err)
	}

	result := SweepResult{Selected: len(candidates)}
	var errs []error
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		updated, err := r.repo.ApplyTransition(ctx, candidate.ID, domain.ExpireTransition(now))
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			result.Skipped++
			continue
		}
		if err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("expire %s: %w", candidate.ID, err))
			continue
		}
		result.Committed++
		r.metrics.RecordTransition(string(domain.TransitionExpire), "committed")
		r.publish(ctx, now, updated)
	}

	r.metrics.RecordSweepItems(ExpirySweepName, "committed", result.Committed)
	r.metrics.RecordSweepItems(ExpirySweepName, "skipped", result.Skipped)
	r.metrics.RecordSweepItems(ExpirySweepName, "failed", result.Failed)
	r.logger.Info("expiry sweep finished",
		zap.Int("selected", result.Selected),
		zap.Int("expired", result.Committed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, errors.Join(errs...)
}

func (r *ExpiryReaper) publish(ctx context.Context, now time.Time, a *domain.AssetAssignment) {
	if r.dispatcher == nil {
		return
	}
	err := r.dispatcher.Publish(ctx, events.Event{
		ID:           uuid.NewString(),
		Type:         events.EventAssignmentExpired,
		AssignmentID: a.ID,
		Timestamp:    now,
		Payload:      events.AssignmentExpiredPayload{TokenExpiresAt: a.TokenExpiresAt, ExpiredAt: now},
	})
	if err != nil {
		r.logger.Warn("event handler failed", zap.String("event_type", string(events.EventAssignmentExpired)), zap.Error(err))
	}
}
