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
	"github.com/assetflow/handover-service/internal/service"
)

// SweepName identifiers used for leases, logs and metrics.
const (
	ReminderSweepName = "reminders"
	ExpirySweepName   = "expiry"
)

// SweepResult summarizes one tick.
type SweepResult struct {
	Selected  int
	Committed int
	Skipped   int
	Failed    int
}

// ReminderSweeper sends reminders for pending assignments that are due one.
type ReminderSweeper struct {
	repo       repository.AssignmentRepository
	notifier   service.Notifier
	dispatcher events.Dispatcher
	policy     domain.ReminderPolicy
	batchSize  int
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// SweeperDependencies bundles collaborators shared by both sweeps.
type SweeperDependencies struct {
	Repo       repository.AssignmentRepository
	Notifier   service.Notifier
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewReminderSweeper creates the sweeper.
func NewReminderSweeper(cfg config.ReminderConfig, deps SweeperDependencies) *ReminderSweeper {
	return &ReminderSweeper{
		repo:       deps.Repo,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		policy:     domain.ReminderPolicy{MaxReminders: cfg.MaxReminders, Spacing: cfg.Spacing},
		batchSize:  cfg.BatchSize,
		logger:     observability.OrNop(deps.Logger),
		metrics:    deps.Metrics,
	}
}

// Task adapts the sweeper to Periodic.
func (s *ReminderSweeper) Task() Task {
	return func(ctx context.Context, now time.Time) error {
		_, err := s.Sweep(ctx, now)
		return err
	}
}

// Sweep records and sends at most one reminder per due assignment. The
// bookkeeping commit happens before the send; a failed send still counts.
func (s *ReminderSweeper) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	query := repository.ReminderQuery{Now: now, Policy: s.policy, Limit: s.batchSize}
	due, err := s.repo.ListDueReminders(ctx, query)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list due reminders: %w", err)
	}

	result := SweepResult{Selected: len(due)}
	var errs []error
	for _, candidate := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		updated, err := s.repo.RecordReminder(ctx, candidate.ID, candidate.ReminderCount, query)
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			result.Skipped++
			continue
		}
		if err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("record reminder %s: %w", candidate.ID, err))
			continue
		}
		result.Committed++

		reminder := domain.Reminder{
			AssignmentID:  updated.ID,
			Recipient:     updated.Recipient,
			Sequence:      updated.ReminderCount,
			RemainingTime: updated.TimeToExpiry(now),
			ExpiresAt:     updated.TokenExpiresAt,
		}
		if updated.SignatureToken != nil {
			reminder.Token = *updated.SignatureToken
		}
		if s.notifier != nil {
			if err := s.notifier.SendReminder(ctx, reminder); err != nil {
				s.metrics.RecordSweepItems(ReminderSweepName, "notify_failed", 1)
				s.logger.Warn("reminder send failed",
					zap.String("assignment_id", updated.ID),
					zap.Int("sequence", reminder.Sequence),
					zap.Error(err))
			}
		}
		s.publish(ctx, now, updated, reminder.Sequence)
	}

	s.metrics.RecordSweepItems(ReminderSweepName, "committed", result.Committed)
	s.metrics.RecordSweepItems(ReminderSweepName, "skipped", result.Skipped)
	s.metrics.RecordSweepItems(ReminderSweepName, "failed", result.Failed)
	s.logger.Info("reminder sweep finished",
		zap.Int("selected", result.Selected),
		zap.Int("committed", result.Committed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, errors.Join(errs...)
}

func (s *ReminderSweeper) publish(ctx context.Context, now time.Time, a *domain.AssetAssignment, sequence int) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:           uuid.NewString(),
		Type:         events.EventAssignmentReminded,
		AssignmentID: a.ID,
		Timestamp:    now,
		Payload:      events.AssignmentRemindedPayload{Sequence: sequence, ExpiresAt: a.TokenExpiresAt},
	})
	if err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(events.EventAssignmentReminded)), zap.Error(err))
	}
}
