package repository

import (
	"context"
	"time"

	"github.com/assetflow/handover-service/internal/domain"
)

// ReminderQuery selects assignments owed a reminder at Now.
type ReminderQuery struct {
	Now    time.Time
	Policy domain.ReminderPolicy
	Limit  int
}

// AssignmentRepository is the only component that touches assignment storage.
//
// Every mutation of signing state goes through ApplyTransition or
// RecordReminder, both single compare-and-set operations: the row is changed
// only if it still satisfies the precondition derived from the state machine,
// otherwise domain.ErrConcurrencyConflict is returned and nothing is written.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *domain.AssetAssignment, items []domain.AssignmentItem) error
	GetByID(ctx context.Context, id string) (*domain.AssetAssignment, error)
	GetByToken(ctx context.Context, token string) (*domain.AssetAssignment, error)
	ListItems(ctx context.Context, assignmentID string) ([]domain.AssignmentItem, error)

	// TokenExists reports whether any assignment, pending or finalized, holds token.
	TokenExists(ctx context.Context, token string) (bool, error)
	// AttachToken sets the token on an assignment that has none yet.
	AttachToken(ctx context.Context, id, token string, expiresAt time.Time) error

	ApplyTransition(ctx context.Context, id string, transition domain.Transition) (*domain.AssetAssignment, error)

	ListDueReminders(ctx context.Context, query ReminderQuery) ([]domain.AssetAssignment, error)
	// RecordReminder increments reminder_count and stamps last_reminder_sent
	// if the row is still due and its count still equals observedCount.
	RecordReminder(ctx context.Context, id string, observedCount int, query ReminderQuery) (*domain.AssetAssignment, error)

	ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.AssetAssignment, error)
}
