package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetflow/handover-service/internal/domain"
)

var refTime = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func newAssignment(id string) *domain.AssetAssignment {
	return &domain.AssetAssignment{
		ID: id,
		Recipient: domain.Recipient{
			EmployeeID:         "emp-" + id,
			EmployeeName:       "Employee " + id,
			EmployeeExternalID: "E-" + id,
			PrimaryEmail:       id + "@example.com",
			Office:             "HQ",
		},
		State:      domain.Pending{},
		AssignedAt: refTime,
	}
}

func seedTokened(t *testing.T, repo *MemoryAssignmentRepository, id string, expiresAt time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newAssignment(id), []domain.AssignmentItem{{ID: "item-" + id, AssignmentID: id, AssetID: "asset-" + id, AssetCode: "LT-" + id}}))
	require.NoError(t, repo.AttachToken(ctx, id, "tok-"+id, expiresAt))
}

func TestMemoryRepository_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssignmentRepository()
	seedTokened(t, repo, "a1", refTime.Add(time.Hour))

	byID, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, byID.Status())
	assert.Equal(t, "Employee a1", byID.Recipient.EmployeeName)

	byToken, err := repo.GetByToken(ctx, "tok-a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", byToken.ID)
	assert.True(t, byToken.TokenExpiresAt.Equal(refTime.Add(time.Hour)))

	items, err := repo.ListItems(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "LT-a1", items[0].AssetCode)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.GetByToken(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrTokenNotFound)
	_, err = repo.ListItems(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryRepository_CreateRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssignmentRepository()
	require.NoError(t, repo.Create(ctx, newAssignment("a1"), nil))
	require.Error(t, repo.Create(ctx, newAssignment("a1"), nil))
	require.ErrorIs(t, repo.Create(ctx, &domain.AssetAssignment{}, nil), domain.ErrValidation)
}

func TestMemoryRepository_AttachToken(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssignmentRepository()
	require.NoError(t, repo.Create(ctx, newAssignment("a1"), nil))
	require.NoError(t, repo.Create(ctx, newAssignment("a2"), nil))

	require.NoError(t, repo.AttachToken(ctx, "a1", "shared", refTime))
	require.ErrorIs(t, repo.AttachToken(ctx, "a1", "other", refTime), domain.ErrTokenAlreadyIssued)
	require.ErrorIs(t, repo.AttachToken(ctx, "a2", "shared", refTime), domain.ErrTokenCollision)
	require.ErrorIs(t, repo.AttachToken(ctx, "missing", "x", refTime), domain.ErrNotFound)

	exists, err := repo.TokenExists(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.TokenExists(ctx, "other")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryRepository_ApplyTransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssignmentRepository()
	seedTokened(t, repo, "a1", refTime.Add(time.Hour))

	signed, err := repo.ApplyTransition(ctx, "a1", domain.SignTransition("sig", "a1@example.com", refTime))
	require.NoError(t, err)
	assert.Equal(t, domain.StateSigned, signed.Status())

	_, err = repo.ApplyTransition(ctx, "a1", domain.DisputeTransition("too late", refTime))
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	stored, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	s, ok := stored.State.(domain.Signed)
	require.True(t, ok)
	assert.Equal(t, "sig", s.Data)

	_, err = repo.ApplyTransition(ctx, "missing", domain.ExpireTransition(refTime))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryRepository_TokenStaysResolvableAfterFinalization(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssignmentRepository()
	seedTokened(t, repo, "a1", refTime.Add(time.Hour))

	_, err := repo.ApplyTransition(ctx, "a1", domain.DisputeTransition("wrong serial number", refTime))
	require.NoError(t, err)

	a, err := repo.GetByToken(ctx, "tok-a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDisputed, a.Status())
}

func TestMemoryRepository_ListExpirable(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssignmentRepository()
	seedTokened(t, repo, "late", refTime.Add(-2*time.Hour))
	seedTokened(t, repo, "later", refTime.Add(-time.Hour))
	seedTokened(t, repo, "fresh", refTime.Add(time.Hour))
	seedTokened(t, repo, "signed", refTime.Add(-3*time.Hour))
	require.NoError(t, repo.Create(ctx, newAssignment("untokened"), nil))

	// Force a terminal row past its deadline.
	row := repo.rows["signed"]
	row.IsSigned = true
	data, at := "sig", refTime.Add(-4*time.Hour)
	row.SignatureData, row.SignatureDate = &data, &at
	repo.rows["signed"] = row

	due, err := repo.ListExpirable(ctx, refTime, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "late", due[0].ID)
	assert.Equal(t, "later", due[1].ID)

	limited, err := repo.ListExpirable(ctx, refTime, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestMemoryRepository_RecordReminder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssignmentRepository()
	seedTokened(t, repo, "a1", refTime.Add(10*24*time.Hour))
	query := ReminderQuery{Now: refTime, Policy: domain.ReminderPolicy{MaxReminders: 2, Spacing: 72 * time.Hour}, Limit: 10}

	due, err := repo.ListDueReminders(ctx, query)
	require.NoError(t, err)
	require.Len(t, due, 1)

	updated, err := repo.RecordReminder(ctx, "a1", 0, query)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ReminderCount)
	require.NotNil(t, updated.LastReminderSent)
	assert.True(t, updated.LastReminderSent.Equal(refTime))

	// Same observation again loses the compare.
	_, err = repo.RecordReminder(ctx, "a1", 0, query)
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	// Spacing not yet elapsed.
	_, err = repo.RecordReminder(ctx, "a1", 1, query)
	require.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	due, err = repo.ListDueReminders(ctx, query)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMemoryRepository_ConcurrentSignAndExpire(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		repo := NewMemoryAssignmentRepository()
		id := fmt.Sprintf("a%d", i)
		deadline := refTime
		seedTokened(t, repo, id, deadline)

		var wins atomic.Int32
		var wg sync.WaitGroup
		transitions := []domain.Transition{
			domain.SignTransition("sig", "x@example.com", deadline),
			domain.DisputeTransition("not mine at all", deadline),
			domain.ExpireTransition(deadline.Add(time.Second)),
		}
		for _, tr := range transitions {
			wg.Add(1)
			go func(tr domain.Transition) {
				defer wg.Done()
				if _, err := repo.ApplyTransition(ctx, id, tr); err == nil {
					wins.Add(1)
				} else {
					assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
				}
			}(tr)
		}
		wg.Wait()

		require.Equal(t, int32(1), wins.Load(), "exactly one transition must commit")
		row := repo.rows[id]
		assert.False(t, row.IsSigned && row.IsDisputed)
	}
}

func TestMemoryRepository_ConcurrentRemindersIncrementOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssignmentRepository()
	seedTokened(t, repo, "a1", refTime.Add(24*time.Hour))
	query := ReminderQuery{Now: refTime, Policy: domain.ReminderPolicy{MaxReminders: 5, Spacing: time.Hour}}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.RecordReminder(ctx, "a1", 0, query); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	a, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, a.ReminderCount)
}
