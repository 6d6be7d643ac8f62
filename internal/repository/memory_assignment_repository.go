package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/assetflow/handover-service/internal/domain"
)

// MemoryAssignmentRepository keeps assignments in process. It is used when no
// Postgres DSN is configured and by tests. A single mutex makes each
// compare-and-set atomic.
type MemoryAssignmentRepository struct {
	mu     sync.RWMutex
	rows   map[string]assignmentRow
	tokens map[string]string
	items  map[string][]domain.AssignmentItem
}

var _ AssignmentRepository = (*MemoryAssignmentRepository)(nil)

// NewMemoryAssignmentRepository returns an empty store.
func NewMemoryAssignmentRepository() *MemoryAssignmentRepository {
	return &MemoryAssignmentRepository{
		rows:   make(map[string]assignmentRow),
		tokens: make(map[string]string),
		items:  make(map[string][]domain.AssignmentItem),
	}
}

func (r *MemoryAssignmentRepository) Create(_ context.Context, assignment *domain.AssetAssignment, items []domain.AssignmentItem) error {
	if assignment == nil || strings.TrimSpace(assignment.ID) == "" {
		return fmt.Errorf("%w: assignment id required", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[assignment.ID]; ok {
		return fmt.Errorf("memory: assignment %s already exists", assignment.ID)
	}
	assets := make(map[string]bool, len(items))
	for _, item := range items {
		if assets[item.AssetID] {
			return fmt.Errorf("%w: asset %s listed twice", domain.ErrValidation, item.AssetID)
		}
		assets[item.AssetID] = true
	}
	row := rowFromDomain(assignment)
	if row.SignatureToken != nil {
		if _, taken := r.tokens[*row.SignatureToken]; taken {
			return domain.ErrTokenCollision
		}
		r.tokens[*row.SignatureToken] = row.ID
	}
	r.rows[row.ID] = row
	r.items[row.ID] = append([]domain.AssignmentItem(nil), items...)
	return nil
}

func (r *MemoryAssignmentRepository) GetByID(_ context.Context, id string) (*domain.AssetAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return row.toDomain()
}

func (r *MemoryAssignmentRepository) GetByToken(_ context.Context, token string) (*domain.AssetAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.tokens[token]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return r.rows[id].toDomain()
}

func (r *MemoryAssignmentRepository) ListItems(_ context.Context, assignmentID string) ([]domain.AssignmentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.rows[assignmentID]; !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.AssignmentItem(nil), r.items[assignmentID]...), nil
}

func (r *MemoryAssignmentRepository) TokenExists(_ context.Context, token string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tokens[token]
	return ok, nil
}

func (r *MemoryAssignmentRepository) AttachToken(_ context.Context, id, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if row.SignatureToken != nil {
		return domain.ErrTokenAlreadyIssued
	}
	if _, taken := r.tokens[token]; taken {
		return domain.ErrTokenCollision
	}
	row.SignatureToken = &token
	row.TokenExpiresAt = &expiresAt
	r.rows[id] = row
	r.tokens[token] = id
	return nil
}

func (r *MemoryAssignmentRepository) ApplyTransition(_ context.Context, id string, transition domain.Transition) (*domain.AssetAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	current, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	if !transition.Guard().Allows(current) {
		return nil, domain.ErrConcurrencyConflict
	}
	current.State = transition.Next()
	r.rows[id] = rowFromDomain(current)
	return current, nil
}

func (r *MemoryAssignmentRepository) ListDueReminders(_ context.Context, query ReminderQuery) ([]domain.AssetAssignment, error) {
	return r.list(query.Limit, func(a *domain.AssetAssignment) bool {
		return query.Policy.Due(a, query.Now)
	})
}

func (r *MemoryAssignmentRepository) RecordReminder(_ context.Context, id string, observedCount int, query ReminderQuery) (*domain.AssetAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	current, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	if current.ReminderCount != observedCount || !query.Policy.Due(current, query.Now) {
		return nil, domain.ErrConcurrencyConflict
	}
	sentAt := query.Now
	current.ReminderCount++
	current.LastReminderSent = &sentAt
	r.rows[id] = rowFromDomain(current)
	return current, nil
}

func (r *MemoryAssignmentRepository) ListExpirable(_ context.Context, now time.Time, limit int) ([]domain.AssetAssignment, error) {
	guard := domain.ExpireTransition(now).Guard()
	return r.list(limit, guard.Allows)
}

// list returns matching assignments soonest deadline first.
func (r *MemoryAssignmentRepository) list(limit int, match func(*domain.AssetAssignment) bool) ([]domain.AssetAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.AssetAssignment
	for _, row := range r.rows {
		a, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		if match(a) {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].TokenExpiresAt.Equal(result[j].TokenExpiresAt) {
			return result[i].TokenExpiresAt.Before(result[j].TokenExpiresAt)
		}
		return result[i].ID < result[j].ID
	})
	if limit = limitOrDefault(limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
