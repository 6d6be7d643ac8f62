package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assetflow/handover-service/internal/domain"
)

const pgUniqueViolation = "23505"

const assignmentColumns = `id, employee_id, employee_name, employee_external_id, primary_email, backup_email, office,
               signature_token, token_expires_at, is_signed, is_disputed, signature_data, signature_date,
               signed_by_email, dispute_reason, disputed_at, expired_at, last_reminder_sent, reminder_count,
               assigned_at, pdf_sent`

// pendingClause matches rows still awaiting a terminal transition.
const pendingClause = `is_signed=false AND is_disputed=false AND expired_at IS NULL AND signature_token IS NOT NULL`

type assignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository instantiates the Postgres repository.
func NewAssignmentRepository(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepository{pool: pool}
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *domain.AssetAssignment, items []domain.AssignmentItem) error {
	row := rowFromDomain(assignment)
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insertAssignment = `
        INSERT INTO asset_assignments (id, employee_id, employee_name, employee_external_id, primary_email,
            backup_email, office, signature_token, token_expires_at, reminder_count, assigned_at, pdf_sent)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	if _, err := tx.Exec(ctx, insertAssignment,
		row.ID,
		row.EmployeeID,
		row.EmployeeName,
		row.EmployeeExternalID,
		row.PrimaryEmail,
		row.BackupEmail,
		row.Office,
		row.SignatureToken,
		row.TokenExpiresAt,
		row.ReminderCount,
		row.AssignedAt,
		row.PDFSent,
	); err != nil {
		if isUniqueViolation(err, "asset_assignments_signature_token_key") {
			return domain.ErrTokenCollision
		}
		return fmt.Errorf("insert assignment: %w", err)
	}

	const insertItem = `
        INSERT INTO assignment_items (id, assignment_id, asset_id, asset_code)
        VALUES ($1,$2,$3,$4)`
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(insertItem, item.ID, row.ID, item.AssetID, item.AssetCode)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if isUniqueViolation(err, "assignment_items_unique_asset") {
				return fmt.Errorf("%w: asset listed twice", domain.ErrValidation)
			}
			return fmt.Errorf("insert assignment items: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *assignmentRepository) GetByID(ctx context.Context, id string) (*domain.AssetAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM asset_assignments WHERE id=$1`
	a, err := scanAssignment(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return a, err
}

func (r *assignmentRepository) GetByToken(ctx context.Context, token string) (*domain.AssetAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM asset_assignments WHERE signature_token=$1`
	a, err := scanAssignment(r.pool.QueryRow(ctx, query, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	return a, err
}

func (r *assignmentRepository) ListItems(ctx context.Context, assignmentID string) ([]domain.AssignmentItem, error) {
	const query = `
        SELECT id, assignment_id, asset_id, asset_code
        FROM assignment_items WHERE assignment_id=$1 ORDER BY asset_code`
	rows, err := r.pool.Query(ctx, query, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.AssignmentItem
	for rows.Next() {
		var item domain.AssignmentItem
		if err := rows.Scan(&item.ID, &item.AssignmentID, &item.AssetID, &item.AssetCode); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *assignmentRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM asset_assignments WHERE signature_token=$1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, token).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *assignmentRepository) AttachToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	const query = `
        UPDATE asset_assignments SET signature_token=$2, token_expires_at=$3
        WHERE id=$1 AND signature_token IS NULL`
	cmd, err := r.pool.Exec(ctx, query, id, token, expiresAt)
	if err != nil {
		if isUniqueViolation(err, "asset_assignments_signature_token_key") {
			return domain.ErrTokenCollision
		}
		return fmt.Errorf("attach token: %w", err)
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrTokenAlreadyIssued
}

func (r *assignmentRepository) ApplyTransition(ctx context.Context, id string, transition domain.Transition) (*domain.AssetAssignment, error) {
	var (
		set  string
		args = []any{id, transition.At}
	)
	switch transition.Kind {
	case domain.TransitionSign:
		args = append(args, transition.SignatureData, transition.SignerEmail)
		set = `is_signed=true, signature_data=$3, signed_by_email=$4, signature_date=$2`
	case domain.TransitionDispute:
		args = append(args, transition.Reason)
		set = `is_disputed=true, dispute_reason=$3, disputed_at=$2`
	case domain.TransitionExpire:
		set = `expired_at=$2`
	default:
		return nil, fmt.Errorf("%w: unknown transition %q", domain.ErrValidation, transition.Kind)
	}

	query := fmt.Sprintf(`UPDATE asset_assignments SET %s
        WHERE id=$1 AND %s AND %s
        RETURNING %s`, set, pendingClause, deadlineClause(transition.Guard(), "$2"), assignmentColumns)

	a, err := scanAssignment(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrConcurrencyConflict
	}
	return a, err
}

func (r *assignmentRepository) ListDueReminders(ctx context.Context, query ReminderQuery) ([]domain.AssetAssignment, error) {
	sql := `SELECT ` + assignmentColumns + ` FROM asset_assignments
        WHERE ` + pendingClause + ` AND $1 <= token_expires_at AND reminder_count < $2
          AND (last_reminder_sent IS NULL OR last_reminder_sent <= $3)
        ORDER BY token_expires_at ASC, id ASC LIMIT $4`
	return r.list(ctx, sql, query.Now, query.Policy.MaxReminders, query.Policy.Cutoff(query.Now), limitOrDefault(query.Limit))
}

func (r *assignmentRepository) RecordReminder(ctx context.Context, id string, observedCount int, query ReminderQuery) (*domain.AssetAssignment, error) {
	sql := `UPDATE asset_assignments SET reminder_count=reminder_count+1, last_reminder_sent=$2
        WHERE id=$1 AND ` + pendingClause + ` AND $2 <= token_expires_at
          AND reminder_count=$3 AND reminder_count < $4
          AND (last_reminder_sent IS NULL OR last_reminder_sent <= $5)
        RETURNING ` + assignmentColumns
	a, err := scanAssignment(r.pool.QueryRow(ctx, sql, id, query.Now, observedCount, query.Policy.MaxReminders, query.Policy.Cutoff(query.Now)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrConcurrencyConflict
	}
	return a, err
}

func (r *assignmentRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.AssetAssignment, error) {
	sql := `SELECT ` + assignmentColumns + ` FROM asset_assignments
        WHERE ` + pendingClause + ` AND ` + deadlineClause(domain.ExpireTransition(now).Guard(), "$1") + `
        ORDER BY token_expires_at ASC, id ASC LIMIT $2`
	return r.list(ctx, sql, now, limitOrDefault(limit))
}

func (r *assignmentRepository) list(ctx context.Context, sql string, args ...any) ([]domain.AssetAssignment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AssetAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// deadlineClause renders the guard's deadline condition against placeholder at.
func deadlineClause(guard domain.Guard, at string) string {
	if guard.Condition == domain.DeadlinePassed {
		return "token_expires_at < " + at
	}
	return at + " <= token_expires_at"
}

func scanAssignment(row pgx.Row) (*domain.AssetAssignment, error) {
	var r assignmentRow
	if err := row.Scan(
		&r.ID,
		&r.EmployeeID,
		&r.EmployeeName,
		&r.EmployeeExternalID,
		&r.PrimaryEmail,
		&r.BackupEmail,
		&r.Office,
		&r.SignatureToken,
		&r.TokenExpiresAt,
		&r.IsSigned,
		&r.IsDisputed,
		&r.SignatureData,
		&r.SignatureDate,
		&r.SignedByEmail,
		&r.DisputeReason,
		&r.DisputedAt,
		&r.ExpiredAt,
		&r.LastReminderSent,
		&r.ReminderCount,
		&r.AssignedAt,
		&r.PDFSent,
	); err != nil {
		return nil, err
	}
	return r.toDomain()
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
