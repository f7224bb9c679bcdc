package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
)

const hourEntryColumns = `id, instructor_id, assignment_id, placement_id, entry_date, activity_type, hours, description,
       status, source, source_id, reverses_id, overtime, submitted_by, submitted_at, reviewed_by, reviewed_at, review_note`

const insertHourEntry = `INSERT INTO hour_entries
	(id, instructor_id, assignment_id, placement_id, entry_date, activity_type, hours, description, status, source,
	 source_id, reverses_id, overtime, submitted_by, submitted_at, reviewed_by, reviewed_at, review_note)
	VALUES (:id, :instructor_id, :assignment_id, :placement_id, :entry_date, :activity_type, :hours, :description,
	 :status, :source, :source_id, :reverses_id, :overtime, :submitted_by, :submitted_at, :reviewed_by, :reviewed_at,
	 :review_note)`

// LedgerRepository persists the append-only hour ledger.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Create inserts a PENDING manual entry.
func (r *LedgerRepository) Create(ctx context.Context, entry *models.HourEntry) error {
	prepareHourEntry(entry)
	if _, err := r.db.NamedExecContext(ctx, insertHourEntry, entry); err != nil {
		if isUniqueViolation(err) {
			return ErrUniqueViolation
		}
		return fmt.Errorf("create hour entry: %w", err)
	}
	return nil
}

// GetByID fetches a ledger entry.
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*models.HourEntry, error) {
	query := `SELECT ` + hourEntryColumns + ` FROM hour_entries WHERE id = $1`
	var entry models.HourEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns one page of ledger entries matching the filter, newest first, and the total match count.
func (r *LedgerRepository) List(ctx context.Context, filter models.HourEntryFilter) ([]models.HourEntry, int, error) {
	args := make([]interface{}, 0, 8)
	conditions := make([]string, 0, 6)
	if filter.InstructorID != "" {
		args = append(args, filter.InstructorID)
		conditions = append(conditions, fmt.Sprintf("instructor_id = $%d", len(args)))
	}
	if filter.AssignmentID != "" {
		args = append(args, filter.AssignmentID)
		conditions = append(conditions, fmt.Sprintf("assignment_id = $%d", len(args)))
	}
	if filter.PlacementID != "" {
		args = append(args, filter.PlacementID)
		conditions = append(conditions, fmt.Sprintf("placement_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		marks := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			marks[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(marks, ",")))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("entry_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("entry_date <= $%d", len(args)))
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM hour_entries%s ORDER BY entry_date DESC, submitted_at DESC LIMIT %d OFFSET %d`,
		hourEntryColumns, whereClause, limit, offset)

	var entries []models.HourEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list hour entries: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM hour_entries"+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("count hour entries: %w", err)
	}
	return entries, total, nil
}

// ManualEntryExists reports whether a non-rejected manual entry already occupies the slot.
func (r *LedgerRepository) ManualEntryExists(ctx context.Context, instructorID, assignmentID string, date time.Time, activity models.ActivityType) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM hour_entries
	WHERE instructor_id = $1 AND assignment_id = $2 AND entry_date = $3 AND activity_type = $4
	  AND source = 'MANUAL' AND status <> 'REJECTED')`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, instructorID, assignmentID, date, activity); err != nil {
		return false, fmt.Errorf("check duplicate hour entry: %w", err)
	}
	return exists, nil
}

// SumPending totals hours awaiting review for an assignment.
func (r *LedgerRepository) SumPending(ctx context.Context, assignmentID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(hours), 0) FROM hour_entries WHERE assignment_id = $1 AND status = 'PENDING'`
	var total float64
	if err := r.db.GetContext(ctx, &total, query, assignmentID); err != nil {
		return 0, fmt.Errorf("sum pending hours: %w", err)
	}
	return total, nil
}

// MonthTotals aggregates approved ledger rows for an instructor's month.
type MonthTotals struct {
	Executed float64 `db:"executed"`
	Overtime bool    `db:"overtime"`
}

// ApprovedForMonth sums APPROVED entries dated in the month, reversals included.
func (r *LedgerRepository) ApprovedForMonth(ctx context.Context, instructorID string, year, month int) (MonthTotals, error) {
	const query = `SELECT COALESCE(SUM(hours), 0) AS executed, COALESCE(BOOL_OR(overtime), FALSE) AS overtime
FROM hour_entries
WHERE instructor_id = $1 AND status = 'APPROVED' AND entry_date >= $2 AND entry_date < $3`
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	var totals MonthTotals
	if err := r.db.GetContext(ctx, &totals, query, instructorID, start, start.AddDate(0, 1, 0)); err != nil {
		return MonthTotals{}, fmt.Errorf("sum approved hours: %w", err)
	}
	return totals, nil
}

// ApprovedByActivity groups APPROVED hours in the month by instructor and activity type.
func (r *LedgerRepository) ApprovedByActivity(ctx context.Context, year, month int) ([]models.ActivityHours, error) {
	const query = `SELECT instructor_id, activity_type, SUM(hours) AS hours
FROM hour_entries
WHERE status = 'APPROVED' AND entry_date >= $1 AND entry_date < $2
GROUP BY instructor_id, activity_type
ORDER BY instructor_id, activity_type`
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	var rows []models.ActivityHours
	if err := r.db.SelectContext(ctx, &rows, query, start, start.AddDate(0, 1, 0)); err != nil {
		return nil, fmt.Errorf("group approved hours: %w", err)
	}
	return rows, nil
}

// OutstandingCredit returns the latest system credit for a source that has not been reversed yet.
func (r *LedgerRepository) OutstandingCredit(ctx context.Context, source models.EntrySource, sourceID string) (*models.HourEntry, error) {
	query := `SELECT ` + hourEntryColumns + ` FROM hour_entries e
WHERE e.source = $1 AND e.source_id = $2 AND e.status = 'APPROVED' AND e.hours > 0
  AND NOT EXISTS (SELECT 1 FROM hour_entries r WHERE r.reverses_id = e.id)
ORDER BY e.submitted_at DESC LIMIT 1`
	var entry models.HourEntry
	if err := r.db.GetContext(ctx, &entry, query, source, sourceID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ApproveParams captures an approval decision.
type ApproveParams struct {
	EntryID    string
	ReviewedBy string
	ReviewedAt time.Time
	Note       *string
	Overtime   bool
}

// Approve marks a PENDING entry APPROVED and accrues its hours on the assignment and the projection
// in one transaction. A non-pending entry yields sql.ErrNoRows; an assignment that would exceed its
// programming yields ErrGuardFailed; a stale projection version yields ErrVersionConflict.
func (r *LedgerRepository) Approve(ctx context.Context, params ApproveParams, entry *models.HourEntry, change ProjectionChange) (projection *models.InstructorProjection, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin approval transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE hour_entries
SET status = 'APPROVED', reviewed_by = $1, reviewed_at = $2, review_note = $3, overtime = $4
WHERE id = $5 AND status = 'PENDING'`
	result, err := tx.ExecContext(ctx, query, params.ReviewedBy, params.ReviewedAt, params.Note, params.Overtime, params.EntryID)
	if err != nil {
		return nil, fmt.Errorf("approve hour entry: %w", err)
	}
	if err = expectOneRow(result); err != nil {
		if errors.Is(err, ErrGuardFailed) {
			err = sql.ErrNoRows
		}
		return nil, err
	}
	if projection, err = accrue(ctx, tx, entry.AssignmentID, entry.Hours, change); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approval: %w", err)
	}
	return projection, nil
}

// AssignmentDelta moves an ACTIVE assignment's executed and programmed totals.
type AssignmentDelta struct {
	AssignmentID string
	Executed     float64
	Programmed   float64
}

// PostCredit appends an APPROVED system entry (credit or reversal) and applies its assignment and
// projection deltas in one transaction. A delta that would leave an assignment inactive, negative or
// over its programming yields ErrGuardFailed.
func (r *LedgerRepository) PostCredit(ctx context.Context, entry *models.HourEntry, deltas []AssignmentDelta, changes []ProjectionChange) (err error) {
	prepareHourEntry(entry)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.NamedExecContext(ctx, insertHourEntry, entry); err != nil {
		return fmt.Errorf("insert credit entry: %w", err)
	}
	for _, delta := range deltas {
		if err = moveAssignment(ctx, tx, delta); err != nil {
			return err
		}
	}
	for _, change := range changes {
		if _, err = applyProjectionDelta(ctx, tx, change); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit credit: %w", err)
	}
	return nil
}

// Reject marks a PENDING entry REJECTED. A non-pending entry yields sql.ErrNoRows.
func (r *LedgerRepository) Reject(ctx context.Context, id, reviewedBy, reason string, reviewedAt time.Time) error {
	const query = `UPDATE hour_entries
SET status = 'REJECTED', reviewed_by = :reviewed_by, reviewed_at = :reviewed_at, review_note = :review_note
WHERE id = :id AND status = 'PENDING'`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":          id,
		"reviewed_by": reviewedBy,
		"reviewed_at": reviewedAt,
		"review_note": reason,
	})
	if err != nil {
		return fmt.Errorf("reject hour entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reject hour entry rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func accrue(ctx context.Context, tx *sqlx.Tx, assignmentID string, hours float64, change ProjectionChange) (*models.InstructorProjection, error) {
	if err := accrueAssignment(ctx, tx, assignmentID, hours); err != nil {
		return nil, err
	}
	return applyProjectionDelta(ctx, tx, change)
}

func prepareHourEntry(entry *models.HourEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = models.EntryStatusPending
	}
	if entry.Source == "" {
		entry.Source = models.EntrySourceManual
	}
	if entry.SubmittedAt.IsZero() {
		entry.SubmittedAt = time.Now().UTC()
	}
}
