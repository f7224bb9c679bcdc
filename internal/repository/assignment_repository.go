package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
)

const assignmentColumns = `id, placement_id, instructor_id, role, programmed_hours, executed_hours, status,
       projection_year, projection_month, replaces_id, reason, assigned_by, assigned_at, closed_at`

const insertAssignment = `INSERT INTO assignments
	(id, placement_id, instructor_id, role, programmed_hours, executed_hours, status, projection_year, projection_month,
	 replaces_id, reason, assigned_by, assigned_at, closed_at)
	VALUES (:id, :placement_id, :instructor_id, :role, :programmed_hours, :executed_hours, :status, :projection_year,
	 :projection_month, :replaces_id, :reason, :assigned_by, :assigned_at, :closed_at)`

// AssignmentRepository persists instructor assignments together with their projection effects.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create inserts an ACTIVE assignment and charges its programmed hours to the projection in one transaction.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment, change ProjectionChange) (projection *models.InstructorProjection, err error) {
	prepareAssignment(assignment)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin assignment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.NamedExecContext(ctx, insertAssignment, assignment); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUniqueViolation
		}
		return nil, fmt.Errorf("insert assignment: %w", err)
	}
	if projection, err = applyProjectionDelta(ctx, tx, change); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit assignment: %w", err)
	}
	return projection, nil
}

// GetByID fetches an assignment.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindActive returns the ACTIVE assignment for a placement and role.
func (r *AssignmentRepository) FindActive(ctx context.Context, placementID string, role models.AssignmentRole) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE placement_id = $1 AND role = $2 AND status = 'ACTIVE'`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, placementID, role); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// List returns assignments matching the filter, newest first.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + assignmentColumns + ` FROM assignments`)

	conditions := make([]string, 0, 4)
	if filter.PlacementID != "" {
		args = append(args, filter.PlacementID)
		conditions = append(conditions, fmt.Sprintf("placement_id = $%d", len(args)))
	}
	if filter.InstructorID != "" {
		args = append(args, filter.InstructorID)
		conditions = append(conditions, fmt.Sprintf("instructor_id = $%d", len(args)))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		marks := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			marks[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(marks, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY assigned_at DESC")

	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// ReassignParams carries the closing of one assignment and the opening of its replacement.
// The old row is only closed while its executed hours still equal ExpectedExecuted.
type ReassignParams struct {
	OldID            string
	ExpectedExecuted float64
	Reason           string
	ClosedAt         time.Time
	New              *models.Assignment
	Release          ProjectionChange
	Charge           ProjectionChange
}

// Reassign closes the old assignment as REASSIGNED, inserts the replacement and moves the
// remaining hours between projections atomically.
func (r *AssignmentRepository) Reassign(ctx context.Context, params ReassignParams) (err error) {
	prepareAssignment(params.New)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reassign transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = closeAssignment(ctx, tx, params.OldID, params.ExpectedExecuted, models.AssignmentStatusReassigned, params.Reason, params.ClosedAt); err != nil {
		return err
	}
	if _, err = tx.NamedExecContext(ctx, insertAssignment, params.New); err != nil {
		if isUniqueViolation(err) {
			return ErrUniqueViolation
		}
		return fmt.Errorf("insert replacement assignment: %w", err)
	}
	if _, err = applyProjectionDelta(ctx, tx, params.Release); err != nil {
		return err
	}
	if _, err = applyProjectionDelta(ctx, tx, params.Charge); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reassign: %w", err)
	}
	return nil
}

// Withdraw closes an ACTIVE assignment as INACTIVE and releases its unexecuted hours.
func (r *AssignmentRepository) Withdraw(ctx context.Context, id string, expectedExecuted float64, reason string, closedAt time.Time, release ProjectionChange) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin withdraw transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = closeAssignment(ctx, tx, id, expectedExecuted, models.AssignmentStatusInactive, reason, closedAt); err != nil {
		return err
	}
	if _, err = applyProjectionDelta(ctx, tx, release); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit withdraw: %w", err)
	}
	return nil
}

// Extend raises the programmed hours of an ACTIVE assignment and its projection.
func (r *AssignmentRepository) Extend(ctx context.Context, id string, additional float64, reason string, change ProjectionChange) (projection *models.InstructorProjection, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin extend transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE assignments SET programmed_hours = programmed_hours + $1, reason = $2
WHERE id = $3 AND status = 'ACTIVE'`
	result, err := tx.ExecContext(ctx, query, additional, reason, id)
	if err != nil {
		return nil, fmt.Errorf("extend assignment: %w", err)
	}
	if err = expectOneRow(result); err != nil {
		return nil, err
	}
	if projection, err = applyProjectionDelta(ctx, tx, change); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit extend: %w", err)
	}
	return projection, nil
}

// ProgrammedForMonth returns the hours an instructor's assignments charge to a month: ACTIVE
// assignments count their programmed hours, closed ones only what was executed.
func (r *AssignmentRepository) ProgrammedForMonth(ctx context.Context, instructorID string, year, month int) (float64, error) {
	const query = `SELECT COALESCE(SUM(CASE WHEN status = 'ACTIVE' THEN programmed_hours ELSE executed_hours END), 0)
FROM assignments WHERE instructor_id = $1 AND projection_year = $2 AND projection_month = $3`
	var total float64
	if err := r.db.GetContext(ctx, &total, query, instructorID, year, month); err != nil {
		return 0, fmt.Errorf("sum programmed hours: %w", err)
	}
	return total, nil
}

// SumExecutedByPlacement totals executed hours over every assignment of a placement.
func (r *AssignmentRepository) SumExecutedByPlacement(ctx context.Context, placementID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(executed_hours), 0) FROM assignments WHERE placement_id = $1`
	var total float64
	if err := r.db.GetContext(ctx, &total, query, placementID); err != nil {
		return 0, fmt.Errorf("sum executed hours: %w", err)
	}
	return total, nil
}

func closeAssignment(ctx context.Context, tx *sqlx.Tx, id string, expectedExecuted float64, status models.AssignmentStatus, reason string, closedAt time.Time) error {
	const query = `UPDATE assignments SET status = $1, reason = $2, closed_at = $3
WHERE id = $4 AND status = 'ACTIVE' AND executed_hours = $5`
	result, err := tx.ExecContext(ctx, query, status, reason, closedAt, id, expectedExecuted)
	if err != nil {
		return fmt.Errorf("close assignment: %w", err)
	}
	return expectOneRow(result)
}

// accrueAssignment adds hours to an assignment's executed total without exceeding its programming.
func accrueAssignment(ctx context.Context, tx *sqlx.Tx, id string, hours float64) error {
	const query = `UPDATE assignments SET executed_hours = executed_hours + $1
WHERE id = $2 AND executed_hours + $1 <= programmed_hours AND executed_hours + $1 >= 0`
	result, err := tx.ExecContext(ctx, query, hours, id)
	if err != nil {
		return fmt.Errorf("accrue assignment hours: %w", err)
	}
	return expectOneRow(result)
}

// moveAssignment applies a system delta to an ACTIVE assignment, keeping executed within [0, programmed].
func moveAssignment(ctx context.Context, tx *sqlx.Tx, delta AssignmentDelta) error {
	const query = `UPDATE assignments
SET executed_hours = executed_hours + $1, programmed_hours = programmed_hours + $2
WHERE id = $3 AND status = 'ACTIVE'
  AND executed_hours + $1 >= 0 AND executed_hours + $1 <= programmed_hours + $2`
	result, err := tx.ExecContext(ctx, query, delta.Executed, delta.Programmed, delta.AssignmentID)
	if err != nil {
		return fmt.Errorf("move assignment hours: %w", err)
	}
	return expectOneRow(result)
}

func prepareAssignment(assignment *models.Assignment) {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.Status == "" {
		assignment.Status = models.AssignmentStatusActive
	}
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = time.Now().UTC()
	}
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func expectOneRow(result rowsAffecter) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrGuardFailed
	}
	return nil
}
