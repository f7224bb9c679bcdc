package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
)

const projectionColumns = `instructor_id, year, month, programmed_hours, executed_hours, available_hours,
       overtime_approved, version, updated_at`

// ProjectionChange describes an optimistic delta against one projection row.
type ProjectionChange struct {
	InstructorID    string
	Year            int
	Month           int
	ExpectedVersion int64
	Delta           models.ProjectionDelta
}

// ProjectionRepository persists monthly instructor capacity projections.
type ProjectionRepository struct {
	db *sqlx.DB
}

// NewProjectionRepository constructs the repository.
func NewProjectionRepository(db *sqlx.DB) *ProjectionRepository {
	return &ProjectionRepository{db: db}
}

// Get fetches a projection row.
func (r *ProjectionRepository) Get(ctx context.Context, instructorID string, year, month int) (*models.InstructorProjection, error) {
	query := `SELECT ` + projectionColumns + ` FROM instructor_projections
WHERE instructor_id = $1 AND year = $2 AND month = $3`
	var projection models.InstructorProjection
	if err := r.db.GetContext(ctx, &projection, query, instructorID, year, month); err != nil {
		return nil, err
	}
	return &projection, nil
}

// Ensure returns the projection row, creating an empty one with the given capacity when absent.
func (r *ProjectionRepository) Ensure(ctx context.Context, instructorID string, year, month int, available float64) (*models.InstructorProjection, error) {
	const insert = `INSERT INTO instructor_projections
	(instructor_id, year, month, programmed_hours, executed_hours, available_hours, overtime_approved, version, updated_at)
	VALUES ($1, $2, $3, 0, 0, $4, FALSE, 0, $5)
	ON CONFLICT (instructor_id, year, month) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, instructorID, year, month, available, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("ensure projection: %w", err)
	}
	projection, err := r.Get(ctx, instructorID, year, month)
	if err != nil {
		return nil, fmt.Errorf("load projection: %w", err)
	}
	return projection, nil
}

// ListByInstructor returns every stored month of a year for an instructor.
func (r *ProjectionRepository) ListByInstructor(ctx context.Context, instructorID string, year int) ([]models.InstructorProjection, error) {
	query := `SELECT ` + projectionColumns + ` FROM instructor_projections
WHERE instructor_id = $1 AND year = $2 ORDER BY month ASC`
	var projections []models.InstructorProjection
	if err := r.db.SelectContext(ctx, &projections, query, instructorID, year); err != nil {
		return nil, fmt.Errorf("list projections: %w", err)
	}
	return projections, nil
}

// Replace overwrites the stored totals with a recomputed value. The write only lands when the
// stored version still equals expectedVersion; a missing row is inserted.
func (r *ProjectionRepository) Replace(ctx context.Context, projection *models.InstructorProjection, expectedVersion int64) (*models.InstructorProjection, error) {
	query := `INSERT INTO instructor_projections
	(instructor_id, year, month, programmed_hours, executed_hours, available_hours, overtime_approved, version, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)
	ON CONFLICT (instructor_id, year, month) DO UPDATE SET
	    programmed_hours = EXCLUDED.programmed_hours,
	    executed_hours = EXCLUDED.executed_hours,
	    available_hours = EXCLUDED.available_hours,
	    overtime_approved = EXCLUDED.overtime_approved,
	    version = instructor_projections.version + 1,
	    updated_at = EXCLUDED.updated_at
	WHERE instructor_projections.version = $9
	RETURNING ` + projectionColumns
	var stored models.InstructorProjection
	err := r.db.GetContext(ctx, &stored, query,
		projection.InstructorID,
		projection.Year,
		projection.Month,
		projection.ProgrammedHours,
		projection.ExecutedHours,
		projection.AvailableHours,
		projection.OvertimeApproved,
		time.Now().UTC(),
		expectedVersion,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("replace projection: %w", err)
	}
	return &stored, nil
}

// ActiveInstructors lists instructors with assignments or ledger entries in the month.
func (r *ProjectionRepository) ActiveInstructors(ctx context.Context, year, month int) ([]string, error) {
	const query = `SELECT instructor_id FROM assignments WHERE projection_year = $1 AND projection_month = $2
UNION
SELECT instructor_id FROM hour_entries
WHERE EXTRACT(YEAR FROM entry_date) = $1 AND EXTRACT(MONTH FROM entry_date) = $2
UNION
SELECT instructor_id FROM instructor_projections WHERE year = $1 AND month = $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, year, month); err != nil {
		return nil, fmt.Errorf("list active instructors: %w", err)
	}
	return ids, nil
}

// applyProjectionDelta adds change.Delta to a projection row inside tx, bumping its version.
func applyProjectionDelta(ctx context.Context, tx *sqlx.Tx, change ProjectionChange) (*models.InstructorProjection, error) {
	query := `UPDATE instructor_projections
SET programmed_hours = programmed_hours + $1,
    executed_hours = executed_hours + $2,
    overtime_approved = overtime_approved OR $3,
    version = version + 1,
    updated_at = $4
WHERE instructor_id = $5 AND year = $6 AND month = $7 AND version = $8
RETURNING ` + projectionColumns
	var stored models.InstructorProjection
	err := tx.GetContext(ctx, &stored, query,
		change.Delta.Programmed,
		change.Delta.Executed,
		change.Delta.Overtime,
		time.Now().UTC(),
		change.InstructorID,
		change.Year,
		change.Month,
		change.ExpectedVersion,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("apply projection delta: %w", err)
	}
	return &stored, nil
}
