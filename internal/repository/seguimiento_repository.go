package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
)

const seguimientoColumns = `id, placement_id, number, kind, scheduled_for, executed_at, status, results, improvement_plan,
       document_ref, document_present, instructor_id, observation, verified_at, updated_at`

// SeguimientoRepository persists supervision check-ins.
type SeguimientoRepository struct {
	db *sqlx.DB
}

// NewSeguimientoRepository constructs the repository.
func NewSeguimientoRepository(db *sqlx.DB) *SeguimientoRepository {
	return &SeguimientoRepository{db: db}
}

// Create inserts a seguimiento. A numbered kind already scheduled yields ErrUniqueViolation.
func (r *SeguimientoRepository) Create(ctx context.Context, seguimiento *models.Seguimiento) error {
	if seguimiento.ID == "" {
		seguimiento.ID = uuid.NewString()
	}
	if seguimiento.Status == "" {
		seguimiento.Status = models.DeliverableProgrammed
	}
	seguimiento.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO seguimientos
	(id, placement_id, number, kind, scheduled_for, executed_at, status, results, improvement_plan, document_ref,
	 document_present, instructor_id, observation, verified_at, updated_at)
	VALUES (:id, :placement_id, :number, :kind, :scheduled_for, :executed_at, :status, :results, :improvement_plan,
	 :document_ref, :document_present, :instructor_id, :observation, :verified_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, seguimiento); err != nil {
		if isUniqueViolation(err) {
			return ErrUniqueViolation
		}
		return fmt.Errorf("create seguimiento: %w", err)
	}
	return nil
}

// GetByID fetches a seguimiento.
func (r *SeguimientoRepository) GetByID(ctx context.Context, id string) (*models.Seguimiento, error) {
	query := `SELECT ` + seguimientoColumns + ` FROM seguimientos WHERE id = $1`
	var seguimiento models.Seguimiento
	if err := r.db.GetContext(ctx, &seguimiento, query, id); err != nil {
		return nil, err
	}
	return &seguimiento, nil
}

// ListByPlacement returns seguimientos ordered by schedule.
func (r *SeguimientoRepository) ListByPlacement(ctx context.Context, placementID string) ([]models.Seguimiento, error) {
	query := `SELECT ` + seguimientoColumns + ` FROM seguimientos WHERE placement_id = $1 ORDER BY scheduled_for ASC`
	var seguimientos []models.Seguimiento
	if err := r.db.SelectContext(ctx, &seguimientos, query, placementID); err != nil {
		return nil, fmt.Errorf("list seguimientos: %w", err)
	}
	return seguimientos, nil
}

// CountVerifiedNumbered counts VERIFIED numbered seguimientos; extraordinary visits do not count.
func (r *SeguimientoRepository) CountVerifiedNumbered(ctx context.Context, placementID string) (int, error) {
	const query = `SELECT COUNT(*) FROM seguimientos WHERE placement_id = $1 AND status = 'VERIFIED' AND number IS NOT NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, placementID); err != nil {
		return 0, fmt.Errorf("count verified seguimientos: %w", err)
	}
	return count, nil
}

// Transition applies a status-guarded update.
func (r *SeguimientoRepository) Transition(ctx context.Context, update DeliverableUpdate) error {
	return transitionDeliverable(ctx, r.db, "seguimientos", update)
}
