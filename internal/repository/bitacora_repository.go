package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
)

const bitacoraColumns = `id, placement_id, number, submitted_at, due_date, status, document_ref, document_present,
       instructor_id, observation, verified_at, updated_at`

// BitacoraRepository persists apprentice bitácoras.
type BitacoraRepository struct {
	db *sqlx.DB
}

// NewBitacoraRepository constructs the repository.
func NewBitacoraRepository(db *sqlx.DB) *BitacoraRepository {
	return &BitacoraRepository{db: db}
}

// NextNumber returns the next contiguous number for a placement.
func (r *BitacoraRepository) NextNumber(ctx context.Context, placementID string) (int, error) {
	const query = `SELECT COALESCE(MAX(number), 0) + 1 FROM bitacoras WHERE placement_id = $1`
	var next int
	if err := r.db.GetContext(ctx, &next, query, placementID); err != nil {
		return 0, fmt.Errorf("next bitacora number: %w", err)
	}
	return next, nil
}

// Create inserts a bitácora. A taken number yields ErrUniqueViolation.
func (r *BitacoraRepository) Create(ctx context.Context, bitacora *models.Bitacora) error {
	if bitacora.ID == "" {
		bitacora.ID = uuid.NewString()
	}
	if bitacora.Status == "" {
		bitacora.Status = models.DeliverablePending
	}
	bitacora.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO bitacoras
	(id, placement_id, number, submitted_at, due_date, status, document_ref, document_present, instructor_id, observation, verified_at, updated_at)
	VALUES (:id, :placement_id, :number, :submitted_at, :due_date, :status, :document_ref, :document_present, :instructor_id, :observation, :verified_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, bitacora); err != nil {
		if isUniqueViolation(err) {
			return ErrUniqueViolation
		}
		return fmt.Errorf("create bitacora: %w", err)
	}
	return nil
}

// GetByID fetches a bitácora.
func (r *BitacoraRepository) GetByID(ctx context.Context, id string) (*models.Bitacora, error) {
	query := `SELECT ` + bitacoraColumns + ` FROM bitacoras WHERE id = $1`
	var bitacora models.Bitacora
	if err := r.db.GetContext(ctx, &bitacora, query, id); err != nil {
		return nil, err
	}
	return &bitacora, nil
}

// ListByPlacement returns bitácoras ordered by number.
func (r *BitacoraRepository) ListByPlacement(ctx context.Context, placementID string) ([]models.Bitacora, error) {
	query := `SELECT ` + bitacoraColumns + ` FROM bitacoras WHERE placement_id = $1 ORDER BY number ASC`
	var bitacoras []models.Bitacora
	if err := r.db.SelectContext(ctx, &bitacoras, query, placementID); err != nil {
		return nil, fmt.Errorf("list bitacoras: %w", err)
	}
	return bitacoras, nil
}

// CountVerified counts VERIFIED bitácoras of a placement.
func (r *BitacoraRepository) CountVerified(ctx context.Context, placementID string) (int, error) {
	const query = `SELECT COUNT(*) FROM bitacoras WHERE placement_id = $1 AND status = 'VERIFIED'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, placementID); err != nil {
		return 0, fmt.Errorf("count verified bitacoras: %w", err)
	}
	return count, nil
}

// Transition applies a status-guarded update.
func (r *BitacoraRepository) Transition(ctx context.Context, update DeliverableUpdate) error {
	return transitionDeliverable(ctx, r.db, "bitacoras", update)
}
