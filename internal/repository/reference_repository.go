package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
)

// ReferenceRepository reads instructor, coordinator, placement and class-group reference data.
// These records are owned by other systems and are never written here.
type ReferenceRepository struct {
	db *sqlx.DB
}

// NewReferenceRepository constructs the repository.
func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// GetInstructor fetches an instructor.
func (r *ReferenceRepository) GetInstructor(ctx context.Context, id string) (*models.Instructor, error) {
	const query = `SELECT id, full_name, email, contract_type, roles, monthly_available_hours, topic_areas, status, created_at, updated_at
FROM instructors WHERE id = $1`
	var instructor models.Instructor
	if err := r.db.GetContext(ctx, &instructor, query, id); err != nil {
		return nil, err
	}
	return &instructor, nil
}

// GetCoordinator fetches a coordinator.
func (r *ReferenceRepository) GetCoordinator(ctx context.Context, id string) (*models.Coordinator, error) {
	const query = `SELECT id, full_name, email, areas, active, created_at FROM coordinators WHERE id = $1`
	var coordinator models.Coordinator
	if err := r.db.GetContext(ctx, &coordinator, query, id); err != nil {
		return nil, err
	}
	return &coordinator, nil
}

// GetPlacement fetches a placement.
func (r *ReferenceRepository) GetPlacement(ctx context.Context, id string) (*models.Placement, error) {
	const query = `SELECT id, apprentice_id, class_group_id, modality, required_hours, external_evaluation, status,
       start_date, end_date, created_at
FROM placements WHERE id = $1`
	var placement models.Placement
	if err := r.db.GetContext(ctx, &placement, query, id); err != nil {
		return nil, err
	}
	return &placement, nil
}

// GetClassGroup fetches a class group.
func (r *ReferenceRepository) GetClassGroup(ctx context.Context, id string) (*models.ClassGroup, error) {
	const query = `SELECT id, code, opened_at, expires_at FROM class_groups WHERE id = $1`
	var group models.ClassGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}
