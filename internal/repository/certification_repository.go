package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
)

// CertificationRepository persists certification requests.
type CertificationRepository struct {
	db *sqlx.DB
}

// NewCertificationRepository constructs the repository.
func NewCertificationRepository(db *sqlx.DB) *CertificationRepository {
	return &CertificationRepository{db: db}
}

// Create inserts a certification. An open certification for the placement yields ErrUniqueViolation.
func (r *CertificationRepository) Create(ctx context.Context, certification *models.Certification) error {
	if certification.ID == "" {
		certification.ID = uuid.NewString()
	}
	if certification.Status == "" {
		certification.Status = models.CertificationPending
	}
	if certification.RequestedAt.IsZero() {
		certification.RequestedAt = time.Now().UTC()
	}
	const query = `INSERT INTO certifications (id, placement_id, status, requested_by, requested_at)
	VALUES (:id, :placement_id, :status, :requested_by, :requested_at)`
	if _, err := r.db.NamedExecContext(ctx, query, certification); err != nil {
		if isUniqueViolation(err) {
			return ErrUniqueViolation
		}
		return fmt.Errorf("create certification: %w", err)
	}
	return nil
}

// FindOpen returns the PENDING_CERTIFICATION or CERTIFIED record of a placement.
func (r *CertificationRepository) FindOpen(ctx context.Context, placementID string) (*models.Certification, error) {
	const query = `SELECT id, placement_id, status, requested_by, requested_at FROM certifications
WHERE placement_id = $1 AND status IN ('PENDING_CERTIFICATION', 'CERTIFIED')
ORDER BY requested_at DESC LIMIT 1`
	var certification models.Certification
	if err := r.db.GetContext(ctx, &certification, query, placementID); err != nil {
		return nil, err
	}
	return &certification, nil
}
