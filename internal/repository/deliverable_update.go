package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
)

// DeliverableUpdate moves a bitácora or seguimiento from one status to another, setting the
// optional columns that are non-nil.
type DeliverableUpdate struct {
	ID              string
	From            []models.DeliverableStatus
	To              models.DeliverableStatus
	InstructorID    *string
	DocumentRef     *string
	Observation     *string
	Results         *string
	ImprovementPlan *string
	ExecutedAt      *time.Time
	VerifiedAt      *time.Time
	ClearVerified   bool
}

// transitionDeliverable runs a status-guarded update. Zero matched rows yields sql.ErrNoRows.
func transitionDeliverable(ctx context.Context, db *sqlx.DB, table string, update DeliverableUpdate) error {
	args := map[string]interface{}{
		"id":         update.ID,
		"status":     update.To,
		"updated_at": time.Now().UTC(),
	}
	setParts := []string{"status = :status", "updated_at = :updated_at"}
	if update.InstructorID != nil {
		setParts = append(setParts, "instructor_id = :instructor_id")
		args["instructor_id"] = *update.InstructorID
	}
	if update.DocumentRef != nil {
		setParts = append(setParts, "document_ref = :document_ref", "document_present = TRUE")
		args["document_ref"] = *update.DocumentRef
	}
	if update.Observation != nil {
		setParts = append(setParts, "observation = :observation")
		args["observation"] = *update.Observation
	}
	if update.Results != nil {
		setParts = append(setParts, "results = :results")
		args["results"] = *update.Results
	}
	if update.ImprovementPlan != nil {
		setParts = append(setParts, "improvement_plan = :improvement_plan")
		args["improvement_plan"] = *update.ImprovementPlan
	}
	if update.ExecutedAt != nil {
		setParts = append(setParts, "executed_at = :executed_at")
		args["executed_at"] = *update.ExecutedAt
	}
	if update.VerifiedAt != nil {
		setParts = append(setParts, "verified_at = :verified_at")
		args["verified_at"] = *update.VerifiedAt
	} else if update.ClearVerified {
		setParts = append(setParts, "verified_at = NULL")
	}

	from := make([]string, len(update.From))
	for i, status := range update.From {
		key := fmt.Sprintf("from_%d", i)
		from[i] = ":" + key
		args[key] = status
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = :id AND status IN (%s)",
		table,
		strings.Join(setParts, ", "),
		strings.Join(from, ", "),
	)
	result, err := db.NamedExecContext(ctx, query, args)
	if err != nil {
		return fmt.Errorf("update %s status: %w", table, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s rows: %w", table, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
