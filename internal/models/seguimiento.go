package models

import "time"

// SeguimientoKind identifies which of the three numbered check-ins a seguimiento is.
type SeguimientoKind string

const (
	SeguimientoInitial       SeguimientoKind = "INITIAL"
	SeguimientoIntermediate  SeguimientoKind = "INTERMEDIATE"
	SeguimientoFinal         SeguimientoKind = "FINAL"
	SeguimientoExtraordinary SeguimientoKind = "EXTRAORDINARY"
)

// Number returns the ordinal for numbered kinds and 0 for extraordinary visits.
func (k SeguimientoKind) Number() int {
	switch k {
	case SeguimientoInitial:
		return 1
	case SeguimientoIntermediate:
		return 2
	case SeguimientoFinal:
		return 3
	default:
		return 0
	}
}

// Seguimiento is a supervision check-in performed by the follow-up instructor.
type Seguimiento struct {
	ID              string            `db:"id" json:"id"`
	PlacementID     string            `db:"placement_id" json:"placement_id"`
	Number          *int              `db:"number" json:"number,omitempty"`
	Kind            SeguimientoKind   `db:"kind" json:"kind"`
	ScheduledFor    time.Time         `db:"scheduled_for" json:"scheduled_for"`
	ExecutedAt      *time.Time        `db:"executed_at" json:"executed_at,omitempty"`
	Status          DeliverableStatus `db:"status" json:"status"`
	Results         *string           `db:"results" json:"results,omitempty"`
	ImprovementPlan *string           `db:"improvement_plan" json:"improvement_plan,omitempty"`
	DocumentRef     *string           `db:"document_ref" json:"document_ref,omitempty"`
	DocumentPresent bool              `db:"document_present" json:"document_present"`
	InstructorID    *string           `db:"instructor_id" json:"instructor_id,omitempty"`
	Observation     *string           `db:"observation" json:"observation,omitempty"`
	VerifiedAt      *time.Time        `db:"verified_at" json:"verified_at,omitempty"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}
