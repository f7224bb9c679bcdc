package models

import "time"

// DeliverableStatus is shared by bitácoras and seguimientos.
type DeliverableStatus string

const (
	DeliverableProgrammed DeliverableStatus = "PROGRAMMED"
	DeliverablePending    DeliverableStatus = "PENDING"
	DeliverableExecuted   DeliverableStatus = "EXECUTED"
	DeliverableVerified   DeliverableStatus = "VERIFIED"
)

// Bitacora is a fortnightly log an apprentice submits and an instructor verifies.
type Bitacora struct {
	ID              string            `db:"id" json:"id"`
	PlacementID     string            `db:"placement_id" json:"placement_id"`
	Number          int               `db:"number" json:"number"`
	SubmittedAt     time.Time         `db:"submitted_at" json:"submitted_at"`
	DueDate         time.Time         `db:"due_date" json:"due_date"`
	Status          DeliverableStatus `db:"status" json:"status"`
	DocumentRef     *string           `db:"document_ref" json:"document_ref,omitempty"`
	DocumentPresent bool              `db:"document_present" json:"document_present"`
	InstructorID    *string           `db:"instructor_id" json:"instructor_id,omitempty"`
	Observation     *string           `db:"observation" json:"observation,omitempty"`
	VerifiedAt      *time.Time        `db:"verified_at" json:"verified_at,omitempty"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// Overdue reports whether the bitácora is still unverified after its due date.
func (b *Bitacora) Overdue(now time.Time) bool {
	return b.Status != DeliverableVerified && now.After(b.DueDate)
}
