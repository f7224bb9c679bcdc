package models

import "time"

// ActivityType classifies ledger entries.
type ActivityType string

const (
	ActivityFollowUpVisit     ActivityType = "FOLLOW_UP_VISIT"
	ActivityBitacoraReview    ActivityType = "BITACORA_REVIEW"
	ActivityTechnicalAdvisory ActivityType = "TECHNICAL_ADVISORY"
	ActivityProjectAdvisory   ActivityType = "PROJECT_ADVISORY"
)

// EntryStatus captures the approval workflow state.
type EntryStatus string

const (
	EntryStatusPending  EntryStatus = "PENDING"
	EntryStatusApproved EntryStatus = "APPROVED"
	EntryStatusRejected EntryStatus = "REJECTED"
)

// EntrySource tells manual submissions apart from system credits.
type EntrySource string

const (
	EntrySourceManual      EntrySource = "MANUAL"
	EntrySourceBitacora    EntrySource = "BITACORA"
	EntrySourceSeguimiento EntrySource = "SEGUIMIENTO"
)

// HourEntry is one append-only ledger row. Approved rows are immutable; corrections are
// posted as new approved rows with negative hours referencing the reversed entry.
type HourEntry struct {
	ID           string       `db:"id" json:"id"`
	InstructorID string       `db:"instructor_id" json:"instructor_id"`
	AssignmentID string       `db:"assignment_id" json:"assignment_id"`
	PlacementID  string       `db:"placement_id" json:"placement_id"`
	Date         time.Time    `db:"entry_date" json:"date"`
	ActivityType ActivityType `db:"activity_type" json:"activity_type"`
	Hours        float64      `db:"hours" json:"hours"`
	Description  string       `db:"description" json:"description"`
	Status       EntryStatus  `db:"status" json:"status"`
	Source       EntrySource  `db:"source" json:"source"`
	SourceID     *string      `db:"source_id" json:"source_id,omitempty"`
	ReversesID   *string      `db:"reverses_id" json:"reverses_id,omitempty"`
	Overtime     bool         `db:"overtime" json:"overtime"`
	SubmittedBy  string       `db:"submitted_by" json:"submitted_by"`
	SubmittedAt  time.Time    `db:"submitted_at" json:"submitted_at"`
	ReviewedBy   *string      `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time   `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNote   *string      `db:"review_note" json:"review_note,omitempty"`
}

// Month returns the calendar year and month the entry accrues to.
func (e *HourEntry) Month() (int, int) {
	return e.Date.Year(), int(e.Date.Month())
}

// HourEntryFilter constrains ledger listings.
type HourEntryFilter struct {
	InstructorID string
	AssignmentID string
	PlacementID  string
	Status       []EntryStatus
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}
