package models

import "time"

// InstructorProjection is the monthly capacity view of one instructor.
// ExecutedHours never exceeds AvailableHours unless OvertimeApproved is set.
type InstructorProjection struct {
	InstructorID     string    `db:"instructor_id" json:"instructor_id"`
	Year             int       `db:"year" json:"year"`
	Month            int       `db:"month" json:"month"`
	ProgrammedHours  float64   `db:"programmed_hours" json:"programmed_hours"`
	ExecutedHours    float64   `db:"executed_hours" json:"executed_hours"`
	AvailableHours   float64   `db:"available_hours" json:"available_hours"`
	OvertimeApproved bool      `db:"overtime_approved" json:"overtime_approved"`
	Version          int64     `db:"version" json:"version"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// FreeHours returns capacity left for new programming.
func (p *InstructorProjection) FreeHours() float64 {
	return p.AvailableHours - p.ProgrammedHours
}

// ProjectionDelta is an incremental change applied under the projection lock.
type ProjectionDelta struct {
	Programmed float64
	Executed   float64
	Overtime   bool
}
