package models

import "time"

// AssignmentRole is the supervision role an instructor holds on a placement.
type AssignmentRole string

const (
	AssignmentRoleFollowUp  AssignmentRole = "FOLLOW_UP"
	AssignmentRoleTechnical AssignmentRole = "TECHNICAL"
	AssignmentRoleProject   AssignmentRole = "PROJECT"
)

// AssignmentStatus captures assignment lifecycle.
type AssignmentStatus string

const (
	AssignmentStatusActive     AssignmentStatus = "ACTIVE"
	AssignmentStatusInactive   AssignmentStatus = "INACTIVE"
	AssignmentStatusReassigned AssignmentStatus = "REASSIGNED"
)

// Assignment binds an instructor to a placement in a role with programmed hours.
// Rows are never deleted; closed assignments keep their executed hours.
type Assignment struct {
	ID              string           `db:"id" json:"id"`
	PlacementID     string           `db:"placement_id" json:"placement_id"`
	InstructorID    string           `db:"instructor_id" json:"instructor_id"`
	Role            AssignmentRole   `db:"role" json:"role"`
	ProgrammedHours float64          `db:"programmed_hours" json:"programmed_hours"`
	ExecutedHours   float64          `db:"executed_hours" json:"executed_hours"`
	Status          AssignmentStatus `db:"status" json:"status"`
	ProjectionYear  int              `db:"projection_year" json:"projection_year"`
	ProjectionMonth int              `db:"projection_month" json:"projection_month"`
	ReplacesID      *string          `db:"replaces_id" json:"replaces_id,omitempty"`
	Reason          *string          `db:"reason" json:"reason,omitempty"`
	AssignedBy      string           `db:"assigned_by" json:"assigned_by"`
	AssignedAt      time.Time        `db:"assigned_at" json:"assigned_at"`
	ClosedAt        *time.Time       `db:"closed_at" json:"closed_at,omitempty"`
}

// Remaining returns programmed hours not yet executed.
func (a *Assignment) Remaining() float64 {
	rest := a.ProgrammedHours - a.ExecutedHours
	if rest < 0 {
		return 0
	}
	return rest
}

// AssignmentFilter narrows assignment listings.
type AssignmentFilter struct {
	PlacementID  string
	InstructorID string
	Role         AssignmentRole
	Status       []AssignmentStatus
}
