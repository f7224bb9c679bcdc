package dto

import "github.com/noah-isme/etapa-productiva-api/internal/models"

// AssignRequest binds an instructor to a placement in a role.
type AssignRequest struct {
	InstructorID    string                `json:"instructor_id" validate:"required"`
	PlacementID     string                `json:"placement_id" validate:"required"`
	Role            models.AssignmentRole `json:"role" validate:"required,oneof=FOLLOW_UP TECHNICAL PROJECT"`
	ProgrammedHours float64               `json:"programmed_hours" validate:"gte=0,lte=2000"`
}

// ReassignRequest moves the remaining work of an assignment to another instructor.
type ReassignRequest struct {
	NewInstructorID string `json:"new_instructor_id" validate:"required"`
	Reason          string `json:"reason" validate:"required,max=500"`
}

// ExtendRequest raises programmed hours.
type ExtendRequest struct {
	AdditionalHours float64 `json:"additional_hours" validate:"gt=0,lte=500"`
	Reason          string  `json:"reason" validate:"required,max=500"`
}

// WithdrawRequest closes an assignment without replacement.
type WithdrawRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// RecordHoursRequest records executed hours against an assignment.
type RecordHoursRequest struct {
	Hours       float64 `json:"hours" validate:"gte=0.5,lte=8"`
	Description string  `json:"description" validate:"required,max=1000"`
}
