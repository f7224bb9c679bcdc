package dto

import "github.com/noah-isme/etapa-productiva-api/internal/models"

// DateLayout is the calendar date format accepted by ledger endpoints.
const DateLayout = "2006-01-02"

// SubmitHoursRequest creates a pending ledger entry.
type SubmitHoursRequest struct {
	InstructorID string              `json:"instructor_id" validate:"required"`
	AssignmentID string              `json:"assignment_id" validate:"required"`
	Date         string              `json:"date" validate:"required,datetime=2006-01-02"`
	ActivityType models.ActivityType `json:"activity_type" validate:"required,oneof=FOLLOW_UP_VISIT BITACORA_REVIEW TECHNICAL_ADVISORY PROJECT_ADVISORY"`
	Hours        float64             `json:"hours" validate:"gte=0.5,lte=8"`
	Description  string              `json:"description" validate:"required,max=1000"`
}

// ApproveHoursRequest carries an approval decision.
type ApproveHoursRequest struct {
	Overtime bool   `json:"overtime"`
	Note     string `json:"note" validate:"max=500"`
}

// RejectRequest carries a mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// HourEntryQuery filters ledger listings.
type HourEntryQuery struct {
	InstructorID string `form:"instructor_id"`
	AssignmentID string `form:"assignment_id"`
	PlacementID  string `form:"placement_id"`
	Status       string `form:"status"`
	From         string `form:"from"`
	To           string `form:"to"`
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
}
