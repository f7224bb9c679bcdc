package dto

import "github.com/noah-isme/etapa-productiva-api/internal/models"

// CreateBitacoraRequest registers the next bitácora of a placement.
type CreateBitacoraRequest struct {
	SubmittedAt string `json:"submitted_at" validate:"omitempty,datetime=2006-01-02"`
}

// AttachDocumentRequest hands over a signed document reference from file storage.
type AttachDocumentRequest struct {
	DocumentToken string `json:"document_token" validate:"required"`
}

// VerifyRequest carries an optional reviewer observation.
type VerifyRequest struct {
	Observation string `json:"observation" validate:"max=1000"`
}

// ScheduleSeguimientoRequest plans a check-in.
type ScheduleSeguimientoRequest struct {
	Kind         models.SeguimientoKind `json:"kind" validate:"required,oneof=INITIAL INTERMEDIATE FINAL EXTRAORDINARY"`
	ScheduledFor string                 `json:"scheduled_for" validate:"required,datetime=2006-01-02"`
}

// ExecuteSeguimientoRequest records the outcome of a check-in.
type ExecuteSeguimientoRequest struct {
	Results         string `json:"results" validate:"required,max=4000"`
	ImprovementPlan string `json:"improvement_plan" validate:"max=4000"`
	DocumentToken   string `json:"document_token"`
}
