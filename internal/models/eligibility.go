package models

import "time"

// ReasonCode names an unmet certification prerequisite.
type ReasonCode string

const (
	ReasonBitacoras         ReasonCode = "bitacoras"
	ReasonSeguimientos      ReasonCode = "seguimientos"
	ReasonHours             ReasonCode = "hours"
	ReasonSofiaEvaluation   ReasonCode = "sofia_evaluation"
	ReasonExpiredEnrollment ReasonCode = "expired_enrollment"
	ReasonAlreadyCertified  ReasonCode = "already_certified"
)

// Progress is a verified/required pair.
type Progress struct {
	Verified int `json:"verified"`
	Required int `json:"required"`
}

// Verdict is the outcome of an eligibility evaluation. Eligible holds exactly when Missing is empty.
type Verdict struct {
	PlacementID   string       `json:"placement_id"`
	Eligible      bool         `json:"eligible"`
	Missing       []ReasonCode `json:"missing"`
	Bitacoras     Progress     `json:"bitacoras"`
	Seguimientos  Progress     `json:"seguimientos"`
	ExecutedHours float64      `json:"executed_hours"`
	RequiredHours float64      `json:"required_hours"`
	ExpiresAt     time.Time    `json:"expires_at"`
	EvaluatedAt   time.Time    `json:"evaluated_at"`
}
