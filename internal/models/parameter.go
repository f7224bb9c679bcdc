package models

import "time"

// Parameter categories read by the modality rule table.
const (
	ParameterCategoryInstructorHours = "HORAS_INSTRUCTOR"
	ParameterCategoryModalities      = "MODALIDADES"
	ParameterCategoryTimeAlerts      = "ALERTAS_TIEMPO"
	ParameterCategoryBusinessRules   = "REGLAS_NEGOCIO"
)

// Parameter is a read-only entry from the system parameter store.
type Parameter struct {
	Category    string    `db:"category" json:"category"`
	Name        string    `db:"name" json:"name"`
	Value       string    `db:"value" json:"value"`
	Description *string   `db:"description" json:"description,omitempty"`
	Active      bool      `db:"active" json:"active"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
