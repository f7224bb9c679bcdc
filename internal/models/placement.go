package models

import "time"

// Modality is the kind of productive-stage arrangement an apprentice follows.
type Modality string

const (
	ModalityPasantia                Modality = "PASANTIA"
	ModalityVinculoLaboral          Modality = "VINCULO_LABORAL"
	ModalityUnidadProductivaFamilia Modality = "UNIDAD_PRODUCTIVA_FAMILIAR"
	ModalityContratoAprendizaje     Modality = "CONTRATO_APRENDIZAJE"
	ModalityProyectoEmpresarial     Modality = "PROYECTO_EMPRESARIAL"
	ModalityProyectoProductivo      Modality = "PROYECTO_PRODUCTIVO"
	ModalityProyectoProductivoID    Modality = "PROYECTO_PRODUCTIVO_ID"
	ModalityProyectoSocial          Modality = "PROYECTO_SOCIAL"
	ModalityMonitorias              Modality = "MONITORIAS"
)

// PlacementStatus tracks the lifecycle of an apprentice placement.
type PlacementStatus string

const (
	PlacementStatusActive    PlacementStatus = "ACTIVE"
	PlacementStatusInactive  PlacementStatus = "INACTIVE"
	PlacementStatusCompleted PlacementStatus = "COMPLETED"
	PlacementStatusCancelled PlacementStatus = "CANCELLED"
)

// Placement is an apprentice's productive-stage engagement.
type Placement struct {
	ID                 string          `db:"id" json:"id"`
	ApprenticeID       string          `db:"apprentice_id" json:"apprentice_id"`
	ClassGroupID       string          `db:"class_group_id" json:"class_group_id"`
	Modality           Modality        `db:"modality" json:"modality"`
	RequiredHours      float64         `db:"required_hours" json:"required_hours"`
	ExternalEvaluation bool            `db:"external_evaluation" json:"external_evaluation"`
	Status             PlacementStatus `db:"status" json:"status"`
	StartDate          time.Time       `db:"start_date" json:"start_date"`
	EndDate            *time.Time      `db:"end_date" json:"end_date,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
}

// ClassGroup (ficha) is the training cohort an apprentice enrolled in.
type ClassGroup struct {
	ID        string     `db:"id" json:"id"`
	Code      string     `db:"code" json:"code"`
	OpenedAt  time.Time  `db:"opened_at" json:"opened_at"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}
