package models

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatJSON ReportFormat = "json"
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatPDF  ReportFormat = "pdf"
)

// ActivityTypes lists every ledger activity in report column order.
var ActivityTypes = []ActivityType{
	ActivityFollowUpVisit,
	ActivityBitacoraReview,
	ActivityTechnicalAdvisory,
	ActivityProjectAdvisory,
}

// ActivityHours is the approved total for one instructor and activity in a month.
type ActivityHours struct {
	InstructorID string       `db:"instructor_id" json:"instructor_id"`
	ActivityType ActivityType `db:"activity_type" json:"activity_type"`
	Hours        float64      `db:"hours" json:"hours"`
}

// InstructorHoursRow is one instructor's line in the monthly hours report.
type InstructorHoursRow struct {
	InstructorID   string                   `json:"instructor_id"`
	InstructorName string                   `json:"instructor_name"`
	AvailableHours float64                  `json:"available_hours"`
	Programmed     float64                  `json:"programmed_hours"`
	Executed       float64                  `json:"executed_hours"`
	Utilization    float64                  `json:"utilization_pct"`
	Overloaded     bool                     `json:"overloaded"`
	ByActivity     map[ActivityType]float64 `json:"by_activity"`
}

// InstructorHoursReport compares programmed against executed hours for every active instructor.
type InstructorHoursReport struct {
	Year            int                  `json:"year"`
	Month           int                  `json:"month"`
	Rows            []InstructorHoursRow `json:"rows"`
	OverloadedCount int                  `json:"overloaded_count"`
}
