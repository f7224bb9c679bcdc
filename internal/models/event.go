package models

import "time"

// EventType names a domain notification.
type EventType string

const (
	EventAssignmentCreated      EventType = "AssignmentCreated"
	EventAssignmentReassigned   EventType = "AssignmentReassigned"
	EventAssignmentExtended     EventType = "AssignmentExtended"
	EventAssignmentWithdrawn    EventType = "AssignmentWithdrawn"
	EventHoursSubmitted         EventType = "HoursSubmitted"
	EventHoursApproved          EventType = "HoursApproved"
	EventHoursRejected          EventType = "HoursRejected"
	EventBitacoraVerified       EventType = "BitacoraVerified"
	EventBitacoraReopened       EventType = "BitacoraReopened"
	EventSeguimientoVerified    EventType = "SeguimientoVerified"
	EventPlacementEligible      EventType = "PlacementEligibleForCertification"
	EventCertificationRequested EventType = "CertificationRequested"
)

// Event is dispatched to the notification collaborator after commit.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Payload    map[string]string `json:"payload"`
}
