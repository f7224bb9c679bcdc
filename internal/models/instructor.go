package models

import (
	"time"

	"github.com/lib/pq"
)

// ContractType distinguishes staff instructors from contractors.
type ContractType string

const (
	ContractTypePlanta      ContractType = "PLANTA"
	ContractTypeContratista ContractType = "CONTRATISTA"
)

// InstructorStatus captures whether an instructor can take on new load.
type InstructorStatus string

const (
	InstructorStatusActive   InstructorStatus = "ACTIVE"
	InstructorStatusInactive InstructorStatus = "INACTIVE"
	InstructorStatusVacation InstructorStatus = "VACATION"
	InstructorStatusLeave    InstructorStatus = "LEAVE"
)

// Instructor is the reference record of a person who supervises placements.
type Instructor struct {
	ID                    string           `db:"id" json:"id"`
	FullName              string           `db:"full_name" json:"full_name"`
	Email                 string           `db:"email" json:"email"`
	ContractType          ContractType     `db:"contract_type" json:"contract_type"`
	Roles                 pq.StringArray   `db:"roles" json:"roles"`
	MonthlyAvailableHours float64          `db:"monthly_available_hours" json:"monthly_available_hours"`
	TopicAreas            pq.StringArray   `db:"topic_areas" json:"topic_areas"`
	Status                InstructorStatus `db:"status" json:"status"`
	CreatedAt             time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time        `db:"updated_at" json:"updated_at"`
}

// CanActAs reports whether the instructor's role set includes role.
func (i *Instructor) CanActAs(role AssignmentRole) bool {
	for _, r := range i.Roles {
		if AssignmentRole(r) == role {
			return true
		}
	}
	return false
}

// Available reports whether the instructor may receive work.
func (i *Instructor) Available() bool {
	return i.Status == InstructorStatusActive
}

// Coordinator reviews hours and deliverables for the topic areas they supervise.
type Coordinator struct {
	ID        string         `db:"id" json:"id"`
	FullName  string         `db:"full_name" json:"full_name"`
	Email     string         `db:"email" json:"email"`
	Areas     pq.StringArray `db:"areas" json:"areas"`
	Active    bool           `db:"active" json:"active"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// SharesArea reports whether the coordinator supervises any of the given areas.
func (c *Coordinator) SharesArea(areas []string) bool {
	for _, own := range c.Areas {
		for _, other := range areas {
			if own == other {
				return true
			}
		}
	}
	return false
}
