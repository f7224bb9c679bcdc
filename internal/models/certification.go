package models

import "time"

// CertificationStatus tracks a certification request.
type CertificationStatus string

const (
	CertificationPending   CertificationStatus = "PENDING_CERTIFICATION"
	CertificationCertified CertificationStatus = "CERTIFIED"
	CertificationRejected  CertificationStatus = "REJECTED"
)

// Certification is the request to certify a placement once all prerequisites hold.
type Certification struct {
	ID          string              `db:"id" json:"id"`
	PlacementID string              `db:"placement_id" json:"placement_id"`
	Status      CertificationStatus `db:"status" json:"status"`
	RequestedBy string              `db:"requested_by" json:"requested_by"`
	RequestedAt time.Time           `db:"requested_at" json:"requested_at"`
}

// Open reports whether the certification blocks new requests for the placement.
func (c *Certification) Open() bool {
	return c.Status == CertificationPending || c.Status == CertificationCertified
}
