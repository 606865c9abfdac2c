package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CertificateMapping permanently records which course credits funded an approved claim.
// It is written once and never edited.
type CertificateMapping struct {
	ID                   string          `db:"id" json:"id"`
	ClaimID              string          `db:"claim_id" json:"claim_id"`
	StudentID            string          `db:"student_id" json:"student_id"`
	UmbrellaKey          string          `db:"umbrella_key" json:"umbrella_key"`
	Qualification        Qualification   `db:"qualification" json:"qualification"`
	TotalCreditsRequired decimal.Decimal `db:"total_credits_required" json:"total_credits_required"`
	CreatedBy            string          `db:"created_by" json:"created_by"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`

	Entries []CertificateMappingEntry `db:"-" json:"entries"`
}

// CertificateMappingEntry is one finalized course contribution.
type CertificateMappingEntry struct {
	MappingID     string          `db:"mapping_id" json:"mapping_id"`
	Position      int             `db:"position" json:"position"`
	CourseID      string          `db:"course_id" json:"course_id"`
	ReservationID string          `db:"reservation_id" json:"reservation_id"`
	Credits       decimal.Decimal `db:"credits" json:"credits"`
}

// QualificationRequirement fixes the credits needed for a qualification under an umbrella.
type QualificationRequirement struct {
	UmbrellaKey     string          `db:"umbrella_key" json:"umbrella_key"`
	Qualification   Qualification   `db:"qualification" json:"qualification"`
	RequiredCredits decimal.Decimal `db:"required_credits" json:"required_credits"`
	UpdatedBy       string          `db:"updated_by" json:"updated_by"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}
