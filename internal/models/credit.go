package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditSlice is the consumable balance of one course.
// Invariant: 0 <= CreditsConsumed <= TotalCredits.
type CreditSlice struct {
	CourseID        string          `db:"course_id" json:"course_id"`
	StudentID       string          `db:"student_id" json:"student_id"`
	UmbrellaKey     string          `db:"umbrella_key" json:"umbrella_key"`
	CompletionDate  time.Time       `db:"completion_date" json:"completion_date"`
	TotalCredits    decimal.Decimal `db:"total_credits" json:"total_credits"`
	CreditsConsumed decimal.Decimal `db:"credits_consumed" json:"credits_consumed"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Available returns the unconsumed credits.
func (s CreditSlice) Available() decimal.Decimal {
	return s.TotalCredits.Sub(s.CreditsConsumed)
}

// ReservationStatus tracks a hold on credit slice capacity.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationCommitted ReservationStatus = "COMMITTED"
)

// Reservation holds Amount credits of a course on behalf of a claim.
type Reservation struct {
	ID          string            `db:"id" json:"id"`
	CourseID    string            `db:"course_id" json:"course_id"`
	ClaimID     string            `db:"claim_id" json:"claim_id"`
	StudentID   string            `db:"student_id" json:"student_id"`
	Amount      decimal.Decimal   `db:"amount" json:"amount"`
	Status      ReservationStatus `db:"status" json:"status"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	ReleasedAt  *time.Time        `db:"released_at" json:"released_at,omitempty"`
	CommittedAt *time.Time        `db:"committed_at" json:"committed_at,omitempty"`
}

// UmbrellaCredits aggregates a student's credits for one umbrella.
type UmbrellaCredits struct {
	Courses   int             `json:"courses"`
	Total     decimal.Decimal `json:"total"`
	Consumed  decimal.Decimal `json:"consumed"`
	Available decimal.Decimal `json:"available"`
}

// StudentCreditSummary maps umbrella key to the student's credit totals.
type StudentCreditSummary struct {
	StudentID string                     `json:"student_id"`
	Umbrellas map[string]UmbrellaCredits `json:"umbrellas"`
}
