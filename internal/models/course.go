package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Course is a completed training record. Credits are computed once on record and never change.
type Course struct {
	ID               string              `db:"id" json:"id"`
	StudentID        string              `db:"student_id" json:"student_id"`
	Organization     string              `db:"organization" json:"organization"`
	UmbrellaKey      string              `db:"umbrella_key" json:"umbrella_key"`
	TheoryHours      decimal.Decimal     `db:"theory_hours" json:"theory_hours"`
	PracticalHours   decimal.Decimal     `db:"practical_hours" json:"practical_hours"`
	TotalHours       decimal.NullDecimal `db:"total_hours" json:"total_hours"`
	NoOfDays         int                 `db:"no_of_days" json:"no_of_days"`
	CompletionDate   time.Time           `db:"completion_date" json:"completion_date"`
	TheoryCredits    decimal.Decimal     `db:"theory_credits" json:"theory_credits"`
	PracticalCredits decimal.Decimal     `db:"practical_credits" json:"practical_credits"`
	TotalCredits     decimal.Decimal     `db:"total_credits" json:"total_credits"`
	DocumentRef      *string             `db:"document_ref" json:"document_ref,omitempty"`
	CreatedBy        string              `db:"created_by" json:"created_by"`
	CreatedAt        time.Time           `db:"created_at" json:"created_at"`
}

// CreditRates converts hours into credits.
type CreditRates struct {
	Theory    decimal.Decimal
	Practical decimal.Decimal
	// Places is the number of decimal places credits are rounded to.
	Places int32
}

// Apply fills the derived credit fields of c.
func (r CreditRates) Apply(c *Course) {
	c.TheoryCredits = c.TheoryHours.Mul(r.Theory).Round(r.Places)
	c.PracticalCredits = c.PracticalHours.Mul(r.Practical).Round(r.Places)
	c.TotalCredits = c.TheoryCredits.Add(c.PracticalCredits)
}
