package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordCourseRequest is a completed-course record handed over by the ingestion service.
type RecordCourseRequest struct {
	StudentID      string           `json:"student_id" validate:"required"`
	Organization   string           `json:"organization" validate:"required"`
	UmbrellaKey    string           `json:"umbrella_key" validate:"required"`
	TheoryHours    decimal.Decimal  `json:"theory_hours"`
	PracticalHours decimal.Decimal  `json:"practical_hours"`
	TotalHours     *decimal.Decimal `json:"total_hours,omitempty"`
	NoOfDays       int              `json:"no_of_days" validate:"gte=0"`
	CompletionDate time.Time        `json:"completion_date" validate:"required"`
	DocumentRef    *string          `json:"document_ref,omitempty" validate:"omitempty,max=512"`
}

// ImportCoursesRequest carries a bulk upload of completed courses.
type ImportCoursesRequest struct {
	Records []RecordCourseRequest `json:"records" validate:"required,min=1,max=5000"`
}

// CourseBalanceResponse exposes a course's remaining credits.
type CourseBalanceResponse struct {
	CourseID         string          `json:"course_id"`
	TotalCredits     decimal.Decimal `json:"total_credits"`
	CreditsConsumed  decimal.Decimal `json:"credits_consumed"`
	CreditsAvailable decimal.Decimal `json:"credits_available"`
}
