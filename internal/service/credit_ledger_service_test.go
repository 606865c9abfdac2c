package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bprnd-credit-api/internal/dto"
	"github.com/noah-isme/bprnd-credit-api/internal/models"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
)

func courseRequest(theory, practical string) dto.RecordCourseRequest {
	return dto.RecordCourseRequest{
		StudentID:      "student-1",
		Organization:   "State Police Academy",
		UmbrellaKey:    " Safety ",
		TheoryHours:    decimal.RequireFromString(theory),
		PracticalHours: decimal.RequireFromString(practical),
		NoOfDays:       5,
		CompletionDate: jan,
	}
}

func TestRecordCourseComputesCredits(t *testing.T) {
	e := newEngine(t)
	slice, err := e.ledger.RecordCourse(context.Background(), adminSession, courseRequest("30", "60"))
	require.NoError(t, err)

	assert.NotEmpty(t, slice.CourseID)
	assert.Equal(t, "safety", slice.UmbrellaKey)
	assert.True(t, slice.TotalCredits.Equal(decimal.RequireFromString("4")), slice.TotalCredits.String())
	assert.True(t, slice.CreditsConsumed.IsZero())

	course, err := e.ledger.Course(context.Background(), adminSession, slice.CourseID)
	require.NoError(t, err)
	assert.True(t, course.TheoryCredits.Equal(decimal.RequireFromString("2")))
	assert.True(t, course.PracticalCredits.Equal(decimal.RequireFromString("2")))
	assert.Equal(t, "admin-1", course.CreatedBy)

	available, err := e.ledger.AvailableCredits(context.Background(), slice.CourseID)
	require.NoError(t, err)
	assert.True(t, available.Equal(slice.TotalCredits))
}

func TestRecordCourseRejectsInvalidHours(t *testing.T) {
	e := newEngine(t)

	_, err := e.ledger.RecordCourse(context.Background(), adminSession, courseRequest("-1", "4"))
	assert.ErrorIs(t, err, appErrors.ErrInvalidHours)

	req := courseRequest("10", "5")
	total := decimal.NewFromInt(20)
	req.TotalHours = &total
	_, err = e.ledger.RecordCourse(context.Background(), adminSession, req)
	assert.ErrorIs(t, err, appErrors.ErrInvalidHours)

	matching := decimal.NewFromInt(15)
	req.TotalHours = &matching
	_, err = e.ledger.RecordCourse(context.Background(), adminSession, req)
	assert.NoError(t, err)

	assert.Len(t, e.db.courses, 1)
}

func TestRecordCourseRequiresIngestionRole(t *testing.T) {
	e := newEngine(t)
	_, err := e.ledger.RecordCourse(context.Background(), studentSession, courseRequest("10", "0"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	bad := courseRequest("10", "0")
	bad.StudentID = ""
	_, err = e.ledger.RecordCourse(context.Background(), adminSession, bad)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestStudentSummaryGroupsByUmbrella(t *testing.T) {
	e := newEngine(t)
	e.db.addSlice("course-a", "student-1", "safety", jan, "6")
	e.db.addSlice("course-b", "student-1", "safety", feb, "6")
	e.db.addSlice("course-c", "student-1", "fire", feb, "3")
	_, err := e.ledger.Reserve(context.Background(), ReserveParams{CourseID: "course-a", Amount: decimal.NewFromInt(2)})
	require.NoError(t, err)

	summary, err := e.ledger.StudentSummary(context.Background(), studentSession, "student-1")
	require.NoError(t, err)
	require.Len(t, summary.Umbrellas, 2)
	safety := summary.Umbrellas["safety"]
	assert.Equal(t, 2, safety.Courses)
	assert.True(t, safety.Total.Equal(decimal.NewFromInt(12)))
	assert.True(t, safety.Consumed.Equal(decimal.NewFromInt(2)))
	assert.True(t, safety.Available.Equal(decimal.NewFromInt(10)))

	_, err = e.ledger.StudentSummary(context.Background(), models.Session{Actor: models.Actor{ID: "student-2", Role: models.RoleStudent}}, "student-1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestCourseBalance(t *testing.T) {
	e := newEngine(t)
	e.db.addSlice("course-a", "student-1", "safety", jan, "6")
	_, err := e.ledger.Reserve(context.Background(), ReserveParams{CourseID: "course-a", Amount: decimal.RequireFromString("1.5")})
	require.NoError(t, err)

	balance, err := e.ledger.Balance(context.Background(), pocSession, "course-a")
	require.NoError(t, err)
	assert.True(t, balance.CreditsAvailable.Equal(decimal.RequireFromString("4.5")))
	assert.True(t, balance.CreditsConsumed.Equal(decimal.RequireFromString("1.5")))
}

func TestStudentCoursesOldestFirst(t *testing.T) {
	e := newEngine(t)
	later := courseRequest("15", "0")
	later.CompletionDate = feb
	_, err := e.ledger.RecordCourse(context.Background(), adminSession, later)
	require.NoError(t, err)
	_, err = e.ledger.RecordCourse(context.Background(), adminSession, courseRequest("30", "0"))
	require.NoError(t, err)

	courses, err := e.ledger.StudentCourses(context.Background(), studentSession, "student-1")
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.True(t, courses[0].CompletionDate.Equal(jan))
	assert.True(t, courses[1].CompletionDate.Equal(feb))

	_, err = e.ledger.StudentCourses(context.Background(), studentSession, "student-2")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
