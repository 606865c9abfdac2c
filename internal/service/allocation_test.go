package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
)

func slice(id string, completed int, total, consumed string) models.CreditSlice {
	return models.CreditSlice{
		CourseID:        id,
		CompletionDate:  jan.AddDate(0, 0, completed),
		TotalCredits:    decimal.RequireFromString(total),
		CreditsConsumed: decimal.RequireFromString(consumed),
	}
}

func TestPlanAllocationBreaksTiesByCourseID(t *testing.T) {
	plan, err := PlanAllocation([]models.CreditSlice{
		slice("course-b", 0, "4", "0"),
		slice("course-a", 0, "4", "0"),
		slice("course-c", 5, "4", "0"),
	}, decimal.NewFromInt(6))
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "course-a", plan[0].CourseID)
	assert.Equal(t, "course-b", plan[1].CourseID)
	assert.True(t, plan[1].Amount.Equal(decimal.NewFromInt(2)))
}

func TestPlanAllocationSkipsExhaustedCourses(t *testing.T) {
	plan, err := PlanAllocation([]models.CreditSlice{
		slice("course-a", 0, "5", "5"),
		slice("course-b", 1, "5", "1.25"),
		slice("course-c", 2, "5", "0"),
	}, decimal.RequireFromString("4.5"))
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "course-b", plan[0].CourseID)
	assert.True(t, plan[0].Amount.Equal(decimal.RequireFromString("3.75")))
	assert.True(t, plan[1].Amount.Equal(decimal.RequireFromString("0.75")))
}

func TestPlanAllocationInsufficient(t *testing.T) {
	_, err := PlanAllocation([]models.CreditSlice{slice("course-a", 0, "8", "0")}, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, appErrors.ErrInsufficientCredits)

	_, err = PlanAllocation(nil, decimal.Zero)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestPlanAllocationExactFit(t *testing.T) {
	plan, err := PlanAllocation([]models.CreditSlice{slice("course-a", 0, "10", "0")}, decimal.NewFromInt(10))
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.True(t, plan[0].Amount.Equal(decimal.NewFromInt(10)))
}
