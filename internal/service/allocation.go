package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
)

// AllocationStep is one planned draw from a course.
type AllocationStep struct {
	CourseID string
	Amount   decimal.Decimal
}

// PlanAllocation draws required credits from slices oldest completion first,
// lower course id first on ties, taking only part of the last course when
// that is enough. It reserves nothing.
func PlanAllocation(slices []models.CreditSlice, required decimal.Decimal) ([]AllocationStep, error) {
	if !required.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "required credits must be positive")
	}
	ordered := make([]models.CreditSlice, len(slices))
	copy(ordered, slices)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CompletionDate.Equal(ordered[j].CompletionDate) {
			return ordered[i].CompletionDate.Before(ordered[j].CompletionDate)
		}
		return ordered[i].CourseID < ordered[j].CourseID
	})

	available := decimal.Zero
	for _, slice := range ordered {
		if slice.Available().IsPositive() {
			available = available.Add(slice.Available())
		}
	}
	if available.LessThan(required) {
		return nil, appErrors.Clonef(appErrors.ErrInsufficientCredits, "%s credits required, %s available", required.String(), available.String())
	}

	steps := make([]AllocationStep, 0, len(ordered))
	remaining := required
	for _, slice := range ordered {
		if !remaining.IsPositive() {
			break
		}
		free := slice.Available()
		if !free.IsPositive() {
			continue
		}
		take := decimal.Min(free, remaining)
		steps = append(steps, AllocationStep{CourseID: slice.CourseID, Amount: take})
		remaining = remaining.Sub(take)
	}
	return steps, nil
}
