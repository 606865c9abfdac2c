package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bprnd-credit-api/internal/dto"
	"github.com/noah-isme/bprnd-credit-api/internal/models"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
)

type requirementStoreStub struct {
	rows map[string]models.QualificationRequirement
}

func (s *requirementStoreStub) Get(ctx context.Context, umbrellaKey string, qualification models.Qualification) (*models.QualificationRequirement, error) {
	row, ok := s.rows[umbrellaKey+":"+string(qualification)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (s *requirementStoreStub) List(ctx context.Context) ([]models.QualificationRequirement, error) {
	list := make([]models.QualificationRequirement, 0, len(s.rows))
	for _, row := range s.rows {
		list = append(list, row)
	}
	return list, nil
}

func (s *requirementStoreStub) Upsert(ctx context.Context, req *models.QualificationRequirement) error {
	s.rows[req.UmbrellaKey+":"+string(req.Qualification)] = *req
	return nil
}

func TestRequirementResolvePrefersStoredRows(t *testing.T) {
	store := &requirementStoreStub{rows: map[string]models.QualificationRequirement{
		"safety:diploma": {UmbrellaKey: "safety", Qualification: models.QualificationDiploma, RequiredCredits: decimal.NewFromInt(25)},
	}}
	svc := NewRequirementService(store, map[string]decimal.Decimal{
		"safety:diploma":     decimal.NewFromInt(20),
		"safety:certificate": decimal.NewFromInt(10),
	}, nil, nil)

	credits, err := svc.Resolve(context.Background(), "Safety", models.QualificationDiploma)
	require.NoError(t, err)
	assert.True(t, credits.Equal(decimal.NewFromInt(25)))

	credits, err = svc.Resolve(context.Background(), "safety", models.QualificationCertificate)
	require.NoError(t, err)
	assert.True(t, credits.Equal(decimal.NewFromInt(10)))

	_, err = svc.Resolve(context.Background(), "safety", models.QualificationPGDiploma)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRequirementUpsert(t *testing.T) {
	store := &requirementStoreStub{rows: map[string]models.QualificationRequirement{}}
	svc := NewRequirementService(store, nil, nil, nil)
	req := dto.UpsertRequirementRequest{UmbrellaKey: "Fire", Qualification: models.QualificationPGDiploma, RequiredCredits: "45.5"}

	_, err := svc.Upsert(context.Background(), pocSession, req)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	record, err := svc.Upsert(context.Background(), adminSession, req)
	require.NoError(t, err)
	assert.Equal(t, "fire", record.UmbrellaKey)
	assert.Equal(t, "admin-1", record.UpdatedBy)

	credits, err := svc.Resolve(context.Background(), "fire", models.QualificationPGDiploma)
	require.NoError(t, err)
	assert.True(t, credits.Equal(decimal.RequireFromString("45.5")))

	req.RequiredCredits = "-1"
	_, err = svc.Upsert(context.Background(), adminSession, req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
