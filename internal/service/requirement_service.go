package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/bprnd-credit-api/internal/dto"
	"github.com/noah-isme/bprnd-credit-api/internal/models"
	"github.com/noah-isme/bprnd-credit-api/pkg/config"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
)

type requirementStore interface {
	Get(ctx context.Context, umbrellaKey string, qualification models.Qualification) (*models.QualificationRequirement, error)
	List(ctx context.Context) ([]models.QualificationRequirement, error)
	Upsert(ctx context.Context, req *models.QualificationRequirement) error
}

// RequirementService resolves how many credits a qualification needs under an
// umbrella. Stored rows win over the configured fallback thresholds.
type RequirementService struct {
	store     requirementStore
	fallback  map[string]decimal.Decimal
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRequirementService constructs the registry.
func NewRequirementService(store requirementStore, fallback map[string]decimal.Decimal, validate *validator.Validate, logger *zap.Logger) *RequirementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if fallback == nil {
		fallback = map[string]decimal.Decimal{}
	}
	return &RequirementService{store: store, fallback: fallback, validator: validate, logger: logger}
}

// Resolve returns the required credits for the pair.
func (s *RequirementService) Resolve(ctx context.Context, umbrellaKey string, qualification models.Qualification) (decimal.Decimal, error) {
	if !qualification.Valid() {
		return decimal.Zero, appErrors.Clonef(appErrors.ErrValidation, "unknown qualification %q", qualification)
	}
	umbrellaKey = normalizeUmbrella(umbrellaKey)
	req, err := s.store.Get(ctx, umbrellaKey, qualification)
	switch {
	case err == nil:
		return req.RequiredCredits, nil
	case !errors.Is(err, sql.ErrNoRows):
		return decimal.Zero, lookupError(err, "qualification requirement")
	}
	if credits, ok := s.fallback[config.RequirementKey(umbrellaKey, string(qualification))]; ok {
		return credits, nil
	}
	return decimal.Zero, appErrors.Clonef(appErrors.ErrValidation, "no credit requirement configured for %s/%s", umbrellaKey, qualification)
}

// List returns stored requirements followed by fallback-only entries.
func (s *RequirementService) List(ctx context.Context) ([]models.QualificationRequirement, error) {
	stored, err := s.store.List(ctx)
	if err != nil {
		return nil, lookupError(err, "qualification requirements")
	}
	seen := make(map[string]struct{}, len(stored))
	for _, req := range stored {
		seen[config.RequirementKey(req.UmbrellaKey, string(req.Qualification))] = struct{}{}
	}
	for key, credits := range s.fallback {
		if _, ok := seen[key]; ok {
			continue
		}
		umbrella, qualification := splitRequirementKey(key)
		stored = append(stored, models.QualificationRequirement{
			UmbrellaKey:     umbrella,
			Qualification:   models.Qualification(qualification),
			RequiredCredits: credits,
			UpdatedBy:       "config",
		})
	}
	return stored, nil
}

// Upsert sets a requirement. Existing claims keep the credits they were submitted with.
func (s *RequirementService) Upsert(ctx context.Context, session models.Session, req dto.UpsertRequirementRequest) (*models.QualificationRequirement, error) {
	if err := requireRole(session, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid requirement")
	}
	credits, err := decimal.NewFromString(req.RequiredCredits)
	if err != nil || !credits.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "required credits must be a positive number")
	}
	record := &models.QualificationRequirement{
		UmbrellaKey:     normalizeUmbrella(req.UmbrellaKey),
		Qualification:   req.Qualification,
		RequiredCredits: credits,
		UpdatedBy:       session.Actor.ID,
	}
	if err := s.store.Upsert(ctx, record); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to store requirement")
	}
	s.logger.Info("qualification requirement updated", append(sessionFields(session),
		zap.String("umbrella", record.UmbrellaKey),
		zap.String("qualification", string(record.Qualification)),
		zap.String("required_credits", credits.String()))...)
	return record, nil
}

func splitRequirementKey(key string) (string, string) {
	umbrella, qualification, _ := strings.Cut(key, ":")
	return umbrella, qualification
}
