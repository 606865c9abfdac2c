package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/bprnd-credit-api/internal/dto"
	"github.com/noah-isme/bprnd-credit-api/internal/models"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
)

type requirementResolver interface {
	Resolve(ctx context.Context, umbrellaKey string, qualification models.Qualification) (decimal.Decimal, error)
}

type creditReserver interface {
	SlicesForUmbrella(ctx context.Context, studentID, umbrellaKey string) ([]models.CreditSlice, error)
	Reserve(ctx context.Context, params ReserveParams) (string, error)
	Release(ctx context.Context, reservationID, reason string) (bool, error)
}

type claimCreator interface {
	Create(ctx context.Context, claim *models.CertificationClaim) error
}

// ClaimAllocatorService turns a claim request into a pending claim whose
// contributions are each backed by an active reservation.
type ClaimAllocatorService struct {
	requirements requirementResolver
	ledger       creditReserver
	claims       claimCreator
	locks        keyLocker
	validator    *validator.Validate
	metrics      *MetricsService
	logger       *zap.Logger
	changed      []ClaimChangeHook
}

// NewClaimAllocatorService constructs the allocator.
func NewClaimAllocatorService(requirements requirementResolver, ledger creditReserver, claims claimCreator, locks keyLocker, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *ClaimAllocatorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ClaimAllocatorService{
		requirements: requirements,
		ledger:       ledger,
		claims:       claims,
		locks:        locks,
		validator:    validate,
		metrics:      metrics,
		logger:       logger,
	}
}

// Submit reserves exactly the required credits FIFO across the student's courses
// under the umbrella and persists a pending claim. Either every reservation is
// made and the claim exists, or nothing is left behind.
func (s *ClaimAllocatorService) Submit(ctx context.Context, session models.Session, req dto.SubmitClaimRequest) (*models.CertificationClaim, error) {
	claim, err := s.submit(ctx, session, req)
	s.metrics.RecordAllocation(err)
	return claim, err
}

func (s *ClaimAllocatorService) submit(ctx context.Context, session models.Session, req dto.SubmitClaimRequest) (*models.CertificationClaim, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid claim request")
	}
	studentID := strings.TrimSpace(req.StudentID)
	umbrella := normalizeUmbrella(req.UmbrellaKey)
	switch session.Actor.Role {
	case models.RoleStudent:
		if session.Actor.ID != studentID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only claim for themselves")
		}
	case models.RolePOC, models.RoleAdmin:
	default:
		return nil, appErrors.Clonef(appErrors.ErrForbidden, "role %q may not submit claims", session.Actor.Role)
	}

	required, err := s.requirements.Resolve(ctx, umbrella, req.Qualification)
	if err != nil {
		return nil, err
	}

	unlock, err := acquire(ctx, s.locks, scopeStudent, studentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	slices, err := s.ledger.SlicesForUmbrella(ctx, studentID, umbrella)
	if err != nil {
		return nil, err
	}
	plan, err := PlanAllocation(slices, required)
	if err != nil {
		return nil, err
	}

	claim := &models.CertificationClaim{
		ID:              uuid.NewString(),
		StudentID:       studentID,
		UmbrellaKey:     umbrella,
		Qualification:   req.Qualification,
		RequiredCredits: required,
		Status:          models.ClaimPending,
		DocumentRef:     req.DocumentRef,
		CreatedBy:       session.Actor.ID,
		Contributions:   make([]models.CourseContribution, 0, len(plan)),
	}
	logFields := append(sessionFields(session),
		zap.String("claim_id", claim.ID),
		zap.String("student_id", studentID),
		zap.String("umbrella", umbrella))

	for _, step := range plan {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.rollback(ctx, claim, logFields)
			return nil, cancellation(ctxErr)
		}
		reservationID, err := s.ledger.Reserve(ctx, ReserveParams{
			CourseID:  step.CourseID,
			ClaimID:   claim.ID,
			StudentID: studentID,
			Amount:    step.Amount,
		})
		if err != nil {
			s.rollback(ctx, claim, logFields)
			return nil, err
		}
		claim.Contributions = append(claim.Contributions, models.CourseContribution{
			ClaimID:         claim.ID,
			Position:        len(claim.Contributions),
			CourseID:        step.CourseID,
			ReservationID:   reservationID,
			CreditsReserved: step.Amount,
		})
	}

	if !claim.ReservedCredits().Equal(required) {
		s.rollback(ctx, claim, logFields)
		return nil, appErrors.Clonef(appErrors.ErrInternal, "allocation reserved %s of %s credits", claim.ReservedCredits().String(), required.String())
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.rollback(ctx, claim, logFields)
		return nil, cancellation(ctxErr)
	}

	if err := s.claims.Create(ctx, claim); err != nil {
		s.rollback(ctx, claim, logFields)
		if isCanceled(err) {
			return nil, cancellation(err)
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to persist claim")
	}

	s.logger.Info("claim allocated", append(logFields,
		zap.String("required_credits", required.String()),
		zap.Int("contributions", len(claim.Contributions)))...)
	notifyChange(ctx, s.changed, claim.ID)
	return claim, nil
}

// OnChange registers hooks run after a claim is persisted.
func (s *ClaimAllocatorService) OnChange(hooks ...ClaimChangeHook) {
	s.changed = append(s.changed, hooks...)
}

// rollback releases every reservation made so far. It ignores cancellation of
// the request so an aborted sweep still returns its credits; anything it
// cannot release is left for the orphan recovery sweep.
func (s *ClaimAllocatorService) rollback(ctx context.Context, claim *models.CertificationClaim, fields []zap.Field) {
	cleanupCtx := context.WithoutCancel(ctx)
	var failed []error
	for i := len(claim.Contributions) - 1; i >= 0; i-- {
		contribution := claim.Contributions[i]
		if _, err := s.ledger.Release(cleanupCtx, contribution.ReservationID, "allocation_rollback"); err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		s.logger.Error("allocation rollback incomplete", append(fields, zap.Error(errors.Join(failed...)))...)
		return
	}
	if len(claim.Contributions) > 0 {
		s.logger.Warn("allocation rolled back", append(fields, zap.Int("released", len(claim.Contributions)))...)
	}
}
