package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
	"github.com/noah-isme/bprnd-credit-api/internal/repository"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
)

type claimReader interface {
	GetByID(ctx context.Context, id string) (*models.CertificationClaim, error)
}

type certificateStore interface {
	Finalize(ctx context.Context, params repository.FinalizeParams) error
	GetByClaimID(ctx context.Context, claimID string) (*models.CertificateMapping, error)
	GetByID(ctx context.Context, id string) (*models.CertificateMapping, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.CertificateMapping, error)
}

type reservationLister interface {
	ClaimReservations(ctx context.Context, claimID string) ([]models.Reservation, error)
}

// CertificateMappingService converts an admin-approved claim into its permanent
// certificate mapping. The mapping, the approved status and the committed
// reservations are written in a single transaction.
type CertificateMappingService struct {
	claims  claimReader
	store   certificateStore
	ledger  reservationLister
	locks   keyLocker
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewCertificateMappingService constructs the writer.
func NewCertificateMappingService(claims claimReader, store certificateStore, ledger reservationLister, locks keyLocker, metrics *MetricsService, logger *zap.Logger) *CertificateMappingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateMappingService{
		claims:  claims,
		store:   store,
		ledger:  ledger,
		locks:   locks,
		metrics: metrics,
		logger:  logger,
		now:     utcNow,
	}
}

// Finalize produces the mapping of an admin-approved claim. On an already
// approved claim it returns the existing mapping without side effects.
func (s *CertificateMappingService) Finalize(ctx context.Context, session models.Session, claimID string) (*models.CertificateMapping, error) {
	if err := requireRole(session, models.ActionFinalize.RequiredRole()); err != nil {
		return nil, err
	}
	unlock, err := acquire(ctx, s.locks, scopeClaim, claimID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, lookupError(err, "claim")
	}
	switch claim.Status {
	case models.ClaimApproved:
		return s.existing(ctx, claimID)
	case models.ClaimAdminApproved:
		return s.finalize(ctx, session, claim)
	default:
		return nil, appErrors.Clonef(appErrors.ErrClaimNotReady, "claim %s is %s, finalization requires %s", claimID, claim.Status, models.ClaimAdminApproved)
	}
}

// finalize writes the mapping for a claim that is poc_approved (admin approval
// and finalization in one step) or admin_approved. The caller holds the claim lock.
func (s *CertificateMappingService) finalize(ctx context.Context, session models.Session, claim *models.CertificationClaim) (*models.CertificateMapping, error) {
	at := s.now()
	action := models.ActionFinalize
	var steps []repository.ClaimTransitionParams
	switch claim.Status {
	case models.ClaimPOCApproved:
		action = models.ActionAdminApprove
		steps = append(steps, repository.ClaimTransitionParams{
			ClaimID: claim.ID, From: models.ClaimPOCApproved, To: models.ClaimAdminApproved, Actor: session.Actor, At: at,
		})
		fallthrough
	case models.ClaimAdminApproved:
		steps = append(steps, repository.ClaimTransitionParams{
			ClaimID: claim.ID, From: models.ClaimAdminApproved, To: models.ClaimApproved, Actor: session.Actor, At: at,
		})
	default:
		return nil, appErrors.Clonef(appErrors.ErrClaimNotReady, "claim %s is %s", claim.ID, claim.Status)
	}

	if !claim.ReservedCredits().Equal(claim.RequiredCredits) {
		return nil, appErrors.Clonef(appErrors.ErrInternal, "claim %s reserves %s credits but requires %s",
			claim.ID, claim.ReservedCredits().String(), claim.RequiredCredits.String())
	}
	if err := ensureReservationsActive(ctx, s.ledger, claim); err != nil {
		return nil, err
	}

	mapping := &models.CertificateMapping{
		ClaimID:              claim.ID,
		StudentID:            claim.StudentID,
		UmbrellaKey:          claim.UmbrellaKey,
		Qualification:        claim.Qualification,
		TotalCreditsRequired: claim.RequiredCredits,
		CreatedBy:            session.Actor.ID,
		CreatedAt:            at,
		Entries:              make([]models.CertificateMappingEntry, 0, len(claim.Contributions)),
	}
	for _, contribution := range claim.Contributions {
		mapping.Entries = append(mapping.Entries, models.CertificateMappingEntry{
			CourseID:      contribution.CourseID,
			ReservationID: contribution.ReservationID,
			Credits:       contribution.CreditsReserved,
		})
	}

	err := s.store.Finalize(ctx, repository.FinalizeParams{Steps: steps, Mapping: mapping})
	s.metrics.RecordTransition(claim.Status, action, err)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clonef(appErrors.ErrInvalidTransition, "claim %s changed state concurrently", claim.ID)
		case errors.Is(err, repository.ErrReservationsNotActive):
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidTransition.Code, appErrors.ErrInvalidTransition.Status, "claim reservations were released")
		case isCanceled(err):
			return nil, cancellation(err)
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to finalize claim")
	}

	s.logger.Info("certificate mapping written", append(sessionFields(session),
		zap.String("claim_id", claim.ID),
		zap.String("mapping_id", mapping.ID),
		zap.String("student_id", claim.StudentID),
		zap.Int("entries", len(mapping.Entries)))...)
	return mapping, nil
}

func (s *CertificateMappingService) existing(ctx context.Context, claimID string) (*models.CertificateMapping, error) {
	mapping, err := s.store.GetByClaimID(ctx, claimID)
	if err != nil {
		return nil, lookupError(err, "certificate mapping")
	}
	return mapping, nil
}

// ByClaim returns the mapping produced by a claim.
func (s *CertificateMappingService) ByClaim(ctx context.Context, session models.Session, claimID string) (*models.CertificateMapping, error) {
	mapping, err := s.existing(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !canSeeStudent(session, mapping.StudentID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "certificate belongs to another student")
	}
	return mapping, nil
}

// ByID returns a mapping by its certificate id.
func (s *CertificateMappingService) ByID(ctx context.Context, session models.Session, id string) (*models.CertificateMapping, error) {
	mapping, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "certificate mapping")
	}
	if !canSeeStudent(session, mapping.StudentID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "certificate belongs to another student")
	}
	return mapping, nil
}

// ForStudent lists the certificates issued to a student, newest first.
func (s *CertificateMappingService) ForStudent(ctx context.Context, session models.Session, studentID string) ([]models.CertificateMapping, error) {
	if !canSeeStudent(session, studentID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own certificates")
	}
	mappings, err := s.store.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, lookupError(err, "certificate mappings")
	}
	return mappings, nil
}

// ensureReservationsActive refuses to approve a claim that a half-finished
// decline has already partly released.
func ensureReservationsActive(ctx context.Context, ledger reservationLister, claim *models.CertificationClaim) error {
	reservations, err := ledger.ClaimReservations(ctx, claim.ID)
	if err != nil {
		return err
	}
	active := make(map[string]bool, len(reservations))
	for _, res := range reservations {
		active[res.ID] = res.Status == models.ReservationActive
	}
	for _, contribution := range claim.Contributions {
		if !active[contribution.ReservationID] {
			return appErrors.Clonef(appErrors.ErrInvalidTransition,
				"claim %s has released reservations; only a decline can complete it", claim.ID)
		}
	}
	return nil
}
