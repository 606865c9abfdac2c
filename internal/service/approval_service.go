package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
	"github.com/noah-isme/bprnd-credit-api/internal/repository"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
)

type claimStateStore interface {
	GetByID(ctx context.Context, id string) (*models.CertificationClaim, error)
	Transition(ctx context.Context, params repository.ClaimTransitionParams) error
}

type reservationReleaser interface {
	ClaimReservations(ctx context.Context, claimID string) ([]models.Reservation, error)
	Release(ctx context.Context, reservationID, reason string) (bool, error)
}

type claimFinalizer interface {
	finalize(ctx context.Context, session models.Session, claim *models.CertificationClaim) (*models.CertificateMapping, error)
}

// ApprovalService drives the two-stage POC then admin decision on a claim.
// Transitions on one claim are serialized by the claim lock and the guarded
// status update, so racing callers see exactly one winner.
type ApprovalService struct {
	claims    claimStateStore
	ledger    reservationReleaser
	finalizer claimFinalizer
	locks     keyLocker
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
	changed   []ClaimChangeHook
}

// NewApprovalService constructs the state machine service.
func NewApprovalService(claims claimStateStore, ledger reservationReleaser, finalizer claimFinalizer, locks keyLocker, metrics *MetricsService, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		claims:    claims,
		ledger:    ledger,
		finalizer: finalizer,
		locks:     locks,
		metrics:   metrics,
		logger:    logger,
		now:       utcNow,
	}
}

// OnChange registers hooks run after a claim changes state.
func (s *ApprovalService) OnChange(hooks ...ClaimChangeHook) {
	s.changed = append(s.changed, hooks...)
}

// PocApprove moves a pending claim to poc_approved.
func (s *ApprovalService) PocApprove(ctx context.Context, session models.Session, claimID string) (*models.CertificationClaim, error) {
	claim, _, err := s.apply(ctx, session, claimID, models.ActionPOCApprove, "")
	return claim, err
}

// PocDecline releases a pending claim's reservations and marks it poc_declined.
func (s *ApprovalService) PocDecline(ctx context.Context, session models.Session, claimID, reason string) (*models.CertificationClaim, error) {
	claim, _, err := s.apply(ctx, session, claimID, models.ActionPOCDecline, reason)
	return claim, err
}

// AdminApprove records the admin decision and finalizes the claim in the same
// transaction, returning the approved claim and its certificate mapping.
func (s *ApprovalService) AdminApprove(ctx context.Context, session models.Session, claimID string) (*models.CertificationClaim, *models.CertificateMapping, error) {
	return s.apply(ctx, session, claimID, models.ActionAdminApprove, "")
}

// AdminDecline releases a poc_approved claim's reservations and marks it admin_declined.
func (s *ApprovalService) AdminDecline(ctx context.Context, session models.Session, claimID, reason string) (*models.CertificationClaim, error) {
	claim, _, err := s.apply(ctx, session, claimID, models.ActionAdminDecline, reason)
	return claim, err
}

func (s *ApprovalService) apply(ctx context.Context, session models.Session, claimID string, action models.ClaimAction, reason string) (*models.CertificationClaim, *models.CertificateMapping, error) {
	if err := requireRole(session, action.RequiredRole()); err != nil {
		return nil, nil, err
	}
	unlock, err := acquire(ctx, s.locks, scopeClaim, claimID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, nil, lookupError(err, "claim")
	}
	next, ok := claim.Status.Next(action)
	if !ok {
		s.metrics.RecordTransition(claim.Status, action, appErrors.ErrInvalidTransition)
		return nil, nil, appErrors.Clonef(appErrors.ErrInvalidTransition, "claim %s is %s; %s is not allowed", claimID, claim.Status, action)
	}
	fields := append(sessionFields(session),
		zap.String("claim_id", claimID),
		zap.String("from", string(claim.Status)),
		zap.String("to", string(next)))

	if next.Declined() {
		if err := s.releaseAll(ctx, claim, string(action)); err != nil {
			s.logger.Warn("decline release incomplete, claim left unchanged", append(fields, zap.Error(err))...)
			return nil, nil, err
		}
	} else {
		if !claim.ReservedCredits().Equal(claim.RequiredCredits) {
			return nil, nil, appErrors.Clonef(appErrors.ErrInternal, "claim %s reserves %s credits but requires %s",
				claimID, claim.ReservedCredits().String(), claim.RequiredCredits.String())
		}
		if err := ensureReservationsActive(ctx, s.ledger, claim); err != nil {
			return nil, nil, err
		}
	}

	if action == models.ActionAdminApprove {
		mapping, err := s.finalizer.finalize(ctx, session, claim)
		if err != nil {
			return nil, nil, err
		}
		updated, err := s.reload(ctx, claimID)
		if err != nil {
			return nil, nil, err
		}
		s.logger.Info("claim approved", append(fields, zap.String("mapping_id", mapping.ID))...)
		notifyChange(ctx, s.changed, claimID)
		return updated, mapping, nil
	}

	var reasonPtr *string
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		reasonPtr = &trimmed
	}
	err = s.claims.Transition(ctx, repository.ClaimTransitionParams{
		ClaimID: claimID,
		From:    claim.Status,
		To:      next,
		Actor:   session.Actor,
		Reason:  reasonPtr,
		At:      s.now(),
	})
	s.metrics.RecordTransition(claim.Status, action, err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clonef(appErrors.ErrInvalidTransition, "claim %s changed state concurrently", claimID)
		}
		if isCanceled(err) {
			return nil, nil, cancellation(err)
		}
		return nil, nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to update claim")
	}
	s.logger.Info("claim transitioned", fields...)
	notifyChange(ctx, s.changed, claimID)

	updated, err := s.reload(ctx, claimID)
	if err != nil {
		return nil, nil, err
	}
	return updated, nil, nil
}

// releaseAll returns every active reservation of the claim. Each release is
// idempotent, so a decline interrupted here can simply be issued again.
func (s *ApprovalService) releaseAll(ctx context.Context, claim *models.CertificationClaim, reason string) error {
	reservations, err := s.ledger.ClaimReservations(ctx, claim.ID)
	if err != nil {
		return err
	}
	for _, res := range reservations {
		if res.Status != models.ReservationActive {
			continue
		}
		if _, err := s.ledger.Release(ctx, res.ID, reason); err != nil {
			return err
		}
	}
	return nil
}

func (s *ApprovalService) reload(ctx context.Context, claimID string) (*models.CertificationClaim, error) {
	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, lookupError(err, "claim")
	}
	return claim, nil
}

// ClaimChangeHook observes a committed claim state change.
type ClaimChangeHook func(ctx context.Context, claimID string)

func notifyChange(ctx context.Context, hooks []ClaimChangeHook, claimID string) {
	for _, hook := range hooks {
		hook(ctx, claimID)
	}
}
