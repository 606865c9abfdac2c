package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
)

type orphanFinder interface {
	ListOrphaned(ctx context.Context, before time.Time, limit int) ([]models.Reservation, error)
}

type singleReleaser interface {
	Release(ctx context.Context, reservationID, reason string) (bool, error)
}

// ReservationRecoveryService returns credits held by reservations whose claim
// was never persisted, e.g. after a crash mid-allocation.
type ReservationRecoveryService struct {
	finder    orphanFinder
	ledger    singleReleaser
	orphanAge time.Duration
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

// NewReservationRecoveryService constructs the sweeper.
func NewReservationRecoveryService(finder orphanFinder, ledger singleReleaser, orphanAge time.Duration, logger *zap.Logger) *ReservationRecoveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if orphanAge <= 0 {
		orphanAge = 15 * time.Minute
	}
	return &ReservationRecoveryService{
		finder:    finder,
		ledger:    ledger,
		orphanAge: orphanAge,
		batchSize: 100,
		logger:    logger,
		now:       utcNow,
	}
}

// Sweep releases one batch of orphaned reservations and reports how many it released.
func (s *ReservationRecoveryService) Sweep(ctx context.Context) (int, error) {
	orphans, err := s.finder.ListOrphaned(ctx, s.now().Add(-s.orphanAge), s.batchSize)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, res := range orphans {
		ok, err := s.ledger.Release(ctx, res.ID, "orphan_recovery")
		if err != nil {
			s.logger.Warn("orphan release failed", zap.String("reservation_id", res.ID), zap.String("course_id", res.CourseID), zap.Error(err))
			continue
		}
		if ok {
			released++
		}
	}
	if released > 0 {
		s.logger.Info("orphaned reservations released", zap.Int("released", released), zap.Int("found", len(orphans)))
	}
	return released, nil
}

// Run sweeps every interval until ctx is canceled.
func (s *ReservationRecoveryService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("reservation recovery sweep failed", zap.Error(err))
			}
		}
	}
}
