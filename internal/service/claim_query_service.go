package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/bprnd-credit-api/internal/dto"
	"github.com/noah-isme/bprnd-credit-api/internal/models"
	"github.com/noah-isme/bprnd-credit-api/pkg/cache"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
)

var analyticsKey = cache.Key("analytics", "claims")

type claimQueryStore interface {
	GetByID(ctx context.Context, id string) (*models.CertificationClaim, error)
	List(ctx context.Context, filter models.ClaimFilter) ([]models.CertificationClaim, error)
	Events(ctx context.Context, claimID string) ([]models.ClaimEvent, error)
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	CountByUmbrella(ctx context.Context) ([]models.UmbrellaCount, error)
}

// ClaimQueryService is the read side consumed by dashboards: role queues,
// declined lists, contribution breakdowns and cached analytics.
type ClaimQueryService struct {
	claims claimQueryStore
	cache  *SnapshotCache
	logger *zap.Logger
}

// NewClaimQueryService constructs the query facade.
func NewClaimQueryService(claims claimQueryStore, snapshots *SnapshotCache, logger *zap.Logger) *ClaimQueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimQueryService{claims: claims, cache: snapshots, logger: logger}
}

// List resolves the requested view into a filter. Pending and declined views
// depend on the viewing role; students only ever see their own claims.
func (s *ClaimQueryService) List(ctx context.Context, session models.Session, query dto.ClaimQuery) ([]dto.ClaimView, *models.Pagination, error) {
	role := query.Role
	if role == "" || session.Actor.Role != models.RoleAdmin {
		role = session.Actor.Role
	}
	filter := models.ClaimFilter{
		StudentID:   strings.TrimSpace(query.StudentID),
		UmbrellaKey: normalizeUmbrella(query.Umbrella),
		Limit:       query.Limit,
		Offset:      query.Offset,
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if session.Actor.Role == models.RoleStudent {
		filter.StudentID = session.Actor.ID
	}

	switch strings.ToLower(query.View) {
	case "", "pending":
		switch role {
		case models.RolePOC:
			filter.Status = []models.ClaimStatus{models.ClaimPending}
		case models.RoleAdmin:
			filter.Status = []models.ClaimStatus{models.ClaimPOCApproved}
		default:
			filter.Status = []models.ClaimStatus{models.ClaimPending, models.ClaimPOCApproved}
		}
	case "declined":
		switch role {
		case models.RolePOC:
			filter.Status = []models.ClaimStatus{models.ClaimPOCDeclined}
			filter.POCActedBy = query.DeclinedBy
		case models.RoleAdmin:
			filter.Status = []models.ClaimStatus{models.ClaimAdminDeclined}
			filter.AdminActedBy = query.DeclinedBy
		default:
			filter.Status = []models.ClaimStatus{models.ClaimPOCDeclined, models.ClaimAdminDeclined}
		}
	case "approved":
		filter.Status = []models.ClaimStatus{models.ClaimApproved}
	case "all":
	default:
		return nil, nil, appErrors.Clonef(appErrors.ErrValidation, "unknown view %q", query.View)
	}

	claims, err := s.claims.List(ctx, filter)
	if err != nil {
		return nil, nil, lookupError(err, "claims")
	}
	views := make([]dto.ClaimView, 0, len(claims))
	for i := range claims {
		views = append(views, dto.NewClaimView(&claims[i]))
	}
	return views, &models.Pagination{Limit: filter.Limit, Offset: filter.Offset, Count: len(views)}, nil
}

// Get returns a claim with its contributions.
func (s *ClaimQueryService) Get(ctx context.Context, session models.Session, id string) (*models.CertificationClaim, error) {
	claim, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "claim")
	}
	if !canSeeStudent(session, claim.StudentID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "claim belongs to another student")
	}
	return claim, nil
}

// Contributions returns the per-course breakdown of a claim.
func (s *ClaimQueryService) Contributions(ctx context.Context, session models.Session, id string) ([]models.CourseContribution, error) {
	claim, err := s.Get(ctx, session, id)
	if err != nil {
		return nil, err
	}
	return claim.Contributions, nil
}

// Events returns the transition history of a claim.
func (s *ClaimQueryService) Events(ctx context.Context, session models.Session, id string) ([]models.ClaimEvent, error) {
	if _, err := s.Get(ctx, session, id); err != nil {
		return nil, err
	}
	events, err := s.claims.Events(ctx, id)
	if err != nil {
		return nil, lookupError(err, "claim events")
	}
	return events, nil
}

// Analytics returns claim counts from the snapshot cache. Concurrent misses
// share one database round trip.
func (s *ClaimQueryService) Analytics(ctx context.Context) (*models.ClaimAnalytics, error) {
	var cached models.ClaimAnalytics
	value, err := s.cache.ReadThrough(ctx, analyticsKey, &cached, func(ctx context.Context) (interface{}, error) {
		return s.computeAnalytics(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.(*models.ClaimAnalytics), nil
}

// ForgetAnalytics evicts the cached counts; it is registered as a claim change hook.
func (s *ClaimQueryService) ForgetAnalytics(ctx context.Context, claimID string) {
	s.cache.Evict(ctx, analyticsKey)
}

func (s *ClaimQueryService) computeAnalytics(ctx context.Context) (*models.ClaimAnalytics, error) {
	var (
		byStatus   []models.StatusCount
		byUmbrella []models.UmbrellaCount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.claims.CountByStatus(gctx)
		if err != nil {
			return fmt.Errorf("count by status: %w", err)
		}
		byStatus = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.claims.CountByUmbrella(gctx)
		if err != nil {
			return fmt.Errorf("count by umbrella: %w", err)
		}
		byUmbrella = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, lookupError(err, "claim analytics")
	}

	analytics := &models.ClaimAnalytics{
		ByStatus:    make(map[models.ClaimStatus]int, len(byStatus)),
		ByUmbrella:  make(map[string]int, len(byUmbrella)),
		GeneratedAt: utcNow(),
	}
	for _, row := range byStatus {
		analytics.ByStatus[row.Status] = row.Total
		switch {
		case row.Status == models.ClaimPending:
			analytics.PendingPOC += row.Total
		case row.Status == models.ClaimPOCApproved:
			analytics.PendingAdmin += row.Total
		case row.Status == models.ClaimApproved:
			analytics.Approved += row.Total
		case row.Status.Declined():
			analytics.Declined += row.Total
		}
	}
	for _, row := range byUmbrella {
		analytics.ByUmbrella[row.UmbrellaKey] = row.Total
	}
	return analytics, nil
}
