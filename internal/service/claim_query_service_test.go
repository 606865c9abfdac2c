package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bprnd-credit-api/internal/dto"
	"github.com/noah-isme/bprnd-credit-api/internal/models"
	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
)

func seedClaims(t *testing.T, e *engine) (pending, pocApproved, declined *models.CertificationClaim) {
	t.Helper()
	e.db.addSlice("course-a", "student-1", "safety", jan, "40")
	pending = e.submit(t)
	pocApproved = e.submit(t)
	declined = e.submit(t)
	_, err := e.approvals.PocApprove(context.Background(), pocSession, pocApproved.ID)
	require.NoError(t, err)
	_, err = e.approvals.PocDecline(context.Background(), pocSession, declined.ID, "duplicate")
	require.NoError(t, err)
	return pending, pocApproved, declined
}

func TestClaimQueryPendingDependsOnRole(t *testing.T) {
	e := newEngine(t)
	pending, pocApproved, _ := seedClaims(t, e)

	views, page, err := e.queries.List(context.Background(), pocSession, dto.ClaimQuery{View: "pending"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, pending.ID, views[0].ID)
	assert.Equal(t, 50, page.Limit)

	views, _, err = e.queries.List(context.Background(), adminSession, dto.ClaimQuery{View: "pending"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, pocApproved.ID, views[0].ID)
	assert.True(t, views[0].Legacy.POCApproved)
	assert.True(t, views[0].Legacy.BPRNDPOCApproved)
	assert.False(t, views[0].Legacy.AdminApproved)

	views, _, err = e.queries.List(context.Background(), adminSession, dto.ClaimQuery{View: "pending", Role: models.RolePOC})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, pending.ID, views[0].ID)
}

func TestClaimQueryDeclinedByDecliner(t *testing.T) {
	e := newEngine(t)
	_, _, declined := seedClaims(t, e)

	views, _, err := e.queries.List(context.Background(), pocSession, dto.ClaimQuery{View: "declined", DeclinedBy: "poc-1"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, declined.ID, views[0].ID)

	views, _, err = e.queries.List(context.Background(), pocSession, dto.ClaimQuery{View: "declined", DeclinedBy: "poc-2"})
	require.NoError(t, err)
	assert.Empty(t, views)

	_, _, err = e.queries.List(context.Background(), pocSession, dto.ClaimQuery{View: "archived"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestClaimQueryStudentsSeeOnlyOwnClaims(t *testing.T) {
	e := newEngine(t)
	pending, _, _ := seedClaims(t, e)
	other := models.Session{Actor: models.Actor{ID: "student-2", Role: models.RoleStudent}}

	views, _, err := e.queries.List(context.Background(), other, dto.ClaimQuery{View: "all", StudentID: "student-1"})
	require.NoError(t, err)
	assert.Empty(t, views)

	_, err = e.queries.Contributions(context.Background(), other, pending.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	contributions, err := e.queries.Contributions(context.Background(), studentSession, pending.ID)
	require.NoError(t, err)
	require.Len(t, contributions, 1)
	assert.Equal(t, "course-a", contributions[0].CourseID)
}

func TestClaimQueryAnalytics(t *testing.T) {
	e := newEngine(t)
	seedClaims(t, e)

	analytics, err := e.queries.Analytics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, analytics.PendingPOC)
	assert.Equal(t, 1, analytics.PendingAdmin)
	assert.Equal(t, 1, analytics.Declined)
	assert.Equal(t, 3, analytics.ByUmbrella["safety"])
}

type memoryCache struct {
	values map[string]interface{}
	sets   int
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	value, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*models.ClaimAnalytics)) = *(value.(*models.ClaimAnalytics))
	return nil
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.values[key] = value
	m.sets++
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestClaimQueryAnalyticsServedFromCache(t *testing.T) {
	e := newEngine(t)
	seedClaims(t, e)
	store := &memoryCache{values: map[string]interface{}{}}
	metrics := NewMetricsService()
	queries := NewClaimQueryService(e.db.claimStore(), NewSnapshotCache(store, metrics, time.Minute, nil, true), nil)

	first, err := queries.Analytics(context.Background())
	require.NoError(t, err)
	e.submit(t)
	second, err := queries.Analytics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, store.sets)
	assert.Equal(t, first.PendingPOC, second.PendingPOC)
	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(1), snapshot.CacheMisses)
}

func TestClaimChangeEvictsAnalytics(t *testing.T) {
	e := newEngine(t)
	seedClaims(t, e)
	store := &memoryCache{values: map[string]interface{}{}}
	queries := NewClaimQueryService(e.db.claimStore(), NewSnapshotCache(store, NewMetricsService(), time.Minute, nil, true), nil)
	e.allocator.OnChange(queries.ForgetAnalytics)

	first, err := queries.Analytics(context.Background())
	require.NoError(t, err)
	e.submit(t)
	second, err := queries.Analytics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, store.sets)
	assert.Equal(t, first.PendingPOC+1, second.PendingPOC)
}
