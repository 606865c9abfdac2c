package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
)

func TestSnapshotNotStoredWhenEvictedDuringLoad(t *testing.T) {
	store := &memoryCache{values: map[string]interface{}{}}
	snapshots := NewSnapshotCache(store, nil, time.Minute, nil, true)
	ctx := context.Background()

	loads := 0
	load := func(ctx context.Context) (interface{}, error) {
		loads++
		if loads == 1 {
			// a claim changed while the counts were being computed
			snapshots.Evict(ctx, analyticsKey)
			return &models.ClaimAnalytics{PendingPOC: 1}, nil
		}
		return &models.ClaimAnalytics{PendingPOC: 2}, nil
	}

	var dest models.ClaimAnalytics
	first, err := snapshots.ReadThrough(ctx, analyticsKey, &dest, load)
	require.NoError(t, err)
	assert.Equal(t, 1, first.(*models.ClaimAnalytics).PendingPOC)
	assert.Equal(t, 0, store.sets)

	second, err := snapshots.ReadThrough(ctx, analyticsKey, &dest, load)
	require.NoError(t, err)
	assert.Equal(t, 2, second.(*models.ClaimAnalytics).PendingPOC)
	assert.Equal(t, 1, store.sets)
	assert.Equal(t, 2, loads)
}

func TestSnapshotDisabledLoadsEveryTime(t *testing.T) {
	snapshots := NewSnapshotCache(nil, nil, time.Minute, nil, true)
	loads := 0
	for i := 0; i < 2; i++ {
		_, err := snapshots.ReadThrough(context.Background(), analyticsKey, &models.ClaimAnalytics{}, func(context.Context) (interface{}, error) {
			loads++
			return &models.ClaimAnalytics{}, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, loads)
}
