package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	appErrors "github.com/noah-isme/bprnd-credit-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SnapshotCache serves read-mostly aggregates (claim analytics) through a
// read-through cache. Concurrent misses for one key share a single load, and
// cache failures degrade to loading from the source.
type SnapshotCache struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
	loads   singleflight.Group
	// generation advances on every Evict. A load stores its result only when
	// no eviction happened while it ran; mu orders the check against Evict.
	mu         sync.Mutex
	generation uint64
}

// NewSnapshotCache constructs a snapshot cache. A nil repo or enabled=false
// turns every lookup into a direct load.
func NewSnapshotCache(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *SnapshotCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotCache{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

func (s *SnapshotCache) active() bool {
	return s != nil && s.enabled && s.repo != nil
}

// ReadThrough decodes the snapshot under key into dest. On a miss it calls
// load, stores the result and returns it; dest is left untouched in that case.
func (s *SnapshotCache) ReadThrough(ctx context.Context, key string, dest interface{}, load func(context.Context) (interface{}, error)) (interface{}, error) {
	if !s.active() {
		return load(ctx)
	}

	started := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(started))
	if err == nil {
		return dest, nil
	}
	if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("snapshot read failed", zap.String("key", key), zap.Error(err))
	}

	value, err, shared := s.loads.Do(key, func() (interface{}, error) {
		startGen := s.currentGeneration()
		fresh, err := load(ctx)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, fresh, startGen)
		return fresh, nil
	})
	if shared {
		s.logger.Debug("snapshot load shared", zap.String("key", key))
	}
	return value, err
}

// Evict drops snapshots so the next read reloads them.
func (s *SnapshotCache) Evict(ctx context.Context, keys ...string) {
	if !s.active() || len(keys) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	for _, key := range keys {
		s.loads.Forget(key)
	}
	if err := s.repo.Delete(ctx, keys...); err != nil {
		s.logger.Warn("snapshot evict failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (s *SnapshotCache) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *SnapshotCache) store(ctx context.Context, key string, value interface{}, loadedAt uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != loadedAt {
		s.logger.Debug("snapshot evicted during load, not stored", zap.String("key", key))
		return
	}
	if err := s.repo.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("snapshot write failed", zap.String("key", key), zap.Error(err))
	}
}
