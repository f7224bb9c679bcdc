package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
	appErrors "github.com/noah-isme/etapa-productiva-api/pkg/errors"
)

// CacheRepository stores JSON payloads by key.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CacheService is the read-through cache for monthly projection rows. Rows are keyed by
// (instructor, year, month); every projection write forgets the rows it touched. A nil or
// disabled service reports misses and ignores writes.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs the projection cache.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled reports whether rows are cached at all.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

func projectionKey(target ProjectionTarget) string {
	return fmt.Sprintf("projections:%s:%04d:%02d", target.InstructorID, target.Year, target.Month)
}

// Projection returns the cached row of target. Redis errors count as misses.
func (s *CacheService) Projection(ctx context.Context, target ProjectionTarget) (*models.InstructorProjection, bool) {
	if !s.Enabled() {
		return nil, false
	}
	var row models.InstructorProjection
	start := time.Now()
	err := s.repo.Get(ctx, projectionKey(target), &row)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("projection cache read failed", zap.String("instructor_id", target.InstructorID), zap.Error(err))
		}
		return nil, false
	}
	return &row, true
}

// StoreProjection caches row under its own (instructor, year, month).
func (s *CacheService) StoreProjection(ctx context.Context, row *models.InstructorProjection) {
	if !s.Enabled() || row == nil {
		return
	}
	target := ProjectionTarget{InstructorID: row.InstructorID, Year: row.Year, Month: row.Month}
	start := time.Now()
	err := s.repo.Set(ctx, projectionKey(target), row, s.ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("projection cache write failed", zap.String("instructor_id", row.InstructorID), zap.Error(err))
	}
}

// Forget drops the cached rows of targets in one round trip.
func (s *CacheService) Forget(ctx context.Context, targets ...ProjectionTarget) error {
	if !s.Enabled() || len(targets) == 0 {
		return nil
	}
	keys := make([]string, len(targets))
	for i, target := range targets {
		keys[i] = projectionKey(target)
	}
	if err := s.repo.Delete(ctx, keys...); err != nil {
		s.logger.Warn("projection cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
		return err
	}
	return nil
}
