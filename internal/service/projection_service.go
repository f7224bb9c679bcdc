package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
	"github.com/noah-isme/etapa-productiva-api/internal/repository"
	appErrors "github.com/noah-isme/etapa-productiva-api/pkg/errors"
	"github.com/noah-isme/etapa-productiva-api/pkg/lock"
)

type projectionStore interface {
	Get(ctx context.Context, instructorID string, year, month int) (*models.InstructorProjection, error)
	Ensure(ctx context.Context, instructorID string, year, month int, available float64) (*models.InstructorProjection, error)
	ListByInstructor(ctx context.Context, instructorID string, year int) ([]models.InstructorProjection, error)
	Replace(ctx context.Context, projection *models.InstructorProjection, expectedVersion int64) (*models.InstructorProjection, error)
	ActiveInstructors(ctx context.Context, year, month int) ([]string, error)
}

type programmedSource interface {
	ProgrammedForMonth(ctx context.Context, instructorID string, year, month int) (float64, error)
}

type approvedSource interface {
	ApprovedForMonth(ctx context.Context, instructorID string, year, month int) (repository.MonthTotals, error)
}

type instructorReader interface {
	GetInstructor(ctx context.Context, id string) (*models.Instructor, error)
}

// ProjectionTarget identifies one projection row.
type ProjectionTarget struct {
	InstructorID string
	Year         int
	Month        int
}

// TargetFor returns the projection row a date accrues to.
func TargetFor(instructorID string, at time.Time) ProjectionTarget {
	return ProjectionTarget{InstructorID: instructorID, Year: at.Year(), Month: int(at.Month())}
}

// LockKey is the mutual-exclusion key guarding the row.
func (t ProjectionTarget) LockKey() string {
	return fmt.Sprintf("projection:%s:%04d:%02d", t.InstructorID, t.Year, t.Month)
}

// Change builds a repository change against row.
func (t ProjectionTarget) Change(row *models.InstructorProjection, delta models.ProjectionDelta) repository.ProjectionChange {
	return repository.ProjectionChange{
		InstructorID:    t.InstructorID,
		Year:            t.Year,
		Month:           t.Month,
		ExpectedVersion: row.Version,
		Delta:           delta,
	}
}

// ProjectionConfig tunes retries and background reconciliation.
type ProjectionConfig struct {
	MaxRetries        int
	RetryBaseDelay    time.Duration
	ReconcileInterval time.Duration
}

// ProjectionService owns the monthly capacity projections. Every write goes through Mutate,
// which holds the per-row lock and retries optimistic version conflicts.
type ProjectionService struct {
	store       projectionStore
	programmed  programmedSource
	approved    approvedSource
	instructors instructorReader
	rules       ModalityRuleTable
	locker      lock.Locker
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         ProjectionConfig
	loc         *time.Location
	now         func() time.Time
}

// ProjectionServiceOption configures the service.
type ProjectionServiceOption func(*ProjectionService)

// WithProjectionCache enables cached reads.
func WithProjectionCache(cache *CacheService) ProjectionServiceOption {
	return func(s *ProjectionService) { s.cache = cache }
}

// WithProjectionMetrics records conflicts and drift repairs.
func WithProjectionMetrics(metrics *MetricsService) ProjectionServiceOption {
	return func(s *ProjectionService) { s.metrics = metrics }
}

// WithProjectionClock overrides the time source and location.
func WithProjectionClock(now func() time.Time, loc *time.Location) ProjectionServiceOption {
	return func(s *ProjectionService) {
		if now != nil {
			s.now = now
		}
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewProjectionService constructs the service.
func NewProjectionService(store projectionStore, programmed programmedSource, approved approvedSource, instructors instructorReader, rules ModalityRuleTable, locker lock.Locker, cfg ProjectionConfig, logger *zap.Logger, opts ...ProjectionServiceOption) *ProjectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewKeyed()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 20 * time.Millisecond
	}
	svc := &ProjectionService{
		store:       store,
		programmed:  programmed,
		approved:    approved,
		instructors: instructors,
		rules:       rules,
		locker:      locker,
		logger:      logger,
		cfg:         cfg,
		loc:         time.UTC,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Today returns the current date in the service location.
func (s *ProjectionService) Today() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}

// Location returns the calendar location used to bucket months.
func (s *ProjectionService) Location() *time.Location {
	return s.loc
}

// Mutate runs fn with the locked, freshly loaded projection row of target.
func (s *ProjectionService) Mutate(ctx context.Context, target ProjectionTarget, fn func(row *models.InstructorProjection) error) error {
	return s.MutateMany(ctx, []ProjectionTarget{target}, func(rows []*models.InstructorProjection) error {
		return fn(rows[0])
	})
}

// MutateMany locks every target in a stable order, ensures the rows exist and runs fn with them
// in the order given. fn returning repository.ErrVersionConflict is retried with exponential
// backoff; other errors are returned unchanged.
func (s *ProjectionService) MutateMany(ctx context.Context, targets []ProjectionTarget, fn func(rows []*models.InstructorProjection) error) error {
	keys := make([]string, len(targets))
	for i, target := range targets {
		keys[i] = target.LockKey()
	}
	release, err := lock.LockAll(ctx, s.locker, keys...)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrConcurrency.Code, appErrors.ErrConcurrency.Status, "failed to acquire projection lock")
	}
	defer release()

	err = s.retry(ctx, func() error {
		rows := make([]*models.InstructorProjection, len(targets))
		for i, target := range targets {
			row, err := s.ensure(ctx, target)
			if err != nil {
				return err
			}
			rows[i] = row
		}
		return fn(rows)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, targets...)
	return nil
}

func (s *ProjectionService) retry(ctx context.Context, fn func() error) error {
	delay := s.cfg.RetryBaseDelay
	for attempt := 0; ; attempt++ {
		err := fn()
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		s.metrics.RecordVersionConflict()
		if attempt >= s.cfg.MaxRetries {
			return appErrors.Wrap(err, appErrors.ErrConcurrency.Code, appErrors.ErrConcurrency.Status, appErrors.ErrConcurrency.Message)
		}
		s.logger.Warn("projection version conflict, retrying", zap.Int("attempt", attempt+1), zap.Duration("backoff", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

func (s *ProjectionService) ensure(ctx context.Context, target ProjectionTarget) (*models.InstructorProjection, error) {
	available, err := s.availableHours(ctx, target.InstructorID)
	if err != nil {
		return nil, err
	}
	row, err := s.store.Ensure(ctx, target.InstructorID, target.Year, target.Month, available)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load projection")
	}
	return row, nil
}

func (s *ProjectionService) availableHours(ctx context.Context, instructorID string) (float64, error) {
	instructor, err := s.instructors.GetInstructor(ctx, instructorID)
	if err != nil {
		return 0, lookupError(err, "instructor")
	}
	if instructor.MonthlyAvailableHours > 0 {
		return instructor.MonthlyAvailableHours, nil
	}
	return s.rules.MonthlyCapacity(), nil
}

func (s *ProjectionService) invalidate(ctx context.Context, targets ...ProjectionTarget) {
	_ = s.cache.Forget(ctx, targets...)
}

// Get returns the projection for a month. Months without activity yield an empty projection.
func (s *ProjectionService) Get(ctx context.Context, instructorID string, year, month int) (*models.InstructorProjection, error) {
	if month < 1 || month > 12 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12")
	}
	target := ProjectionTarget{InstructorID: instructorID, Year: year, Month: month}
	if cached, hit := s.cache.Projection(ctx, target); hit {
		return cached, nil
	}

	row, err := s.store.Get(ctx, instructorID, year, month)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(err, "failed to load projection")
		}
		available, err := s.availableHours(ctx, instructorID)
		if err != nil {
			return nil, err
		}
		row = &models.InstructorProjection{InstructorID: instructorID, Year: year, Month: month, AvailableHours: available}
	}
	s.cache.StoreProjection(ctx, row)
	return row, nil
}

// ListByInstructor returns the stored months of a year.
func (s *ProjectionService) ListByInstructor(ctx context.Context, instructorID string, year int) ([]models.InstructorProjection, error) {
	rows, err := s.store.ListByInstructor(ctx, instructorID, year)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list projections")
	}
	return rows, nil
}

// Recompute rebuilds a projection from the ledger and assignments and stores it when it drifted.
// Calling it repeatedly without intervening writes returns the same row.
func (s *ProjectionService) Recompute(ctx context.Context, instructorID string, year, month int) (*models.InstructorProjection, error) {
	if month < 1 || month > 12 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12")
	}
	target := ProjectionTarget{InstructorID: instructorID, Year: year, Month: month}
	release, err := s.locker.Lock(ctx, target.LockKey())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConcurrency.Code, appErrors.ErrConcurrency.Status, "failed to acquire projection lock")
	}
	defer release()

	var result *models.InstructorProjection
	err = s.retry(ctx, func() error {
		computed, err := s.compute(ctx, target)
		if err != nil {
			return err
		}
		current, err := s.store.Get(ctx, instructorID, year, month)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Internal(err, "failed to load projection")
		}
		if current != nil && !drifted(current, computed) {
			result = current
			return nil
		}
		var expected int64
		if current != nil {
			expected = current.Version
			s.logger.Warn("projection drift repaired",
				zap.String("instructor_id", instructorID),
				zap.Int("year", year),
				zap.Int("month", month),
				zap.Float64("stored_programmed", current.ProgrammedHours),
				zap.Float64("computed_programmed", computed.ProgrammedHours),
				zap.Float64("stored_executed", current.ExecutedHours),
				zap.Float64("computed_executed", computed.ExecutedHours),
			)
			s.metrics.RecordDriftRepair()
		}
		stored, err := s.store.Replace(ctx, computed, expected)
		if err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				return err
			}
			return appErrors.Internal(err, "failed to store projection")
		}
		result = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, target)
	return result, nil
}

func (s *ProjectionService) compute(ctx context.Context, target ProjectionTarget) (*models.InstructorProjection, error) {
	available, err := s.availableHours(ctx, target.InstructorID)
	if err != nil {
		return nil, err
	}
	programmed, err := s.programmed.ProgrammedForMonth(ctx, target.InstructorID, target.Year, target.Month)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sum programmed hours")
	}
	totals, err := s.approved.ApprovedForMonth(ctx, target.InstructorID, target.Year, target.Month)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sum approved hours")
	}
	return &models.InstructorProjection{
		InstructorID:     target.InstructorID,
		Year:             target.Year,
		Month:            target.Month,
		ProgrammedHours:  programmed,
		ExecutedHours:    totals.Executed,
		AvailableHours:   available,
		OvertimeApproved: totals.Overtime,
	}, nil
}

const hoursEpsilon = 1e-9

func drifted(stored, computed *models.InstructorProjection) bool {
	return math.Abs(stored.ProgrammedHours-computed.ProgrammedHours) > hoursEpsilon ||
		math.Abs(stored.ExecutedHours-computed.ExecutedHours) > hoursEpsilon ||
		math.Abs(stored.AvailableHours-computed.AvailableHours) > hoursEpsilon ||
		stored.OvertimeApproved != computed.OvertimeApproved
}

// ReconcileMonth recomputes every instructor with activity in the month and returns how many were checked.
func (s *ProjectionService) ReconcileMonth(ctx context.Context, year, month int) (int, error) {
	ids, err := s.store.ActiveInstructors(ctx, year, month)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list instructors with activity")
	}
	checked := 0
	for _, id := range ids {
		if _, err := s.Recompute(ctx, id, year, month); err != nil {
			s.logger.Warn("projection reconcile failed", zap.String("instructor_id", id), zap.Error(err))
			continue
		}
		checked++
	}
	return checked, nil
}

// StartReconciler periodically repairs drift for the current month until ctx is done.
func (s *ProjectionService) StartReconciler(ctx context.Context) {
	if s.cfg.ReconcileInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.cfg.ReconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				today := s.Today()
				checked, err := s.ReconcileMonth(ctx, today.Year(), int(today.Month()))
				if err != nil {
					s.logger.Warn("projection reconcile run failed", zap.Error(err))
					continue
				}
				s.logger.Info("projection reconcile run completed", zap.Int("instructors", checked))
			}
		}
	}()
}
