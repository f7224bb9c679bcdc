package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
	"github.com/noah-isme/etapa-productiva-api/internal/repository"
	appErrors "github.com/noah-isme/etapa-productiva-api/pkg/errors"
	"github.com/noah-isme/etapa-productiva-api/pkg/lock"
	"github.com/noah-isme/etapa-productiva-api/pkg/workflow"
)

// CompletionCounter reports (verified, required) for one tracker.
type CompletionCounter interface {
	CompletionCount(ctx context.Context, placementID string) (int, int, error)
}

type executedHoursSource interface {
	SumExecutedByPlacement(ctx context.Context, placementID string) (float64, error)
}

type certificationStore interface {
	certificationFinder
	Create(ctx context.Context, certification *models.Certification) error
}

// EligibilityService aggregates certification prerequisites and opens certification requests.
type EligibilityService struct {
	refs           referenceStore
	bitacoras      CompletionCounter
	seguimientos   CompletionCounter
	hours          executedHoursSource
	certifications certificationStore
	rules          ModalityRuleTable
	authz          *Authorizer
	locker         lock.Locker
	events         eventEmitter
	metrics        *MetricsService
	logger         *zap.Logger
	now            func() time.Time
}

// EligibilityServiceOption configures the service.
type EligibilityServiceOption func(*EligibilityService)

// WithEligibilityEvents sets the event emitter.
func WithEligibilityEvents(events eventEmitter) EligibilityServiceOption {
	return func(s *EligibilityService) {
		if events != nil {
			s.events = events
		}
	}
}

// WithEligibilityMetrics records evaluation outcomes.
func WithEligibilityMetrics(metrics *MetricsService) EligibilityServiceOption {
	return func(s *EligibilityService) { s.metrics = metrics }
}

// WithEligibilityClock overrides the time source.
func WithEligibilityClock(now func() time.Time) EligibilityServiceOption {
	return func(s *EligibilityService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewEligibilityService constructs the aggregator.
func NewEligibilityService(refs referenceStore, bitacoras, seguimientos CompletionCounter, hours executedHoursSource, certifications certificationStore, rules ModalityRuleTable, authz *Authorizer, locker lock.Locker, logger *zap.Logger, opts ...EligibilityServiceOption) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewKeyed()
	}
	svc := &EligibilityService{
		refs:           refs,
		bitacoras:      bitacoras,
		seguimientos:   seguimientos,
		hours:          hours,
		certifications: certifications,
		rules:          rules,
		authz:          authz,
		locker:         locker,
		events:         nopEmitter{},
		logger:         logger,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// EvaluateNow evaluates against the service clock.
func (s *EligibilityService) EvaluateNow(ctx context.Context, placementID string) (*models.Verdict, error) {
	return s.Evaluate(ctx, placementID, s.now())
}

// Evaluate checks every certification prerequisite of a placement as of now. It never writes.
func (s *EligibilityService) Evaluate(ctx context.Context, placementID string, now time.Time) (*models.Verdict, error) {
	placement, err := s.refs.GetPlacement(ctx, placementID)
	if err != nil {
		return nil, lookupError(err, "placement")
	}
	verdict := &models.Verdict{PlacementID: placementID, Missing: []models.ReasonCode{}, EvaluatedAt: now.UTC()}

	verified, required, err := s.bitacoras.CompletionCount(ctx, placementID)
	if err != nil {
		return nil, err
	}
	verdict.Bitacoras = models.Progress{Verified: verified, Required: required}
	if verified < required {
		verdict.Missing = append(verdict.Missing, models.ReasonBitacoras)
	}

	verified, required, err = s.seguimientos.CompletionCount(ctx, placementID)
	if err != nil {
		return nil, err
	}
	verdict.Seguimientos = models.Progress{Verified: verified, Required: required}
	if verified < required {
		verdict.Missing = append(verdict.Missing, models.ReasonSeguimientos)
	}

	executed, err := s.hours.SumExecutedByPlacement(ctx, placementID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sum executed hours")
	}
	verdict.ExecutedHours = executed
	verdict.RequiredHours = placement.RequiredHours
	if verdict.RequiredHours <= 0 {
		verdict.RequiredHours = s.rules.RequiredTotalHours(placement.Modality)
	}
	if executed+hoursEpsilon < verdict.RequiredHours {
		verdict.Missing = append(verdict.Missing, models.ReasonHours)
	}

	if !placement.ExternalEvaluation {
		verdict.Missing = append(verdict.Missing, models.ReasonSofiaEvaluation)
	}

	group, err := s.refs.GetClassGroup(ctx, placement.ClassGroupID)
	if err != nil {
		return nil, lookupError(err, "class group")
	}
	verdict.ExpiresAt = group.OpenedAt.Add(s.rules.ExpiryWindow(group.OpenedAt))
	if group.ExpiresAt != nil {
		verdict.ExpiresAt = *group.ExpiresAt
	}
	if now.After(verdict.ExpiresAt) {
		verdict.Missing = append(verdict.Missing, models.ReasonExpiredEnrollment)
	}

	if _, err := s.certifications.FindOpen(ctx, placementID); err == nil {
		verdict.Missing = append(verdict.Missing, models.ReasonAlreadyCertified)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load certification")
	}

	verdict.Eligible = len(verdict.Missing) == 0
	s.metrics.RecordEligibility(verdict.Eligible)
	return verdict, nil
}

// CreateCertification opens a PENDING_CERTIFICATION request when every prerequisite holds.
// Requests for one placement are serialized; at most one open certification can exist.
func (s *EligibilityService) CreateCertification(ctx context.Context, actor *models.JWTClaims, placementID string) (*models.Certification, error) {
	if err := s.authz.RequireRole(actor, models.RoleAdmin, models.RoleCoordinator); err != nil {
		return nil, err
	}
	release, err := s.locker.Lock(ctx, "certification:"+placementID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConcurrency.Code, appErrors.ErrConcurrency.Status, "failed to acquire placement lock")
	}
	defer release()

	verdict, err := s.Evaluate(ctx, placementID, s.now())
	if err != nil {
		return nil, err
	}
	if !verdict.Eligible {
		if len(verdict.Missing) == 1 && verdict.Missing[0] == models.ReasonAlreadyCertified {
			return nil, appErrors.ErrAlreadyCertified
		}
		return nil, appErrors.WithDetails(appErrors.ErrPrerequisitesNotMet, "", map[string]interface{}{"missing": verdict.Missing})
	}
	status, err := certificationWorkflow.Fire("", actionRequest, workflow.Input{})
	if err != nil {
		return nil, transitionError(err, nil)
	}
	certification := &models.Certification{
		PlacementID: placementID,
		Status:      status,
		RequestedBy: actor.ActorID(),
		RequestedAt: s.now().UTC(),
	}
	if err := s.certifications.Create(ctx, certification); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.ErrAlreadyCertified
		}
		return nil, appErrors.Internal(err, "failed to create certification")
	}
	s.events.Emit(ctx, models.EventCertificationRequested, map[string]string{
		"certification_id": certification.ID,
		"placement_id":     placementID,
		"requested_by":     certification.RequestedBy,
	})
	return certification, nil
}

// NotifyIfEligible emits PlacementEligibleForCertification when the placement just became eligible.
// Failures are logged only.
func (s *EligibilityService) NotifyIfEligible(ctx context.Context, placementID string) {
	verdict, err := s.Evaluate(ctx, placementID, s.now())
	if err != nil {
		s.logger.Warn("eligibility check after progress failed", zap.String("placement_id", placementID), zap.Error(err))
		return
	}
	if !verdict.Eligible {
		return
	}
	s.events.Emit(ctx, models.EventPlacementEligible, map[string]string{"placement_id": placementID})
}
