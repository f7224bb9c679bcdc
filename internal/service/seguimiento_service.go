package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/etapa-productiva-api/internal/dto"
	"github.com/noah-isme/etapa-productiva-api/internal/models"
	"github.com/noah-isme/etapa-productiva-api/internal/repository"
	appErrors "github.com/noah-isme/etapa-productiva-api/pkg/errors"
	"github.com/noah-isme/etapa-productiva-api/pkg/workflow"
)

type seguimientoStore interface {
	Create(ctx context.Context, seguimiento *models.Seguimiento) error
	GetByID(ctx context.Context, id string) (*models.Seguimiento, error)
	ListByPlacement(ctx context.Context, placementID string) ([]models.Seguimiento, error)
	CountVerifiedNumbered(ctx context.Context, placementID string) (int, error)
	Transition(ctx context.Context, update repository.DeliverableUpdate) error
}

// SeguimientoService tracks supervision check-ins.
type SeguimientoService struct {
	store     seguimientoStore
	refs      referenceStore
	credits   hourCreditor
	documents documentVerifier
	rules     ModalityRuleTable
	authz     *Authorizer
	validator *validator.Validate
	events    eventEmitter
	watcher   EligibilityWatcher
	logger    *zap.Logger
	now       func() time.Time
}

// SeguimientoServiceOption configures the service.
type SeguimientoServiceOption func(*SeguimientoService)

// WithSeguimientoEvents sets the event emitter.
func WithSeguimientoEvents(events eventEmitter) SeguimientoServiceOption {
	return func(s *SeguimientoService) {
		if events != nil {
			s.events = events
		}
	}
}

// WithSeguimientoWatcher registers the eligibility watcher.
func WithSeguimientoWatcher(watcher EligibilityWatcher) SeguimientoServiceOption {
	return func(s *SeguimientoService) { s.watcher = watcher }
}

// NewSeguimientoService constructs the service.
func NewSeguimientoService(store seguimientoStore, refs referenceStore, credits hourCreditor, documents documentVerifier, rules ModalityRuleTable, authz *Authorizer, validate *validator.Validate, logger *zap.Logger, opts ...SeguimientoServiceOption) *SeguimientoService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &SeguimientoService{
		store:     store,
		refs:      refs,
		credits:   credits,
		documents: documents,
		rules:     rules,
		authz:     authz,
		validator: validate,
		events:    nopEmitter{},
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// SetEligibilityWatcher wires the watcher after construction.
func (s *SeguimientoService) SetEligibilityWatcher(watcher EligibilityWatcher) {
	s.watcher = watcher
}

// Schedule plans a check-in. INITIAL, INTERMEDIATE and FINAL are unique per placement.
func (s *SeguimientoService) Schedule(ctx context.Context, actor *models.JWTClaims, placementID string, req dto.ScheduleSeguimientoRequest) (*models.Seguimiento, error) {
	if err := s.authz.RequireRole(actor, models.RoleAdmin, models.RoleCoordinator, models.RoleInstructor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if _, err := s.refs.GetPlacement(ctx, placementID); err != nil {
		return nil, lookupError(err, "placement")
	}
	scheduledFor, err := time.Parse(dto.DateLayout, req.ScheduledFor)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_for must use YYYY-MM-DD")
	}
	seguimiento := &models.Seguimiento{
		PlacementID:  placementID,
		Kind:         req.Kind,
		ScheduledFor: scheduledFor,
		Status:       models.DeliverableProgrammed,
	}
	if n := req.Kind.Number(); n > 0 {
		seguimiento.Number = &n
	}
	if err := s.store.Create(ctx, seguimiento); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "seguimiento "+string(req.Kind)+" already scheduled")
		}
		return nil, appErrors.Internal(err, "failed to schedule seguimiento")
	}
	return seguimiento, nil
}

// Execute records the outcome of a check-in and moves it to EXECUTED.
func (s *SeguimientoService) Execute(ctx context.Context, actor *models.JWTClaims, id string, req dto.ExecuteSeguimientoRequest) (*models.Seguimiento, error) {
	if err := s.authz.RequireRole(actor, models.RoleAdmin, models.RoleCoordinator, models.RoleInstructor); err != nil {
		return nil, err
	}
	seguimiento, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	results := strings.TrimSpace(req.Results)
	next, err := seguimientoWorkflow.Fire(seguimiento.Status, actionExecute, workflow.Input{Payload: map[string]string{payloadResults: results}})
	if err != nil {
		return nil, transitionError(err, nil)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	executedAt := s.now().UTC()
	instructorID := actor.ActorID()
	update := repository.DeliverableUpdate{
		ID:              seguimiento.ID,
		From:            []models.DeliverableStatus{seguimiento.Status},
		To:              next,
		InstructorID:    &instructorID,
		Results:         &results,
		ImprovementPlan: optionalString(req.ImprovementPlan),
		ExecutedAt:      &executedAt,
	}
	if token := strings.TrimSpace(req.DocumentToken); token != "" {
		if err := verifyDocument(s.documents, token, seguimiento.PlacementID); err != nil {
			return nil, err
		}
		update.DocumentRef = &token
		seguimiento.DocumentRef = &token
		seguimiento.DocumentPresent = true
	}
	if err := s.transition(ctx, update); err != nil {
		return nil, err
	}
	seguimiento.Status = next
	seguimiento.InstructorID = &instructorID
	seguimiento.Results = &results
	seguimiento.ImprovementPlan = update.ImprovementPlan
	seguimiento.ExecutedAt = &executedAt
	return seguimiento, nil
}

// Verify signs off an EXECUTED check-in and credits the visit hours. Coordinators and admins only.
func (s *SeguimientoService) Verify(ctx context.Context, actor *models.JWTClaims, id string, req dto.VerifyRequest) (*models.Seguimiento, error) {
	if err := s.authz.RequireRole(actor, models.RoleAdmin, models.RoleCoordinator); err != nil {
		return nil, err
	}
	seguimiento, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := seguimientoWorkflow.Fire(seguimiento.Status, actionVerify, workflow.Input{})
	if err != nil {
		return nil, transitionError(err, nil)
	}
	verifiedAt := s.now().UTC()
	update := repository.DeliverableUpdate{
		ID:          seguimiento.ID,
		From:        []models.DeliverableStatus{seguimiento.Status},
		To:          next,
		Observation: optionalString(req.Observation),
		VerifiedAt:  &verifiedAt,
	}
	if err := s.transition(ctx, update); err != nil {
		return nil, err
	}

	hours := s.rules.FollowUpVisitHours()
	if seguimiento.Kind == models.SeguimientoExtraordinary {
		hours = s.rules.ExtraordinaryVisitHours()
	}
	_, err = s.credits.Credit(ctx, CreditRequest{
		PlacementID: seguimiento.PlacementID,
		Source:      models.EntrySourceSeguimiento,
		SourceID:    seguimiento.ID,
		Activity:    models.ActivityFollowUpVisit,
		Hours:       hours,
		Description: "seguimiento " + strings.ToLower(string(seguimiento.Kind)) + " visit",
		ActorID:     actor.ActorID(),
	})
	if err != nil {
		compensate := repository.DeliverableUpdate{ID: seguimiento.ID, From: []models.DeliverableStatus{next}, To: seguimiento.Status, ClearVerified: true}
		if cerr := s.store.Transition(ctx, compensate); cerr != nil {
			s.logger.Error("failed to restore seguimiento after credit failure", zap.String("seguimiento_id", seguimiento.ID), zap.Error(cerr))
		}
		return nil, err
	}

	seguimiento.Status = next
	seguimiento.VerifiedAt = &verifiedAt
	seguimiento.Observation = update.Observation
	s.events.Emit(ctx, models.EventSeguimientoVerified, map[string]string{
		"seguimiento_id": seguimiento.ID,
		"placement_id":   seguimiento.PlacementID,
		"kind":           string(seguimiento.Kind),
	})
	if s.watcher != nil {
		s.watcher.NotifyIfEligible(ctx, seguimiento.PlacementID)
	}
	return seguimiento, nil
}

// Reject sends an EXECUTED check-in back to PENDING.
func (s *SeguimientoService) Reject(ctx context.Context, actor *models.JWTClaims, id string, req dto.RejectRequest) (*models.Seguimiento, error) {
	if err := s.authz.RequireRole(actor, models.RoleAdmin, models.RoleCoordinator); err != nil {
		return nil, err
	}
	seguimiento, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := seguimientoWorkflow.Fire(seguimiento.Status, actionReject, workflow.Input{Reason: req.Reason})
	if err != nil {
		return nil, transitionError(err, nil)
	}
	reason := strings.TrimSpace(req.Reason)
	update := repository.DeliverableUpdate{ID: seguimiento.ID, From: []models.DeliverableStatus{seguimiento.Status}, To: next, Observation: &reason}
	if err := s.transition(ctx, update); err != nil {
		return nil, err
	}
	seguimiento.Status = next
	seguimiento.Observation = &reason
	return seguimiento, nil
}

// CompletionCount returns verified numbered check-ins and the required count.
func (s *SeguimientoService) CompletionCount(ctx context.Context, placementID string) (int, int, error) {
	verified, err := s.store.CountVerifiedNumbered(ctx, placementID)
	if err != nil {
		return 0, 0, appErrors.Internal(err, "failed to count verified seguimientos")
	}
	return verified, s.rules.RequiredSeguimientos(), nil
}

// ListByPlacement returns the check-ins of a placement.
func (s *SeguimientoService) ListByPlacement(ctx context.Context, placementID string) ([]models.Seguimiento, error) {
	seguimientos, err := s.store.ListByPlacement(ctx, placementID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list seguimientos")
	}
	return seguimientos, nil
}

func (s *SeguimientoService) get(ctx context.Context, id string) (*models.Seguimiento, error) {
	seguimiento, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "seguimiento")
	}
	return seguimiento, nil
}

func (s *SeguimientoService) transition(ctx context.Context, update repository.DeliverableUpdate) error {
	if err := s.store.Transition(ctx, update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "seguimiento changed concurrently")
		}
		return appErrors.Internal(err, "failed to update seguimiento")
	}
	return nil
}
