package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/etapa-productiva-api/internal/dto"
	"github.com/noah-isme/etapa-productiva-api/internal/models"
	"github.com/noah-isme/etapa-productiva-api/internal/repository"
	appErrors "github.com/noah-isme/etapa-productiva-api/pkg/errors"
	"github.com/noah-isme/etapa-productiva-api/pkg/lock"
	"github.com/noah-isme/etapa-productiva-api/pkg/storage"
	"github.com/noah-isme/etapa-productiva-api/pkg/workflow"
)

type bitacoraStore interface {
	NextNumber(ctx context.Context, placementID string) (int, error)
	Create(ctx context.Context, bitacora *models.Bitacora) error
	GetByID(ctx context.Context, id string) (*models.Bitacora, error)
	ListByPlacement(ctx context.Context, placementID string) ([]models.Bitacora, error)
	CountVerified(ctx context.Context, placementID string) (int, error)
	Transition(ctx context.Context, update repository.DeliverableUpdate) error
}

type hourCreditor interface {
	Credit(ctx context.Context, req CreditRequest) (*models.HourEntry, error)
	Reverse(ctx context.Context, source models.EntrySource, sourceID, actorID string) error
}

type documentVerifier interface {
	Verify(token string) (storage.DocumentRef, error)
}

// BitacoraService tracks the fortnightly logs of a placement.
type BitacoraService struct {
	store       bitacoraStore
	refs        referenceStore
	assignments assignmentReader
	credits     hourCreditor
	documents   documentVerifier
	rules       ModalityRuleTable
	authz       *Authorizer
	locker      lock.Locker
	validator   *validator.Validate
	events      eventEmitter
	watcher     EligibilityWatcher
	logger      *zap.Logger
	now         func() time.Time
}

// BitacoraServiceOption configures the service.
type BitacoraServiceOption func(*BitacoraService)

// WithBitacoraEvents sets the event emitter.
func WithBitacoraEvents(events eventEmitter) BitacoraServiceOption {
	return func(s *BitacoraService) {
		if events != nil {
			s.events = events
		}
	}
}

// WithBitacoraWatcher registers the eligibility watcher.
func WithBitacoraWatcher(watcher EligibilityWatcher) BitacoraServiceOption {
	return func(s *BitacoraService) { s.watcher = watcher }
}

// WithBitacoraClock overrides the time source.
func WithBitacoraClock(now func() time.Time) BitacoraServiceOption {
	return func(s *BitacoraService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewBitacoraService constructs the service.
func NewBitacoraService(store bitacoraStore, refs referenceStore, assignments assignmentReader, credits hourCreditor, documents documentVerifier, rules ModalityRuleTable, authz *Authorizer, locker lock.Locker, validate *validator.Validate, logger *zap.Logger, opts ...BitacoraServiceOption) *BitacoraService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if locker == nil {
		locker = lock.NewKeyed()
	}
	svc := &BitacoraService{
		store:       store,
		refs:        refs,
		assignments: assignments,
		credits:     credits,
		documents:   documents,
		rules:       rules,
		authz:       authz,
		locker:      locker,
		validator:   validate,
		events:      nopEmitter{},
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// SetEligibilityWatcher wires the watcher after construction.
func (s *BitacoraService) SetEligibilityWatcher(watcher EligibilityWatcher) {
	s.watcher = watcher
}

// Create registers the next contiguous bitácora of a placement in PENDING.
func (s *BitacoraService) Create(ctx context.Context, actor *models.JWTClaims, placementID string, req dto.CreateBitacoraRequest) (*models.Bitacora, error) {
	if actor == nil || actor.ActorID() == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if _, err := s.refs.GetPlacement(ctx, placementID); err != nil {
		return nil, lookupError(err, "placement")
	}
	submittedAt := s.now().UTC()
	if req.SubmittedAt != "" {
		parsed, err := time.Parse(dto.DateLayout, req.SubmittedAt)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "submitted_at must use YYYY-MM-DD")
		}
		submittedAt = parsed
	}

	release, err := s.locker.Lock(ctx, "bitacora:"+placementID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConcurrency.Code, appErrors.ErrConcurrency.Status, "failed to acquire placement lock")
	}
	defer release()

	next, err := s.store.NextNumber(ctx, placementID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to number bitacora")
	}
	if next > s.rules.MaxBitacoras() {
		return nil, appErrors.WithDetails(appErrors.ErrLimitReached, "placement already has the maximum number of bitacoras", map[string]int{"max": s.rules.MaxBitacoras()})
	}
	bitacora := &models.Bitacora{
		PlacementID: placementID,
		Number:      next,
		SubmittedAt: submittedAt,
		DueDate:     submittedAt.Add(s.rules.BitacoraDueAfter()),
		Status:      models.DeliverablePending,
	}
	if err := s.store.Create(ctx, bitacora); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "bitacora number already registered")
		}
		return nil, appErrors.Internal(err, "failed to create bitacora")
	}
	return bitacora, nil
}

// AttachDocument records the signed document reference and moves PENDING to EXECUTED.
func (s *BitacoraService) AttachDocument(ctx context.Context, actor *models.JWTClaims, id string, req dto.AttachDocumentRequest) (*models.Bitacora, error) {
	if actor == nil || actor.ActorID() == "" {
		return nil, appErrors.ErrUnauthorized
	}
	bitacora, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(req.DocumentToken)
	next, err := bitacoraWorkflow.Fire(bitacora.Status, actionSubmit, workflow.Input{Payload: map[string]string{payloadDocument: token}})
	if err != nil {
		return nil, transitionError(err, nil)
	}
	if err := verifyDocument(s.documents, token, bitacora.PlacementID); err != nil {
		return nil, err
	}
	update := repository.DeliverableUpdate{ID: bitacora.ID, From: []models.DeliverableStatus{bitacora.Status}, To: next, DocumentRef: &token}
	if err := s.transition(ctx, update); err != nil {
		return nil, err
	}
	bitacora.Status = next
	bitacora.DocumentRef = &token
	bitacora.DocumentPresent = true
	return bitacora, nil
}

// Verify approves an EXECUTED bitácora and credits review hours to the follow-up instructor.
// A failed credit puts the bitácora back to EXECUTED.
func (s *BitacoraService) Verify(ctx context.Context, actor *models.JWTClaims, id string, req dto.VerifyRequest) (*models.Bitacora, error) {
	bitacora, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canReview(ctx, actor, bitacora.PlacementID); err != nil {
		return nil, err
	}
	next, err := bitacoraWorkflow.Fire(bitacora.Status, actionVerify, workflow.Input{})
	if err != nil {
		return nil, transitionError(err, nil)
	}
	verifiedAt := s.now().UTC()
	reviewer := actor.ActorID()
	update := repository.DeliverableUpdate{
		ID:           bitacora.ID,
		From:         []models.DeliverableStatus{bitacora.Status},
		To:           next,
		InstructorID: &reviewer,
		Observation:  optionalString(req.Observation),
		VerifiedAt:   &verifiedAt,
	}
	if err := s.transition(ctx, update); err != nil {
		return nil, err
	}

	_, err = s.credits.Credit(ctx, CreditRequest{
		PlacementID: bitacora.PlacementID,
		Source:      models.EntrySourceBitacora,
		SourceID:    bitacora.ID,
		Activity:    models.ActivityBitacoraReview,
		Hours:       s.rules.BitacoraReviewHours(),
		Description: "bitacora " + strconv.Itoa(bitacora.Number) + " review",
		ActorID:     reviewer,
	})
	if err != nil {
		compensate := repository.DeliverableUpdate{ID: bitacora.ID, From: []models.DeliverableStatus{next}, To: bitacora.Status, ClearVerified: true}
		if cerr := s.store.Transition(ctx, compensate); cerr != nil {
			s.logger.Error("failed to restore bitacora after credit failure", zap.String("bitacora_id", bitacora.ID), zap.Error(cerr))
		}
		return nil, err
	}

	bitacora.Status = next
	bitacora.InstructorID = &reviewer
	bitacora.VerifiedAt = &verifiedAt
	bitacora.Observation = update.Observation
	s.events.Emit(ctx, models.EventBitacoraVerified, map[string]string{
		"bitacora_id":  bitacora.ID,
		"placement_id": bitacora.PlacementID,
		"number":       strconv.Itoa(bitacora.Number),
	})
	if s.watcher != nil {
		s.watcher.NotifyIfEligible(ctx, bitacora.PlacementID)
	}
	return bitacora, nil
}

// Reject sends an EXECUTED bitácora back to PENDING.
func (s *BitacoraService) Reject(ctx context.Context, actor *models.JWTClaims, id string, req dto.RejectRequest) (*models.Bitacora, error) {
	bitacora, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canReview(ctx, actor, bitacora.PlacementID); err != nil {
		return nil, err
	}
	next, err := bitacoraWorkflow.Fire(bitacora.Status, actionReject, workflow.Input{Reason: req.Reason})
	if err != nil {
		return nil, transitionError(err, nil)
	}
	reason := strings.TrimSpace(req.Reason)
	update := repository.DeliverableUpdate{ID: bitacora.ID, From: []models.DeliverableStatus{bitacora.Status}, To: next, Observation: &reason}
	if err := s.transition(ctx, update); err != nil {
		return nil, err
	}
	bitacora.Status = next
	bitacora.Observation = &reason
	return bitacora, nil
}

// Reopen moves a VERIFIED bitácora back to PENDING and reverses its review credit.
func (s *BitacoraService) Reopen(ctx context.Context, actor *models.JWTClaims, id string, req dto.RejectRequest) (*models.Bitacora, error) {
	bitacora, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canReview(ctx, actor, bitacora.PlacementID); err != nil {
		return nil, err
	}
	next, err := bitacoraWorkflow.Fire(bitacora.Status, actionReopen, workflow.Input{Reason: req.Reason})
	if err != nil {
		return nil, transitionError(err, nil)
	}
	reason := strings.TrimSpace(req.Reason)
	update := repository.DeliverableUpdate{ID: bitacora.ID, From: []models.DeliverableStatus{bitacora.Status}, To: next, Observation: &reason, ClearVerified: true}
	if err := s.transition(ctx, update); err != nil {
		return nil, err
	}
	if err := s.credits.Reverse(ctx, models.EntrySourceBitacora, bitacora.ID, actor.ActorID()); err != nil {
		restore := repository.DeliverableUpdate{ID: bitacora.ID, From: []models.DeliverableStatus{next}, To: bitacora.Status, VerifiedAt: bitacora.VerifiedAt}
		if cerr := s.store.Transition(ctx, restore); cerr != nil {
			s.logger.Error("failed to restore bitacora after reversal failure", zap.String("bitacora_id", bitacora.ID), zap.Error(cerr))
		}
		return nil, err
	}
	bitacora.Status = next
	bitacora.Observation = &reason
	bitacora.VerifiedAt = nil
	s.events.Emit(ctx, models.EventBitacoraReopened, map[string]string{
		"bitacora_id":  bitacora.ID,
		"placement_id": bitacora.PlacementID,
		"reason":       reason,
	})
	return bitacora, nil
}

// CompletionCount returns verified and required bitácoras for a placement.
func (s *BitacoraService) CompletionCount(ctx context.Context, placementID string) (int, int, error) {
	verified, err := s.store.CountVerified(ctx, placementID)
	if err != nil {
		return 0, 0, appErrors.Internal(err, "failed to count verified bitacoras")
	}
	return verified, s.rules.MaxBitacoras(), nil
}

// ListByPlacement returns the bitácoras of a placement in number order.
func (s *BitacoraService) ListByPlacement(ctx context.Context, placementID string) ([]models.Bitacora, error) {
	bitacoras, err := s.store.ListByPlacement(ctx, placementID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list bitacoras")
	}
	return bitacoras, nil
}

// Overdue returns unverified bitácoras past their due date.
func (s *BitacoraService) Overdue(ctx context.Context, placementID string, now time.Time) ([]models.Bitacora, error) {
	bitacoras, err := s.ListByPlacement(ctx, placementID)
	if err != nil {
		return nil, err
	}
	overdue := make([]models.Bitacora, 0)
	for _, b := range bitacoras {
		if b.Overdue(now) {
			overdue = append(overdue, b)
		}
	}
	return overdue, nil
}

func (s *BitacoraService) get(ctx context.Context, id string) (*models.Bitacora, error) {
	bitacora, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "bitacora")
	}
	return bitacora, nil
}

func (s *BitacoraService) transition(ctx context.Context, update repository.DeliverableUpdate) error {
	if err := s.store.Transition(ctx, update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "bitacora changed concurrently")
		}
		return appErrors.Internal(err, "failed to update bitacora")
	}
	return nil
}

// canReview admits staff and the placement's active follow-up instructor.
func (s *BitacoraService) canReview(ctx context.Context, actor *models.JWTClaims, placementID string) error {
	if actor == nil || actor.ActorID() == "" {
		return appErrors.ErrUnauthorized
	}
	if actor.HasRole(models.RoleAdmin, models.RoleCoordinator) {
		return nil
	}
	if !actor.HasRole(models.RoleInstructor) {
		return appErrors.Clone(appErrors.ErrForbidden, "only instructors may review bitacoras")
	}
	assignment, err := s.assignments.FindActive(ctx, placementID, models.AssignmentRoleFollowUp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "placement has no follow-up instructor")
		}
		return appErrors.Internal(err, "failed to load follow-up assignment")
	}
	if assignment.InstructorID != actor.ActorID() {
		return appErrors.Clone(appErrors.ErrForbidden, "only the follow-up instructor may review bitacoras")
	}
	return nil
}

func verifyDocument(documents documentVerifier, token, placementID string) error {
	if documents == nil {
		return nil
	}
	ref, err := documents.Verify(token)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document reference")
	}
	if ref.OwnerID != placementID {
		return appErrors.Clone(appErrors.ErrValidation, "document belongs to another placement")
	}
	return nil
}
