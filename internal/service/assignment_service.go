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

type assignmentStore interface {
	assignmentReader
	Create(ctx context.Context, assignment *models.Assignment, change repository.ProjectionChange) (*models.InstructorProjection, error)
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, error)
	Reassign(ctx context.Context, params repository.ReassignParams) error
	Withdraw(ctx context.Context, id string, expectedExecuted float64, reason string, closedAt time.Time, release repository.ProjectionChange) error
	Extend(ctx context.Context, id string, additional float64, reason string, change repository.ProjectionChange) (*models.InstructorProjection, error)
}

type pendingHoursSource interface {
	SumPending(ctx context.Context, assignmentID string) (float64, error)
}

type certificationFinder interface {
	FindOpen(ctx context.Context, placementID string) (*models.Certification, error)
}

// AssignmentService binds instructors to placements and keeps their projections in step.
type AssignmentService struct {
	store          assignmentStore
	refs           referenceStore
	pending        pendingHoursSource
	certifications certificationFinder
	ledger         *LedgerService
	projections    *ProjectionService
	rules          ModalityRuleTable
	authz          *Authorizer
	validator      *validator.Validate
	events         eventEmitter
	logger         *zap.Logger
}

// AssignmentServiceOption configures the service.
type AssignmentServiceOption func(*AssignmentService)

// WithAssignmentEvents sets the event emitter.
func WithAssignmentEvents(events eventEmitter) AssignmentServiceOption {
	return func(s *AssignmentService) {
		if events != nil {
			s.events = events
		}
	}
}

// NewAssignmentService constructs the service.
func NewAssignmentService(store assignmentStore, refs referenceStore, pending pendingHoursSource, certifications certificationFinder, ledger *LedgerService, projections *ProjectionService, rules ModalityRuleTable, authz *Authorizer, validate *validator.Validate, logger *zap.Logger, opts ...AssignmentServiceOption) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &AssignmentService{
		store:          store,
		refs:           refs,
		pending:        pending,
		certifications: certifications,
		ledger:         ledger,
		projections:    projections,
		rules:          rules,
		authz:          authz,
		validator:      validate,
		events:         nopEmitter{},
		logger:         logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Assign creates an ACTIVE assignment and charges its hours to the instructor's current month.
func (s *AssignmentService) Assign(ctx context.Context, actor *models.JWTClaims, req dto.AssignRequest) (*models.Assignment, error) {
	if err := s.authz.RequireRole(actor, models.RoleAdmin, models.RoleCoordinator); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	instructor, err := s.refs.GetInstructor(ctx, req.InstructorID)
	if err != nil {
		return nil, lookupError(err, "instructor")
	}
	placement, err := s.refs.GetPlacement(ctx, req.PlacementID)
	if err != nil {
		return nil, lookupError(err, "placement")
	}
	if !instructor.CanActAs(req.Role) {
		return nil, appErrors.WithDetails(appErrors.ErrRoleIncompatible, "", map[string]string{"role": string(req.Role)})
	}
	owed := s.rules.RequiredHours(placement.Modality, req.Role)
	if owed <= 0 {
		return nil, appErrors.WithDetails(appErrors.ErrModalityMismatch, "", map[string]string{
			"modality": string(placement.Modality),
			"role":     string(req.Role),
		})
	}
	if !instructor.Available() {
		return nil, appErrors.WithDetails(appErrors.ErrInstructorUnavailable, "", map[string]string{"status": string(instructor.Status)})
	}
	hours := req.ProgrammedHours
	if hours <= 0 {
		hours = owed
	}

	target := TargetFor(instructor.ID, s.projections.Today())
	assignment := &models.Assignment{
		PlacementID:     placement.ID,
		InstructorID:    instructor.ID,
		Role:            req.Role,
		ProgrammedHours: hours,
		Status:          models.AssignmentStatusActive,
		ProjectionYear:  target.Year,
		ProjectionMonth: target.Month,
		AssignedBy:      actor.ActorID(),
	}
	err = s.projections.Mutate(ctx, target, func(row *models.InstructorProjection) error {
		if row.ProgrammedHours+hours > row.AvailableHours+hoursEpsilon {
			return capacityExceeded(appErrors.ErrCapacityExceeded, row, hours)
		}
		_, err := s.store.FindActive(ctx, placement.ID, req.Role)
		if err == nil {
			return appErrors.ErrDuplicateAssignment
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Internal(err, "failed to check active assignment")
		}
		_, err = s.store.Create(ctx, assignment, target.Change(row, models.ProjectionDelta{Programmed: hours}))
		switch {
		case err == nil:
			return nil
		case errors.Is(err, repository.ErrUniqueViolation):
			return appErrors.ErrDuplicateAssignment
		case errors.Is(err, repository.ErrVersionConflict):
			return err
		default:
			return appErrors.Internal(err, "failed to create assignment")
		}
	})
	if err != nil {
		return nil, err
	}
	s.events.Emit(ctx, models.EventAssignmentCreated, map[string]string{
		"assignment_id": assignment.ID,
		"placement_id":  assignment.PlacementID,
		"instructor_id": assignment.InstructorID,
		"role":          string(assignment.Role),
		"hours":         formatHours(hours),
	})
	return assignment, nil
}

// Reassign closes an ACTIVE assignment and opens a replacement carrying only the remaining hours.
func (s *AssignmentService) Reassign(ctx context.Context, actor *models.JWTClaims, id string, req dto.ReassignRequest) (*models.Assignment, error) {
	if err := s.authz.RequireRole(actor, models.RoleAdmin, models.RoleCoordinator); err != nil {
		return nil, err
	}
	old, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "assignment")
	}
	if _, err := assignmentWorkflow.Fire(old.Status, actionReassign, workflow.Input{Reason: req.Reason}); err != nil {
		return nil, transitionError(err, appErrors.ErrNotReassignable)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if req.NewInstructorID == old.InstructorID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "new instructor must differ from the current one")
	}
	if err := s.ensureNotCertified(ctx, old.PlacementID); err != nil {
		return nil, err
	}
	instructor, err := s.refs.GetInstructor(ctx, req.NewInstructorID)
	if err != nil {
		return nil, lookupError(err, "instructor")
	}
	if !instructor.CanActAs(old.Role) {
		return nil, appErrors.WithDetails(appErrors.ErrRoleIncompatible, "", map[string]string{"role": string(old.Role)})
	}
	if !instructor.Available() {
		return nil, appErrors.WithDetails(appErrors.ErrInstructorUnavailable, "", map[string]string{"status": string(instructor.Status)})
	}

	reason := strings.TrimSpace(req.Reason)
	releaseTarget := programmingTarget(old)
	chargeTarget := TargetFor(instructor.ID, s.projections.Today())
	var replacement *models.Assignment

	err = s.projections.MutateMany(ctx, []ProjectionTarget{releaseTarget, chargeTarget}, func(rows []*models.InstructorProjection) error {
		current, err := s.store.GetByID(ctx, id)
		if err != nil {
			return lookupError(err, "assignment")
		}
		if current.Status != models.AssignmentStatusActive {
			return appErrors.ErrNotReassignable
		}
		remaining := current.Remaining()
		if rows[1].ProgrammedHours+remaining > rows[1].AvailableHours+hoursEpsilon {
			return capacityExceeded(appErrors.ErrCapacityExceeded, rows[1], remaining)
		}
		replacesID := current.ID
		replacement = &models.Assignment{
			PlacementID:     current.PlacementID,
			InstructorID:    instructor.ID,
			Role:            current.Role,
			ProgrammedHours: remaining,
			Status:          models.AssignmentStatusActive,
			ProjectionYear:  chargeTarget.Year,
			ProjectionMonth: chargeTarget.Month,
			ReplacesID:      &replacesID,
			Reason:          &reason,
			AssignedBy:      actor.ActorID(),
		}
		err = s.store.Reassign(ctx, repository.ReassignParams{
			OldID:            current.ID,
			ExpectedExecuted: current.ExecutedHours,
			Reason:           reason,
			ClosedAt:         time.Now().UTC(),
			New:              replacement,
			Release:          releaseTarget.Change(rows[0], models.ProjectionDelta{Programmed: -remaining}),
			Charge:           chargeTarget.Change(rows[1], models.ProjectionDelta{Programmed: remaining}),
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, repository.ErrGuardFailed):
			return s.staleAssignment(ctx, id, appErrors.ErrNotReassignable)
		case errors.Is(err, repository.ErrVersionConflict):
			return err
		case errors.Is(err, repository.ErrUniqueViolation):
			return appErrors.ErrDuplicateAssignment
		default:
			return appErrors.Internal(err, "failed to reassign assignment")
		}
	})
	if err != nil {
		return nil, err
	}
	s.events.Emit(ctx, models.EventAssignmentReassigned, map[string]string{
		"assignment_id":      replacement.ID,
		"replaces_id":        old.ID,
		"placement_id":       replacement.PlacementID,
		"from_instructor_id": old.InstructorID,
		"to_instructor_id":   replacement.InstructorID,
		"hours":              formatHours(replacement.ProgrammedHours),
		"reason":             reason,
	})
	return replacement, nil
}

// Withdraw closes an ACTIVE assignment without replacement and releases its unexecuted hours.
func (s *AssignmentService) Withdraw(ctx context.Context, actor *models.JWTClaims, id string, req dto.WithdrawRequest) (*models.Assignment, error) {
	if err := s.authz.RequireRole(actor, models.RoleAdmin, models.RoleCoordinator); err != nil {
		return nil, err
	}
	assignment, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "assignment")
	}
	if _, err := assignmentWorkflow.Fire(assignment.Status, actionWithdraw, workflow.Input{Reason: req.Reason}); err != nil {
		return nil, transitionError(err, nil)
	}
	reason := strings.TrimSpace(req.Reason)
	target := programmingTarget(assignment)
	var closed *models.Assignment
	err = s.projections.Mutate(ctx, target, func(row *models.InstructorProjection) error {
		current, err := s.store.GetByID(ctx, id)
		if err != nil {
			return lookupError(err, "assignment")
		}
		if current.Status != models.AssignmentStatusActive {
			return appErrors.ErrInvalidTransition
		}
		closedAt := time.Now().UTC()
		err = s.store.Withdraw(ctx, current.ID, current.ExecutedHours, reason, closedAt, target.Change(row, models.ProjectionDelta{Programmed: -current.Remaining()}))
		switch {
		case err == nil:
			current.Status = models.AssignmentStatusInactive
			current.Reason = &reason
			current.ClosedAt = &closedAt
			closed = current
			return nil
		case errors.Is(err, repository.ErrGuardFailed):
			return s.staleAssignment(ctx, id, appErrors.ErrInvalidTransition)
		case errors.Is(err, repository.ErrVersionConflict):
			return err
		default:
			return appErrors.Internal(err, "failed to withdraw assignment")
		}
	})
	if err != nil {
		return nil, err
	}
	s.events.Emit(ctx, models.EventAssignmentWithdrawn, map[string]string{
		"assignment_id": closed.ID,
		"placement_id":  closed.PlacementID,
		"instructor_id": closed.InstructorID,
		"reason":        reason,
	})
	return closed, nil
}

// Extend raises programmed hours within the instructor's monthly capacity.
func (s *AssignmentService) Extend(ctx context.Context, actor *models.JWTClaims, id string, req dto.ExtendRequest) (*models.Assignment, error) {
	if err := s.authz.RequireRole(actor, models.RoleAdmin, models.RoleCoordinator); err != nil {
		return nil, err
	}
	assignment, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "assignment")
	}
	if _, err := assignmentWorkflow.Fire(assignment.Status, actionExtend, workflow.Input{Reason: req.Reason}); err != nil {
		return nil, transitionError(err, nil)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	reason := strings.TrimSpace(req.Reason)
	target := programmingTarget(assignment)
	err = s.projections.Mutate(ctx, target, func(row *models.InstructorProjection) error {
		if row.ProgrammedHours+req.AdditionalHours > row.AvailableHours+hoursEpsilon {
			return capacityExceeded(appErrors.ErrInstructorUnavailable, row, req.AdditionalHours)
		}
		_, err := s.store.Extend(ctx, assignment.ID, req.AdditionalHours, reason, target.Change(row, models.ProjectionDelta{Programmed: req.AdditionalHours}))
		switch {
		case err == nil:
			return nil
		case errors.Is(err, repository.ErrGuardFailed):
			return appErrors.ErrInvalidTransition
		case errors.Is(err, repository.ErrVersionConflict):
			return err
		default:
			return appErrors.Internal(err, "failed to extend assignment")
		}
	})
	if err != nil {
		return nil, err
	}
	assignment.ProgrammedHours += req.AdditionalHours
	assignment.Reason = &reason
	s.events.Emit(ctx, models.EventAssignmentExtended, map[string]string{
		"assignment_id": assignment.ID,
		"instructor_id": assignment.InstructorID,
		"hours":         formatHours(req.AdditionalHours),
		"reason":        reason,
	})
	return assignment, nil
}

// RecordExecutedHours submits a PENDING ledger entry for the assignment, dated today.
// Executed hours only move on approval.
func (s *AssignmentService) RecordExecutedHours(ctx context.Context, actor *models.JWTClaims, id string, req dto.RecordHoursRequest) (*models.HourEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	assignment, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "assignment")
	}
	if err := s.authz.CanActFor(actor, assignment.InstructorID); err != nil {
		return nil, err
	}
	if _, err := assignmentWorkflow.Fire(assignment.Status, actionRecord, workflow.Input{}); err != nil {
		return nil, transitionError(err, nil)
	}
	pending, err := s.pending.SumPending(ctx, assignment.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sum pending hours")
	}
	if assignment.ExecutedHours+pending+req.Hours > assignment.ProgrammedHours+hoursEpsilon {
		return nil, appErrors.WithDetails(appErrors.ErrExceedsProgrammed, "", map[string]float64{
			"programmed": assignment.ProgrammedHours,
			"executed":   assignment.ExecutedHours,
			"pending":    pending,
			"requested":  req.Hours,
		})
	}
	return s.ledger.Submit(ctx, actor, dto.SubmitHoursRequest{
		InstructorID: assignment.InstructorID,
		AssignmentID: assignment.ID,
		Date:         s.projections.Today().Format(dto.DateLayout),
		ActivityType: ActivityForRole(assignment.Role),
		Hours:        req.Hours,
		Description:  req.Description,
	})
}

// Get returns an assignment.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "assignment")
	}
	return assignment, nil
}

// ListByPlacement returns every assignment of a placement, closed ones included.
func (s *AssignmentService) ListByPlacement(ctx context.Context, placementID string) ([]models.Assignment, error) {
	return s.list(ctx, models.AssignmentFilter{PlacementID: placementID})
}

// ListByInstructor returns an instructor's assignments, optionally narrowed by status.
func (s *AssignmentService) ListByInstructor(ctx context.Context, instructorID string, statuses ...models.AssignmentStatus) ([]models.Assignment, error) {
	return s.list(ctx, models.AssignmentFilter{InstructorID: instructorID, Status: statuses})
}

func (s *AssignmentService) list(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, error) {
	assignments, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list assignments")
	}
	return assignments, nil
}

func (s *AssignmentService) ensureNotCertified(ctx context.Context, placementID string) error {
	certification, err := s.certifications.FindOpen(ctx, placementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Internal(err, "failed to load certification")
	}
	if certification.Status == models.CertificationCertified {
		return appErrors.Clone(appErrors.ErrNotReassignable, "placement is already certified")
	}
	return nil
}

// staleAssignment decides what a failed close guard means: hours accrued since the read
// (retry) or the assignment left ACTIVE (terminal).
func (s *AssignmentService) staleAssignment(ctx context.Context, id string, terminal *appErrors.Error) error {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return lookupError(err, "assignment")
	}
	if current.Status == models.AssignmentStatusActive {
		return repository.ErrVersionConflict
	}
	return terminal
}

func capacityExceeded(base *appErrors.Error, row *models.InstructorProjection, requested float64) error {
	return appErrors.WithDetails(base, "", map[string]float64{
		"available":  row.AvailableHours,
		"programmed": row.ProgrammedHours,
		"requested":  requested,
	})
}
