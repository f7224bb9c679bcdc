package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
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

type ledgerStore interface {
	Create(ctx context.Context, entry *models.HourEntry) error
	GetByID(ctx context.Context, id string) (*models.HourEntry, error)
	List(ctx context.Context, filter models.HourEntryFilter) ([]models.HourEntry, int, error)
	ManualEntryExists(ctx context.Context, instructorID, assignmentID string, date time.Time, activity models.ActivityType) (bool, error)
	SumPending(ctx context.Context, assignmentID string) (float64, error)
	OutstandingCredit(ctx context.Context, source models.EntrySource, sourceID string) (*models.HourEntry, error)
	Approve(ctx context.Context, params repository.ApproveParams, entry *models.HourEntry, change repository.ProjectionChange) (*models.InstructorProjection, error)
	PostCredit(ctx context.Context, entry *models.HourEntry, deltas []repository.AssignmentDelta, changes []repository.ProjectionChange) error
	Reject(ctx context.Context, id, reviewedBy, reason string, reviewedAt time.Time) error
}

type assignmentReader interface {
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
	FindActive(ctx context.Context, placementID string, role models.AssignmentRole) (*models.Assignment, error)
}

// EligibilityWatcher is told when a placement's progress changed.
type EligibilityWatcher interface {
	NotifyIfEligible(ctx context.Context, placementID string)
}

// CreditRequest describes an automatic ledger credit generated by a tracker.
type CreditRequest struct {
	PlacementID string
	Source      models.EntrySource
	SourceID    string
	Activity    models.ActivityType
	Hours       float64
	Description string
	ActorID     string
}

// LedgerService manages the hour ledger and accrues approved hours into projections.
type LedgerService struct {
	store       ledgerStore
	assignments assignmentReader
	refs        referenceStore
	projections *ProjectionService
	rules       ModalityRuleTable
	authz       *Authorizer
	validator   *validator.Validate
	events      eventEmitter
	metrics     *MetricsService
	watcher     EligibilityWatcher
	logger      *zap.Logger
}

// LedgerServiceOption configures the ledger.
type LedgerServiceOption func(*LedgerService)

// WithLedgerEvents sets the event emitter.
func WithLedgerEvents(events eventEmitter) LedgerServiceOption {
	return func(s *LedgerService) {
		if events != nil {
			s.events = events
		}
	}
}

// WithLedgerMetrics records approved hours.
func WithLedgerMetrics(metrics *MetricsService) LedgerServiceOption {
	return func(s *LedgerService) { s.metrics = metrics }
}

// WithEligibilityWatcher registers the watcher notified after hours accrue.
func WithEligibilityWatcher(watcher EligibilityWatcher) LedgerServiceOption {
	return func(s *LedgerService) { s.watcher = watcher }
}

// NewLedgerService constructs the ledger service.
func NewLedgerService(store ledgerStore, assignments assignmentReader, refs referenceStore, projections *ProjectionService, rules ModalityRuleTable, authz *Authorizer, validate *validator.Validate, logger *zap.Logger, opts ...LedgerServiceOption) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &LedgerService{
		store:       store,
		assignments: assignments,
		refs:        refs,
		projections: projections,
		rules:       rules,
		authz:       authz,
		validator:   validate,
		events:      nopEmitter{},
		logger:      logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// SetEligibilityWatcher wires the watcher after construction.
func (s *LedgerService) SetEligibilityWatcher(watcher EligibilityWatcher) {
	s.watcher = watcher
}

// ActivityForRole returns the manual activity an assignment role records.
func ActivityForRole(role models.AssignmentRole) models.ActivityType {
	switch role {
	case models.AssignmentRoleTechnical:
		return models.ActivityTechnicalAdvisory
	case models.AssignmentRoleProject:
		return models.ActivityProjectAdvisory
	default:
		return models.ActivityFollowUpVisit
	}
}

// Submit records a PENDING manual entry.
func (s *LedgerService) Submit(ctx context.Context, actor *models.JWTClaims, req dto.SubmitHoursRequest) (*models.HourEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if err := s.authz.CanActFor(actor, req.InstructorID); err != nil {
		return nil, err
	}
	date, err := time.ParseInLocation(dto.DateLayout, req.Date, s.projections.Location())
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must use YYYY-MM-DD")
	}
	if date.After(s.projections.Today()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date cannot be in the future")
	}
	if req.ActivityType == models.ActivityBitacoraReview {
		return nil, appErrors.Clone(appErrors.ErrValidation, "bitacora review hours are credited on verification")
	}

	assignment, err := s.assignments.GetByID(ctx, req.AssignmentID)
	if err != nil {
		return nil, lookupError(err, "assignment")
	}
	if assignment.InstructorID != req.InstructorID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignment does not belong to the instructor")
	}
	if _, err := assignmentWorkflow.Fire(assignment.Status, actionRecord, workflow.Input{}); err != nil {
		return nil, transitionError(err, nil)
	}
	if ActivityForRole(assignment.Role) != req.ActivityType {
		return nil, appErrors.WithDetails(appErrors.ErrRoleIncompatible, "activity does not match the assignment role", map[string]string{
			"role":     string(assignment.Role),
			"activity": string(req.ActivityType),
		})
	}
	placement, err := s.refs.GetPlacement(ctx, assignment.PlacementID)
	if err != nil {
		return nil, lookupError(err, "placement")
	}
	if err := s.checkModalityHours(placement.Modality, assignment.Role, req.ActivityType, req.Hours); err != nil {
		return nil, err
	}

	exists, err := s.store.ManualEntryExists(ctx, req.InstructorID, req.AssignmentID, date, req.ActivityType)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check duplicate entry")
	}
	if exists {
		return nil, appErrors.ErrDuplicateEntry
	}

	entry := &models.HourEntry{
		InstructorID: req.InstructorID,
		AssignmentID: req.AssignmentID,
		PlacementID:  assignment.PlacementID,
		Date:         date,
		ActivityType: req.ActivityType,
		Hours:        req.Hours,
		Description:  strings.TrimSpace(req.Description),
		Status:       models.EntryStatusPending,
		Source:       models.EntrySourceManual,
		SubmittedBy:  actor.ActorID(),
	}
	if err := s.store.Create(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.ErrDuplicateEntry
		}
		return nil, appErrors.Internal(err, "failed to create hour entry")
	}
	s.events.Emit(ctx, models.EventHoursSubmitted, map[string]string{
		"entry_id":      entry.ID,
		"instructor_id": entry.InstructorID,
		"hours":         formatHours(entry.Hours),
	})
	return entry, nil
}

func (s *LedgerService) checkModalityHours(modality models.Modality, role models.AssignmentRole, activity models.ActivityType, hours float64) error {
	var expected float64
	tolerance := hoursEpsilon
	if activity == models.ActivityFollowUpVisit {
		expected = s.rules.FollowUpVisitHours()
	} else {
		expected = s.rules.SessionHours(modality, role)
		tolerance = s.rules.HoursTolerance()
	}
	if expected <= 0 || math.Abs(hours-expected) > tolerance+hoursEpsilon {
		return appErrors.WithDetails(appErrors.ErrHoursMismatchModality, "", map[string]interface{}{
			"expected":  expected,
			"submitted": hours,
			"tolerance": tolerance,
		})
	}
	return nil
}

// Approve accepts a PENDING entry and accrues its hours into the assignment and projection.
func (s *LedgerService) Approve(ctx context.Context, actor *models.JWTClaims, entryID string, req dto.ApproveHoursRequest) (*models.HourEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	entry, err := s.store.GetByID(ctx, entryID)
	if err != nil {
		return nil, lookupError(err, "hour entry")
	}
	if _, err := entryWorkflow.Fire(entry.Status, actionApprove, workflow.Input{}); err != nil {
		return nil, transitionError(err, appErrors.ErrNotPending)
	}
	if err := s.authz.CanReview(ctx, actor, entry.InstructorID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	params := repository.ApproveParams{
		EntryID:    entry.ID,
		ReviewedBy: actor.ActorID(),
		ReviewedAt: now,
		Note:       optionalString(req.Note),
		Overtime:   req.Overtime,
	}
	target := TargetFor(entry.InstructorID, entry.Date)
	err = s.projections.Mutate(ctx, target, func(row *models.InstructorProjection) error {
		if !req.Overtime && row.ExecutedHours+entry.Hours > row.AvailableHours+hoursEpsilon {
			return appErrors.WithDetails(appErrors.ErrCapacityExceeded, "", map[string]float64{
				"available": row.AvailableHours,
				"executed":  row.ExecutedHours,
				"requested": entry.Hours,
			})
		}
		assignment, err := s.assignments.GetByID(ctx, entry.AssignmentID)
		if err != nil {
			return lookupError(err, "assignment")
		}
		if assignment.ExecutedHours+entry.Hours > assignment.ProgrammedHours+hoursEpsilon {
			return exceedsProgrammed(assignment, entry.Hours)
		}
		_, err = s.store.Approve(ctx, params, entry, target.Change(row, models.ProjectionDelta{Executed: entry.Hours, Overtime: req.Overtime}))
		switch {
		case err == nil:
			return nil
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.ErrNotPending
		case errors.Is(err, repository.ErrGuardFailed):
			return exceedsProgrammed(assignment, entry.Hours)
		case errors.Is(err, repository.ErrVersionConflict):
			return err
		default:
			return appErrors.Internal(err, "failed to approve hour entry")
		}
	})
	if err != nil {
		return nil, err
	}

	reviewer := actor.ActorID()
	entry.Status = models.EntryStatusApproved
	entry.ReviewedBy = &reviewer
	entry.ReviewedAt = &now
	entry.ReviewNote = params.Note
	entry.Overtime = req.Overtime

	s.metrics.RecordHoursApproved(entry.Hours)
	s.events.Emit(ctx, models.EventHoursApproved, map[string]string{
		"entry_id":      entry.ID,
		"instructor_id": entry.InstructorID,
		"placement_id":  entry.PlacementID,
		"hours":         formatHours(entry.Hours),
	})
	s.notifyProgress(ctx, entry.PlacementID)
	return entry, nil
}

// Reject declines a PENDING entry. The projection is untouched.
func (s *LedgerService) Reject(ctx context.Context, actor *models.JWTClaims, entryID string, req dto.RejectRequest) (*models.HourEntry, error) {
	entry, err := s.store.GetByID(ctx, entryID)
	if err != nil {
		return nil, lookupError(err, "hour entry")
	}
	if _, err := entryWorkflow.Fire(entry.Status, actionReject, workflow.Input{Reason: req.Reason}); err != nil {
		return nil, transitionError(err, appErrors.ErrNotPending)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if err := s.authz.CanReview(ctx, actor, entry.InstructorID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	reason := strings.TrimSpace(req.Reason)
	if err := s.store.Reject(ctx, entry.ID, actor.ActorID(), reason, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotPending
		}
		return nil, appErrors.Internal(err, "failed to reject hour entry")
	}
	reviewer := actor.ActorID()
	entry.Status = models.EntryStatusRejected
	entry.ReviewedBy = &reviewer
	entry.ReviewedAt = &now
	entry.ReviewNote = &reason
	s.events.Emit(ctx, models.EventHoursRejected, map[string]string{
		"entry_id":      entry.ID,
		"instructor_id": entry.InstructorID,
		"reason":        reason,
	})
	return entry, nil
}

// Credit posts an APPROVED system entry against the placement's active follow-up assignment.
// System credits are not bounded by the assignment's programming: when one would overflow it, the
// programming grows by the overflow and the instructor's projection month is charged with it.
func (s *LedgerService) Credit(ctx context.Context, req CreditRequest) (*models.HourEntry, error) {
	if req.Hours <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "credit hours must be positive")
	}
	assignment, err := s.assignments.FindActive(ctx, req.PlacementID, models.AssignmentRoleFollowUp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "placement has no active follow-up assignment")
		}
		return nil, appErrors.Internal(err, "failed to load follow-up assignment")
	}
	now := time.Now().UTC()
	actorID := req.ActorID
	sourceID := req.SourceID
	entry := &models.HourEntry{
		InstructorID: assignment.InstructorID,
		AssignmentID: assignment.ID,
		PlacementID:  req.PlacementID,
		Date:         s.projections.Today(),
		ActivityType: req.Activity,
		Hours:        req.Hours,
		Description:  req.Description,
		Status:       models.EntryStatusApproved,
		Source:       req.Source,
		SourceID:     &sourceID,
		SubmittedBy:  actorID,
		SubmittedAt:  now,
		ReviewedBy:   &actorID,
		ReviewedAt:   &now,
	}
	programmedAt := programmingTarget(assignment)
	err = s.postSystem(ctx, entry, &programmedAt, func(row *models.InstructorProjection) ([]repository.AssignmentDelta, float64, error) {
		if row.ExecutedHours+entry.Hours > row.AvailableHours+hoursEpsilon {
			return nil, 0, appErrors.WithDetails(appErrors.ErrCapacityExceeded, "", map[string]float64{
				"available": row.AvailableHours,
				"executed":  row.ExecutedHours,
				"requested": entry.Hours,
			})
		}
		current, err := s.assignments.GetByID(ctx, assignment.ID)
		if err != nil {
			return nil, 0, lookupError(err, "assignment")
		}
		if current.Status != models.AssignmentStatusActive {
			return nil, 0, appErrors.Clone(appErrors.ErrPreconditionFailed, "follow-up assignment is no longer active")
		}
		grow := math.Max(0, current.ExecutedHours+entry.Hours-current.ProgrammedHours)
		return []repository.AssignmentDelta{{AssignmentID: current.ID, Executed: entry.Hours, Programmed: grow}}, grow, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordHoursApproved(entry.Hours)
	return entry, nil
}

// Reverse cancels the outstanding credit of a source with a negative entry dated today. It is a
// no-op when nothing is outstanding. A credit whose assignment was closed since leaves that row
// untouched; its hours go back to the budget of the placement's active follow-up assignment instead.
func (s *LedgerService) Reverse(ctx context.Context, source models.EntrySource, sourceID, actorID string) error {
	credit, err := s.store.OutstandingCredit(ctx, source, sourceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Internal(err, "failed to load credit")
	}
	origin, err := s.assignments.GetByID(ctx, credit.AssignmentID)
	if err != nil {
		return lookupError(err, "assignment")
	}
	now := time.Now().UTC()
	srcID := sourceID
	reversesID := credit.ID
	entry := &models.HourEntry{
		InstructorID: credit.InstructorID,
		AssignmentID: credit.AssignmentID,
		PlacementID:  credit.PlacementID,
		Date:         s.projections.Today(),
		ActivityType: credit.ActivityType,
		Hours:        -credit.Hours,
		Description:  fmt.Sprintf("reversal of %s", credit.ID),
		Status:       models.EntryStatusApproved,
		Source:       source,
		SourceID:     &srcID,
		ReversesID:   &reversesID,
		SubmittedBy:  actorID,
		SubmittedAt:  now,
		ReviewedBy:   &actorID,
		ReviewedAt:   &now,
	}

	if origin.Status == models.AssignmentStatusActive {
		return s.postSystem(ctx, entry, nil, func(*models.InstructorProjection) ([]repository.AssignmentDelta, float64, error) {
			return []repository.AssignmentDelta{{AssignmentID: origin.ID, Executed: entry.Hours}}, 0, nil
		})
	}

	replacement, err := s.assignments.FindActive(ctx, credit.PlacementID, origin.Role)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.postSystem(ctx, entry, nil, func(*models.InstructorProjection) ([]repository.AssignmentDelta, float64, error) {
			return nil, 0, nil
		})
	case err != nil:
		return appErrors.Internal(err, "failed to load follow-up assignment")
	}
	programmedAt := programmingTarget(replacement)
	return s.postSystem(ctx, entry, &programmedAt, func(*models.InstructorProjection) ([]repository.AssignmentDelta, float64, error) {
		return []repository.AssignmentDelta{{AssignmentID: replacement.ID, Programmed: credit.Hours}}, credit.Hours, nil
	})
}

// systemPlan runs under the projection locks with the row the entry's hours land on. It returns the
// assignment deltas and the hours added to the programming month.
type systemPlan func(executed *models.InstructorProjection) ([]repository.AssignmentDelta, float64, error)

// postSystem locks the month the entry executes in and, when given, the month programmedAt charges,
// then writes the entry, the assignment deltas and both projection deltas in one transaction.
func (s *LedgerService) postSystem(ctx context.Context, entry *models.HourEntry, programmedAt *ProjectionTarget, plan systemPlan) error {
	executedAt := TargetFor(entry.InstructorID, entry.Date)
	targets := []ProjectionTarget{executedAt}
	if programmedAt != nil && *programmedAt != executedAt {
		targets = append(targets, *programmedAt)
	}
	return s.projections.MutateMany(ctx, targets, func(rows []*models.InstructorProjection) error {
		moves, programmed, err := plan(rows[0])
		if err != nil {
			return err
		}
		deltas := map[ProjectionTarget]models.ProjectionDelta{executedAt: {Executed: entry.Hours}}
		if programmedAt != nil {
			delta := deltas[*programmedAt]
			delta.Programmed += programmed
			deltas[*programmedAt] = delta
		}
		changes := make([]repository.ProjectionChange, len(targets))
		for i, target := range targets {
			changes[i] = target.Change(rows[i], deltas[target])
		}
		err = s.store.PostCredit(ctx, entry, moves, changes)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, repository.ErrGuardFailed):
			// an approval on the same assignment committed after the plan read it
			return repository.ErrVersionConflict
		case errors.Is(err, repository.ErrVersionConflict):
			return err
		default:
			return appErrors.Internal(err, "failed to post ledger credit")
		}
	})
}

// programmingTarget is the projection row an assignment's programmed hours are charged to.
func programmingTarget(assignment *models.Assignment) ProjectionTarget {
	return ProjectionTarget{InstructorID: assignment.InstructorID, Year: assignment.ProjectionYear, Month: assignment.ProjectionMonth}
}

// List returns ledger entries. Instructors only see their own.
func (s *LedgerService) List(ctx context.Context, actor *models.JWTClaims, query dto.HourEntryQuery) ([]models.HourEntry, *models.Pagination, error) {
	if actor == nil || actor.ActorID() == "" {
		return nil, nil, appErrors.ErrUnauthorized
	}
	filter := models.HourEntryFilter{
		InstructorID: query.InstructorID,
		AssignmentID: query.AssignmentID,
		PlacementID:  query.PlacementID,
	}
	if !actor.HasRole(models.RoleAdmin, models.RoleCoordinator) {
		filter.InstructorID = actor.ActorID()
	}
	if query.Status != "" {
		for _, status := range strings.Split(query.Status, ",") {
			filter.Status = append(filter.Status, models.EntryStatus(strings.ToUpper(strings.TrimSpace(status))))
		}
	}
	for _, bound := range []struct {
		raw  string
		dest **time.Time
	}{{query.From, &filter.From}, {query.To, &filter.To}} {
		if bound.raw == "" {
			continue
		}
		parsed, err := time.ParseInLocation(dto.DateLayout, bound.raw, s.projections.Location())
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "from/to must use YYYY-MM-DD")
		}
		*bound.dest = &parsed
	}
	page, size := normalizePage(query.Page, query.PageSize)
	filter.Limit = size
	filter.Offset = (page - 1) * size

	entries, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list hour entries")
	}
	return entries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *LedgerService) notifyProgress(ctx context.Context, placementID string) {
	if s.watcher != nil {
		s.watcher.NotifyIfEligible(ctx, placementID)
	}
}

func exceedsProgrammed(assignment *models.Assignment, hours float64) error {
	return appErrors.WithDetails(appErrors.ErrExceedsProgrammed, "", map[string]float64{
		"programmed": assignment.ProgrammedHours,
		"executed":   assignment.ExecutedHours,
		"requested":  hours,
	})
}

func formatHours(hours float64) string {
	return fmt.Sprintf("%.2f", hours)
}

func optionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	if size > 200 {
		size = 200
	}
	return page, size
}
