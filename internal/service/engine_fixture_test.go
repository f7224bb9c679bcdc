package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
	"github.com/noah-isme/etapa-productiva-api/pkg/lock"
	"github.com/noah-isme/etapa-productiva-api/pkg/storage"
)

var fixtureNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.EventType
}

func (r *recordingEmitter) Emit(_ context.Context, eventType models.EventType, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recordingEmitter) count(eventType models.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type engine struct {
	db           *memDB
	rules        *RuleTable
	projections  *ProjectionService
	ledger       *LedgerService
	assignments  *AssignmentService
	bitacoras    *BitacoraService
	seguimientos *SeguimientoService
	eligibility  *EligibilityService
	signer       *storage.DocumentSigner
	events       *recordingEmitter
}

func newEngine(t *testing.T, cfg ProjectionConfig) *engine {
	t.Helper()
	db := newMemDB()
	refs := memRefs{db: db}
	assignmentStore := memAssignments{db: db}
	ledgerStore := memLedger{db: db}
	rules := NewRuleTable(nil, nil)
	authz := NewAuthorizer(refs)
	locker := lock.NewKeyed()
	events := &recordingEmitter{}
	signer := storage.NewDocumentSigner("test-secret", time.Hour)
	clock := func() time.Time { return fixtureNow }

	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	projections := NewProjectionService(memProjections{db: db}, assignmentStore, ledgerStore, refs, rules, locker, cfg, nil, WithProjectionClock(clock, time.UTC))
	ledger := NewLedgerService(ledgerStore, assignmentStore, refs, projections, rules, authz, nil, nil, WithLedgerEvents(events))
	certifications := memCertifications{db: db}
	assignments := NewAssignmentService(assignmentStore, refs, ledgerStore, certifications, ledger, projections, rules, authz, nil, nil, WithAssignmentEvents(events))
	bitacoras := NewBitacoraService(memBitacoras{db: db}, refs, assignmentStore, ledger, signer, rules, authz, locker, nil, nil, WithBitacoraEvents(events), WithBitacoraClock(clock))
	seguimientos := NewSeguimientoService(memSeguimientos{db: db}, refs, ledger, signer, rules, authz, nil, nil, WithSeguimientoEvents(events))
	eligibility := NewEligibilityService(refs, bitacoras, seguimientos, assignmentStore, certifications, rules, authz, locker, nil, WithEligibilityEvents(events), WithEligibilityClock(clock))

	ledger.SetEligibilityWatcher(eligibility)
	bitacoras.SetEligibilityWatcher(eligibility)
	seguimientos.SetEligibilityWatcher(eligibility)

	return &engine{
		db:           db,
		rules:        rules,
		projections:  projections,
		ledger:       ledger,
		assignments:  assignments,
		bitacoras:    bitacoras,
		seguimientos: seguimientos,
		eligibility:  eligibility,
		signer:       signer,
		events:       events,
	}
}

func actorWith(id string, roles ...models.Role) *models.JWTClaims {
	return &models.JWTClaims{Roles: roles, RegisteredClaims: jwt.RegisteredClaims{Subject: id}}
}

func adminActor() *models.JWTClaims {
	return actorWith("admin-1", models.RoleAdmin)
}

func (e *engine) seedInstructor(id string, available float64, roles ...models.AssignmentRole) {
	names := make(pq.StringArray, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	e.db.addInstructor(models.Instructor{
		ID:                    id,
		FullName:              "Instructor " + id,
		ContractType:          models.ContractTypePlanta,
		Roles:                 names,
		MonthlyAvailableHours: available,
		TopicAreas:            pq.StringArray{"AGRO"},
		Status:                models.InstructorStatusActive,
	})
}

func (e *engine) seedPlacement(id string, modality models.Modality) {
	e.db.addPlacement(models.Placement{
		ID:                 id,
		ApprenticeID:       "apprentice-" + id,
		Modality:           modality,
		RequiredHours:      864,
		ExternalEvaluation: true,
		Status:             models.PlacementStatusActive,
		StartDate:          time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
	}, models.ClassGroup{
		ID:       "group-" + id,
		Code:     "2758" + id,
		OpenedAt: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
}

// seedAssignment stores an ACTIVE assignment charged to the fixture month and mirrors it on the projection.
func (e *engine) seedAssignment(id, placementID, instructorID string, role models.AssignmentRole, programmed, executed float64) {
	e.db.addAssignment(models.Assignment{
		ID:              id,
		PlacementID:     placementID,
		InstructorID:    instructorID,
		Role:            role,
		ProgrammedHours: programmed,
		ExecutedHours:   executed,
		Status:          models.AssignmentStatusActive,
		ProjectionYear:  fixtureNow.Year(),
		ProjectionMonth: int(fixtureNow.Month()),
		AssignedBy:      "admin-1",
		AssignedAt:      fixtureNow,
	})
	row := e.db.projection(instructorID, fixtureNow.Year(), int(fixtureNow.Month()))
	if row.InstructorID == "" {
		instructor, err := memRefs{db: e.db}.GetInstructor(context.Background(), instructorID)
		if err == nil {
			row.AvailableHours = instructor.MonthlyAvailableHours
		}
		row.InstructorID = instructorID
		row.Year = fixtureNow.Year()
		row.Month = int(fixtureNow.Month())
	}
	row.ProgrammedHours += programmed
	row.ExecutedHours += executed
	e.db.setProjection(row)
}

func (e *engine) seedPendingEntries(t *testing.T, instructorID, assignmentID, placementID string, n int, hours float64) []string {
	t.Helper()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("entry-%s-%03d", assignmentID, i)
		e.db.addEntry(models.HourEntry{
			ID:           ids[i],
			InstructorID: instructorID,
			AssignmentID: assignmentID,
			PlacementID:  placementID,
			Date:         time.Date(2025, time.March, 1+i%9, 0, 0, 0, 0, time.UTC),
			ActivityType: models.ActivityTechnicalAdvisory,
			Hours:        hours,
			Status:       models.EntryStatusPending,
			Source:       models.EntrySourceManual,
			SubmittedBy:  instructorID,
			SubmittedAt:  fixtureNow,
		})
	}
	return ids
}

func (e *engine) documentToken(t *testing.T, placementID string) string {
	t.Helper()
	token, _, err := e.signer.Generate(placementID, "bitacoras/"+placementID+".pdf")
	require.NoError(t, err)
	return token
}

// seedVerifiedDeliverables records n verified bitácoras and the first m numbered seguimientos.
func (e *engine) seedVerifiedDeliverables(placementID string, bitacoras, seguimientos int) {
	verifiedAt := fixtureNow.Add(-24 * time.Hour)
	for i := 1; i <= bitacoras; i++ {
		e.db.addBitacora(models.Bitacora{
			ID:          fmt.Sprintf("%s-bitacora-%02d", placementID, i),
			PlacementID: placementID,
			Number:      i,
			SubmittedAt: fixtureNow.AddDate(0, 0, -15*(13-i)),
			DueDate:     fixtureNow.AddDate(0, 0, -15*(12-i)),
			Status:      models.DeliverableVerified,
			VerifiedAt:  &verifiedAt,
		})
	}
	kinds := []models.SeguimientoKind{models.SeguimientoInitial, models.SeguimientoIntermediate, models.SeguimientoFinal}
	for i := 0; i < seguimientos && i < len(kinds); i++ {
		number := kinds[i].Number()
		e.db.addSeguimiento(models.Seguimiento{
			ID:           fmt.Sprintf("%s-seguimiento-%d", placementID, number),
			PlacementID:  placementID,
			Number:       &number,
			Kind:         kinds[i],
			ScheduledFor: fixtureNow.AddDate(0, -i, 0),
			Status:       models.DeliverableVerified,
			VerifiedAt:   &verifiedAt,
		})
	}
}

// seedCertifiable makes a placement meet every certification prerequisite.
func (e *engine) seedCertifiable(placementID string) {
	e.seedInstructor("inst-"+placementID, 1000, models.AssignmentRoleFollowUp)
	e.seedPlacement(placementID, models.ModalityPasantia)
	e.seedAssignment("asg-"+placementID, placementID, "inst-"+placementID, models.AssignmentRoleFollowUp, 900, 864)
	e.seedVerifiedDeliverables(placementID, 12, 3)
}
