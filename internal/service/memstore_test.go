package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
	"github.com/noah-isme/etapa-productiva-api/internal/repository"
)

// memDB is an in-memory stand-in for the Postgres schema. Multi-row writes validate every guard
// before applying anything, mirroring the repository transactions.
type memDB struct {
	mu             sync.Mutex
	seq            int
	instructors    map[string]*models.Instructor
	coordinators   map[string]*models.Coordinator
	placements     map[string]*models.Placement
	groups         map[string]*models.ClassGroup
	projections    map[ProjectionTarget]*models.InstructorProjection
	assignments    map[string]*models.Assignment
	entries        map[string]*models.HourEntry
	bitacoras      map[string]*models.Bitacora
	seguimientos   map[string]*models.Seguimiento
	certifications map[string]*models.Certification
	conflicts      int
}

func newMemDB() *memDB {
	return &memDB{
		instructors:    map[string]*models.Instructor{},
		coordinators:   map[string]*models.Coordinator{},
		placements:     map[string]*models.Placement{},
		groups:         map[string]*models.ClassGroup{},
		projections:    map[ProjectionTarget]*models.InstructorProjection{},
		assignments:    map[string]*models.Assignment{},
		entries:        map[string]*models.HourEntry{},
		bitacoras:      map[string]*models.Bitacora{},
		seguimientos:   map[string]*models.Seguimiento{},
		certifications: map[string]*models.Certification{},
	}
}

func (db *memDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

// injectConflicts makes the next n projection writes fail with a version conflict.
func (db *memDB) injectConflicts(n int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.conflicts = n
}

func (db *memDB) projection(instructorID string, year, month int) models.InstructorProjection {
	db.mu.Lock()
	defer db.mu.Unlock()
	row := db.projections[ProjectionTarget{InstructorID: instructorID, Year: year, Month: month}]
	if row == nil {
		return models.InstructorProjection{}
	}
	return *row
}

func (db *memDB) assignment(id string) models.Assignment {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.assignments[id]
}

func (db *memDB) entry(id string) models.HourEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.entries[id]
}

func (db *memDB) addInstructor(instructor models.Instructor) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.instructors[instructor.ID] = &instructor
}

func (db *memDB) addPlacement(placement models.Placement, group models.ClassGroup) {
	db.mu.Lock()
	defer db.mu.Unlock()
	placement.ClassGroupID = group.ID
	db.placements[placement.ID] = &placement
	db.groups[group.ID] = &group
}

func (db *memDB) addAssignment(assignment models.Assignment) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.assignments[assignment.ID] = &assignment
}

func (db *memDB) setProjection(row models.InstructorProjection) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.projections[ProjectionTarget{InstructorID: row.InstructorID, Year: row.Year, Month: row.Month}] = &row
}

func (db *memDB) addEntry(entry models.HourEntry) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.entries[entry.ID] = &entry
}

func (db *memDB) addBitacora(bitacora models.Bitacora) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.bitacoras[bitacora.ID] = &bitacora
}

func (db *memDB) addSeguimiento(seguimiento models.Seguimiento) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.seguimientos[seguimiento.ID] = &seguimiento
}

func (db *memDB) checkChange(change repository.ProjectionChange) error {
	row := db.projections[ProjectionTarget{InstructorID: change.InstructorID, Year: change.Year, Month: change.Month}]
	if row == nil || row.Version != change.ExpectedVersion {
		return repository.ErrVersionConflict
	}
	if db.conflicts > 0 {
		db.conflicts--
		return repository.ErrVersionConflict
	}
	return nil
}

func (db *memDB) applyChange(change repository.ProjectionChange) *models.InstructorProjection {
	row := db.projections[ProjectionTarget{InstructorID: change.InstructorID, Year: change.Year, Month: change.Month}]
	row.ProgrammedHours += change.Delta.Programmed
	row.ExecutedHours += change.Delta.Executed
	row.OvertimeApproved = row.OvertimeApproved || change.Delta.Overtime
	row.Version++
	row.UpdatedAt = time.Now().UTC()
	copied := *row
	return &copied
}

func (db *memDB) checkAccrue(assignmentID string, hours float64) error {
	assignment := db.assignments[assignmentID]
	if assignment == nil {
		return repository.ErrGuardFailed
	}
	next := assignment.ExecutedHours + hours
	if next > assignment.ProgrammedHours || next < 0 {
		return repository.ErrGuardFailed
	}
	return nil
}

func (db *memDB) checkMove(delta repository.AssignmentDelta) error {
	assignment := db.assignments[delta.AssignmentID]
	if assignment == nil || assignment.Status != models.AssignmentStatusActive {
		return repository.ErrGuardFailed
	}
	next := assignment.ExecutedHours + delta.Executed
	if next < 0 || next > assignment.ProgrammedHours+delta.Programmed {
		return repository.ErrGuardFailed
	}
	return nil
}

type memRefs struct{ db *memDB }

func (r memRefs) GetInstructor(_ context.Context, id string) (*models.Instructor, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if v, ok := r.db.instructors[id]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (r memRefs) GetCoordinator(_ context.Context, id string) (*models.Coordinator, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if v, ok := r.db.coordinators[id]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (r memRefs) GetPlacement(_ context.Context, id string) (*models.Placement, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if v, ok := r.db.placements[id]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (r memRefs) GetClassGroup(_ context.Context, id string) (*models.ClassGroup, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if v, ok := r.db.groups[id]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type memProjections struct{ db *memDB }

func (p memProjections) Get(_ context.Context, instructorID string, year, month int) (*models.InstructorProjection, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	row := p.db.projections[ProjectionTarget{InstructorID: instructorID, Year: year, Month: month}]
	if row == nil {
		return nil, sql.ErrNoRows
	}
	copied := *row
	return &copied, nil
}

func (p memProjections) Ensure(_ context.Context, instructorID string, year, month int, available float64) (*models.InstructorProjection, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	key := ProjectionTarget{InstructorID: instructorID, Year: year, Month: month}
	row := p.db.projections[key]
	if row == nil {
		row = &models.InstructorProjection{InstructorID: instructorID, Year: year, Month: month, AvailableHours: available}
		p.db.projections[key] = row
	}
	copied := *row
	return &copied, nil
}

func (p memProjections) ListByInstructor(_ context.Context, instructorID string, year int) ([]models.InstructorProjection, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	var rows []models.InstructorProjection
	for key, row := range p.db.projections {
		if key.InstructorID == instructorID && key.Year == year {
			rows = append(rows, *row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Month < rows[j].Month })
	return rows, nil
}

func (p memProjections) Replace(_ context.Context, projection *models.InstructorProjection, expectedVersion int64) (*models.InstructorProjection, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	key := ProjectionTarget{InstructorID: projection.InstructorID, Year: projection.Year, Month: projection.Month}
	current := p.db.projections[key]
	version := int64(1)
	if current != nil {
		if current.Version != expectedVersion {
			return nil, repository.ErrVersionConflict
		}
		version = current.Version + 1
	} else if expectedVersion != 0 {
		return nil, repository.ErrVersionConflict
	}
	stored := *projection
	stored.Version = version
	stored.UpdatedAt = time.Now().UTC()
	p.db.projections[key] = &stored
	copied := stored
	return &copied, nil
}

func (p memProjections) ActiveInstructors(_ context.Context, year, month int) ([]string, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	seen := map[string]bool{}
	for key := range p.db.projections {
		if key.Year == year && key.Month == month {
			seen[key.InstructorID] = true
		}
	}
	for _, a := range p.db.assignments {
		if a.ProjectionYear == year && a.ProjectionMonth == month {
			seen[a.InstructorID] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type memAssignments struct{ db *memDB }

func (s memAssignments) Create(_ context.Context, assignment *models.Assignment, change repository.ProjectionChange) (*models.InstructorProjection, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.assignments {
		if existing.PlacementID == assignment.PlacementID && existing.Role == assignment.Role && existing.Status == models.AssignmentStatusActive {
			return nil, repository.ErrUniqueViolation
		}
	}
	if err := s.db.checkChange(change); err != nil {
		return nil, err
	}
	if assignment.ID == "" {
		assignment.ID = s.db.nextID("assignment")
	}
	assignment.AssignedAt = time.Now().UTC()
	stored := *assignment
	s.db.assignments[assignment.ID] = &stored
	return s.db.applyChange(change), nil
}

func (s memAssignments) GetByID(_ context.Context, id string) (*models.Assignment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if v, ok := s.db.assignments[id]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s memAssignments) FindActive(_ context.Context, placementID string, role models.AssignmentRole) (*models.Assignment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, v := range s.db.assignments {
		if v.PlacementID == placementID && v.Role == role && v.Status == models.AssignmentStatusActive {
			copied := *v
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s memAssignments) List(_ context.Context, filter models.AssignmentFilter) ([]models.Assignment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.Assignment
	for _, v := range s.db.assignments {
		if filter.PlacementID != "" && v.PlacementID != filter.PlacementID {
			continue
		}
		if filter.InstructorID != "" && v.InstructorID != filter.InstructorID {
			continue
		}
		if filter.Role != "" && v.Role != filter.Role {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, v.Status) {
			continue
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func containsStatus(statuses []models.AssignmentStatus, status models.AssignmentStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s memAssignments) closable(id string, expectedExecuted float64) (*models.Assignment, error) {
	current := s.db.assignments[id]
	if current == nil || current.Status != models.AssignmentStatusActive || current.ExecutedHours != expectedExecuted {
		return nil, repository.ErrGuardFailed
	}
	return current, nil
}

func (s memAssignments) Reassign(_ context.Context, params repository.ReassignParams) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	old, err := s.closable(params.OldID, params.ExpectedExecuted)
	if err != nil {
		return err
	}
	if err := s.db.checkChange(params.Release); err != nil {
		return err
	}
	if err := s.db.checkChange(params.Charge); err != nil {
		return err
	}
	old.Status = models.AssignmentStatusReassigned
	reason := params.Reason
	closedAt := params.ClosedAt
	old.Reason = &reason
	old.ClosedAt = &closedAt
	if params.New.ID == "" {
		params.New.ID = s.db.nextID("assignment")
	}
	params.New.AssignedAt = time.Now().UTC()
	stored := *params.New
	s.db.assignments[stored.ID] = &stored
	s.db.applyChange(params.Release)
	s.db.applyChange(params.Charge)
	return nil
}

func (s memAssignments) Withdraw(_ context.Context, id string, expectedExecuted float64, reason string, closedAt time.Time, release repository.ProjectionChange) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	current, err := s.closable(id, expectedExecuted)
	if err != nil {
		return err
	}
	if err := s.db.checkChange(release); err != nil {
		return err
	}
	current.Status = models.AssignmentStatusInactive
	current.Reason = &reason
	current.ClosedAt = &closedAt
	s.db.applyChange(release)
	return nil
}

func (s memAssignments) Extend(_ context.Context, id string, additional float64, reason string, change repository.ProjectionChange) (*models.InstructorProjection, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	current := s.db.assignments[id]
	if current == nil || current.Status != models.AssignmentStatusActive {
		return nil, repository.ErrGuardFailed
	}
	if err := s.db.checkChange(change); err != nil {
		return nil, err
	}
	current.ProgrammedHours += additional
	current.Reason = &reason
	return s.db.applyChange(change), nil
}

func (s memAssignments) ProgrammedForMonth(_ context.Context, instructorID string, year, month int) (float64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var total float64
	for _, v := range s.db.assignments {
		if v.InstructorID != instructorID || v.ProjectionYear != year || v.ProjectionMonth != month {
			continue
		}
		if v.Status == models.AssignmentStatusActive {
			total += v.ProgrammedHours
		} else {
			total += v.ExecutedHours
		}
	}
	return total, nil
}

func (s memAssignments) SumExecutedByPlacement(_ context.Context, placementID string) (float64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var total float64
	for _, v := range s.db.assignments {
		if v.PlacementID == placementID {
			total += v.ExecutedHours
		}
	}
	return total, nil
}

type memLedger struct{ db *memDB }

func (l memLedger) Create(_ context.Context, entry *models.HourEntry) error {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	if entry.ID == "" {
		entry.ID = l.db.nextID("entry")
	}
	if entry.SubmittedAt.IsZero() {
		entry.SubmittedAt = time.Now().UTC()
	}
	stored := *entry
	l.db.entries[entry.ID] = &stored
	return nil
}

func (l memLedger) GetByID(_ context.Context, id string) (*models.HourEntry, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	if v, ok := l.db.entries[id]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (l memLedger) List(_ context.Context, filter models.HourEntryFilter) ([]models.HourEntry, int, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	var out []models.HourEntry
	for _, v := range l.db.entries {
		if filter.InstructorID != "" && v.InstructorID != filter.InstructorID {
			continue
		}
		if filter.PlacementID != "" && v.PlacementID != filter.PlacementID {
			continue
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if filter.Offset >= total {
		return nil, total, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (l memLedger) ManualEntryExists(_ context.Context, instructorID, assignmentID string, date time.Time, activity models.ActivityType) (bool, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	for _, v := range l.db.entries {
		if v.InstructorID == instructorID && v.AssignmentID == assignmentID && v.Date.Equal(date) &&
			v.ActivityType == activity && v.Source == models.EntrySourceManual && v.Status != models.EntryStatusRejected {
			return true, nil
		}
	}
	return false, nil
}

func (l memLedger) SumPending(_ context.Context, assignmentID string) (float64, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	var total float64
	for _, v := range l.db.entries {
		if v.AssignmentID == assignmentID && v.Status == models.EntryStatusPending {
			total += v.Hours
		}
	}
	return total, nil
}

func (l memLedger) OutstandingCredit(_ context.Context, source models.EntrySource, sourceID string) (*models.HourEntry, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	reversed := map[string]bool{}
	for _, v := range l.db.entries {
		if v.ReversesID != nil {
			reversed[*v.ReversesID] = true
		}
	}
	for _, v := range l.db.entries {
		if v.Source == source && v.SourceID != nil && *v.SourceID == sourceID &&
			v.Status == models.EntryStatusApproved && v.Hours > 0 && !reversed[v.ID] {
			copied := *v
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (l memLedger) Approve(_ context.Context, params repository.ApproveParams, entry *models.HourEntry, change repository.ProjectionChange) (*models.InstructorProjection, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	stored := l.db.entries[params.EntryID]
	if stored == nil || stored.Status != models.EntryStatusPending {
		return nil, sql.ErrNoRows
	}
	if err := l.db.checkAccrue(entry.AssignmentID, entry.Hours); err != nil {
		return nil, err
	}
	if err := l.db.checkChange(change); err != nil {
		return nil, err
	}
	reviewedBy := params.ReviewedBy
	reviewedAt := params.ReviewedAt
	stored.Status = models.EntryStatusApproved
	stored.ReviewedBy = &reviewedBy
	stored.ReviewedAt = &reviewedAt
	stored.ReviewNote = params.Note
	stored.Overtime = params.Overtime
	l.db.assignments[entry.AssignmentID].ExecutedHours += entry.Hours
	return l.db.applyChange(change), nil
}

func (l memLedger) PostCredit(_ context.Context, entry *models.HourEntry, deltas []repository.AssignmentDelta, changes []repository.ProjectionChange) error {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	for _, delta := range deltas {
		if err := l.db.checkMove(delta); err != nil {
			return err
		}
	}
	for _, change := range changes {
		if err := l.db.checkChange(change); err != nil {
			return err
		}
	}
	if entry.ID == "" {
		entry.ID = l.db.nextID("entry")
	}
	stored := *entry
	l.db.entries[entry.ID] = &stored
	for _, delta := range deltas {
		assignment := l.db.assignments[delta.AssignmentID]
		assignment.ExecutedHours += delta.Executed
		assignment.ProgrammedHours += delta.Programmed
	}
	for _, change := range changes {
		l.db.applyChange(change)
	}
	return nil
}

func (l memLedger) Reject(_ context.Context, id, reviewedBy, reason string, reviewedAt time.Time) error {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	stored := l.db.entries[id]
	if stored == nil || stored.Status != models.EntryStatusPending {
		return sql.ErrNoRows
	}
	stored.Status = models.EntryStatusRejected
	stored.ReviewedBy = &reviewedBy
	stored.ReviewedAt = &reviewedAt
	stored.ReviewNote = &reason
	return nil
}

func (l memLedger) ApprovedForMonth(_ context.Context, instructorID string, year, month int) (repository.MonthTotals, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	var totals repository.MonthTotals
	for _, v := range l.db.entries {
		if v.InstructorID != instructorID || v.Status != models.EntryStatusApproved {
			continue
		}
		if y, m := v.Month(); y != year || m != month {
			continue
		}
		totals.Executed += v.Hours
		totals.Overtime = totals.Overtime || v.Overtime
	}
	return totals, nil
}

func (l memLedger) ApprovedByActivity(_ context.Context, year, month int) ([]models.ActivityHours, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	totals := map[[2]string]float64{}
	for _, v := range l.db.entries {
		if v.Status != models.EntryStatusApproved {
			continue
		}
		if y, m := v.Month(); y != year || m != month {
			continue
		}
		totals[[2]string{v.InstructorID, string(v.ActivityType)}] += v.Hours
	}
	rows := make([]models.ActivityHours, 0, len(totals))
	for key, hours := range totals {
		rows = append(rows, models.ActivityHours{InstructorID: key[0], ActivityType: models.ActivityType(key[1]), Hours: hours})
	}
	return rows, nil
}

type memBitacoras struct{ db *memDB }

func (b memBitacoras) NextNumber(_ context.Context, placementID string) (int, error) {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	highest := 0
	for _, v := range b.db.bitacoras {
		if v.PlacementID == placementID && v.Number > highest {
			highest = v.Number
		}
	}
	return highest + 1, nil
}

func (b memBitacoras) Create(_ context.Context, bitacora *models.Bitacora) error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, v := range b.db.bitacoras {
		if v.PlacementID == bitacora.PlacementID && v.Number == bitacora.Number {
			return repository.ErrUniqueViolation
		}
	}
	if bitacora.ID == "" {
		bitacora.ID = b.db.nextID("bitacora")
	}
	stored := *bitacora
	b.db.bitacoras[bitacora.ID] = &stored
	return nil
}

func (b memBitacoras) GetByID(_ context.Context, id string) (*models.Bitacora, error) {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	if v, ok := b.db.bitacoras[id]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (b memBitacoras) ListByPlacement(_ context.Context, placementID string) ([]models.Bitacora, error) {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	var out []models.Bitacora
	for _, v := range b.db.bitacoras {
		if v.PlacementID == placementID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (b memBitacoras) CountVerified(_ context.Context, placementID string) (int, error) {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	count := 0
	for _, v := range b.db.bitacoras {
		if v.PlacementID == placementID && v.Status == models.DeliverableVerified {
			count++
		}
	}
	return count, nil
}

func (b memBitacoras) Transition(_ context.Context, update repository.DeliverableUpdate) error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	v := b.db.bitacoras[update.ID]
	if v == nil || !statusIn(update.From, v.Status) {
		return sql.ErrNoRows
	}
	v.Status = update.To
	if update.InstructorID != nil {
		v.InstructorID = update.InstructorID
	}
	if update.DocumentRef != nil {
		v.DocumentRef = update.DocumentRef
		v.DocumentPresent = true
	}
	if update.Observation != nil {
		v.Observation = update.Observation
	}
	switch {
	case update.VerifiedAt != nil:
		v.VerifiedAt = update.VerifiedAt
	case update.ClearVerified:
		v.VerifiedAt = nil
	}
	return nil
}

func statusIn(from []models.DeliverableStatus, status models.DeliverableStatus) bool {
	for _, s := range from {
		if s == status {
			return true
		}
	}
	return false
}

type memSeguimientos struct{ db *memDB }

func (s memSeguimientos) Create(_ context.Context, seguimiento *models.Seguimiento) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if seguimiento.Number != nil {
		for _, v := range s.db.seguimientos {
			if v.PlacementID == seguimiento.PlacementID && v.Number != nil && *v.Number == *seguimiento.Number {
				return repository.ErrUniqueViolation
			}
		}
	}
	if seguimiento.ID == "" {
		seguimiento.ID = s.db.nextID("seguimiento")
	}
	stored := *seguimiento
	s.db.seguimientos[seguimiento.ID] = &stored
	return nil
}

func (s memSeguimientos) GetByID(_ context.Context, id string) (*models.Seguimiento, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if v, ok := s.db.seguimientos[id]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s memSeguimientos) ListByPlacement(_ context.Context, placementID string) ([]models.Seguimiento, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.Seguimiento
	for _, v := range s.db.seguimientos {
		if v.PlacementID == placementID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, nil
}

func (s memSeguimientos) CountVerifiedNumbered(_ context.Context, placementID string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	count := 0
	for _, v := range s.db.seguimientos {
		if v.PlacementID == placementID && v.Number != nil && v.Status == models.DeliverableVerified {
			count++
		}
	}
	return count, nil
}

func (s memSeguimientos) Transition(_ context.Context, update repository.DeliverableUpdate) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	v := s.db.seguimientos[update.ID]
	if v == nil || !statusIn(update.From, v.Status) {
		return sql.ErrNoRows
	}
	v.Status = update.To
	if update.InstructorID != nil {
		v.InstructorID = update.InstructorID
	}
	if update.DocumentRef != nil {
		v.DocumentRef = update.DocumentRef
		v.DocumentPresent = true
	}
	if update.Observation != nil {
		v.Observation = update.Observation
	}
	if update.Results != nil {
		v.Results = update.Results
	}
	if update.ImprovementPlan != nil {
		v.ImprovementPlan = update.ImprovementPlan
	}
	if update.ExecutedAt != nil {
		v.ExecutedAt = update.ExecutedAt
	}
	switch {
	case update.VerifiedAt != nil:
		v.VerifiedAt = update.VerifiedAt
	case update.ClearVerified:
		v.VerifiedAt = nil
	}
	return nil
}

type memCertifications struct{ db *memDB }

func (c memCertifications) Create(_ context.Context, certification *models.Certification) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	for _, v := range c.db.certifications {
		if v.PlacementID == certification.PlacementID && v.Open() {
			return repository.ErrUniqueViolation
		}
	}
	if certification.ID == "" {
		certification.ID = c.db.nextID("certification")
	}
	stored := *certification
	c.db.certifications[certification.ID] = &stored
	return nil
}

func (c memCertifications) FindOpen(_ context.Context, placementID string) (*models.Certification, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	for _, v := range c.db.certifications {
		if v.PlacementID == placementID && v.Open() {
			copied := *v
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (c memCertifications) count(placementID string) int {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	n := 0
	for _, v := range c.db.certifications {
		if v.PlacementID == placementID {
			n++
		}
	}
	return n
}
