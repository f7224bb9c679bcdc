package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
)

func approvalChange() ProjectionChange {
	return ProjectionChange{InstructorID: "inst-1", Year: 2025, Month: 3, ExpectedVersion: 4, Delta: models.ProjectionDelta{Executed: 2}}
}

func TestLedgerRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hour_entries")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.HourEntry{InstructorID: "inst-1", AssignmentID: "asg-1", Hours: 2})
	require.ErrorIs(t, err, ErrUniqueViolation)
}

func TestLedgerRepositoryApproveAccrues(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE hour_entries")).
		WithArgs("coord-1", now, sqlmock.AnyArg(), false, "entry-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assignments SET executed_hours")).
		WithArgs(2.0, "asg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE instructor_projections")).
		WithArgs(0.0, 2.0, false, sqlmock.AnyArg(), "inst-1", 2025, 3, int64(4)).
		WillReturnRows(projectionRow("inst-1", 2025, 3, 20, 2, 5))
	mock.ExpectCommit()

	projection, err := repo.Approve(context.Background(),
		ApproveParams{EntryID: "entry-1", ReviewedBy: "coord-1", ReviewedAt: now},
		&models.HourEntry{ID: "entry-1", AssignmentID: "asg-1", Hours: 2},
		approvalChange(),
	)
	require.NoError(t, err)
	assert.Equal(t, 2.0, projection.ExecutedHours)
	assert.Equal(t, int64(5), projection.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryApproveNotPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE hour_entries")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Approve(context.Background(), ApproveParams{EntryID: "entry-1"}, &models.HourEntry{AssignmentID: "asg-1", Hours: 2}, approvalChange())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryApproveExceedsProgrammed(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE hour_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assignments SET executed_hours")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Approve(context.Background(), ApproveParams{EntryID: "entry-1"}, &models.HourEntry{AssignmentID: "asg-1", Hours: 2}, approvalChange())
	require.ErrorIs(t, err, ErrGuardFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryApproveVersionConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE hour_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assignments SET executed_hours")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE instructor_projections")).
		WillReturnRows(sqlmock.NewRows(projectionRowColumns))
	mock.ExpectRollback()

	_, err := repo.Approve(context.Background(), ApproveParams{EntryID: "entry-1"}, &models.HourEntry{AssignmentID: "asg-1", Hours: 2}, approvalChange())
	require.ErrorIs(t, err, ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryPostCredit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hour_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assignments")).
		WithArgs(0.25, 0.25, "asg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE instructor_projections")).
		WillReturnRows(projectionRow("inst-1", 2025, 3, 8.25, 8.25, 1))
	mock.ExpectCommit()

	entry := &models.HourEntry{
		InstructorID: "inst-1", AssignmentID: "asg-1", PlacementID: "pl-1", Hours: 0.25,
		ActivityType: models.ActivityBitacoraReview, Status: models.EntryStatusApproved,
		Source: models.EntrySourceBitacora, SourceID: strPtr("bit-1"),
	}
	err := repo.PostCredit(context.Background(), entry,
		[]AssignmentDelta{{AssignmentID: "asg-1", Executed: 0.25, Programmed: 0.25}},
		[]ProjectionChange{{InstructorID: "inst-1", Year: 2025, Month: 3, Delta: models.ProjectionDelta{Executed: 0.25, Programmed: 0.25}}},
	)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryPostCreditRollsBackOnClosedAssignment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hour_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assignments")).
		WithArgs(-0.25, 0.0, "asg-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	entry := &models.HourEntry{InstructorID: "inst-1", AssignmentID: "asg-1", PlacementID: "pl-1", Hours: -0.25}
	err := repo.PostCredit(context.Background(), entry,
		[]AssignmentDelta{{AssignmentID: "asg-1", Executed: -0.25}},
		[]ProjectionChange{{InstructorID: "inst-1", Year: 2025, Month: 3, Delta: models.ProjectionDelta{Executed: -0.25}}},
	)
	require.ErrorIs(t, err, ErrGuardFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryReject(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE hour_entries")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Reject(context.Background(), "entry-1", "coord-1", "wrong date", time.Now())
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLedgerRepositoryApprovedForMonth(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(hours), 0) AS executed")).
		WithArgs("inst-1", start, start.AddDate(0, 1, 0)).
		WillReturnRows(sqlmock.NewRows([]string{"executed", "overtime"}).AddRow(12.5, true))

	totals, err := repo.ApprovedForMonth(context.Background(), "inst-1", 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, 12.5, totals.Executed)
	assert.True(t, totals.Overtime)
}

func TestLedgerRepositoryApprovedByActivity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT instructor_id, activity_type, SUM(hours) AS hours")).
		WithArgs(start, start.AddDate(0, 1, 0)).
		WillReturnRows(sqlmock.NewRows([]string{"instructor_id", "activity_type", "hours"}).
			AddRow("inst-1", "BITACORA_REVIEW", 1.5).
			AddRow("inst-1", "FOLLOW_UP_VISIT", 6.0))

	rows, err := repo.ApprovedByActivity(context.Background(), 2025, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.ActivityBitacoraReview, rows[0].ActivityType)
	assert.Equal(t, 6.0, rows[1].Hours)
}

func TestLedgerRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	columns := []string{"id", "instructor_id", "assignment_id", "placement_id", "entry_date", "activity_type", "hours", "description",
		"status", "source", "source_id", "reverses_id", "overtime", "submitted_by", "submitted_at", "reviewed_by", "reviewed_at", "review_note"}
	rows := sqlmock.NewRows(columns).
		AddRow("entry-1", "inst-1", "asg-1", "pl-1", time.Now(), "FOLLOW_UP_VISIT", 2.0, "visit", "PENDING", "MANUAL", nil, nil, false, "inst-1", time.Now(), nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, instructor_id")).
		WithArgs("inst-1", models.EntryStatusPending).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM hour_entries WHERE instructor_id = $1 AND status IN ($2)")).
		WithArgs("inst-1", models.EntryStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(41))

	entries, total, err := repo.List(context.Background(), models.HourEntryFilter{InstructorID: "inst-1", Status: []models.EntryStatus{models.EntryStatusPending}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 41, total)
	assert.Equal(t, models.ActivityFollowUpVisit, entries[0].ActivityType)
}
