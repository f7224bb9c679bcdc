package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
)

var assignmentRowColumns = []string{"id", "placement_id", "instructor_id", "role", "programmed_hours", "executed_hours", "status",
	"projection_year", "projection_month", "replaces_id", "reason", "assigned_by", "assigned_at", "closed_at"}

func TestAssignmentRepositoryCreateChargesProjection(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE instructor_projections")).
		WithArgs(20.0, 0.0, false, sqlmock.AnyArg(), "inst-1", 2025, 3, int64(2)).
		WillReturnRows(projectionRow("inst-1", 2025, 3, 20, 0, 3))
	mock.ExpectCommit()

	assignment := &models.Assignment{
		PlacementID: "pl-1", InstructorID: "inst-1", Role: models.AssignmentRoleFollowUp,
		ProgrammedHours: 20, ProjectionYear: 2025, ProjectionMonth: 3, AssignedBy: "admin-1",
	}
	projection, err := repo.Create(context.Background(), assignment, ProjectionChange{
		InstructorID: "inst-1", Year: 2025, Month: 3, ExpectedVersion: 2,
		Delta: models.ProjectionDelta{Programmed: 20},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, assignment.ID)
	assert.Equal(t, models.AssignmentStatusActive, assignment.Status)
	assert.Equal(t, int64(3), projection.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryCreateDuplicateActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), &models.Assignment{PlacementID: "pl-1", Role: models.AssignmentRoleFollowUp}, ProjectionChange{})
	require.ErrorIs(t, err, ErrUniqueViolation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryReassignMovesHours(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)
	closedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assignments SET status")).
		WithArgs(models.AssignmentStatusReassigned, "instructor on leave", closedAt, "asg-1", 12.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE instructor_projections")).
		WithArgs(-8.0, 0.0, false, sqlmock.AnyArg(), "inst-1", 2025, 2, int64(5)).
		WillReturnRows(projectionRow("inst-1", 2025, 2, 12, 12, 6))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE instructor_projections")).
		WithArgs(8.0, 0.0, false, sqlmock.AnyArg(), "inst-2", 2025, 3, int64(0)).
		WillReturnRows(projectionRow("inst-2", 2025, 3, 8, 0, 1))
	mock.ExpectCommit()

	err := repo.Reassign(context.Background(), ReassignParams{
		OldID:            "asg-1",
		ExpectedExecuted: 12,
		Reason:           "instructor on leave",
		ClosedAt:         closedAt,
		New: &models.Assignment{
			PlacementID: "pl-1", InstructorID: "inst-2", Role: models.AssignmentRoleFollowUp,
			ProgrammedHours: 8, ProjectionYear: 2025, ProjectionMonth: 3, ReplacesID: strPtr("asg-1"),
		},
		Release: ProjectionChange{InstructorID: "inst-1", Year: 2025, Month: 2, ExpectedVersion: 5, Delta: models.ProjectionDelta{Programmed: -8}},
		Charge:  ProjectionChange{InstructorID: "inst-2", Year: 2025, Month: 3, ExpectedVersion: 0, Delta: models.ProjectionDelta{Programmed: 8}},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryReassignRequiresActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assignments SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Reassign(context.Background(), ReassignParams{OldID: "asg-1", New: &models.Assignment{}})
	require.ErrorIs(t, err, ErrGuardFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	rows := sqlmock.NewRows(assignmentRowColumns).
		AddRow("asg-1", "pl-1", "inst-1", "FOLLOW_UP", 20.0, 12.0, "ACTIVE", 2025, 3, nil, nil, "admin-1", time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, placement_id")).
		WithArgs("pl-1", models.AssignmentStatusActive).
		WillReturnRows(rows)

	items, err := repo.List(context.Background(), models.AssignmentFilter{PlacementID: "pl-1", Status: []models.AssignmentStatus{models.AssignmentStatusActive}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 8.0, items[0].Remaining())
}

func TestAssignmentRepositoryProgrammedForMonth(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(CASE WHEN status = 'ACTIVE'")).
		WithArgs("inst-1", 2025, 3).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(32.0))

	total, err := repo.ProgrammedForMonth(context.Background(), "inst-1", 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, 32.0, total)
}
