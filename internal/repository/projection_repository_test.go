package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
)

func TestProjectionRepositoryEnsureCreatesRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProjectionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO instructor_projections")).
		WithArgs("inst-1", 2025, 3, 160.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT instructor_id, year, month")).
		WithArgs("inst-1", 2025, 3).
		WillReturnRows(projectionRow("inst-1", 2025, 3, 0, 0, 0))

	projection, err := repo.Ensure(context.Background(), "inst-1", 2025, 3, 160)
	require.NoError(t, err)
	assert.Equal(t, 160.0, projection.AvailableHours)
	assert.Equal(t, int64(0), projection.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectionRepositoryReplaceVersionConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProjectionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO instructor_projections")).
		WillReturnRows(sqlmock.NewRows(projectionRowColumns))

	_, err := repo.Replace(context.Background(), &models.InstructorProjection{
		InstructorID: "inst-1", Year: 2025, Month: 3, ProgrammedHours: 20, ExecutedHours: 4, AvailableHours: 160,
	}, 7)
	require.ErrorIs(t, err, ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectionRepositoryReplaceBumpsVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProjectionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO instructor_projections")).
		WithArgs("inst-1", 2025, 3, 20.0, 4.0, 160.0, false, sqlmock.AnyArg(), int64(7)).
		WillReturnRows(projectionRow("inst-1", 2025, 3, 20, 4, 8))

	stored, err := repo.Replace(context.Background(), &models.InstructorProjection{
		InstructorID: "inst-1", Year: 2025, Month: 3, ProgrammedHours: 20, ExecutedHours: 4, AvailableHours: 160,
	}, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(8), stored.Version)
}

func TestProjectionRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProjectionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT instructor_id, year, month")).
		WithArgs("inst-9", 2025, 1).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "inst-9", 2025, 1)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestProjectionRepositoryActiveInstructors(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProjectionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT instructor_id FROM assignments")).
		WithArgs(2025, 3).
		WillReturnRows(sqlmock.NewRows([]string{"instructor_id"}).AddRow("inst-1").AddRow("inst-2"))

	ids, err := repo.ActiveInstructors(context.Background(), 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"inst-1", "inst-2"}, ids)
}
