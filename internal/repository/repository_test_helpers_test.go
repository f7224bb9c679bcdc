package repository

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var projectionRowColumns = []string{"instructor_id", "year", "month", "programmed_hours", "executed_hours", "available_hours", "overtime_approved", "version", "updated_at"}

func projectionRow(instructorID string, year, month int, programmed, executed float64, version int64) *sqlmock.Rows {
	return sqlmock.NewRows(projectionRowColumns).
		AddRow(instructorID, year, month, programmed, executed, 160.0, false, version, time.Now())
}

func strPtr(value string) *string {
	return &value
}
