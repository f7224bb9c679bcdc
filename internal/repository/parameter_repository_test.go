package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
)

func TestParameterRepositoryListByCategories(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParameterRepository(db)

	rows := sqlmock.NewRows([]string{"category", "name", "value", "description", "active", "updated_at"}).
		AddRow(models.ParameterCategoryInstructorHours, "HORAS_MENSUALES_INSTRUCTOR", "150", nil, true, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT category, name, value")).
		WithArgs(models.ParameterCategoryInstructorHours, models.ParameterCategoryTimeAlerts).
		WillReturnRows(rows)

	params, err := repo.ListByCategories(context.Background(), []string{models.ParameterCategoryInstructorHours, models.ParameterCategoryTimeAlerts})
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, "150", params[0].Value)
}

func TestParameterRepositoryListNoCategories(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParameterRepository(db)

	params, err := repo.ListByCategories(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestReferenceRepositoryGetInstructorRoles(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReferenceRepository(db)

	rows := sqlmock.NewRows([]string{"id", "full_name", "email", "contract_type", "roles", "monthly_available_hours", "topic_areas", "status", "created_at", "updated_at"}).
		AddRow("inst-1", "Ana Ruiz", "ana@example.com", "PLANTA", "{FOLLOW_UP,TECHNICAL}", 160.0, "{turismo}", "ACTIVE", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, full_name, email, contract_type")).
		WithArgs("inst-1").
		WillReturnRows(rows)

	instructor, err := repo.GetInstructor(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.True(t, instructor.CanActAs(models.AssignmentRoleTechnical))
	assert.False(t, instructor.CanActAs(models.AssignmentRoleProject))
	assert.Equal(t, []string{"turismo"}, []string(instructor.TopicAreas))
}
