package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
)

// ParameterRepository reads the system parameter store. Writes belong to the parameter
// administration service.
type ParameterRepository struct {
	db *sqlx.DB
}

// NewParameterRepository constructs the repository.
func NewParameterRepository(db *sqlx.DB) *ParameterRepository {
	return &ParameterRepository{db: db}
}

// ListByCategories returns active parameters belonging to any of the categories.
func (r *ParameterRepository) ListByCategories(ctx context.Context, categories []string) ([]models.Parameter, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT category, name, value, description, active, updated_at
FROM parameters WHERE active = TRUE AND category IN (%s) ORDER BY category ASC, name ASC`, placeholders(len(categories)))
	args := make([]interface{}, len(categories))
	for i, category := range categories {
		args[i] = category
	}
	var params []models.Parameter
	if err := r.db.SelectContext(ctx, &params, query, args...); err != nil {
		return nil, fmt.Errorf("list parameters: %w", err)
	}
	return params, nil
}

func placeholders(n int) string {
	values := make([]string, n)
	for i := 1; i <= n; i++ {
		values[i-1] = fmt.Sprintf("$%d", i)
	}
	return strings.Join(values, ",")
}
