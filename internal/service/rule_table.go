package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
	appErrors "github.com/noah-isme/etapa-productiva-api/pkg/errors"
)

// ModalityRuleTable exposes the reference-data rules the engine depends on.
type ModalityRuleTable interface {
	// RequiredHours returns the hours a modality owes to a role; zero means the role is not required.
	RequiredHours(modality models.Modality, role models.AssignmentRole) float64
	// SessionHours is the fixed advisory session length for a modality and role.
	SessionHours(modality models.Modality, role models.AssignmentRole) float64
	RequiredTotalHours(modality models.Modality) float64
	// ExpiryWindow returns how long a class group opened at openedAt stays valid.
	ExpiryWindow(openedAt time.Time) time.Duration
	MonthlyCapacity() float64
	FollowUpVisitHours() float64
	ExtraordinaryVisitHours() float64
	BitacoraReviewHours() float64
	BitacoraDueAfter() time.Duration
	MaxBitacoras() int
	RequiredSeguimientos() int
	HoursTolerance() float64
}

// ExpiryCutover separates class groups on the long and short expiry windows.
var ExpiryCutover = time.Date(2024, time.November, 1, 0, 0, 0, 0, time.UTC)

// ModalityRule is the per-modality hour table stored under MODALIDADES.
type ModalityRule struct {
	FollowUp         float64 `json:"horasSegui"`
	Technical        float64 `json:"horasTecn"`
	Project          float64 `json:"horasProy"`
	TechnicalSession float64 `json:"sesionTecn,omitempty"`
	ProjectSession   float64 `json:"sesionProy,omitempty"`
}

type ruleValues struct {
	modalities         map[models.Modality]ModalityRule
	followUpVisit      float64
	extraordinaryVisit float64
	bitacoraReview     float64
	monthlyCapacity    float64
	sessionDefault     float64
	bitacoraDueDays    int
	expiryMonthsBefore int
	expiryMonthsAfter  int
	maxBitacoras       int
	requiredSegs       int
	requiredTotalHours float64
	hoursTolerance     float64
}

func defaultRuleValues() ruleValues {
	return ruleValues{
		modalities: map[models.Modality]ModalityRule{
			models.ModalityPasantia:                {FollowUp: 8},
			models.ModalityVinculoLaboral:          {FollowUp: 8},
			models.ModalityUnidadProductivaFamilia: {FollowUp: 8},
			models.ModalityContratoAprendizaje:     {FollowUp: 8},
			models.ModalityProyectoEmpresarial:     {FollowUp: 8, Technical: 24, Project: 48},
			models.ModalityProyectoProductivo:      {FollowUp: 8, Technical: 32},
			models.ModalityProyectoProductivoID:    {FollowUp: 8, Technical: 32, Project: 48},
			models.ModalityProyectoSocial:          {FollowUp: 8},
			models.ModalityMonitorias:              {},
		},
		followUpVisit:      2,
		extraordinaryVisit: 2,
		bitacoraReview:     0.25,
		monthlyCapacity:    160,
		sessionDefault:     8,
		bitacoraDueDays:    15,
		expiryMonthsBefore: 24,
		expiryMonthsAfter:  12,
		maxBitacoras:       12,
		requiredSegs:       3,
		requiredTotalHours: 864,
		hoursTolerance:     0.5,
	}
}

type parameterSource interface {
	ListByCategories(ctx context.Context, categories []string) ([]models.Parameter, error)
}

// RuleTable is the ModalityRuleTable backed by built-in defaults and the parameter store.
type RuleTable struct {
	mu     sync.RWMutex
	values ruleValues
	source parameterSource
	logger *zap.Logger
}

// RuleTableOption configures a RuleTable.
type RuleTableOption func(*RuleTable)

// WithHoursTolerance overrides the advisory hours tolerance.
func WithHoursTolerance(tolerance float64) RuleTableOption {
	return func(t *RuleTable) {
		if tolerance >= 0 {
			t.values.hoursTolerance = tolerance
		}
	}
}

// WithModalityRule replaces the hour table of one modality.
func WithModalityRule(modality models.Modality, rule ModalityRule) RuleTableOption {
	return func(t *RuleTable) {
		t.values.modalities[modality] = rule
	}
}

// NewRuleTable builds a rule table with defaults. source may be nil.
func NewRuleTable(source parameterSource, logger *zap.Logger, opts ...RuleTableOption) *RuleTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &RuleTable{values: defaultRuleValues(), source: source, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Reload rebuilds the table from active parameters. Unknown or malformed entries keep their defaults.
func (t *RuleTable) Reload(ctx context.Context) error {
	if t.source == nil {
		return nil
	}
	params, err := t.source.ListByCategories(ctx, []string{
		models.ParameterCategoryInstructorHours,
		models.ParameterCategoryModalities,
		models.ParameterCategoryTimeAlerts,
		models.ParameterCategoryBusinessRules,
	})
	if err != nil {
		return appErrors.Internal(err, "failed to load rule parameters")
	}

	t.mu.RLock()
	next := t.values
	t.mu.RUnlock()
	base := next.modalities
	next.modalities = make(map[models.Modality]ModalityRule, len(base))
	for k, v := range base {
		next.modalities[k] = v
	}

	for _, p := range params {
		if !p.Active {
			continue
		}
		if err := next.apply(p); err != nil {
			t.logger.Warn("ignoring rule parameter", zap.String("category", p.Category), zap.String("name", p.Name), zap.Error(err))
		}
	}

	t.mu.Lock()
	t.values = next
	t.mu.Unlock()
	t.logger.Info("rule table loaded", zap.Int("parameters", len(params)))
	return nil
}

func (v *ruleValues) apply(p models.Parameter) error {
	value := strings.TrimSpace(p.Value)
	switch p.Category {
	case models.ParameterCategoryModalities:
		if !strings.HasPrefix(p.Name, "MODALIDAD_") {
			return nil
		}
		var rule ModalityRule
		if err := json.Unmarshal([]byte(value), &rule); err != nil {
			return err
		}
		v.modalities[models.Modality(strings.TrimPrefix(p.Name, "MODALIDAD_"))] = rule
		return nil
	case models.ParameterCategoryInstructorHours:
		target := map[string]*float64{
			"HORAS_SEGUIMIENTO_BASE":      &v.followUpVisit,
			"HORAS_SEGUIMIENTO_ADICIONAL": &v.extraordinaryVisit,
			"HORAS_BITACORA":              &v.bitacoraReview,
			"HORAS_MENSUALES_INSTRUCTOR":  &v.monthlyCapacity,
			"HORAS_PROYECTO_MENSUAL":      &v.sessionDefault,
		}[p.Name]
		return setFloat(target, value)
	case models.ParameterCategoryTimeAlerts:
		target := map[string]*int{
			"DIAS_VENCIMIENTO_BITACORA":                &v.bitacoraDueDays,
			"MESES_VENCIMIENTO_FICHA_ANTERIOR_NOV2024":  &v.expiryMonthsBefore,
			"MESES_VENCIMIENTO_FICHA_POSTERIOR_NOV2024": &v.expiryMonthsAfter,
		}[p.Name]
		return setInt(target, value)
	case models.ParameterCategoryBusinessRules:
		switch p.Name {
		case "MAX_BITACORAS_EP":
			return setInt(&v.maxBitacoras, value)
		case "MAX_SEGUIMIENTOS_EP":
			return setInt(&v.requiredSegs, value)
		case "MIN_HORAS_EP_PASANTIA":
			return setFloat(&v.requiredTotalHours, value)
		}
	}
	return nil
}

func setFloat(target *float64, raw string) error {
	if target == nil {
		return nil
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

func setInt(target *int, raw string) error {
	if target == nil {
		return nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

func (t *RuleTable) snapshot() ruleValues {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values
}

// RequiredHours implements ModalityRuleTable.
func (t *RuleTable) RequiredHours(modality models.Modality, role models.AssignmentRole) float64 {
	rule := t.snapshot().modalities[modality]
	switch role {
	case models.AssignmentRoleFollowUp:
		return rule.FollowUp
	case models.AssignmentRoleTechnical:
		return rule.Technical
	case models.AssignmentRoleProject:
		return rule.Project
	}
	return 0
}

// SessionHours implements ModalityRuleTable. Roles the modality does not require have no session.
func (t *RuleTable) SessionHours(modality models.Modality, role models.AssignmentRole) float64 {
	values := t.snapshot()
	rule := values.modalities[modality]
	switch role {
	case models.AssignmentRoleTechnical:
		if rule.Technical == 0 {
			return 0
		}
		if rule.TechnicalSession > 0 {
			return rule.TechnicalSession
		}
	case models.AssignmentRoleProject:
		if rule.Project == 0 {
			return 0
		}
		if rule.ProjectSession > 0 {
			return rule.ProjectSession
		}
	default:
		return 0
	}
	return values.sessionDefault
}

// RequiredTotalHours implements ModalityRuleTable.
func (t *RuleTable) RequiredTotalHours(models.Modality) float64 {
	return t.snapshot().requiredTotalHours
}

// ExpiryWindow implements ModalityRuleTable.
func (t *RuleTable) ExpiryWindow(openedAt time.Time) time.Duration {
	values := t.snapshot()
	months := values.expiryMonthsAfter
	if openedAt.Before(ExpiryCutover) {
		months = values.expiryMonthsBefore
	}
	return openedAt.AddDate(0, months, 0).Sub(openedAt)
}

// MonthlyCapacity implements ModalityRuleTable.
func (t *RuleTable) MonthlyCapacity() float64 { return t.snapshot().monthlyCapacity }

// FollowUpVisitHours implements ModalityRuleTable.
func (t *RuleTable) FollowUpVisitHours() float64 { return t.snapshot().followUpVisit }

// ExtraordinaryVisitHours implements ModalityRuleTable.
func (t *RuleTable) ExtraordinaryVisitHours() float64 { return t.snapshot().extraordinaryVisit }

// BitacoraReviewHours implements ModalityRuleTable.
func (t *RuleTable) BitacoraReviewHours() float64 { return t.snapshot().bitacoraReview }

// BitacoraDueAfter implements ModalityRuleTable.
func (t *RuleTable) BitacoraDueAfter() time.Duration {
	return time.Duration(t.snapshot().bitacoraDueDays) * 24 * time.Hour
}

// MaxBitacoras implements ModalityRuleTable.
func (t *RuleTable) MaxBitacoras() int { return t.snapshot().maxBitacoras }

// RequiredSeguimientos implements ModalityRuleTable.
func (t *RuleTable) RequiredSeguimientos() int { return t.snapshot().requiredSegs }

// HoursTolerance implements ModalityRuleTable.
func (t *RuleTable) HoursTolerance() float64 { return t.snapshot().hoursTolerance }
