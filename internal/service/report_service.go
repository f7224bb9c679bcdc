package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
	appErrors "github.com/noah-isme/etapa-productiva-api/pkg/errors"
	"github.com/noah-isme/etapa-productiva-api/pkg/export"
)

type reportActivityStore interface {
	ApprovedByActivity(ctx context.Context, year, month int) ([]models.ActivityHours, error)
}

type reportInstructorStore interface {
	ActiveInstructors(ctx context.Context, year, month int) ([]string, error)
}

type projectionReader interface {
	Get(ctx context.Context, instructorID string, year, month int) (*models.InstructorProjection, error)
}

type instructorDirectory interface {
	GetInstructor(ctx context.Context, id string) (*models.Instructor, error)
}

type datasetRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	ContentType() string
}

const (
	colInstructorID = "Instructor ID"
	colInstructor   = "Instructor"
	colAvailable    = "Available"
	colProgrammed   = "Programmed"
	colExecuted     = "Executed"
	colUtilization  = "Utilization %"
	colOverloaded   = "Overloaded"
)

// RenderedReport is an encoded report ready to be streamed.
type RenderedReport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ReportService builds the monthly instructor hours report.
type ReportService struct {
	instructors reportInstructorStore
	activity    reportActivityStore
	projections projectionReader
	directory   instructorDirectory
	renderers   map[models.ReportFormat]datasetRenderer
	logger      *zap.Logger
}

// NewReportService wires the report sources with the CSV and PDF exporters.
func NewReportService(instructors reportInstructorStore, activity reportActivityStore, projections projectionReader, directory instructorDirectory, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		instructors: instructors,
		activity:    activity,
		projections: projections,
		directory:   directory,
		renderers: map[models.ReportFormat]datasetRenderer{
			models.ReportFormatCSV: export.NewCSVExporter(),
			models.ReportFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
	}
}

// InstructorHours compares programmed, executed and available hours per instructor for a month,
// with executed hours broken down by activity type.
func (s *ReportService) InstructorHours(ctx context.Context, year, month int) (*models.InstructorHoursReport, error) {
	if month < 1 || month > 12 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12")
	}
	ids, err := s.instructors.ActiveInstructors(ctx, year, month)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list instructors with activity")
	}
	grouped, err := s.activity.ApprovedByActivity(ctx, year, month)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to group approved hours")
	}

	byInstructor := make(map[string]map[models.ActivityType]float64)
	for _, id := range ids {
		byInstructor[id] = map[models.ActivityType]float64{}
	}
	for _, g := range grouped {
		if byInstructor[g.InstructorID] == nil {
			byInstructor[g.InstructorID] = map[models.ActivityType]float64{}
		}
		byInstructor[g.InstructorID][g.ActivityType] += g.Hours
	}

	report := &models.InstructorHoursReport{Year: year, Month: month, Rows: make([]models.InstructorHoursRow, 0, len(byInstructor))}
	for id, activities := range byInstructor {
		projection, err := s.projections.Get(ctx, id, year, month)
		if err != nil {
			return nil, err
		}
		row := models.InstructorHoursRow{
			InstructorID:   id,
			InstructorName: s.instructorName(ctx, id),
			AvailableHours: projection.AvailableHours,
			Programmed:     projection.ProgrammedHours,
			Executed:       projection.ExecutedHours,
			ByActivity:     activities,
		}
		if row.AvailableHours > 0 {
			row.Utilization = math.Round(row.Executed/row.AvailableHours*1000) / 10
		}
		row.Overloaded = row.Executed > row.AvailableHours || row.Programmed > row.AvailableHours
		if row.Overloaded {
			report.OverloadedCount++
		}
		report.Rows = append(report.Rows, row)
	}
	sort.Slice(report.Rows, func(i, j int) bool {
		return report.Rows[i].InstructorID < report.Rows[j].InstructorID
	})
	return report, nil
}

func (s *ReportService) instructorName(ctx context.Context, id string) string {
	instructor, err := s.directory.GetInstructor(ctx, id)
	if err != nil {
		s.logger.Warn("instructor lookup failed for report", zap.String("instructor_id", id), zap.Error(err))
		return id
	}
	return instructor.FullName
}

// Render encodes the report as CSV or PDF.
func (s *ReportService) Render(report *models.InstructorHoursReport, format models.ReportFormat) (*RenderedReport, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format %q", format))
	}
	period := fmt.Sprintf("%04d-%02d", report.Year, report.Month)
	body, err := renderer.Render(instructorHoursDataset(report), "Instructor hours "+period)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render report")
	}
	return &RenderedReport{
		Filename:    fmt.Sprintf("instructor-hours-%s.%s", period, format),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

func instructorHoursDataset(report *models.InstructorHoursReport) export.Dataset {
	headers := []string{colInstructorID, colInstructor, colAvailable, colProgrammed, colExecuted, colUtilization, colOverloaded}
	for _, activity := range models.ActivityTypes {
		headers = append(headers, string(activity))
	}
	rows := make([]map[string]string, 0, len(report.Rows))
	for _, r := range report.Rows {
		row := map[string]string{
			colInstructorID: r.InstructorID,
			colInstructor:   r.InstructorName,
			colAvailable:    formatHours(r.AvailableHours),
			colProgrammed:   formatHours(r.Programmed),
			colExecuted:     formatHours(r.Executed),
			colUtilization:  strconv.FormatFloat(r.Utilization, 'f', 1, 64),
			colOverloaded:   strconv.FormatBool(r.Overloaded),
		}
		for _, activity := range models.ActivityTypes {
			row[string(activity)] = formatHours(r.ByActivity[activity])
		}
		rows = append(rows, row)
	}
	return export.Dataset{
		Headers: headers,
		Rows:    rows,
		Notes:   []string{fmt.Sprintf("Instructors: %d. Overloaded: %d.", len(report.Rows), report.OverloadedCount)},
	}
}
