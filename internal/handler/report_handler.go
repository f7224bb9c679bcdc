package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/etapa-productiva-api/internal/dto"
	"github.com/noah-isme/etapa-productiva-api/internal/models"
	"github.com/noah-isme/etapa-productiva-api/internal/service"
	"github.com/noah-isme/etapa-productiva-api/pkg/response"
)

type reportService interface {
	InstructorHours(ctx context.Context, year, month int) (*models.InstructorHoursReport, error)
	Render(report *models.InstructorHoursReport, format models.ReportFormat) (*service.RenderedReport, error)
}

// ReportHandler serves staff reports.
type ReportHandler struct {
	service reportService
}

// NewReportHandler builds a new handler.
func NewReportHandler(service reportService) *ReportHandler {
	return &ReportHandler{service: service}
}

// InstructorHours godoc
// @Summary Monthly instructor hours report
// @Description Programmed against executed hours per instructor, broken down by activity, with overloaded instructors flagged.
// @Tags Reports
// @Produce json
// @Produce text/csv
// @Produce application/pdf
// @Param year query int true "Year"
// @Param month query int true "Month"
// @Param format query string false "json, csv or pdf"
// @Success 200 {object} response.Envelope
// @Router /reports/instructor-hours [get]
func (h *ReportHandler) InstructorHours(c *gin.Context) {
	var query dto.InstructorHoursReportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "year and month are required"))
		return
	}
	report, err := h.service.InstructorHours(c.Request.Context(), query.Year, query.Month)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := models.ReportFormat(query.Format)
	if format == "" || format == models.ReportFormatJSON {
		response.JSON(c, http.StatusOK, report, nil)
		return
	}
	rendered, err := h.service.Render(report, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, rendered.Filename, rendered.ContentType, rendered.Body)
}
