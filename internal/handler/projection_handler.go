package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
	appErrors "github.com/noah-isme/etapa-productiva-api/pkg/errors"
	"github.com/noah-isme/etapa-productiva-api/pkg/response"
)

type projectionService interface {
	Get(ctx context.Context, instructorID string, year, month int) (*models.InstructorProjection, error)
	ListByInstructor(ctx context.Context, instructorID string, year int) ([]models.InstructorProjection, error)
	Recompute(ctx context.Context, instructorID string, year, month int) (*models.InstructorProjection, error)
}

// ProjectionHandler exposes monthly instructor projections.
type ProjectionHandler struct {
	service projectionService
}

// NewProjectionHandler builds a new handler.
func NewProjectionHandler(service projectionService) *ProjectionHandler {
	return &ProjectionHandler{service: service}
}

// Get godoc
// @Summary Get an instructor's projection for a month
// @Tags Projections
// @Produce json
// @Param instructorId path string true "Instructor ID"
// @Param year path int true "Year"
// @Param month path int true "Month"
// @Success 200 {object} response.Envelope
// @Router /projections/{instructorId}/{year}/{month} [get]
func (h *ProjectionHandler) Get(c *gin.Context) {
	year, month, ok := h.period(c)
	if !ok {
		return
	}
	row, err := h.service.Get(c.Request.Context(), c.Param("instructorId"), year, month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil, map[string]interface{}{
		"free_hours": row.FreeHours(),
	})
}

// List godoc
// @Summary List an instructor's projections for a year
// @Tags Projections
// @Produce json
// @Param instructorId path string true "Instructor ID"
// @Param year query int true "Year"
// @Success 200 {object} response.Envelope
// @Router /projections/{instructorId} [get]
func (h *ProjectionHandler) List(c *gin.Context) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "year must be a number"))
		return
	}
	rows, err := h.service.ListByInstructor(c.Request.Context(), c.Param("instructorId"), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Recompute godoc
// @Summary Rebuild a projection from assignments and approved hours
// @Tags Projections
// @Produce json
// @Param instructorId path string true "Instructor ID"
// @Param year path int true "Year"
// @Param month path int true "Month"
// @Success 200 {object} response.Envelope
// @Router /projections/{instructorId}/{year}/{month}/recompute [post]
func (h *ProjectionHandler) Recompute(c *gin.Context) {
	year, month, ok := h.period(c)
	if !ok {
		return
	}
	row, err := h.service.Recompute(c.Request.Context(), c.Param("instructorId"), year, month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

func (h *ProjectionHandler) period(c *gin.Context) (int, int, bool) {
	year, err := intParam(c, "year")
	if err != nil {
		response.Error(c, err)
		return 0, 0, false
	}
	month, err := intParam(c, "month")
	if err != nil {
		response.Error(c, err)
		return 0, 0, false
	}
	return year, month, true
}
