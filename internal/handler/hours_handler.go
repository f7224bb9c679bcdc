package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/etapa-productiva-api/internal/dto"
	"github.com/noah-isme/etapa-productiva-api/internal/models"
	"github.com/noah-isme/etapa-productiva-api/pkg/response"
)

type ledgerService interface {
	Submit(ctx context.Context, actor *models.JWTClaims, req dto.SubmitHoursRequest) (*models.HourEntry, error)
	Approve(ctx context.Context, actor *models.JWTClaims, entryID string, req dto.ApproveHoursRequest) (*models.HourEntry, error)
	Reject(ctx context.Context, actor *models.JWTClaims, entryID string, req dto.RejectRequest) (*models.HourEntry, error)
	List(ctx context.Context, actor *models.JWTClaims, query dto.HourEntryQuery) ([]models.HourEntry, *models.Pagination, error)
}

// HoursHandler exposes the hour ledger.
type HoursHandler struct {
	service ledgerService
}

// NewHoursHandler builds a new handler.
func NewHoursHandler(service ledgerService) *HoursHandler {
	return &HoursHandler{service: service}
}

// Submit godoc
// @Summary Submit executed hours for review
// @Tags Hours
// @Accept json
// @Produce json
// @Param payload body dto.SubmitHoursRequest true "Hour entry"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /hours [post]
func (h *HoursHandler) Submit(c *gin.Context) {
	var req dto.SubmitHoursRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid hour entry payload"))
		return
	}
	entry, err := h.service.Submit(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// List godoc
// @Summary List hour entries
// @Tags Hours
// @Produce json
// @Param instructor_id query string false "Instructor ID"
// @Param assignment_id query string false "Assignment ID"
// @Param placement_id query string false "Placement ID"
// @Param status query string false "PENDING, APPROVED or REJECTED"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /hours [get]
func (h *HoursHandler) List(c *gin.Context) {
	var query dto.HourEntryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid query parameters"))
		return
	}
	entries, pagination, err := h.service.List(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Approve godoc
// @Summary Approve a pending hour entry
// @Tags Hours
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body dto.ApproveHoursRequest false "Approval options"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /hours/{id}/approve [post]
func (h *HoursHandler) Approve(c *gin.Context) {
	var req dto.ApproveHoursRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid approval payload"))
			return
		}
	}
	entry, err := h.service.Approve(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Reject godoc
// @Summary Reject a pending hour entry
// @Tags Hours
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /hours/{id}/reject [post]
func (h *HoursHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid rejection payload"))
		return
	}
	entry, err := h.service.Reject(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}
