package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/etapa-productiva-api/internal/dto"
	"github.com/noah-isme/etapa-productiva-api/internal/models"
	"github.com/noah-isme/etapa-productiva-api/pkg/response"
)

type assignmentService interface {
	Assign(ctx context.Context, actor *models.JWTClaims, req dto.AssignRequest) (*models.Assignment, error)
	Reassign(ctx context.Context, actor *models.JWTClaims, id string, req dto.ReassignRequest) (*models.Assignment, error)
	Withdraw(ctx context.Context, actor *models.JWTClaims, id string, req dto.WithdrawRequest) (*models.Assignment, error)
	Extend(ctx context.Context, actor *models.JWTClaims, id string, req dto.ExtendRequest) (*models.Assignment, error)
	RecordExecutedHours(ctx context.Context, actor *models.JWTClaims, id string, req dto.RecordHoursRequest) (*models.HourEntry, error)
	Get(ctx context.Context, id string) (*models.Assignment, error)
	ListByPlacement(ctx context.Context, placementID string) ([]models.Assignment, error)
	ListByInstructor(ctx context.Context, instructorID string, statuses ...models.AssignmentStatus) ([]models.Assignment, error)
}

// AssignmentHandler exposes instructor assignment endpoints.
type AssignmentHandler struct {
	service assignmentService
}

// NewAssignmentHandler builds a new handler.
func NewAssignmentHandler(service assignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: service}
}

// Assign godoc
// @Summary Assign an instructor to a placement
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body dto.AssignRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Assign(c *gin.Context) {
	var req dto.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid assignment payload"))
		return
	}
	assignment, err := h.service.Assign(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Get godoc
// @Summary Get an assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id} [get]
func (h *AssignmentHandler) Get(c *gin.Context) {
	assignment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// List godoc
// @Summary List assignments by placement or instructor
// @Tags Assignments
// @Produce json
// @Param placement_id query string false "Placement ID"
// @Param instructor_id query string false "Instructor ID"
// @Param status query string false "Status filter (instructor listings only)"
// @Success 200 {object} response.Envelope
// @Router /assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	var (
		items []models.Assignment
		err   error
	)
	switch {
	case c.Query("placement_id") != "":
		items, err = h.service.ListByPlacement(c.Request.Context(), c.Query("placement_id"))
	case c.Query("instructor_id") != "":
		var statuses []models.AssignmentStatus
		if status := c.Query("status"); status != "" {
			statuses = append(statuses, models.AssignmentStatus(status))
		}
		items, err = h.service.ListByInstructor(c.Request.Context(), c.Query("instructor_id"), statuses...)
	default:
		claims := claimsFromContext(c)
		items, err = h.service.ListByInstructor(c.Request.Context(), claims.ActorID())
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Reassign godoc
// @Summary Move an assignment to another instructor
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.ReassignRequest true "Reassignment payload"
// @Success 201 {object} response.Envelope
// @Router /assignments/{id}/reassign [post]
func (h *AssignmentHandler) Reassign(c *gin.Context) {
	var req dto.ReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid reassignment payload"))
		return
	}
	assignment, err := h.service.Reassign(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Withdraw godoc
// @Summary Withdraw an assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.WithdrawRequest true "Withdrawal payload"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/withdraw [post]
func (h *AssignmentHandler) Withdraw(c *gin.Context) {
	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid withdrawal payload"))
		return
	}
	assignment, err := h.service.Withdraw(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Extend godoc
// @Summary Raise programmed hours of an assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.ExtendRequest true "Extension payload"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/extend [post]
func (h *AssignmentHandler) Extend(c *gin.Context) {
	var req dto.ExtendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid extension payload"))
		return
	}
	assignment, err := h.service.Extend(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// RecordHours godoc
// @Summary Record executed hours for an assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.RecordHoursRequest true "Hours payload"
// @Success 201 {object} response.Envelope
// @Router /assignments/{id}/hours [post]
func (h *AssignmentHandler) RecordHours(c *gin.Context) {
	var req dto.RecordHoursRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid hours payload"))
		return
	}
	entry, err := h.service.RecordExecutedHours(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}
