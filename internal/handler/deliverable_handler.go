package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/etapa-productiva-api/internal/dto"
	"github.com/noah-isme/etapa-productiva-api/internal/models"
	"github.com/noah-isme/etapa-productiva-api/pkg/response"
)

type bitacoraService interface {
	Create(ctx context.Context, actor *models.JWTClaims, placementID string, req dto.CreateBitacoraRequest) (*models.Bitacora, error)
	AttachDocument(ctx context.Context, actor *models.JWTClaims, id string, req dto.AttachDocumentRequest) (*models.Bitacora, error)
	Verify(ctx context.Context, actor *models.JWTClaims, id string, req dto.VerifyRequest) (*models.Bitacora, error)
	Reject(ctx context.Context, actor *models.JWTClaims, id string, req dto.RejectRequest) (*models.Bitacora, error)
	Reopen(ctx context.Context, actor *models.JWTClaims, id string, req dto.RejectRequest) (*models.Bitacora, error)
	CompletionCount(ctx context.Context, placementID string) (int, int, error)
	ListByPlacement(ctx context.Context, placementID string) ([]models.Bitacora, error)
	Overdue(ctx context.Context, placementID string, now time.Time) ([]models.Bitacora, error)
}

type seguimientoService interface {
	Schedule(ctx context.Context, actor *models.JWTClaims, placementID string, req dto.ScheduleSeguimientoRequest) (*models.Seguimiento, error)
	Execute(ctx context.Context, actor *models.JWTClaims, id string, req dto.ExecuteSeguimientoRequest) (*models.Seguimiento, error)
	Verify(ctx context.Context, actor *models.JWTClaims, id string, req dto.VerifyRequest) (*models.Seguimiento, error)
	Reject(ctx context.Context, actor *models.JWTClaims, id string, req dto.RejectRequest) (*models.Seguimiento, error)
	CompletionCount(ctx context.Context, placementID string) (int, int, error)
	ListByPlacement(ctx context.Context, placementID string) ([]models.Seguimiento, error)
}

// BitacoraHandler exposes the bitácora tracker.
type BitacoraHandler struct {
	service bitacoraService
	now     func() time.Time
}

// NewBitacoraHandler builds a new handler.
func NewBitacoraHandler(service bitacoraService) *BitacoraHandler {
	return &BitacoraHandler{service: service, now: time.Now}
}

// List godoc
// @Summary List bitácoras of a placement
// @Tags Bitacoras
// @Produce json
// @Param placementId path string true "Placement ID"
// @Param overdue query bool false "Only overdue bitácoras"
// @Success 200 {object} response.Envelope
// @Router /placements/{placementId}/bitacoras [get]
func (h *BitacoraHandler) List(c *gin.Context) {
	placementID := c.Param("placementId")
	var (
		items []models.Bitacora
		err   error
	)
	if c.Query("overdue") == "true" {
		items, err = h.service.Overdue(c.Request.Context(), placementID, h.now())
	} else {
		items, err = h.service.ListByPlacement(c.Request.Context(), placementID)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	verified, required, err := h.service.CompletionCount(c.Request.Context(), placementID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"verified": verified, "required": required})
}

// Create godoc
// @Summary Register the next bitácora of a placement
// @Tags Bitacoras
// @Accept json
// @Produce json
// @Param placementId path string true "Placement ID"
// @Param payload body dto.CreateBitacoraRequest false "Bitácora payload"
// @Success 201 {object} response.Envelope
// @Router /placements/{placementId}/bitacoras [post]
func (h *BitacoraHandler) Create(c *gin.Context) {
	var req dto.CreateBitacoraRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid bitacora payload"))
			return
		}
	}
	bitacora, err := h.service.Create(c.Request.Context(), claimsFromContext(c), c.Param("placementId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, bitacora)
}

// AttachDocument godoc
// @Summary Attach the signed document of a bitácora
// @Tags Bitacoras
// @Accept json
// @Produce json
// @Param id path string true "Bitácora ID"
// @Param payload body dto.AttachDocumentRequest true "Document reference"
// @Success 200 {object} response.Envelope
// @Router /bitacoras/{id}/document [post]
func (h *BitacoraHandler) AttachDocument(c *gin.Context) {
	var req dto.AttachDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid document payload"))
		return
	}
	bitacora, err := h.service.AttachDocument(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bitacora, nil)
}

// Verify godoc
// @Summary Verify a bitácora and credit review hours
// @Tags Bitacoras
// @Accept json
// @Produce json
// @Param id path string true "Bitácora ID"
// @Param payload body dto.VerifyRequest false "Observation"
// @Success 200 {object} response.Envelope
// @Router /bitacoras/{id}/verify [post]
func (h *BitacoraHandler) Verify(c *gin.Context) {
	var req dto.VerifyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid verification payload"))
			return
		}
	}
	bitacora, err := h.service.Verify(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bitacora, nil)
}

// Reject godoc
// @Summary Send a bitácora back to the apprentice
// @Tags Bitacoras
// @Accept json
// @Produce json
// @Param id path string true "Bitácora ID"
// @Param payload body dto.RejectRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /bitacoras/{id}/reject [post]
func (h *BitacoraHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid rejection payload"))
		return
	}
	bitacora, err := h.service.Reject(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bitacora, nil)
}

// Reopen godoc
// @Summary Reopen a verified bitácora and reverse its credit
// @Tags Bitacoras
// @Accept json
// @Produce json
// @Param id path string true "Bitácora ID"
// @Param payload body dto.RejectRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /bitacoras/{id}/reopen [post]
func (h *BitacoraHandler) Reopen(c *gin.Context) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid reopen payload"))
		return
	}
	bitacora, err := h.service.Reopen(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bitacora, nil)
}

// SeguimientoHandler exposes the seguimiento tracker.
type SeguimientoHandler struct {
	service seguimientoService
}

// NewSeguimientoHandler builds a new handler.
func NewSeguimientoHandler(service seguimientoService) *SeguimientoHandler {
	return &SeguimientoHandler{service: service}
}

// List godoc
// @Summary List seguimientos of a placement
// @Tags Seguimientos
// @Produce json
// @Param placementId path string true "Placement ID"
// @Success 200 {object} response.Envelope
// @Router /placements/{placementId}/seguimientos [get]
func (h *SeguimientoHandler) List(c *gin.Context) {
	placementID := c.Param("placementId")
	items, err := h.service.ListByPlacement(c.Request.Context(), placementID)
	if err != nil {
		response.Error(c, err)
		return
	}
	verified, required, err := h.service.CompletionCount(c.Request.Context(), placementID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"verified": verified, "required": required})
}

// Schedule godoc
// @Summary Schedule a seguimiento
// @Tags Seguimientos
// @Accept json
// @Produce json
// @Param placementId path string true "Placement ID"
// @Param payload body dto.ScheduleSeguimientoRequest true "Seguimiento payload"
// @Success 201 {object} response.Envelope
// @Router /placements/{placementId}/seguimientos [post]
func (h *SeguimientoHandler) Schedule(c *gin.Context) {
	var req dto.ScheduleSeguimientoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid seguimiento payload"))
		return
	}
	seguimiento, err := h.service.Schedule(c.Request.Context(), claimsFromContext(c), c.Param("placementId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, seguimiento)
}

// Execute godoc
// @Summary Record the outcome of a seguimiento
// @Tags Seguimientos
// @Accept json
// @Produce json
// @Param id path string true "Seguimiento ID"
// @Param payload body dto.ExecuteSeguimientoRequest true "Results"
// @Success 200 {object} response.Envelope
// @Router /seguimientos/{id}/execute [post]
func (h *SeguimientoHandler) Execute(c *gin.Context) {
	var req dto.ExecuteSeguimientoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid execution payload"))
		return
	}
	seguimiento, err := h.service.Execute(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, seguimiento, nil)
}

// Verify godoc
// @Summary Verify a seguimiento and credit visit hours
// @Tags Seguimientos
// @Accept json
// @Produce json
// @Param id path string true "Seguimiento ID"
// @Param payload body dto.VerifyRequest false "Observation"
// @Success 200 {object} response.Envelope
// @Router /seguimientos/{id}/verify [post]
func (h *SeguimientoHandler) Verify(c *gin.Context) {
	var req dto.VerifyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid verification payload"))
			return
		}
	}
	seguimiento, err := h.service.Verify(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, seguimiento, nil)
}

// Reject godoc
// @Summary Send a seguimiento back for rework
// @Tags Seguimientos
// @Accept json
// @Produce json
// @Param id path string true "Seguimiento ID"
// @Param payload body dto.RejectRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /seguimientos/{id}/reject [post]
func (h *SeguimientoHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid rejection payload"))
		return
	}
	seguimiento, err := h.service.Reject(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, seguimiento, nil)
}
