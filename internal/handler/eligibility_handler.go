package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
	"github.com/noah-isme/etapa-productiva-api/pkg/response"
)

type eligibilityService interface {
	EvaluateNow(ctx context.Context, placementID string) (*models.Verdict, error)
	CreateCertification(ctx context.Context, actor *models.JWTClaims, placementID string) (*models.Certification, error)
}

// EligibilityHandler exposes certification eligibility.
type EligibilityHandler struct {
	service eligibilityService
}

// NewEligibilityHandler builds a new handler.
func NewEligibilityHandler(service eligibilityService) *EligibilityHandler {
	return &EligibilityHandler{service: service}
}

// Evaluate godoc
// @Summary Evaluate certification prerequisites of a placement
// @Tags Eligibility
// @Produce json
// @Param placementId path string true "Placement ID"
// @Success 200 {object} response.Envelope
// @Router /placements/{placementId}/eligibility [get]
func (h *EligibilityHandler) Evaluate(c *gin.Context) {
	verdict, err := h.service.EvaluateNow(c.Request.Context(), c.Param("placementId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, verdict, nil)
}

// Certify godoc
// @Summary Open a certification request for an eligible placement
// @Tags Eligibility
// @Produce json
// @Param placementId path string true "Placement ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /placements/{placementId}/certification [post]
func (h *EligibilityHandler) Certify(c *gin.Context) {
	certification, err := h.service.CreateCertification(c.Request.Context(), claimsFromContext(c), c.Param("placementId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, certification)
}
