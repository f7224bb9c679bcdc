package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/etapa-productiva-api/internal/middleware"
	"github.com/noah-isme/etapa-productiva-api/internal/models"
	appErrors "github.com/noah-isme/etapa-productiva-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}

func intParam(c *gin.Context, name string) (int, error) {
	value, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, name+" must be a number")
	}
	return value, nil
}
