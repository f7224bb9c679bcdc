package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/etapa-productiva-api/internal/models"
	appErrors "github.com/noah-isme/etapa-productiva-api/pkg/errors"
	"github.com/noah-isme/etapa-productiva-api/pkg/response"
)

// RequireRoles admits requests whose claims carry at least one of roles.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !claims.HasRole(roles...) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
