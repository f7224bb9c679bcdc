package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/etapa-productiva-api/pkg/middleware/requestid"
)

// Audit records every successful state-changing request on the audit logger.
func Audit(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("audit")
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}
		if c.Writer.Status() >= http.StatusBadRequest {
			return
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.String("request_id", requestid.Value(c)),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		for _, p := range c.Params {
			fields = append(fields, zap.String("param."+p.Key, p.Value))
		}
		if claims := Claims(c); claims != nil {
			fields = append(fields, zap.String("actor_id", claims.ActorID()), zap.Any("roles", claims.Roles))
		}
		logger.Info("mutation accepted", fields...)
	}
}
