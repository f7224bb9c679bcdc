package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/etapa-productiva-api/internal/service"
)

// unmatchedRoute labels requests that hit no route so raw paths never become label values.
const unmatchedRoute = "unmatched"

var healthRoutes = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

// Metrics records request duration and count per route template. Health and scrape routes are skipped.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if _, skip := healthRoutes[route]; skip {
			return
		}
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
