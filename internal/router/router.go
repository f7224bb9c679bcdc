package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/etapa-productiva-api/internal/handler"
	"github.com/noah-isme/etapa-productiva-api/internal/middleware"
	"github.com/noah-isme/etapa-productiva-api/internal/models"
	"github.com/noah-isme/etapa-productiva-api/internal/service"
	"github.com/noah-isme/etapa-productiva-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/etapa-productiva-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/etapa-productiva-api/pkg/middleware/requestid"
)

// Handlers groups everything the route table dispatches to.
type Handlers struct {
	Assignments  *handler.AssignmentHandler
	Hours        *handler.HoursHandler
	Projections  *handler.ProjectionHandler
	Bitacoras    *handler.BitacoraHandler
	Seguimientos *handler.SeguimientoHandler
	Eligibility  *handler.EligibilityHandler
	Reports      *handler.ReportHandler
	Metrics      *handler.MetricsHandler
}

// Options configures the engine.
type Options struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool
	Tokens         middleware.TokenValidator
	Metrics        *service.MetricsService
	Logger         *zap.Logger
}

// New builds the gin engine with the full route table.
func New(h Handlers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	if opts.Logger != nil {
		r.Use(logger.GinMiddleware(opts.Logger))
	}
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(opts.Metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := opts.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix, middleware.JWT(opts.Tokens), middleware.Audit(opts.Logger))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator)
	instructors := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator, models.RoleInstructor)
	everyone := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator, models.RoleInstructor, models.RoleApprentice)

	assignments := api.Group("/assignments")
	assignments.POST("", staff, h.Assignments.Assign)
	assignments.GET("", instructors, h.Assignments.List)
	assignments.GET("/:id", instructors, h.Assignments.Get)
	assignments.POST("/:id/reassign", staff, h.Assignments.Reassign)
	assignments.POST("/:id/extend", staff, h.Assignments.Extend)
	assignments.POST("/:id/withdraw", staff, h.Assignments.Withdraw)
	assignments.POST("/:id/hours", instructors, h.Assignments.RecordHours)

	hours := api.Group("/hours")
	hours.POST("", instructors, h.Hours.Submit)
	hours.GET("", instructors, h.Hours.List)
	hours.POST("/:id/approve", instructors, h.Hours.Approve)
	hours.POST("/:id/reject", instructors, h.Hours.Reject)

	projections := api.Group("/projections", instructors)
	projections.GET("/:instructorId", h.Projections.List)
	projections.GET("/:instructorId/:year/:month", h.Projections.Get)
	projections.POST("/:instructorId/:year/:month/recompute", staff, h.Projections.Recompute)

	placements := api.Group("/placements/:placementId")
	placements.GET("/bitacoras", everyone, h.Bitacoras.List)
	placements.POST("/bitacoras", everyone, h.Bitacoras.Create)
	placements.GET("/seguimientos", everyone, h.Seguimientos.List)
	placements.POST("/seguimientos", instructors, h.Seguimientos.Schedule)
	placements.GET("/eligibility", everyone, h.Eligibility.Evaluate)
	placements.POST("/certification", staff, h.Eligibility.Certify)

	bitacoras := api.Group("/bitacoras")
	bitacoras.POST("/:id/document", everyone, h.Bitacoras.AttachDocument)
	bitacoras.POST("/:id/verify", instructors, h.Bitacoras.Verify)
	bitacoras.POST("/:id/reject", instructors, h.Bitacoras.Reject)
	bitacoras.POST("/:id/reopen", instructors, h.Bitacoras.Reopen)

	seguimientos := api.Group("/seguimientos")
	seguimientos.POST("/:id/execute", instructors, h.Seguimientos.Execute)
	seguimientos.POST("/:id/verify", staff, h.Seguimientos.Verify)
	seguimientos.POST("/:id/reject", staff, h.Seguimientos.Reject)

	reports := api.Group("/reports", staff)
	reports.GET("/instructor-hours", h.Reports.InstructorHours)

	return r
}
