package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/etapa-productiva-api/api/swagger"
	"github.com/noah-isme/etapa-productiva-api/internal/handler"
	"github.com/noah-isme/etapa-productiva-api/internal/repository"
	"github.com/noah-isme/etapa-productiva-api/internal/router"
	"github.com/noah-isme/etapa-productiva-api/internal/service"
	"github.com/noah-isme/etapa-productiva-api/pkg/cache"
	"github.com/noah-isme/etapa-productiva-api/pkg/config"
	"github.com/noah-isme/etapa-productiva-api/pkg/database"
	"github.com/noah-isme/etapa-productiva-api/pkg/lock"
	"github.com/noah-isme/etapa-productiva-api/pkg/logger"
	"github.com/noah-isme/etapa-productiva-api/pkg/storage"
)

// @title Etapa Productiva API
// @version 1.0.0
// @description Instructor capacity allocation and certification eligibility for productive-stage placements
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var locker lock.Locker = lock.NewKeyed()
	if cfg.Lock.Backend == config.LockBackendRedis {
		if redisClient == nil {
			logr.Fatal("redis lock backend requires redis")
		}
		locker = lock.NewRedisLocker(redisClient, lock.RedisConfig{TTL: cfg.Lock.TTL, Logger: logr})
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	refs := repository.NewReferenceRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	projectionRepo := repository.NewProjectionRepository(db)
	bitacoraRepo := repository.NewBitacoraRepository(db)
	seguimientoRepo := repository.NewSeguimientoRepository(db)
	certificationRepo := repository.NewCertificationRepository(db)
	parameterRepo := repository.NewParameterRepository(db)

	rules := service.NewRuleTable(parameterRepo, logr, service.WithHoursTolerance(cfg.Ledger.HoursTolerance))
	if err := rules.Reload(ctx); err != nil {
		logr.Warn("rule parameters unavailable, using defaults", zap.Error(err))
	}

	var sink service.EventSink = service.LogSink{Logger: logr}
	if redisClient != nil && cfg.Notifications.Channel != "" {
		sink = repository.NewEventPublisher(redisClient, cfg.Notifications.Channel)
	}
	notifications := service.NewNotificationService(sink, service.NotificationConfig{
		Enabled: cfg.Notifications.Enabled,
		Workers: cfg.Notifications.Workers,
		Buffer:  cfg.Notifications.Buffer,
	}, logr)
	notifications.Start(ctx)
	defer notifications.Stop()

	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metrics, cfg.Projection.CacheTTL, logr, redisClient != nil)
	authz := service.NewAuthorizer(refs)
	signer := storage.NewDocumentSigner(cfg.Documents.SigningSecret, cfg.Documents.TokenTTL)

	projections := service.NewProjectionService(projectionRepo, assignmentRepo, ledgerRepo, refs, rules, locker, service.ProjectionConfig{
		MaxRetries:        cfg.Ledger.MaxRetries,
		RetryBaseDelay:    cfg.Ledger.RetryBaseDelay,
		ReconcileInterval: cfg.Projection.ReconcileInterval,
	}, logr,
		service.WithProjectionCache(cacheSvc),
		service.WithProjectionMetrics(metrics),
		service.WithProjectionClock(time.Now, cfg.Location()),
	)
	ledger := service.NewLedgerService(ledgerRepo, assignmentRepo, refs, projections, rules, authz, validate, logr,
		service.WithLedgerEvents(notifications),
		service.WithLedgerMetrics(metrics),
	)
	assignments := service.NewAssignmentService(assignmentRepo, refs, ledgerRepo, certificationRepo, ledger, projections, rules, authz, validate, logr,
		service.WithAssignmentEvents(notifications),
	)
	bitacoras := service.NewBitacoraService(bitacoraRepo, refs, assignmentRepo, ledger, signer, rules, authz, locker, validate, logr,
		service.WithBitacoraEvents(notifications),
	)
	seguimientos := service.NewSeguimientoService(seguimientoRepo, refs, ledger, signer, rules, authz, validate, logr,
		service.WithSeguimientoEvents(notifications),
	)
	eligibility := service.NewEligibilityService(refs, bitacoras, seguimientos, assignmentRepo, certificationRepo, rules, authz, locker, logr,
		service.WithEligibilityEvents(notifications),
		service.WithEligibilityMetrics(metrics),
	)
	ledger.SetEligibilityWatcher(eligibility)
	bitacoras.SetEligibilityWatcher(eligibility)
	seguimientos.SetEligibilityWatcher(eligibility)

	reports := service.NewReportService(projectionRepo, ledgerRepo, projections, refs, logr)

	projections.StartReconciler(ctx)

	readiness := []handler.ReadinessCheck{{Name: "postgres", Check: db.PingContext}}
	if redisClient != nil {
		readiness = append(readiness, handler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}

	engine := router.New(router.Handlers{
		Assignments:  handler.NewAssignmentHandler(assignments),
		Hours:        handler.NewHoursHandler(ledger),
		Projections:  handler.NewProjectionHandler(projections),
		Bitacoras:    handler.NewBitacoraHandler(bitacoras),
		Seguimientos: handler.NewSeguimientoHandler(seguimientos),
		Eligibility:  handler.NewEligibilityHandler(eligibility),
		Reports:      handler.NewReportHandler(reports),
		Metrics:      handler.NewMetricsHandler(metrics, readiness...),
	}, router.Options{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Tokens:         service.NewTokenService(cfg.JWT),
		Metrics:        metrics,
		Logger:         logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}
