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
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/bprnd-credit-api/api/swagger"
	"github.com/noah-isme/bprnd-credit-api/internal/handler"
	"github.com/noah-isme/bprnd-credit-api/internal/middleware"
	"github.com/noah-isme/bprnd-credit-api/internal/models"
	"github.com/noah-isme/bprnd-credit-api/internal/repository"
	"github.com/noah-isme/bprnd-credit-api/internal/service"
	"github.com/noah-isme/bprnd-credit-api/pkg/cache"
	"github.com/noah-isme/bprnd-credit-api/pkg/config"
	"github.com/noah-isme/bprnd-credit-api/pkg/database"
	"github.com/noah-isme/bprnd-credit-api/pkg/jobs"
	"github.com/noah-isme/bprnd-credit-api/pkg/lock"
	"github.com/noah-isme/bprnd-credit-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/bprnd-credit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/bprnd-credit-api/pkg/middleware/requestid"
)

// @title BPRND Credit API
// @version 1.0.0
// @description Course credit ledger and certification claim workflow
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type dbPinger struct{ db *sqlx.DB }

func (p dbPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()
	locks := lock.NewKeyedLocker(cfg.Locks.WaitTimeout, lock.WithObserver(metricsSvc.LockObserver()))
	validate := validator.New()

	courseRepo := repository.NewCourseRepository(db)
	ledgerRepo := repository.NewCreditLedgerRepository(db)
	claimRepo := repository.NewClaimRepository(db)
	certRepo := repository.NewCertificateRepository(db)
	requirementRepo := repository.NewRequirementRepository(db)
	importRepo := repository.NewImportBatchRepository(db)

	rates := models.CreditRates{
		Theory:    cfg.Credits.TheoryRate,
		Practical: cfg.Credits.PracticalRate,
		Places:    cfg.Credits.Precision,
	}
	ledgerSvc := service.NewCreditLedgerService(courseRepo, ledgerRepo, locks, rates, validate,
		logr.Named("ledger"), service.WithLedgerMetrics(metricsSvc))
	requirementSvc := service.NewRequirementService(requirementRepo, cfg.Credits.Requirements, validate, logr.Named("requirements"))
	allocatorSvc := service.NewClaimAllocatorService(requirementSvc, ledgerSvc, claimRepo, locks, validate, metricsSvc, logr.Named("allocator"))
	mappingSvc := service.NewCertificateMappingService(claimRepo, certRepo, ledgerSvc, locks, metricsSvc, logr.Named("certificates"))
	approvalSvc := service.NewApprovalService(claimRepo, ledgerSvc, mappingSvc, locks, metricsSvc, logr.Named("approvals"))
	snapshots := service.NewSnapshotCache(cacheRepo, metricsSvc, cfg.Analytics.CacheTTL, logr.Named("snapshots"), cfg.Analytics.Enabled && redisClient != nil)
	querySvc := service.NewClaimQueryService(claimRepo, snapshots, logr.Named("queries"))
	allocatorSvc.OnChange(querySvc.ForgetAnalytics)
	approvalSvc.OnChange(querySvc.ForgetAnalytics)
	authSvc := service.NewAuthService(logr.Named("auth"), service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret})

	importWorker := service.NewCourseImportWorker(importRepo, ledgerSvc, logr.Named("import"))
	importQueue := jobs.NewQueue(service.CourseImportJobType, importWorker.Handle, jobs.QueueConfig{
		Workers:     cfg.Import.Workers,
		BufferSize:  cfg.Import.BufferSize,
		MaxRetries:  cfg.Import.Retries,
		RetryDelay:  cfg.Import.RetryDelay,
		Logger:      logr.Named("queue"),
		OnExhausted: importWorker.OnExhausted,
	})
	importQueue.Start(context.Background())
	importSvc := service.NewCourseImportService(importRepo, importQueue, validate, logr.Named("import"))

	if cfg.Recovery.Enabled {
		recovery := service.NewReservationRecoveryService(ledgerRepo, ledgerSvc, cfg.Recovery.OrphanAge, logr.Named("recovery"))
		go recovery.Run(ctx, cfg.Recovery.Interval)
	}

	courseHandler := handler.NewCourseHandler(ledgerSvc, importSvc)
	claimHandler := handler.NewClaimHandler(allocatorSvc, approvalSvc, querySvc, mappingSvc)
	certificateHandler := handler.NewCertificateHandler(mappingSvc)
	requirementHandler := handler.NewRequirementHandler(requirementSvc)
	analyticsHandler := handler.NewAnalyticsHandler(querySvc, metricsSvc)
	if !cfg.Analytics.Enabled {
		analyticsHandler = handler.NewAnalyticsHandler(nil, metricsSvc)
	}
	checks := map[string]handler.Pinger{"postgres": dbPinger{db: db}}
	if redisClient != nil {
		checks["redis"] = cacheRepo
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc.Handler(), checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc), middleware.WithResponseMeta())

	admin := middleware.RequireRoles(models.RoleAdmin)
	poc := middleware.RequireRoles(models.RolePOC)
	reviewers := middleware.RequireRoles(models.RoleAdmin, models.RolePOC)

	api.POST("/courses", admin, courseHandler.Record)
	api.POST("/courses/import", admin, courseHandler.Import)
	api.GET("/course-imports/:id", admin, courseHandler.ImportStatus)
	api.GET("/courses/:id", courseHandler.Get)
	api.GET("/courses/:id/balance", courseHandler.Balance)
	api.GET("/students/:id/credits", courseHandler.StudentCredits)
	api.GET("/students/:id/courses", courseHandler.StudentCourses)
	api.GET("/students/:id/certificates", certificateHandler.ForStudent)

	api.POST("/claims", claimHandler.Submit)
	api.GET("/claims", claimHandler.List)
	api.GET("/claims/:id", claimHandler.Get)
	api.GET("/claims/:id/contributions", claimHandler.Contributions)
	api.GET("/claims/:id/events", claimHandler.Events)
	api.GET("/claims/:id/certificate", certificateHandler.ByClaim)
	api.POST("/claims/:id/poc-approve", poc, claimHandler.PocApprove)
	api.POST("/claims/:id/poc-decline", poc, claimHandler.PocDecline)
	api.POST("/claims/:id/admin-approve", admin, claimHandler.AdminApprove)
	api.POST("/claims/:id/admin-decline", admin, claimHandler.AdminDecline)
	api.POST("/claims/:id/finalize", admin, claimHandler.Finalize)

	api.GET("/certificates/:id", certificateHandler.Get)

	api.GET("/requirements", requirementHandler.List)
	api.PUT("/requirements", admin, requirementHandler.Upsert)

	api.GET("/analytics/claims", reviewers, analyticsHandler.Claims)
	api.GET("/analytics/system", admin, analyticsHandler.System)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	if err := importQueue.Drain(shutdownCtx); err != nil {
		logr.Warn("import queue did not drain", zap.Error(err))
	}
	importQueue.Stop()
}
