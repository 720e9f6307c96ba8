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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/directory-moderation-api/api/swagger"
	"github.com/noah-isme/directory-moderation-api/internal/handler"
	"github.com/noah-isme/directory-moderation-api/internal/middleware"
	"github.com/noah-isme/directory-moderation-api/internal/repository"
	"github.com/noah-isme/directory-moderation-api/internal/service"
	"github.com/noah-isme/directory-moderation-api/pkg/cache"
	"github.com/noah-isme/directory-moderation-api/pkg/config"
	"github.com/noah-isme/directory-moderation-api/pkg/database"
	"github.com/noah-isme/directory-moderation-api/pkg/jobs"
	"github.com/noah-isme/directory-moderation-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/directory-moderation-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/directory-moderation-api/pkg/middleware/requestid"
)

// @title Directory Moderation API
// @version 1.0.0
// @description Moderated submissions, review decisions and directory reads.
// @BasePath /api/v1
// @schemes http
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	entityRepo := repository.NewEntityRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	pendingRepo := repository.NewPendingChangeRepository(db)

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, entity cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.EntityTTL, logr, cacheRepo != nil)
	entitySvc := service.NewEntityService(entityRepo, catalogRepo, cacheSvc, cfg.Cache.EntityTTL, logr)

	normalizerOpts := []service.NormalizerOption{service.WithDuplicateThreshold(cfg.Moderation.DuplicateThreshold)}
	if geocoder := service.NewHTTPGeocoder(cfg.Geocoder, nil); geocoder != nil {
		normalizerOpts = append(normalizerOpts, service.WithGeocoder(geocoder))
	}
	if coverage := service.NewBoundingBoxCoverage(cfg.Coverage); coverage != nil {
		normalizerOpts = append(normalizerOpts, service.WithCoverageChecker(coverage))
	}
	normalizer := service.NewSubmissionNormalizer(validate, entityRepo, catalogRepo, logr, normalizerOpts...)

	moderationOpts := []service.ModerationOption{
		service.WithEntityCache(entitySvc),
		service.WithModerationMetrics(metrics),
	}
	if research := service.NewHTTPResearchProducer(cfg.Research, nil); research != nil {
		moderationOpts = append(moderationOpts, service.WithResearchProducer(research))
	}

	if cfg.Notifications.Enabled {
		worker := service.NewNotificationWorker(service.NewLogSender(logr))
		notifyQueue := jobs.NewQueue("notifications", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Notifications.Workers,
			MaxRetries: cfg.Notifications.Retries,
			Logger:     logr,
		})
		notifyQueue.Start(ctx)
		defer notifyQueue.Stop()
		metrics.RegisterQueue("notifications", notifyQueue.Stats)
		moderationOpts = append(moderationOpts, service.WithNotifier(service.NewQueueNotifier(notifyQueue, logr)))
	}

	moderationSvc := service.NewModerationService(
		db,
		approvalRepo,
		pendingRepo,
		service.ModerationStores{
			Entities: entityRepo,
			Users:    userRepo,
			Resolver: service.NewReferenceResolver(catalogRepo),
		},
		normalizer,
		auditRepo,
		service.ModerationSettings{
			SystemUserID:  cfg.Moderation.SystemUserID,
			StrictUpdates: cfg.Moderation.StrictUpdates,
		},
		logr,
		moderationOpts...,
	)

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	registerRoutes(r, cfg.APIPrefix, handlers{
		proposals: handler.NewProposalHandler(moderationSvc, service.NewExportService(approvalRepo, logr)),
		pending:   handler.NewPendingChangeHandler(moderationSvc),
		entities:  handler.NewEntityHandler(entitySvc, moderationSvc),
		auth:      handler.NewAuthHandler(authSvc),
		audit:     handler.NewAuditHandler(service.NewAuditService(auditRepo)),
		metrics:   handler.NewMetricsHandler(metrics),
	}, authSvc)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

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
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
