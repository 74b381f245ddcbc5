package main

import (
	"context"
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

	_ "github.com/mfotsing/structureclerk-api/api/swagger"
	"github.com/mfotsing/structureclerk-api/internal/handler"
	"github.com/mfotsing/structureclerk-api/internal/middleware"
	"github.com/mfotsing/structureclerk-api/internal/repository"
	"github.com/mfotsing/structureclerk-api/internal/router"
	"github.com/mfotsing/structureclerk-api/internal/service"
	"github.com/mfotsing/structureclerk-api/pkg/cache"
	"github.com/mfotsing/structureclerk-api/pkg/config"
	"github.com/mfotsing/structureclerk-api/pkg/database"
	"github.com/mfotsing/structureclerk-api/pkg/jobs"
	"github.com/mfotsing/structureclerk-api/pkg/logger"
	"github.com/mfotsing/structureclerk-api/pkg/mailer"
	corsmiddleware "github.com/mfotsing/structureclerk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/mfotsing/structureclerk-api/pkg/middleware/requestid"
	"github.com/mfotsing/structureclerk-api/pkg/storage"
)

// @title StructureClerk API
// @version 1.0.0
// @description Document and approval workflow API for small businesses
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The API degrades to uncached reads without Redis.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	fileStore, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	queue := jobs.NewQueue("notifications", jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		Logger:     logr,
	})

	var mailSender *mailer.Mailer
	if cfg.Notifications.Enabled {
		mailSender, err = mailer.New(mailer.Config{
			Host:          cfg.Notifications.SMTPHost,
			Port:          cfg.Notifications.SMTPPort,
			User:          cfg.Notifications.SMTPUser,
			Password:      cfg.Notifications.SMTPPassword,
			From:          cfg.Notifications.From,
			SkipTLSVerify: cfg.Notifications.SkipTLSVerify,
		})
		if err != nil {
			logr.Sugar().Warnw("mailer unavailable, notifications disabled", "error", err)
		}
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	authSvc := service.NewAuthService(userRepo, activityRepo, service.AuthConfig{
		Secret:        cfg.JWT.Secret,
		Expiry:        cfg.JWT.Expiration,
		RefreshExpiry: cfg.JWT.RefreshExpiration,
		Issuer:        cfg.JWT.Issuer,
	}, logr)

	var notifier *service.NotificationService
	if mailSender != nil {
		notifier = service.NewNotificationService(queue, mailSender, userRepo, cfg.Notifications.Enabled, logr)
	}

	var decisionNotifier service.DecisionNotifier
	if notifier != nil {
		decisionNotifier = notifier
	}
	approvalSvc := service.NewApprovalService(workflowRepo, cacheRepo, decisionNotifier, logr)
	workflowSvc := service.NewWorkflowService(workflowRepo, activityRepo, cacheRepo, metricsSvc, validate, logr, cfg.Approvals.PendingCacheTTL)
	activitySvc := service.NewActivityService(activityRepo, metricsSvc, logr)
	documentSvc := service.NewDocumentService(documentRepo, fileStore, signer, activityRepo, service.DocumentLimits{
		MaxFileSizeBytes: cfg.Documents.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Documents.AllowedMIMEs,
	}, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	defer queue.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	router.Register(r, cfg.APIPrefix, router.Handlers{
		Auth:      handler.NewAuthHandler(authSvc),
		Approval:  handler.NewApprovalHandler(approvalSvc),
		Workflow:  handler.NewWorkflowHandler(workflowSvc),
		Activity:  handler.NewActivityHandler(activitySvc),
		Document:  handler.NewDocumentHandler(documentSvc),
		Metrics:   handler.NewMetricsHandler(metricsSvc),
		AuthSvc:   authSvc,
		MetricsSv: metricsSvc,
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	if err := cacheRepo.Close(); err != nil {
		logr.Sugar().Warnw("failed to close redis", "error", err)
	}
}
