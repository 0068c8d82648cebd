package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/journal-matrix-api/api/swagger"
	"github.com/noah-isme/journal-matrix-api/internal/handler"
	internalmiddleware "github.com/noah-isme/journal-matrix-api/internal/middleware"
	"github.com/noah-isme/journal-matrix-api/internal/repository"
	"github.com/noah-isme/journal-matrix-api/internal/service"
	"github.com/noah-isme/journal-matrix-api/pkg/cache"
	"github.com/noah-isme/journal-matrix-api/pkg/config"
	"github.com/noah-isme/journal-matrix-api/pkg/database"
	"github.com/noah-isme/journal-matrix-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/journal-matrix-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/journal-matrix-api/pkg/middleware/requestid"
	"github.com/noah-isme/journal-matrix-api/pkg/photo"
)

const (
	cachePrefix     = "journal-matrix"
	shutdownTimeout = 15 * time.Second
)

// @title Journal Matrix API
// @version 1.0.0
// @description Attendance and grade journal matrix for university groups
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	validate := validator.New()
	checks := map[string]handler.ReadinessCheck{}

	backend := repository.NewBackendClient(repository.BackendClientConfig{
		BaseURL:            cfg.Backend.BaseURL,
		Timeout:            cfg.Backend.Timeout,
		RecognitionTimeout: cfg.Recognition.Timeout,
	}, metrics, logr.Named("backend"))

	var source service.JournalSource = backend
	if cfg.Journal.Source == config.SourcePostgres {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer closeDB(db, logr)
		repo := repository.NewJournalRepository(db, metrics, logr.Named("journal_repository"))
		source = repo
		checks["database"] = repo.Ping
	}
	logr.Info("journal source selected", zap.String("source", cfg.Journal.Source))

	var cacheSvc *service.CacheService
	if cfg.Reference.CacheEnabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("reference cache disabled, redis unavailable", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(client, cachePrefix, logr.Named("cache"))
			defer cacheRepo.Close() //nolint:errcheck
			cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Reference.CacheTTL, logr.Named("cache"), true)
			checks["redis"] = redisCheck(client)
		}
	}

	journalSvc := service.NewJournalService(source, metrics, validate, logr.Named("journal"), service.JournalServiceConfig{
		FetchConcurrency: cfg.Journal.FetchConcurrency,
		StrictRecords:    cfg.Journal.StrictRecords,
	})
	referenceSvc := service.NewReferenceService(source, cacheSvc, logr.Named("reference"))
	// Cached keys do not carry the journal source, so lists from a previous run are dropped.
	if err := referenceSvc.Invalidate(ctx); err != nil {
		logr.Warn("failed to flush reference cache", zap.Error(err))
	}
	recognitionSvc := service.NewRecognitionService(source, backend, journalSvc, metrics, validate, logr.Named("recognition"), service.RecognitionServiceConfig{
		Photo:   photo.Options{MaxDimension: cfg.Recognition.MaxDimension, JPEGQuality: cfg.Recognition.JPEGQuality},
		Timeout: cfg.Recognition.Timeout,
	})
	authSvc := service.NewAuthService(cfg.JWT.Secret, logr.Named("auth"))
	if !authSvc.Verifies() {
		logr.Warn("JWT_SECRET not set, bearer tokens are forwarded without local verification")
	}

	journalHandler := handler.NewJournalHandler(journalSvc, referenceSvc)
	recognitionHandler := handler.NewRecognitionHandler(recognitionSvc, cfg.Recognition.MaxUploadBytes)
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/metrics", "/health", "/ready"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	journal := api.Group("/journal")
	journal.Use(internalmiddleware.Auth(authSvc), internalmiddleware.RequireCaller())
	{
		journal.GET("/matrix", journalHandler.Matrix)
		journal.POST("/cells", journalHandler.EditCell)
		journal.POST("/cells/cycle", journalHandler.CycleCell)
		journal.POST("/lessons/:id/present", journalHandler.MarkPresent)
		journal.GET("/groups", journalHandler.Groups)
		journal.GET("/groups/:id/disciplines", journalHandler.Disciplines)

		journal.GET("/recognition-targets", recognitionHandler.Targets)
		journal.POST("/lessons/:id/recognition", recognitionHandler.Recognize)
		journal.GET("/lessons/:id/recognition", recognitionHandler.Status)
		journal.DELETE("/lessons/:id/recognition", recognitionHandler.Discard)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logr.Error("server failed", zap.Error(err))
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
		_ = srv.Close()
	}
}

func closeDB(db *sqlx.DB, logr *zap.Logger) {
	if err := db.Close(); err != nil {
		logr.Warn("failed to close postgres", zap.Error(err))
	}
}

func redisCheck(client *redis.Client) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
