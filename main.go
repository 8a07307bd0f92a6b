package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paper-auditor/config"
	"paper-auditor/gateway"
	"paper-auditor/services"
	"paper-auditor/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-KEY") != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}
	scoring, err := config.LoadScoring(cfg.ScoringFile)
	if err != nil {
		logging.Fatal("Scoring config error", zap.Error(err))
	}

	sinks := gateway.MultiSink{gateway.LogSink{Logger: logging}}
	srv := &server{cfg: cfg, logger: logging}

	if cfg.DatabaseEnabled() {
		db, err := storage.OpenPostgres(cfg, logging)
		if err != nil {
			logging.Fatal("Failed to connect to database", zap.Error(err))
		}
		srv.store = storage.NewReportStore(db)
		callStore := storage.NewCallLogStore(db, logging)
		srv.calls = callStore
		sinks = append(sinks, callStore)
	} else {
		logging.Warn("DB_HOST not set, reports and call logs are not persisted")
	}
	if cfg.CallLogSQLitePath != "" {
		callLog, err := storage.OpenSQLiteCallLog(cfg.CallLogSQLitePath, logging)
		if err != nil {
			logging.Fatal("Failed to open call log", zap.Error(err))
		}
		defer callLog.Close()
		if srv.calls == nil {
			srv.calls = callLog
		}
		sinks = append(sinks, callLog)
	}
	if cfg.ArchiveEnabled() {
		s3Client, err := storage.NewS3Client(context.Background(), cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		srv.archive = storage.NewReportArchive(s3Client, cfg.ArchiveS3Bucket, cfg.ArchiveKeep, logging)
	}

	gw, err := gateway.NewFromConfig(cfg, sinks, logging)
	if err != nil {
		logging.Fatal("Provider setup failed", zap.Error(err))
	}
	logging.Info("Active providers loaded", zap.Strings("providers", cfg.ProviderNames()))
	srv.pipeline = services.NewPipeline(cfg, scoring, gw, logging)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	srv.routes(router)

	cronScheduler := cron.New()
	if _, err := cronScheduler.AddFunc(cfg.CacheCleanupSchedule, func() {
		removed := gw.Cache().Cleanup()
		logging.Debug("Lookup cache sweep", zap.Int("expired", removed), zap.Int("entries", gw.Cache().Len()))
	}); err != nil {
		logging.Fatal("Invalid CACHE_CLEANUP_SCHEDULE", zap.Error(err))
	}
	if srv.archive != nil {
		if _, err := cronScheduler.AddFunc(cfg.ArchivePruneSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if _, err := srv.archive.Prune(ctx); err != nil {
				logging.Error("Archive prune failed", zap.Error(err))
			}
		}); err != nil {
			logging.Fatal("Invalid ARCHIVE_PRUNE_SCHEDULE", zap.Error(err))
		}
	}
	cronScheduler.Start()

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("Failed to run server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logging.Info("Shutting down")

	<-cronScheduler.Stop().Done()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logging.Error("Server shutdown failed", zap.Error(err))
	}
}
