// Package main runs the session recording pipeline HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tabsera/tabsera-academy-sub001/config"
	"github.com/tabsera/tabsera-academy-sub001/internal/livekit"
	"github.com/tabsera/tabsera-academy-sub001/internal/middleware"
	"github.com/tabsera/tabsera-academy-sub001/internal/recordings"
	"github.com/tabsera/tabsera-academy-sub001/internal/sessions"
	"github.com/tabsera/tabsera-academy-sub001/internal/vimeo"
	"github.com/tabsera/tabsera-academy-sub001/internal/worker"
	"github.com/tabsera/tabsera-academy-sub001/pkg/database"
	"github.com/tabsera/tabsera-academy-sub001/pkg/queue"
	"github.com/tabsera/tabsera-academy-sub001/pkg/redis"
	"github.com/tabsera/tabsera-academy-sub001/pkg/response"
	"github.com/tabsera/tabsera-academy-sub001/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// External clients: each carries its own configured/not-configured flag so
	// missing credentials disable recording instead of failing startup.
	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		RecordingsBucket:     cfg.AWS.RecordingsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	lkClient := livekit.New(livekit.Config{
		URL:       cfg.LiveKit.URL,
		APIKey:    cfg.LiveKit.APIKey,
		APISecret: cfg.LiveKit.APISecret,
		S3: livekit.S3Output{
			AccessKey: cfg.AWS.AccessKeyID,
			Secret:    cfg.AWS.SecretAccessKey,
			Region:    cfg.AWS.Region,
			Bucket:    cfg.AWS.RecordingsBucket,
		},
	}, logger)

	vimeoClient := vimeo.New(vimeo.Config{
		AccessToken: cfg.Vimeo.AccessToken,
		APIBase:     cfg.Vimeo.APIBase,
		Timeout:     time.Duration(cfg.Recording.CallTimeoutSec) * time.Second,
	}, logger)

	sessionRepo := sessions.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	controller := recordings.NewController(sessionRepo, lkClient, s3Client, cfg.Recording.AllowRestart, logger)
	processor := recordings.NewProcessor(sessionRepo, vimeoClient, s3Client, jobQueue, recordings.ProcessorConfig{
		PrivacyView:       cfg.Vimeo.PrivacyView,
		EmbedDomains:      cfg.Vimeo.EmbedDomains,
		EmbedURLRetryWait: time.Duration(cfg.Recording.EmbedURLRetryWaitMS) * time.Millisecond,
		CleanupDelay:      time.Duration(cfg.Cleanup.InitialDelayMin) * time.Minute,
	}, logger)
	cleaner := recordings.NewCleaner(sessionRepo, vimeoClient, s3Client, jobQueue, recordings.CleanerConfig{
		InitialDelay: time.Duration(cfg.Cleanup.InitialDelayMin) * time.Minute,
		MaxDelay:     time.Duration(cfg.Cleanup.MaxDelayMin) * time.Minute,
		MaxAttempts:  cfg.Cleanup.MaxAttempts,
	}, logger)

	eventRouter := recordings.NewEventRouter(sessionRepo, jobQueue, logger)
	webhookHandler := recordings.NewWebhookHandler(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, eventRouter, logger)
	handler := recordings.NewHandler(sessionRepo, controller, vimeoClient, lkClient, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Webhooks (signature validated in handler)
	router.POST("/webhooks/livekit", webhookHandler.Handle)

	// Sessions and recordings
	router.POST("/sessions", handler.CreateSession)
	router.GET("/sessions/:id/token", handler.GetJoinToken)
	router.GET("/sessions/:id/recording", handler.GetRecordingDetails)
	router.DELETE("/sessions/:id/recording", handler.DeleteRecording)
	router.POST("/sessions/:id/recording/start", handler.StartRecording)
	router.POST("/sessions/:id/recording/stop", handler.StopRecording)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker halves (process queue + cleanup poller) run in-process.
	bg := worker.New(jobQueue, processor, cleaner, time.Duration(cfg.Cleanup.PollIntervalSec)*time.Second, logger)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go bg.RunProcessLoop(workerCtx)
	go bg.RunCleanupLoop(workerCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
