// Package main runs the background recording worker (hosted-video processing
// and deferred artifact cleanup).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tabsera/tabsera-academy-sub001/config"
	"github.com/tabsera/tabsera-academy-sub001/internal/recordings"
	"github.com/tabsera/tabsera-academy-sub001/internal/sessions"
	"github.com/tabsera/tabsera-academy-sub001/internal/vimeo"
	"github.com/tabsera/tabsera-academy-sub001/internal/worker"
	"github.com/tabsera/tabsera-academy-sub001/pkg/database"
	"github.com/tabsera/tabsera-academy-sub001/pkg/queue"
	"github.com/tabsera/tabsera-academy-sub001/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

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

	vimeoClient := vimeo.New(vimeo.Config{
		AccessToken: cfg.Vimeo.AccessToken,
		APIBase:     cfg.Vimeo.APIBase,
		Timeout:     time.Duration(cfg.Recording.CallTimeoutSec) * time.Second,
	}, logger)

	sessionRepo := sessions.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)

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

	bg := worker.New(jobQueue, processor, cleaner, time.Duration(cfg.Cleanup.PollIntervalSec)*time.Second, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go bg.RunProcessLoop(workerCtx)
	go bg.RunCleanupLoop(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
