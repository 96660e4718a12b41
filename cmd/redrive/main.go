// Package main is the operational re-drive tool: it finds sessions whose
// recording pipeline stalled (stuck in processing, or failed with an artifact
// still on hand) and re-enqueues them for processing. Partial failures in the
// pipeline are expected to need this kind of manual reconciliation.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tabsera/tabsera-academy-sub001/config"
	"github.com/tabsera/tabsera-academy-sub001/internal/sessions"
	"github.com/tabsera/tabsera-academy-sub001/pkg/database"
	"github.com/tabsera/tabsera-academy-sub001/pkg/queue"
	"github.com/tabsera/tabsera-academy-sub001/pkg/redis"
	"github.com/tabsera/tabsera-academy-sub001/pkg/storage"
)

func main() {
	stuckMinutes := flag.Int("stuck-minutes", 60, "treat processing sessions older than this as stuck")
	includeFailed := flag.Bool("include-failed", false, "also re-drive failed sessions that still have an artifact")
	dryRun := flag.Bool("dry-run", false, "report candidates without enqueueing")
	flag.Parse()

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
		Region:           cfg.AWS.Region,
		AccessKeyID:      cfg.AWS.AccessKeyID,
		SecretAccessKey:  cfg.AWS.SecretAccessKey,
		RecordingsBucket: cfg.AWS.RecordingsBucket,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	repo := sessions.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	candidates, err := repo.ListStuckProcessing(ctx, time.Duration(*stuckMinutes)*time.Minute)
	if err != nil {
		logger.Fatal("list stuck sessions", zap.Error(err))
	}
	if *includeFailed {
		failed, err := repo.ListFailedWithArtifact(ctx)
		if err != nil {
			logger.Fatal("list failed sessions", zap.Error(err))
		}
		candidates = append(candidates, failed...)
	}

	if len(candidates) == 0 {
		fmt.Println("no sessions to re-drive")
		return
	}

	var enqueued, skipped int
	for _, sess := range candidates {
		line := fmt.Sprintf("session %s status=%s egress=%s artifact=%s",
			sess.ID, sess.RecordingStatus, sess.EgressID, sess.ArtifactKey)

		if sess.EgressID == "" || sess.ArtifactKey == "" {
			fmt.Println(line, "-> skipped (no egress or artifact reference)")
			skipped++
			continue
		}
		if s3Client.Enabled() {
			exists, err := s3Client.Exists(ctx, sess.ArtifactKey)
			if err != nil {
				logger.Warn("artifact check failed", zap.Error(err), zap.String("session_id", sess.ID.String()))
			} else if !exists {
				fmt.Println(line, "-> skipped (artifact gone)")
				skipped++
				continue
			}
		}
		if *dryRun {
			fmt.Println(line, "-> would re-enqueue")
			continue
		}

		// A stuck or failed session cannot be re-claimed by the processor until
		// it is back in a claimable state.
		reset, err := repo.ResetForReprocessing(ctx, sess.ID)
		if err != nil {
			logger.Error("reset session", zap.Error(err), zap.String("session_id", sess.ID.String()))
			skipped++
			continue
		}
		if !reset {
			fmt.Println(line, "-> skipped (state changed concurrently)")
			skipped++
			continue
		}
		if err := jobQueue.EnqueueProcess(ctx, queue.ProcessPayload{
			EgressID:    sess.EgressID,
			ArtifactKey: sess.ArtifactKey,
		}); err != nil {
			logger.Error("enqueue failed", zap.Error(err), zap.String("session_id", sess.ID.String()))
			skipped++
			continue
		}
		fmt.Println(line, "-> re-enqueued")
		enqueued++
	}
	fmt.Printf("re-drive complete: %d enqueued, %d skipped\n", enqueued, skipped)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
