package recordings

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tabsera/tabsera-academy-sub001/internal/models"
	"github.com/tabsera/tabsera-academy-sub001/pkg/queue"
)

// CleanerConfig tunes cleanup retry behavior.
type CleanerConfig struct {
	InitialDelay time.Duration // also the backoff base
	MaxDelay     time.Duration // backoff cap
	MaxAttempts  int           // attempts before dead-lettering
}

// Cleaner deletes the intermediate artifact once the hosted platform has
// safely ingested it. Every branch except the deletion itself is idempotent:
// a task can fire twice, on any worker, without harm. When the platform is not
// ready the task re-arms itself with exponential backoff, bounded by
// MaxAttempts; exhausted tasks are dead-lettered and logged at error level for
// operator attention.
type Cleaner struct {
	store   SessionStore
	host    VideoHost
	objects ObjectStore
	sched   Scheduler
	cfg     CleanerConfig
	logger  *zap.Logger
}

// NewCleaner creates a cleanup task runner.
func NewCleaner(store SessionStore, host VideoHost, objects ObjectStore, sched Scheduler, cfg CleanerConfig, logger *zap.Logger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{store: store, host: host, objects: objects, sched: sched, cfg: cfg, logger: logger}
}

// Run executes one fired cleanup task.
func (c *Cleaner) Run(ctx context.Context, task queue.CleanupPayload) error {
	log := c.logger.With(
		zap.String("session_id", task.SessionID.String()),
		zap.String("artifact_key", task.ArtifactKey),
		zap.Int("attempt", task.Attempt),
	)

	if !c.objects.Enabled() {
		log.Warn("cleanup skipped: storage not configured")
		return nil
	}

	exists, err := c.objects.Exists(ctx, task.ArtifactKey)
	if err != nil {
		log.Warn("artifact existence check failed, re-arming", zap.Error(err))
		return c.rearm(ctx, task, log)
	}
	if !exists {
		log.Info("artifact already gone, nothing to clean up")
		return nil
	}

	// Never delete without confirmed downstream success on the session record.
	sess, err := c.store.GetByID(ctx, task.SessionID)
	if err != nil {
		log.Warn("session fetch failed, re-arming", zap.Error(err))
		return c.rearm(ctx, task, log)
	}
	if sess == nil || sess.RecordingStatus != models.RecordingStatusCompleted || sess.HostedVideoID == "" {
		log.Warn("session not in a confirmed-complete state, leaving artifact in place")
		return nil
	}

	state, durationSeconds, err := c.host.Status(ctx, task.VideoID)
	if err != nil {
		log.Warn("hosted platform status failed, re-arming", zap.Error(err))
		return c.rearm(ctx, task, log)
	}
	if state != videoStatusAvailable {
		log.Info("hosted video not yet available, re-arming", zap.String("state", state))
		return c.rearm(ctx, task, log)
	}

	if durationSeconds > 0 && sess.DurationSeconds == 0 {
		if err := c.store.SetDuration(ctx, sess.ID, durationSeconds); err != nil {
			log.Warn("duration backfill failed", zap.Error(err))
		}
	}

	if err := c.objects.Delete(ctx, task.ArtifactKey); err != nil {
		log.Warn("artifact delete failed, re-arming", zap.Error(err))
		return c.rearm(ctx, task, log)
	}
	log.Info("intermediate artifact deleted")
	return nil
}

func (c *Cleaner) rearm(ctx context.Context, task queue.CleanupPayload, log *zap.Logger) error {
	next := task
	next.Attempt++
	if next.Attempt >= c.cfg.MaxAttempts {
		log.Error("cleanup attempts exhausted, dead-lettering for operator attention",
			zap.String("video_id", task.VideoID), zap.Int("max_attempts", c.cfg.MaxAttempts))
		if err := c.sched.DeadLetterCleanup(ctx, next); err != nil {
			return fmt.Errorf("dead-letter cleanup: %w", err)
		}
		return nil
	}
	if err := c.sched.ScheduleCleanup(ctx, next, time.Now().Add(c.backoff(next.Attempt))); err != nil {
		return fmt.Errorf("re-arm cleanup: %w", err)
	}
	return nil
}

// backoff returns InitialDelay * 2^(attempt-1), capped at MaxDelay.
func (c *Cleaner) backoff(attempt int) time.Duration {
	d := c.cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.cfg.MaxDelay {
			return c.cfg.MaxDelay
		}
	}
	if d > c.cfg.MaxDelay {
		return c.cfg.MaxDelay
	}
	return d
}
