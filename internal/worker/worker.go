// Package worker runs the background halves of the recording pipeline: the
// process-queue consumer and the cleanup poller.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tabsera/tabsera-academy-sub001/internal/recordings"
	"github.com/tabsera/tabsera-academy-sub001/pkg/queue"
)

// Worker consumes recording process jobs and fires due cleanup tasks.
type Worker struct {
	queue        *queue.Queue
	processor    *recordings.Processor
	cleaner      *recordings.Cleaner
	pollInterval time.Duration
	logger       *zap.Logger
}

// New creates a worker.
func New(q *queue.Queue, processor *recordings.Processor, cleaner *recordings.Cleaner, pollInterval time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Worker{queue: q, processor: processor, cleaner: cleaner, pollInterval: pollInterval, logger: logger}
}

// RunProcessLoop dequeues and processes recording jobs until ctx is done.
func (w *Worker) RunProcessLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("process worker stopping")
			return
		default:
		}

		job, err := w.queue.DequeueProcess(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		w.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := w.processJob(ctx, job); err != nil {
			w.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := w.queue.Retry(ctx, job); reErr != nil {
				w.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}

func (w *Worker) processJob(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeProcess {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ProcessPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return w.processor.Process(ctx, payload)
}

// RunCleanupLoop polls for due cleanup tasks until ctx is done.
func (w *Worker) RunCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("cleanup worker stopping")
			return
		case <-ticker.C:
		}

		due, err := w.queue.DueCleanups(ctx, time.Now())
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Warn("cleanup poll error", zap.Error(err))
			}
			continue
		}
		for _, task := range due {
			if err := w.cleaner.Run(ctx, task); err != nil {
				w.logger.Error("cleanup task failed",
					zap.Error(err), zap.String("session_id", task.SessionID.String()))
			}
		}
	}
}
