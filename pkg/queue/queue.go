package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueProcess is the Redis list key for recording process jobs.
	QueueProcess = "recording:process"
	// QueueCleanup is the Redis sorted set for deferred cleanup tasks (score = due unix time).
	QueueCleanup = "recording:cleanup"
	// QueueDLQ is the dead-letter queue for jobs that exhausted their retries.
	QueueDLQ = "recording:dlq"
	// MaxRetries is the number of times to retry a process job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between process-job retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeProcess JobType = "recording_process"
	JobTypeCleanup JobType = "recording_cleanup"
)

// ProcessPayload is the payload for recording process jobs, resolved from an
// egress_ended webhook delivery.
type ProcessPayload struct {
	EgressID    string `json:"egress_id"`
	ArtifactKey string `json:"artifact_key"`
	FileURL     string `json:"file_url,omitempty"`
}

// CleanupPayload is the payload for deferred artifact cleanup tasks.
type CleanupPayload struct {
	SessionID   uuid.UUID `json:"session_id"`
	ArtifactKey string    `json:"artifact_key"`
	VideoID     string    `json:"video_id"`
	Attempt     int       `json:"attempt"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueProcess enqueues a recording process job.
func (q *Queue) EnqueueProcess(ctx context.Context, payload ProcessPayload) error {
	raw, err := wrap(JobTypeProcess, payload)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, QueueProcess, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued process job", zap.String("egress_id", payload.EgressID))
	return nil
}

// ScheduleCleanup arms a cleanup task to fire at the given time. Tasks are
// persisted in a sorted set so re-arms survive process restarts.
func (q *Queue) ScheduleCleanup(ctx context.Context, payload CleanupPayload, due time.Time) error {
	raw, err := wrap(JobTypeCleanup, payload)
	if err != nil {
		return err
	}
	if err := q.client.ZAdd(ctx, QueueCleanup, redis.Z{Score: float64(due.Unix()), Member: raw}).Err(); err != nil {
		return fmt.Errorf("zadd: %w", err)
	}
	q.logger.Debug("cleanup scheduled",
		zap.String("session_id", payload.SessionID.String()),
		zap.Int("attempt", payload.Attempt),
		zap.Time("due", due),
	)
	return nil
}

// DequeueProcess blocks until a process job is available or ctx is done.
func (q *Queue) DequeueProcess(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, 0, QueueProcess).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// DueCleanups claims and returns every cleanup task whose due time has passed.
// Claiming is ZRem-based: only the caller that removes the member owns the task.
func (q *Queue) DueCleanups(ctx context.Context, now time.Time) ([]CleanupPayload, error) {
	members, err := q.client.ZRangeByScore(ctx, QueueCleanup, &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore: %w", err)
	}
	var due []CleanupPayload
	for _, m := range members {
		removed, err := q.client.ZRem(ctx, QueueCleanup, m).Result()
		if err != nil {
			return due, fmt.Errorf("zrem: %w", err)
		}
		if removed == 0 {
			continue // another worker claimed it
		}
		var job Job
		if err := json.Unmarshal([]byte(m), &job); err != nil {
			q.logger.Warn("invalid cleanup task", zap.String("raw", m), zap.Error(err))
			continue
		}
		var payload CleanupPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			q.logger.Warn("invalid cleanup payload", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		due = append(due, payload)
	}
	return due, nil
}

// Retry re-enqueues a process job with incremented attempt. If attempt >= MaxRetries,
// pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueueProcess, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// DeadLetterCleanup moves an exhausted cleanup task to the DLQ for operator attention.
func (q *Queue) DeadLetterCleanup(ctx context.Context, payload CleanupPayload) error {
	raw, err := wrap(JobTypeCleanup, payload)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
		return fmt.Errorf("dlq push: %w", err)
	}
	return nil
}

func wrap(t JobType, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return raw, nil
}
