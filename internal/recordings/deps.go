package recordings

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tabsera/tabsera-academy-sub001/internal/models"
	"github.com/tabsera/tabsera-academy-sub001/pkg/queue"
)

// SessionStore persists sessions. Transition methods are compare-and-swap: the
// bool result reports whether the transition applied, and a false result means
// the session was already past the expected prior state.
type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetByEgressID(ctx context.Context, egressID string) (*models.Session, error)
	BeginRecording(ctx context.Context, id uuid.UUID, egressID, artifactKey string, allowRestart bool) (bool, error)
	MarkPending(ctx context.Context, id uuid.UUID) (bool, error)
	ClaimProcessing(ctx context.Context, egressID string) (*models.Session, error)
	Complete(ctx context.Context, id uuid.UUID, videoID, embedURL string, durationSeconds int) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	MarkFailedByEgress(ctx context.Context, egressID, reason string) (bool, error)
	SetEmbedURL(ctx context.Context, id uuid.UUID, url string) error
	SetDuration(ctx context.Context, id uuid.UUID, seconds int) error
	ClearRecording(ctx context.Context, id uuid.UUID) error
}

// EgressService controls provider-side recording jobs.
type EgressService interface {
	Enabled() bool
	RoomActive(ctx context.Context, roomName string) (bool, error)
	StartCompositeToStorage(ctx context.Context, roomName, key string) (egressID string, err error)
	Stop(ctx context.Context, egressID string) error
}

// ObjectStore owns the intermediate artifact in object storage.
type ObjectStore interface {
	Enabled() bool
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
	PresignExpire() time.Duration
}

// VideoHost is the hosted video platform the finished recording is mirrored to.
// Status returns one of "uploading", "transcoding", "available", "not_found".
type VideoHost interface {
	Enabled() bool
	PullUpload(ctx context.Context, sourceURL, title, description string) (videoID string, err error)
	Status(ctx context.Context, videoID string) (state string, durationSeconds int, err error)
	EmbedURL(ctx context.Context, videoID string) (string, error)
	SetPrivacy(ctx context.Context, videoID, view string) error
	AddEmbedDomain(ctx context.Context, videoID, domain string) error
	Delete(ctx context.Context, videoID string) error
}

// Scheduler hands work to the background worker.
type Scheduler interface {
	EnqueueProcess(ctx context.Context, payload queue.ProcessPayload) error
	ScheduleCleanup(ctx context.Context, payload queue.CleanupPayload, due time.Time) error
	DeadLetterCleanup(ctx context.Context, payload queue.CleanupPayload) error
}

const (
	videoStatusAvailable = "available"
	videoStatusNotFound  = "not_found"
)
