package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tabsera/tabsera-academy-sub001/internal/models"
)

const sessionColumns = `id, room_name, subject, tutor_name, student_name, recording_status,
	COALESCE(egress_id,''), COALESCE(artifact_key,''), COALESCE(hosted_video_id,''), COALESCE(hosted_video_url,''),
	recording_duration_seconds, COALESCE(failure_reason,''), scheduled_at, started_at, ended_at, created_at, updated_at`

// Repository handles session persistence. Recording-state transitions are
// compare-and-swap updates: each one enumerates its legal prior states so
// duplicate webhook deliveries and races resolve to no-ops instead of
// downgrading a terminal state.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.RoomName, &s.Subject, &s.TutorName, &s.StudentName, &s.RecordingStatus,
		&s.EgressID, &s.ArtifactKey, &s.HostedVideoID, &s.HostedVideoURL,
		&s.DurationSeconds, &s.FailureReason, &s.ScheduledAt, &s.StartedAt, &s.EndedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new session when a tutoring session begins.
func (r *Repository) Create(ctx context.Context, s *models.Session) error {
	const q = `INSERT INTO sessions (id, room_name, subject, tutor_name, student_name, recording_status, scheduled_at, started_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, '', $5, NOW())
		RETURNING id, started_at, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, s.RoomName, s.Subject, s.TutorName, s.StudentName, s.ScheduledAt).
		Scan(&s.ID, &s.StartedAt, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns a session by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// GetByEgressID returns the session owning an egress job, or nil when absent.
func (r *Repository) GetByEgressID(ctx context.Context, egressID string) (*models.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE egress_id = $1`, egressID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// GetByRoomName returns the most recent session for a room, or nil when absent.
func (r *Repository) GetByRoomName(ctx context.Context, roomName string) (*models.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE room_name = $1 ORDER BY created_at DESC LIMIT 1`, roomName))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// BeginRecording records the started egress. Legal prior state is none; a
// previously failed recording may be restarted only when allowRestart is set.
func (r *Repository) BeginRecording(ctx context.Context, id uuid.UUID, egressID, artifactKey string, allowRestart bool) (bool, error) {
	from := []string{models.RecordingStatusNone}
	if allowRestart {
		from = append(from, models.RecordingStatusFailed)
	}
	const q = `UPDATE sessions SET recording_status = $1, egress_id = $2, artifact_key = $3, failure_reason = NULL, updated_at = NOW()
		WHERE id = $4 AND recording_status = ANY($5)`
	tag, err := r.pool.Exec(ctx, q, models.RecordingStatusRecording, egressID, artifactKey, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkPending transitions recording -> pending once the egress stop was
// requested, and stamps the session end time if not yet set.
func (r *Repository) MarkPending(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE sessions SET recording_status = $1, ended_at = COALESCE(ended_at, NOW()), updated_at = NOW()
		WHERE id = $2 AND recording_status = $3`
	tag, err := r.pool.Exec(ctx, q, models.RecordingStatusPending, id, models.RecordingStatusRecording)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimProcessing atomically claims the session for processing by egress ID.
// Returns nil when no claim was possible: unknown egress (orphan event) or the
// session already left the recording/pending states (duplicate event).
func (r *Repository) ClaimProcessing(ctx context.Context, egressID string) (*models.Session, error) {
	const q = `UPDATE sessions SET recording_status = $1, updated_at = NOW()
		WHERE egress_id = $2 AND recording_status = ANY($3)
		RETURNING ` + sessionColumns
	from := []string{models.RecordingStatusRecording, models.RecordingStatusPending}
	s, err := scanSession(r.pool.QueryRow(ctx, q, models.RecordingStatusProcessing, egressID, from))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// Complete transitions processing -> completed with the hosted video result.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, videoID, embedURL string, durationSeconds int) (bool, error) {
	const q = `UPDATE sessions SET recording_status = $1, hosted_video_id = $2, hosted_video_url = NULLIF($3,''),
		recording_duration_seconds = GREATEST(recording_duration_seconds, $4), updated_at = NOW()
		WHERE id = $5 AND recording_status = $6`
	tag, err := r.pool.Exec(ctx, q, models.RecordingStatusCompleted, videoID, embedURL, durationSeconds, id, models.RecordingStatusProcessing)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed sets a terminal failure with a reason. Completed and already
// failed sessions are left untouched.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	const q = `UPDATE sessions SET recording_status = $1, failure_reason = $2, updated_at = NOW()
		WHERE id = $3 AND recording_status NOT IN ($4, $1)`
	tag, err := r.pool.Exec(ctx, q, models.RecordingStatusFailed, reason, id, models.RecordingStatusCompleted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailedByEgress is MarkFailed keyed on the egress job handle.
func (r *Repository) MarkFailedByEgress(ctx context.Context, egressID, reason string) (bool, error) {
	const q = `UPDATE sessions SET recording_status = $1, failure_reason = $2, updated_at = NOW()
		WHERE egress_id = $3 AND recording_status NOT IN ($4, $1)`
	tag, err := r.pool.Exec(ctx, q, models.RecordingStatusFailed, reason, egressID, models.RecordingStatusCompleted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetEmbedURL backfills a deferred embed URL on a completed session.
func (r *Repository) SetEmbedURL(ctx context.Context, id uuid.UUID, url string) error {
	const q = `UPDATE sessions SET hosted_video_url = $1, updated_at = NOW()
		WHERE id = $2 AND recording_status = $3`
	_, err := r.pool.Exec(ctx, q, url, id, models.RecordingStatusCompleted)
	return err
}

// SetDuration backfills the platform-reported duration.
func (r *Repository) SetDuration(ctx context.Context, id uuid.UUID, seconds int) error {
	const q = `UPDATE sessions SET recording_duration_seconds = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, seconds, id)
	return err
}

// ClearRecording nulls out every recording field (admin "delete recording").
// This is the only path out of a terminal state.
func (r *Repository) ClearRecording(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE sessions SET recording_status = '', egress_id = NULL, artifact_key = NULL,
		hosted_video_id = NULL, hosted_video_url = NULL, recording_duration_seconds = 0,
		failure_reason = NULL, updated_at = NOW()
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// ResetForReprocessing returns a stalled session to the claimable pending
// state so the processor can pick it up again. Used by the re-drive tool only.
func (r *Repository) ResetForReprocessing(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE sessions SET recording_status = $1, failure_reason = NULL, updated_at = NOW()
		WHERE id = $2 AND recording_status = ANY($3)`
	from := []string{models.RecordingStatusProcessing, models.RecordingStatusFailed}
	tag, err := r.pool.Exec(ctx, q, models.RecordingStatusPending, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListStuckProcessing returns sessions stuck in processing for longer than age,
// for the operational re-drive tool.
func (r *Repository) ListStuckProcessing(ctx context.Context, age time.Duration) ([]models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions
		WHERE recording_status = $1 AND updated_at < NOW() - make_interval(secs => $2)
		ORDER BY updated_at`
	return r.list(ctx, q, models.RecordingStatusProcessing, age.Seconds())
}

// ListFailedWithArtifact returns failed sessions that still have an egress and
// artifact reference, i.e. candidates for manual re-processing.
func (r *Repository) ListFailedWithArtifact(ctx context.Context) ([]models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions
		WHERE recording_status = $1 AND egress_id IS NOT NULL AND artifact_key IS NOT NULL
		ORDER BY updated_at`
	return r.list(ctx, q, models.RecordingStatusFailed)
}

func (r *Repository) list(ctx context.Context, q string, args ...interface{}) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
