package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordingStatus represents the recording lifecycle of a session.
const (
	RecordingStatusNone       = ""
	RecordingStatusRecording  = "recording"
	RecordingStatusPending    = "pending" // egress stopped, awaiting the file webhook
	RecordingStatusProcessing = "processing"
	RecordingStatusCompleted  = "completed"
	RecordingStatusFailed     = "failed"
)

// Session is a tutoring session and its recording state (egress → S3 → hosted video).
type Session struct {
	ID              uuid.UUID  `json:"id"`
	RoomName        string     `json:"room_name"`
	Subject         string     `json:"subject,omitempty"`
	TutorName       string     `json:"tutor_name,omitempty"`
	StudentName     string     `json:"student_name,omitempty"`
	RecordingStatus string     `json:"recording_status"`
	EgressID        string     `json:"egress_id,omitempty"`
	ArtifactKey     string     `json:"artifact_key,omitempty"`
	HostedVideoID   string     `json:"hosted_video_id,omitempty"`
	HostedVideoURL  string     `json:"hosted_video_url,omitempty"`
	DurationSeconds int        `json:"recording_duration_seconds"`
	FailureReason   string     `json:"failure_reason,omitempty"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
