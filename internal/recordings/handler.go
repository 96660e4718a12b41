package recordings

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tabsera/tabsera-academy-sub001/internal/models"
	"github.com/tabsera/tabsera-academy-sub001/pkg/response"
)

// TokenIssuer issues room join tokens for session participants. Optional; nil
// disables the token endpoint.
type TokenIssuer interface {
	JoinToken(roomName, identity, name string, canPublish bool, ttl time.Duration) (string, error)
}

// Handler exposes the recording pipeline to the rest of the application.
type Handler struct {
	store  SessionStore
	ctrl   *Controller
	host   VideoHost
	tokens TokenIssuer
	logger *zap.Logger
}

// NewHandler creates a recordings handler.
func NewHandler(store SessionStore, ctrl *Controller, host VideoHost, tokens TokenIssuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, ctrl: ctrl, host: host, tokens: tokens, logger: logger}
}

// CreateSessionRequest is the body for POST /sessions.
type CreateSessionRequest struct {
	RoomName    string     `json:"room_name" binding:"required"`
	Subject     string     `json:"subject"`
	TutorName   string     `json:"tutor_name"`
	StudentName string     `json:"student_name"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	AutoRecord  bool       `json:"auto_record"`
}

// CreateSession handles POST /sessions: registers the beginning of a tutoring
// session and, when requested, starts recording. Recording failure never fails
// session creation.
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sess := &models.Session{
		RoomName:    req.RoomName,
		Subject:     req.Subject,
		TutorName:   req.TutorName,
		StudentName: req.StudentName,
		ScheduledAt: req.ScheduledAt,
	}
	if err := h.store.Create(c.Request.Context(), sess); err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		response.Internal(c, "failed to create session")
		return
	}
	if req.AutoRecord {
		if egressID, err := h.ctrl.Start(c.Request.Context(), sess); err != nil {
			h.logger.Warn("auto-record failed, session continues without recording",
				zap.Error(err), zap.String("session_id", sess.ID.String()))
			sess.RecordingStatus = models.RecordingStatusFailed
		} else if egressID != "" {
			sess.RecordingStatus = models.RecordingStatusRecording
			sess.EgressID = egressID
		}
	}
	response.Created(c, sess)
}

// StartRecording handles POST /sessions/:id/recording/start.
func (h *Handler) StartRecording(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	egressID, err := h.ctrl.Start(c.Request.Context(), sess)
	if err != nil {
		response.Conflict(c, err.Error())
		return
	}
	if egressID == "" {
		response.ServiceUnavailable(c, "recording unavailable")
		return
	}
	response.OK(c, gin.H{"egress_id": egressID, "recording_status": models.RecordingStatusRecording})
}

// StopRecording handles POST /sessions/:id/recording/stop.
func (h *Handler) StopRecording(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := h.ctrl.Stop(c.Request.Context(), sess); err != nil {
		response.Conflict(c, err.Error())
		return
	}
	response.OK(c, gin.H{"recording_status": models.RecordingStatusPending})
}

// RecordingDetails is the response body of GET /sessions/:id/recording.
type RecordingDetails struct {
	SessionID       uuid.UUID `json:"session_id"`
	RecordingStatus string    `json:"recording_status"`
	HostedVideoID   string    `json:"hosted_video_id,omitempty"`
	EmbedURL        string    `json:"embed_url,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	FailureReason   string    `json:"failure_reason,omitempty"`
}

// GetRecordingDetails handles GET /sessions/:id/recording. The embed URL is
// refreshed on demand when processing could not resolve it, and the duration
// falls back to the session's wall-clock span until the platform reports one.
func (h *Handler) GetRecordingDetails(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	details := RecordingDetails{
		SessionID:       sess.ID,
		RecordingStatus: sess.RecordingStatus,
		HostedVideoID:   sess.HostedVideoID,
		EmbedURL:        sess.HostedVideoURL,
		DurationSeconds: sess.DurationSeconds,
		FailureReason:   sess.FailureReason,
	}
	ctx := c.Request.Context()

	if details.EmbedURL == "" && sess.HostedVideoID != "" && h.host.Enabled() {
		if url, err := h.host.EmbedURL(ctx, sess.HostedVideoID); err == nil && url != "" {
			details.EmbedURL = url
			if err := h.store.SetEmbedURL(ctx, sess.ID, url); err != nil {
				h.logger.Warn("embed url backfill failed", zap.Error(err), zap.String("session_id", sess.ID.String()))
			}
		}
	}

	if details.DurationSeconds == 0 && sess.HostedVideoID != "" && h.host.Enabled() {
		if _, seconds, err := h.host.Status(ctx, sess.HostedVideoID); err == nil && seconds > 0 {
			details.DurationSeconds = seconds
			if err := h.store.SetDuration(ctx, sess.ID, seconds); err != nil {
				h.logger.Warn("duration backfill failed", zap.Error(err), zap.String("session_id", sess.ID.String()))
			}
		}
	}
	if details.DurationSeconds == 0 && sess.StartedAt != nil && sess.EndedAt != nil {
		details.DurationSeconds = int(sess.EndedAt.Sub(*sess.StartedAt) / time.Second)
	}

	response.OK(c, details)
}

// DeleteRecording handles DELETE /sessions/:id/recording: best-effort delete on
// the hosted platform, then clear the session's recording fields regardless.
func (h *Handler) DeleteRecording(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if sess.HostedVideoID != "" && h.host.Enabled() {
		if err := h.host.Delete(c.Request.Context(), sess.HostedVideoID); err != nil {
			h.logger.Warn("hosted video delete failed, clearing session anyway",
				zap.Error(err), zap.String("video_id", sess.HostedVideoID))
		}
	}
	if err := h.store.ClearRecording(c.Request.Context(), sess.ID); err != nil {
		h.logger.Error("clear recording failed", zap.Error(err), zap.String("session_id", sess.ID.String()))
		response.Internal(c, "failed to clear recording")
		return
	}
	response.OK(c, gin.H{"cleared": true})
}

// GetJoinToken handles GET /sessions/:id/token?identity=...&name=...&role=tutor.
func (h *Handler) GetJoinToken(c *gin.Context) {
	if h.tokens == nil {
		response.ServiceUnavailable(c, "conferencing not configured")
		return
	}
	sess, ok := h.session(c)
	if !ok {
		return
	}
	identity := c.Query("identity")
	if identity == "" {
		response.BadRequest(c, "identity required")
		return
	}
	canPublish := c.Query("role") == "tutor"
	token, err := h.tokens.JoinToken(sess.RoomName, identity, c.Query("name"), canPublish, 2*time.Hour)
	if err != nil {
		h.logger.Error("join token failed", zap.Error(err), zap.String("session_id", sess.ID.String()))
		response.Internal(c, "failed to issue token")
		return
	}
	response.OK(c, gin.H{"token": token, "room_name": sess.RoomName})
}

func (h *Handler) session(c *gin.Context) (*models.Session, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return nil, false
	}
	sess, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get session failed", zap.Error(err), zap.String("session_id", id.String()))
		response.Internal(c, "failed to load session")
		return nil, false
	}
	if sess == nil {
		response.NotFound(c, "session not found")
		return nil, false
	}
	return sess, true
}
