package recordings

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tabsera/tabsera-academy-sub001/internal/models"
	"github.com/tabsera/tabsera-academy-sub001/pkg/storage"
)

// Controller starts and stops provider-side recording jobs. Recording is an
// optional enhancement of a session: precondition failures (disabled clients,
// no active room) are soft no-ops so the surrounding session flow never blocks
// on recording.
type Controller struct {
	store        SessionStore
	egress       EgressService
	objects      ObjectStore
	allowRestart bool
	logger       *zap.Logger
}

// NewController creates an egress controller.
func NewController(store SessionStore, egress EgressService, objects ObjectStore, allowRestart bool, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{store: store, egress: egress, objects: objects, allowRestart: allowRestart, logger: logger}
}

// Start requests a composite recording of the session's room, writing to a
// generated artifact key in object storage. On success the session transitions
// to recording. Returns ("", nil) when recording is unavailable (soft failure);
// returns an error only when the provider rejected an actual start attempt, in
// which case the session is already marked failed.
func (c *Controller) Start(ctx context.Context, sess *models.Session) (string, error) {
	if !c.egress.Enabled() || !c.objects.Enabled() {
		c.logger.Warn("recording skipped: egress or storage not configured", zap.String("session_id", sess.ID.String()))
		return "", nil
	}
	switch sess.RecordingStatus {
	case models.RecordingStatusNone:
	case models.RecordingStatusFailed:
		if !c.allowRestart {
			return "", fmt.Errorf("recording previously failed for session %s", sess.ID)
		}
	default:
		return "", fmt.Errorf("recording already %s for session %s", sess.RecordingStatus, sess.ID)
	}

	active, err := c.egress.RoomActive(ctx, sess.RoomName)
	if err != nil {
		c.logger.Warn("recording skipped: room lookup failed", zap.Error(err), zap.String("room", sess.RoomName))
		return "", nil
	}
	if !active {
		c.logger.Warn("recording skipped: room not active", zap.String("room", sess.RoomName))
		return "", nil
	}

	key := storage.ArtifactKey(sess.ID.String(), time.Now())
	egressID, err := c.egress.StartCompositeToStorage(ctx, sess.RoomName, key)
	if err != nil {
		c.logger.Error("start egress failed", zap.Error(err), zap.String("session_id", sess.ID.String()))
		if _, ferr := c.store.MarkFailed(ctx, sess.ID, "egress start: "+err.Error()); ferr != nil {
			c.logger.Error("mark failed after start error", zap.Error(ferr), zap.String("session_id", sess.ID.String()))
		}
		return "", fmt.Errorf("start egress: %w", err)
	}

	ok, err := c.store.BeginRecording(ctx, sess.ID, egressID, key, c.allowRestart)
	if err != nil {
		return "", fmt.Errorf("persist egress start: %w", err)
	}
	if !ok {
		// Lost a race with a concurrent start; abandon the job we created.
		c.logger.Warn("concurrent recording start, stopping duplicate egress",
			zap.String("session_id", sess.ID.String()), zap.String("egress_id", egressID))
		if serr := c.egress.Stop(ctx, egressID); serr != nil {
			c.logger.Warn("stop duplicate egress failed", zap.Error(serr), zap.String("egress_id", egressID))
		}
		return "", nil
	}

	c.logger.Info("recording started",
		zap.String("session_id", sess.ID.String()),
		zap.String("egress_id", egressID),
		zap.String("artifact_key", key),
	)
	return egressID, nil
}

// Stop requests the provider to finalize the session's egress job. The final
// file location arrives later via webhook; the session moves to pending.
func (c *Controller) Stop(ctx context.Context, sess *models.Session) error {
	if sess.EgressID == "" || sess.RecordingStatus != models.RecordingStatusRecording {
		return fmt.Errorf("no active recording for session %s", sess.ID)
	}
	if err := c.egress.Stop(ctx, sess.EgressID); err != nil {
		c.logger.Error("stop egress failed", zap.Error(err), zap.String("egress_id", sess.EgressID))
		if _, ferr := c.store.MarkFailed(ctx, sess.ID, "egress stop: "+err.Error()); ferr != nil {
			c.logger.Error("mark failed after stop error", zap.Error(ferr), zap.String("session_id", sess.ID.String()))
		}
		return fmt.Errorf("stop egress: %w", err)
	}
	if _, err := c.store.MarkPending(ctx, sess.ID); err != nil {
		return fmt.Errorf("persist egress stop: %w", err)
	}
	c.logger.Info("recording stopping, awaiting file", zap.String("session_id", sess.ID.String()), zap.String("egress_id", sess.EgressID))
	return nil
}
