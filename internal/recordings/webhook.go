package recordings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tabsera/tabsera-academy-sub001/pkg/queue"
)

// FailureNoFile is the named failure recorded when a completion event carries
// no file descriptor.
const FailureNoFile = "no file produced"

// WebhookHandler receives provider webhook deliveries, verifies their
// signature against the raw body, and routes verified events. The provider
// retries on non-2xx, so the handler answers 200 as soon as an event is
// accepted; only signature failures get a 401 and only a failure to accept
// (store or queue unavailable) gets a 500.
type WebhookHandler struct {
	apiKey    string
	apiSecret string
	router    *EventRouter
	logger    *zap.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(apiKey, apiSecret string, router *EventRouter, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{apiKey: apiKey, apiSecret: apiSecret, router: router, logger: logger}
}

// Handle handles POST /webhooks/livekit.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read body failed"})
		return
	}
	if err := VerifyWebhook(body, c.GetHeader("Authorization"), h.apiKey, h.apiSecret); err != nil {
		h.logger.Warn("webhook rejected", zap.Error(err), zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		h.logger.Error("webhook payload unparseable", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.router.Route(c.Request.Context(), &ev); err != nil {
		h.logger.Error("webhook not accepted", zap.Error(err), zap.String("event", ev.Event))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// EventRouter dispatches verified webhook events by name. Quick state changes
// (failure marks) run inline; file processing is enqueued for the worker so the
// provider gets its 200 without waiting on the hosted platform.
type EventRouter struct {
	store    SessionStore
	sched    Scheduler
	handlers map[string]func(ctx context.Context, ev *Event) error
	logger   *zap.Logger
}

// NewEventRouter creates an event router.
func NewEventRouter(store SessionStore, sched Scheduler, logger *zap.Logger) *EventRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &EventRouter{store: store, sched: sched, logger: logger}
	r.handlers = map[string]func(ctx context.Context, ev *Event) error{
		EventEgressStarted:   r.logOnly,
		EventEgressUpdated:   r.egressUpdated,
		EventEgressEnded:     r.egressEnded,
		EventRoomStarted:     r.logOnly,
		EventRoomFinished:    r.logOnly,
		EventParticipantJoin: r.logOnly,
		EventParticipantLeft: r.logOnly,
	}
	return r
}

// Route dispatches one event. Unrecognized event names are logged and ignored.
func (r *EventRouter) Route(ctx context.Context, ev *Event) error {
	handler, ok := r.handlers[ev.Event]
	if !ok {
		r.logger.Info("ignoring unrecognized webhook event", zap.String("event", ev.Event))
		return nil
	}
	return handler(ctx, ev)
}

func (r *EventRouter) logOnly(_ context.Context, ev *Event) error {
	fields := []zap.Field{zap.String("event", ev.Event)}
	if ev.EgressInfo != nil {
		fields = append(fields, zap.String("egress_id", ev.EgressInfo.EgressID))
	}
	if ev.Room != nil {
		fields = append(fields, zap.String("room", ev.Room.Name))
	}
	if ev.Participant != nil {
		fields = append(fields, zap.String("participant", ev.Participant.Identity))
	}
	r.logger.Info("webhook event", fields...)
	return nil
}

// egressEnded resolves the produced file and enqueues processing. A completion
// without a file is a terminal, named failure.
func (r *EventRouter) egressEnded(ctx context.Context, ev *Event) error {
	if ev.EgressInfo == nil || ev.EgressInfo.EgressID == "" {
		r.logger.Warn("egress_ended without egress info")
		return nil
	}
	info := ev.EgressInfo
	if len(info.FileResults) == 0 {
		r.logger.Warn("egress ended with no file", zap.String("egress_id", info.EgressID))
		changed, err := r.store.MarkFailedByEgress(ctx, info.EgressID, FailureNoFile)
		if err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		if !changed {
			r.logger.Info("session already terminal, ignoring no-file event", zap.String("egress_id", info.EgressID))
		}
		return nil
	}
	file := info.FileResults[0]
	if err := r.sched.EnqueueProcess(ctx, queue.ProcessPayload{
		EgressID:    info.EgressID,
		ArtifactKey: file.Filename,
		FileURL:     file.Location,
	}); err != nil {
		return fmt.Errorf("enqueue process: %w", err)
	}
	r.logger.Info("egress ended, processing enqueued",
		zap.String("egress_id", info.EgressID),
		zap.String("artifact_key", file.Filename),
	)
	return nil
}

// egressUpdated marks a terminal failure when the provider reports an error;
// plain progress updates are informational.
func (r *EventRouter) egressUpdated(ctx context.Context, ev *Event) error {
	if ev.EgressInfo == nil || ev.EgressInfo.EgressID == "" {
		return nil
	}
	info := ev.EgressInfo
	if info.Error == "" {
		r.logger.Debug("egress update", zap.String("egress_id", info.EgressID), zap.String("status", info.Status))
		return nil
	}
	r.logger.Warn("egress reported error", zap.String("egress_id", info.EgressID), zap.String("reason", info.Error))
	changed, err := r.store.MarkFailedByEgress(ctx, info.EgressID, info.Error)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if !changed {
		r.logger.Info("session already terminal, ignoring egress error", zap.String("egress_id", info.EgressID))
	}
	return nil
}
