package recordings_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tabsera/tabsera-academy-sub001/internal/models"
	"github.com/tabsera/tabsera-academy-sub001/internal/recordings"
)

func newWebhookRig(t *testing.T) (*fakeStore, *fakeSched, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	sched := &fakeSched{}
	router := recordings.NewEventRouter(store, sched, nil)
	wh := recordings.NewWebhookHandler(testAPIKey, testAPISecret, router, nil)
	engine := gin.New()
	engine.POST("/webhooks/livekit", wh.Handle)
	return store, sched, engine
}

func deliver(t *testing.T, engine *gin.Engine, ev recordings.Event, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/livekit", bytes.NewReader(body))
	if sign {
		req.Header.Set("Authorization", signBody(t, body, testAPIKey, testAPISecret))
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func pendingSession(store *fakeStore, egressID string) *models.Session {
	now := time.Now()
	ended := now.Add(30 * time.Minute)
	return store.put(&models.Session{
		RoomName:        "room-algebra-1",
		Subject:         "Algebra",
		RecordingStatus: models.RecordingStatusPending,
		EgressID:        egressID,
		ArtifactKey:     "session-x.mp4",
		StartedAt:       &now,
		EndedAt:         &ended,
	})
}

func TestWebhookRejectsUnsignedDelivery(t *testing.T) {
	store, sched, engine := newWebhookRig(t)
	sess := pendingSession(store, "EG_1")

	w := deliver(t, engine, recordings.Event{
		Event:      recordings.EventEgressEnded,
		EgressInfo: &recordings.EgressInfo{EgressID: "EG_1"},
	}, false)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body["error"] != "Invalid signature" {
		t.Fatalf("error = %q, want %q", body["error"], "Invalid signature")
	}
	if got := store.get(sess.ID).RecordingStatus; got != models.RecordingStatusPending {
		t.Fatalf("session status mutated to %q by rejected delivery", got)
	}
	if len(sched.processJobs) != 0 {
		t.Fatalf("rejected delivery enqueued %d jobs", len(sched.processJobs))
	}
}

func TestWebhookEgressEndedEnqueuesProcessing(t *testing.T) {
	store, sched, engine := newWebhookRig(t)
	pendingSession(store, "EG_1")

	w := deliver(t, engine, recordings.Event{
		Event: recordings.EventEgressEnded,
		EgressInfo: &recordings.EgressInfo{
			EgressID: "EG_1",
			Status:   "EGRESS_COMPLETE",
			FileResults: []recordings.FileResult{{
				Filename: "session-x.mp4",
				Location: "https://bucket.s3.test/session-x.mp4",
				Duration: int64(42 * time.Minute),
				Size:     123456,
			}},
		},
	}, true)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	var body map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !body["received"] {
		t.Fatalf("body = %s, want received:true", w.Body.String())
	}
	if len(sched.processJobs) != 1 {
		t.Fatalf("process jobs = %d, want 1", len(sched.processJobs))
	}
	job := sched.processJobs[0]
	if job.EgressID != "EG_1" || job.ArtifactKey != "session-x.mp4" {
		t.Fatalf("job = %+v, want egress EG_1 with artifact session-x.mp4", job)
	}
}

func TestWebhookEgressEndedWithoutFileMarksFailed(t *testing.T) {
	store, sched, engine := newWebhookRig(t)
	sess := pendingSession(store, "EG_1")

	w := deliver(t, engine, recordings.Event{
		Event:      recordings.EventEgressEnded,
		EgressInfo: &recordings.EgressInfo{EgressID: "EG_1", Status: "EGRESS_ABORTED"},
	}, true)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	got := store.get(sess.ID)
	if got.RecordingStatus != models.RecordingStatusFailed {
		t.Fatalf("status = %q, want failed", got.RecordingStatus)
	}
	if got.FailureReason != recordings.FailureNoFile {
		t.Fatalf("failure reason = %q, want %q", got.FailureReason, recordings.FailureNoFile)
	}
	if len(sched.processJobs) != 0 {
		t.Fatalf("no-file event enqueued %d jobs", len(sched.processJobs))
	}
}

func TestWebhookEgressUpdatedErrorMarksFailed(t *testing.T) {
	store, _, engine := newWebhookRig(t)
	sess := store.put(&models.Session{
		RoomName:        "room-1",
		RecordingStatus: models.RecordingStatusRecording,
		EgressID:        "EG_2",
	})

	w := deliver(t, engine, recordings.Event{
		Event:      recordings.EventEgressUpdated,
		EgressInfo: &recordings.EgressInfo{EgressID: "EG_2", Status: "EGRESS_FAILED", Error: "pipeline crashed"},
	}, true)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	got := store.get(sess.ID)
	if got.RecordingStatus != models.RecordingStatusFailed || got.FailureReason != "pipeline crashed" {
		t.Fatalf("session = %q/%q, want failed with provider reason", got.RecordingStatus, got.FailureReason)
	}
}

func TestWebhookEgressUpdatedErrorDoesNotDowngradeCompleted(t *testing.T) {
	store, _, engine := newWebhookRig(t)
	sess := store.put(&models.Session{
		RoomName:        "room-1",
		RecordingStatus: models.RecordingStatusCompleted,
		EgressID:        "EG_3",
		HostedVideoID:   "900001",
	})

	w := deliver(t, engine, recordings.Event{
		Event:      recordings.EventEgressUpdated,
		EgressInfo: &recordings.EgressInfo{EgressID: "EG_3", Error: "late failure report"},
	}, true)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	got := store.get(sess.ID)
	if got.RecordingStatus != models.RecordingStatusCompleted {
		t.Fatalf("completed session downgraded to %q", got.RecordingStatus)
	}
}

func TestWebhookIgnoresUnknownEvent(t *testing.T) {
	store, sched, engine := newWebhookRig(t)
	sess := pendingSession(store, "EG_1")

	w := deliver(t, engine, recordings.Event{Event: "track_published"}, true)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := store.get(sess.ID).RecordingStatus; got != models.RecordingStatusPending {
		t.Fatalf("unknown event mutated session to %q", got)
	}
	if len(sched.processJobs) != 0 {
		t.Fatalf("unknown event enqueued %d jobs", len(sched.processJobs))
	}
}

func TestWebhookRoomAndParticipantEventsAreAcknowledged(t *testing.T) {
	_, _, engine := newWebhookRig(t)
	for _, name := range []string{
		recordings.EventRoomStarted,
		recordings.EventRoomFinished,
		recordings.EventParticipantJoin,
		recordings.EventParticipantLeft,
	} {
		w := deliver(t, engine, recordings.Event{
			Event:       name,
			Room:        &recordings.RoomInfo{Name: "room-1"},
			Participant: &recordings.ParticipantInfo{Identity: "student-7"},
		}, true)
		if w.Code != http.StatusOK {
			t.Fatalf("event %s: status = %d, want 200", name, w.Code)
		}
	}
}

func TestWebhookQueueFailureReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	sched := &fakeSched{enqueueErr: errTestDown}
	router := recordings.NewEventRouter(store, sched, nil)
	wh := recordings.NewWebhookHandler(testAPIKey, testAPISecret, router, nil)
	engine := gin.New()
	engine.POST("/webhooks/livekit", wh.Handle)
	pendingSession(store, "EG_1")

	w := deliver(t, engine, recordings.Event{
		Event: recordings.EventEgressEnded,
		EgressInfo: &recordings.EgressInfo{
			EgressID:    "EG_1",
			FileResults: []recordings.FileResult{{Filename: "session-x.mp4"}},
		},
	}, true)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 so the provider retries", w.Code)
	}
}
