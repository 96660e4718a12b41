package recordings_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tabsera/tabsera-academy-sub001/internal/models"
	"github.com/tabsera/tabsera-academy-sub001/internal/recordings"
	"github.com/tabsera/tabsera-academy-sub001/pkg/queue"
)

func processorRig(store *fakeStore, host *fakeHost, objects *fakeObjects) (*recordings.Processor, *fakeSched) {
	sched := &fakeSched{}
	cfg := recordings.ProcessorConfig{
		PrivacyView:       "disable",
		EmbedDomains:      []string{"academy.example.com", "app.example.com"},
		EmbedURLRetryWait: time.Millisecond,
		CleanupDelay:      30 * time.Minute,
	}
	return recordings.NewProcessor(store, host, objects, sched, cfg, nil), sched
}

func TestProcessorCompletesRecording(t *testing.T) {
	store := newFakeStore()
	sess := pendingSession(store, "EG_1")
	host := &fakeHost{enabled: true, videoID: "900123", embedURL: "https://player.vimeo.test/900123"}
	objects := newFakeObjects("session-x.mp4")
	proc, sched := processorRig(store, host, objects)

	payload := queue.ProcessPayload{EgressID: "EG_1", ArtifactKey: "session-x.mp4"}
	if err := proc.Process(context.Background(), payload); err != nil {
		t.Fatalf("Process() = %v, want nil", err)
	}

	got := store.get(sess.ID)
	if got.RecordingStatus != models.RecordingStatusCompleted {
		t.Fatalf("status = %q, want completed", got.RecordingStatus)
	}
	if got.HostedVideoID != "900123" {
		t.Fatalf("hosted video id = %q, want 900123", got.HostedVideoID)
	}
	if got.HostedVideoURL != "https://player.vimeo.test/900123" {
		t.Fatalf("embed url = %q", got.HostedVideoURL)
	}
	if host.uploads != 1 {
		t.Fatalf("uploads = %d, want 1", host.uploads)
	}
	if len(host.privacy) != 1 || host.privacy[0] != "disable" {
		t.Fatalf("privacy calls = %v, want one disable", host.privacy)
	}
	if len(host.domains) != 2 {
		t.Fatalf("embed domains = %v, want both whitelisted", host.domains)
	}
	if len(sched.cleanups) != 1 {
		t.Fatalf("cleanups scheduled = %d, want 1", len(sched.cleanups))
	}
	armed := sched.cleanups[0]
	if armed.payload.SessionID != sess.ID || armed.payload.ArtifactKey != "session-x.mp4" || armed.payload.VideoID != "900123" {
		t.Fatalf("cleanup payload = %+v", armed.payload)
	}
	if until := time.Until(armed.due); until < 29*time.Minute || until > 31*time.Minute {
		t.Fatalf("cleanup due in %v, want about 30m", until)
	}
}

func TestProcessorDuplicateDeliveryUploadsOnce(t *testing.T) {
	store := newFakeStore()
	pendingSession(store, "EG_1")
	host := &fakeHost{enabled: true, videoID: "900123", embedURL: "https://player.vimeo.test/900123"}
	proc, sched := processorRig(store, host, newFakeObjects("session-x.mp4"))

	payload := queue.ProcessPayload{EgressID: "EG_1", ArtifactKey: "session-x.mp4"}
	for i := 0; i < 2; i++ {
		if err := proc.Process(context.Background(), payload); err != nil {
			t.Fatalf("Process() #%d = %v, want nil", i+1, err)
		}
	}
	if host.uploads != 1 {
		t.Fatalf("uploads = %d, want exactly 1 across duplicate deliveries", host.uploads)
	}
	if len(sched.cleanups) != 1 {
		t.Fatalf("cleanups = %d, want 1", len(sched.cleanups))
	}
}

func TestProcessorIgnoresOrphanedEgress(t *testing.T) {
	store := newFakeStore()
	host := &fakeHost{enabled: true, videoID: "900123"}
	proc, sched := processorRig(store, host, newFakeObjects())

	err := proc.Process(context.Background(), queue.ProcessPayload{EgressID: "EG_UNKNOWN", ArtifactKey: "x.mp4"})
	if err != nil {
		t.Fatalf("Process() = %v, want nil for orphaned egress", err)
	}
	if host.uploads != 0 {
		t.Fatalf("orphaned egress triggered %d uploads", host.uploads)
	}
	if len(sched.cleanups) != 0 {
		t.Fatalf("orphaned egress armed %d cleanups", len(sched.cleanups))
	}
}

func TestProcessorUploadFailureMarksFailed(t *testing.T) {
	store := newFakeStore()
	sess := pendingSession(store, "EG_1")
	host := &fakeHost{enabled: true, uploadErr: errTestDown}
	proc, sched := processorRig(store, host, newFakeObjects("session-x.mp4"))

	err := proc.Process(context.Background(), queue.ProcessPayload{EgressID: "EG_1", ArtifactKey: "session-x.mp4"})
	if err != nil {
		t.Fatalf("Process() = %v, want nil so the job is not retried", err)
	}
	got := store.get(sess.ID)
	if got.RecordingStatus != models.RecordingStatusFailed {
		t.Fatalf("status = %q, want failed", got.RecordingStatus)
	}
	if !strings.Contains(got.FailureReason, "pull upload") {
		t.Fatalf("failure reason = %q, want a pull upload reason", got.FailureReason)
	}
	if len(sched.cleanups) != 0 {
		t.Fatalf("failed processing armed %d cleanups", len(sched.cleanups))
	}
}

func TestProcessorCompletesWithoutEmbedURL(t *testing.T) {
	store := newFakeStore()
	sess := pendingSession(store, "EG_1")
	host := &fakeHost{enabled: true, videoID: "900123", embedURL: ""}
	proc, sched := processorRig(store, host, newFakeObjects("session-x.mp4"))

	if err := proc.Process(context.Background(), queue.ProcessPayload{EgressID: "EG_1", ArtifactKey: "session-x.mp4"}); err != nil {
		t.Fatalf("Process() = %v, want nil", err)
	}
	got := store.get(sess.ID)
	if got.RecordingStatus != models.RecordingStatusCompleted {
		t.Fatalf("status = %q, want completed even without an embed url", got.RecordingStatus)
	}
	if got.HostedVideoURL != "" {
		t.Fatalf("embed url = %q, want empty until fetched on demand", got.HostedVideoURL)
	}
	if len(sched.cleanups) != 1 {
		t.Fatalf("cleanups = %d, want 1", len(sched.cleanups))
	}
}

func TestProcessorUsesProviderLocationWithoutStorage(t *testing.T) {
	store := newFakeStore()
	sess := pendingSession(store, "EG_1")
	host := &fakeHost{enabled: true, videoID: "900123", embedURL: "https://player.vimeo.test/900123"}
	objects := &fakeObjects{enabled: false}
	proc, _ := processorRig(store, host, objects)

	err := proc.Process(context.Background(), queue.ProcessPayload{
		EgressID:    "EG_1",
		ArtifactKey: "session-x.mp4",
		FileURL:     "https://provider.test/out/session-x.mp4",
	})
	if err != nil {
		t.Fatalf("Process() = %v, want nil", err)
	}
	if got := store.get(sess.ID).RecordingStatus; got != models.RecordingStatusCompleted {
		t.Fatalf("status = %q, want completed", got)
	}
	if host.uploads != 1 {
		t.Fatalf("uploads = %d, want 1", host.uploads)
	}
}
