package recordings_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tabsera/tabsera-academy-sub001/internal/models"
	"github.com/tabsera/tabsera-academy-sub001/pkg/queue"
)

var errTestDown = errors.New("dependency unavailable")

// fakeStore is an in-memory SessionStore with the same compare-and-swap
// transition rules as the SQL repository.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[uuid.UUID]*models.Session)}
}

func (s *fakeStore) put(sess *models.Session) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	s.sessions[sess.ID] = sess
	return sess
}

func (s *fakeStore) get(id uuid.UUID) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func (s *fakeStore) byEgress(egressID string) *models.Session {
	for _, sess := range s.sessions {
		if sess.EgressID == egressID {
			return sess
		}
	}
	return nil
}

func (s *fakeStore) Create(_ context.Context, sess *models.Session) error {
	now := time.Now()
	sess.StartedAt = &now
	s.put(sess)
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) GetByEgressID(_ context.Context, egressID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.byEgress(egressID)
	if sess == nil {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) BeginRecording(_ context.Context, id uuid.UUID, egressID, artifactKey string, allowRestart bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false, nil
	}
	if sess.RecordingStatus != models.RecordingStatusNone &&
		!(allowRestart && sess.RecordingStatus == models.RecordingStatusFailed) {
		return false, nil
	}
	sess.RecordingStatus = models.RecordingStatusRecording
	sess.EgressID = egressID
	sess.ArtifactKey = artifactKey
	sess.FailureReason = ""
	return true, nil
}

func (s *fakeStore) MarkPending(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.RecordingStatus != models.RecordingStatusRecording {
		return false, nil
	}
	sess.RecordingStatus = models.RecordingStatusPending
	if sess.EndedAt == nil {
		now := time.Now()
		sess.EndedAt = &now
	}
	return true, nil
}

func (s *fakeStore) ClaimProcessing(_ context.Context, egressID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.byEgress(egressID)
	if sess == nil {
		return nil, nil
	}
	if sess.RecordingStatus != models.RecordingStatusRecording && sess.RecordingStatus != models.RecordingStatusPending {
		return nil, nil
	}
	sess.RecordingStatus = models.RecordingStatusProcessing
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) Complete(_ context.Context, id uuid.UUID, videoID, embedURL string, durationSeconds int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.RecordingStatus != models.RecordingStatusProcessing {
		return false, nil
	}
	sess.RecordingStatus = models.RecordingStatusCompleted
	sess.HostedVideoID = videoID
	sess.HostedVideoURL = embedURL
	if durationSeconds > sess.DurationSeconds {
		sess.DurationSeconds = durationSeconds
	}
	return true, nil
}

func (s *fakeStore) markFailed(sess *models.Session, reason string) bool {
	if sess == nil ||
		sess.RecordingStatus == models.RecordingStatusCompleted ||
		sess.RecordingStatus == models.RecordingStatusFailed {
		return false
	}
	sess.RecordingStatus = models.RecordingStatusFailed
	sess.FailureReason = reason
	return true
}

func (s *fakeStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markFailed(s.sessions[id], reason), nil
}

func (s *fakeStore) MarkFailedByEgress(_ context.Context, egressID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markFailed(s.byEgress(egressID), reason), nil
}

func (s *fakeStore) SetEmbedURL(_ context.Context, id uuid.UUID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok && sess.RecordingStatus == models.RecordingStatusCompleted {
		sess.HostedVideoURL = url
	}
	return nil
}

func (s *fakeStore) SetDuration(_ context.Context, id uuid.UUID, seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.DurationSeconds = seconds
	}
	return nil
}

func (s *fakeStore) ClearRecording(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.RecordingStatus = models.RecordingStatusNone
		sess.EgressID = ""
		sess.ArtifactKey = ""
		sess.HostedVideoID = ""
		sess.HostedVideoURL = ""
		sess.DurationSeconds = 0
		sess.FailureReason = ""
	}
	return nil
}

// fakeEgress implements EgressService.
type fakeEgress struct {
	enabled    bool
	roomActive bool
	roomErr    error
	egressID   string
	startErr   error
	started    int
	stopped    []string
	stopErr    error
}

func (e *fakeEgress) Enabled() bool { return e.enabled }

func (e *fakeEgress) RoomActive(_ context.Context, _ string) (bool, error) {
	return e.roomActive, e.roomErr
}

func (e *fakeEgress) StartCompositeToStorage(_ context.Context, _, _ string) (string, error) {
	if e.startErr != nil {
		return "", e.startErr
	}
	e.started++
	return e.egressID, nil
}

func (e *fakeEgress) Stop(_ context.Context, egressID string) error {
	e.stopped = append(e.stopped, egressID)
	return e.stopErr
}

// fakeObjects implements ObjectStore.
type fakeObjects struct {
	enabled   bool
	objects   map[string]bool
	deleted   []string
	existsErr error
	deleteErr error
}

func newFakeObjects(keys ...string) *fakeObjects {
	o := &fakeObjects{enabled: true, objects: make(map[string]bool)}
	for _, k := range keys {
		o.objects[k] = true
	}
	return o
}

func (o *fakeObjects) Enabled() bool { return o.enabled }

func (o *fakeObjects) Exists(_ context.Context, key string) (bool, error) {
	if o.existsErr != nil {
		return false, o.existsErr
	}
	return o.objects[key], nil
}

func (o *fakeObjects) Delete(_ context.Context, key string) error {
	if o.deleteErr != nil {
		return o.deleteErr
	}
	delete(o.objects, key)
	o.deleted = append(o.deleted, key)
	return nil
}

func (o *fakeObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://bucket.s3.test/" + key + "?signed=1", nil
}

func (o *fakeObjects) PresignExpire() time.Duration { return time.Hour }

// fakeHost implements VideoHost.
type fakeHost struct {
	enabled   bool
	videoID   string
	uploads   int
	uploadErr error
	state     string
	duration  int
	statusErr error
	embedURL  string
	embedErr  error
	privacy   []string
	domains   []string
	deleted   []string
	deleteErr error
}

func (h *fakeHost) Enabled() bool { return h.enabled }

func (h *fakeHost) PullUpload(_ context.Context, _, _, _ string) (string, error) {
	if h.uploadErr != nil {
		return "", h.uploadErr
	}
	h.uploads++
	return h.videoID, nil
}

func (h *fakeHost) Status(_ context.Context, _ string) (string, int, error) {
	if h.statusErr != nil {
		return "", 0, h.statusErr
	}
	return h.state, h.duration, nil
}

func (h *fakeHost) EmbedURL(_ context.Context, _ string) (string, error) {
	return h.embedURL, h.embedErr
}

func (h *fakeHost) SetPrivacy(_ context.Context, _, view string) error {
	h.privacy = append(h.privacy, view)
	return nil
}

func (h *fakeHost) AddEmbedDomain(_ context.Context, _, domain string) error {
	h.domains = append(h.domains, domain)
	return nil
}

func (h *fakeHost) Delete(_ context.Context, videoID string) error {
	h.deleted = append(h.deleted, videoID)
	return h.deleteErr
}

// fakeSched implements Scheduler.
type scheduledCleanup struct {
	payload queue.CleanupPayload
	due     time.Time
}

type fakeSched struct {
	processJobs []queue.ProcessPayload
	cleanups    []scheduledCleanup
	dlq         []queue.CleanupPayload
	enqueueErr  error
}

func (s *fakeSched) EnqueueProcess(_ context.Context, payload queue.ProcessPayload) error {
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.processJobs = append(s.processJobs, payload)
	return nil
}

func (s *fakeSched) ScheduleCleanup(_ context.Context, payload queue.CleanupPayload, due time.Time) error {
	s.cleanups = append(s.cleanups, scheduledCleanup{payload: payload, due: due})
	return nil
}

func (s *fakeSched) DeadLetterCleanup(_ context.Context, payload queue.CleanupPayload) error {
	s.dlq = append(s.dlq, payload)
	return nil
}
