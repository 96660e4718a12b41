package recordings

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tabsera/tabsera-academy-sub001/internal/models"
	"github.com/tabsera/tabsera-academy-sub001/pkg/queue"
)

// ProcessorConfig tunes the processor.
type ProcessorConfig struct {
	PrivacyView       string
	EmbedDomains      []string
	EmbedURLRetryWait time.Duration // single bounded wait before the second embed-URL attempt
	CleanupDelay      time.Duration // delay before the first cleanup attempt
}

// Processor mirrors a finished recording into the hosted video platform and
// persists the result on the session. Duplicate deliveries are defused by the
// CAS claim: only one invocation per egress can move the session into
// processing, so at most one pull upload happens per recording.
type Processor struct {
	store   SessionStore
	host    VideoHost
	objects ObjectStore
	sched   Scheduler
	cfg     ProcessorConfig
	logger  *zap.Logger

	// test seam; sleeps cfg.EmbedURLRetryWait in production
	wait func(ctx context.Context, d time.Duration)
}

// NewProcessor creates a recording processor.
func NewProcessor(store SessionStore, host VideoHost, objects ObjectStore, sched Scheduler, cfg ProcessorConfig, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:   store,
		host:    host,
		objects: objects,
		sched:   sched,
		cfg:     cfg,
		logger:  logger,
		wait: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		},
	}
}

// Process executes one recording process job. Provider and platform failures
// are recorded as a terminal failed state and do not bubble up (the upload is
// never retried automatically); only infrastructure errors that occur before
// the session is claimed return an error, which the worker may retry safely.
func (p *Processor) Process(ctx context.Context, payload queue.ProcessPayload) error {
	sess, err := p.store.ClaimProcessing(ctx, payload.EgressID)
	if err != nil {
		return fmt.Errorf("claim session: %w", err)
	}
	if sess == nil {
		p.logger.Info("no session claimed, duplicate or orphaned event", zap.String("egress_id", payload.EgressID))
		return nil
	}
	log := p.logger.With(zap.String("session_id", sess.ID.String()), zap.String("egress_id", payload.EgressID))

	sourceURL, err := p.resolveSourceURL(ctx, payload)
	if err != nil {
		p.fail(ctx, sess, "resolve artifact url: "+err.Error(), log)
		return nil
	}

	title, description := describeSession(sess)
	videoID, err := p.host.PullUpload(ctx, sourceURL, title, description)
	if err != nil {
		p.fail(ctx, sess, "pull upload: "+err.Error(), log)
		return nil
	}
	log = log.With(zap.String("video_id", videoID))

	if err := p.host.SetPrivacy(ctx, videoID, p.cfg.PrivacyView); err != nil {
		p.fail(ctx, sess, "set privacy: "+err.Error(), log)
		return nil
	}
	for _, domain := range p.cfg.EmbedDomains {
		if err := p.host.AddEmbedDomain(ctx, videoID, domain); err != nil {
			p.fail(ctx, sess, "add embed domain "+domain+": "+err.Error(), log)
			return nil
		}
	}

	// Best effort: the platform may not have registered the video yet. One
	// bounded retry, then defer to the on-demand fetch in the details endpoint.
	embedURL := p.tryEmbedURL(ctx, videoID, log)

	artifactKey := payload.ArtifactKey
	if artifactKey == "" {
		artifactKey = sess.ArtifactKey
	}

	ok, err := p.store.Complete(ctx, sess.ID, videoID, embedURL, 0)
	if err != nil {
		p.fail(ctx, sess, "persist result: "+err.Error(), log)
		return nil
	}
	if !ok {
		log.Warn("session left processing state concurrently, result not persisted")
		return nil
	}

	if err := p.sched.ScheduleCleanup(ctx, queue.CleanupPayload{
		SessionID:   sess.ID,
		ArtifactKey: artifactKey,
		VideoID:     videoID,
	}, time.Now().Add(p.cfg.CleanupDelay)); err != nil {
		// The recording is safe either way; the artifact lingers until re-driven.
		log.Error("schedule cleanup failed", zap.Error(err))
	}

	log.Info("recording processed", zap.String("embed_url", embedURL))
	return nil
}

// resolveSourceURL produces the URL the hosted platform pulls the file from:
// a presigned GET on the artifact when storage is configured, otherwise the
// location reported by the provider.
func (p *Processor) resolveSourceURL(ctx context.Context, payload queue.ProcessPayload) (string, error) {
	if p.objects.Enabled() && payload.ArtifactKey != "" {
		url, err := p.objects.PresignGet(ctx, payload.ArtifactKey, p.objects.PresignExpire())
		if err != nil {
			return "", err
		}
		return url, nil
	}
	if payload.FileURL != "" {
		return payload.FileURL, nil
	}
	return "", fmt.Errorf("no artifact key or file url")
}

func (p *Processor) tryEmbedURL(ctx context.Context, videoID string, log *zap.Logger) string {
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			p.wait(ctx, p.cfg.EmbedURLRetryWait)
		}
		url, err := p.host.EmbedURL(ctx, videoID)
		if err != nil {
			log.Warn("embed url fetch failed", zap.Error(err), zap.Int("attempt", attempt+1))
			continue
		}
		if url != "" {
			return url
		}
	}
	log.Info("embed url not yet available, deferring to on-demand fetch")
	return ""
}

func (p *Processor) fail(ctx context.Context, sess *models.Session, reason string, log *zap.Logger) {
	log.Error("recording processing failed", zap.String("reason", reason))
	if _, err := p.store.MarkFailed(ctx, sess.ID, reason); err != nil {
		log.Error("mark failed errored", zap.Error(err))
	}
}

// describeSession builds the hosted video title and description from session
// metadata. Purely descriptive.
func describeSession(s *models.Session) (title, description string) {
	date := s.CreatedAt
	if s.StartedAt != nil {
		date = *s.StartedAt
	}
	subject := s.Subject
	if subject == "" {
		subject = "Tutoring session"
	}
	title = fmt.Sprintf("%s - %s", subject, date.Format("2006-01-02"))
	switch {
	case s.TutorName != "" && s.StudentName != "":
		description = fmt.Sprintf("%s with %s and %s on %s.", subject, s.TutorName, s.StudentName, date.Format("January 2, 2006"))
	case s.TutorName != "":
		description = fmt.Sprintf("%s with %s on %s.", subject, s.TutorName, date.Format("January 2, 2006"))
	default:
		description = fmt.Sprintf("%s on %s.", subject, date.Format("January 2, 2006"))
	}
	return title, description
}
