package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"streampulse/internal/observability/logging"
	"streampulse/internal/observability/metrics"
	"streampulse/internal/storage"
)

// DefaultThumbnailDelay is how long the scheduler waits before applying a
// thumbnail. The provider generates the asset shortly after the recording
// starts; applying immediately would publish a URL that does not resolve yet.
const DefaultThumbnailDelay = 2 * time.Minute

// DefaultClaimBatchSize bounds how many due records one ApplyDue pass drains.
const DefaultClaimBatchSize = 50

// Scheduler persists deferred thumbnail assignments and applies them once
// they come due. Pending records live in the repository, so scheduled
// updates survive a process restart and any replica can drain them.
type Scheduler struct {
	repo    storage.Repository
	logger  *slog.Logger
	metrics *metrics.Recorder
	delay   time.Duration
	now     func() time.Time
}

// SchedulerConfig configures a Scheduler. Zero values fall back to defaults.
type SchedulerConfig struct {
	Repository storage.Repository
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
	Delay      time.Duration
	Clock      func() time.Time
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	scheduler := &Scheduler{
		repo:    cfg.Repository,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		delay:   cfg.Delay,
		now:     cfg.Clock,
	}
	if scheduler.logger == nil {
		scheduler.logger = logging.WithComponent(slog.Default(), "enrichment")
	}
	if scheduler.metrics == nil {
		scheduler.metrics = metrics.Default()
	}
	if scheduler.delay <= 0 {
		scheduler.delay = DefaultThumbnailDelay
	}
	if scheduler.now == nil {
		scheduler.now = func() time.Time { return time.Now().UTC() }
	}
	return scheduler
}

// Schedule registers a one-shot deferred thumbnail application. Duplicate
// schedules for the same provider session id are allowed; the eventual write
// is idempotent.
func (s *Scheduler) Schedule(providerSessionID, thumbnailURL string) error {
	pending, err := s.repo.EnqueueThumbnail(storage.EnqueueThumbnailParams{
		ProviderSessionID: providerSessionID,
		ThumbnailURL:      thumbnailURL,
		ApplyAt:           s.now().Add(s.delay),
	})
	if err != nil {
		return err
	}
	s.metrics.ObserveEnrichment("scheduled")
	s.logger.Info("thumbnail scheduled",
		"provider_session_id", pending.ProviderSessionID,
		"apply_at", pending.ApplyAt)
	s.refreshQueueGauge()
	return nil
}

// ApplyDue claims due records and applies them to their sessions. Records
// whose session no longer exists are dropped silently. It returns how many
// records were applied and dropped.
func (s *Scheduler) ApplyDue(ctx context.Context) (applied, dropped int, err error) {
	due, err := s.repo.ClaimDueThumbnails(s.now(), DefaultClaimBatchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, pending := range due {
		if err := ctx.Err(); err != nil {
			return applied, dropped, err
		}
		_, matched, err := s.repo.SetThumbnailByProviderID(pending.ProviderSessionID, pending.ThumbnailURL)
		if err != nil {
			s.logger.Error("apply thumbnail failed",
				"provider_session_id", pending.ProviderSessionID,
				"error", err)
			return applied, dropped, err
		}
		if matched {
			applied++
			s.metrics.ObserveEnrichment("applied")
		} else {
			dropped++
			s.metrics.ObserveEnrichment("dropped")
			s.logger.Debug("thumbnail dropped, no matching session",
				"provider_session_id", pending.ProviderSessionID)
		}
	}

	s.refreshQueueGauge()
	return applied, dropped, nil
}

func (s *Scheduler) refreshQueueGauge() {
	count, err := s.repo.PendingThumbnailCount()
	if err != nil {
		return
	}
	s.metrics.SetPendingThumbnails(count)
}
