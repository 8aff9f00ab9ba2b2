package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"streampulse/internal/directory"
	"streampulse/internal/models"
	"streampulse/internal/observability/logging"
	"streampulse/internal/observability/metrics"
	"streampulse/internal/storage"
)

// Fallbacks used when a channel has no stream template, or the template
// leaves a field blank.
const (
	fallbackTitle       = "Untitled-Stream"
	fallbackDescription = "No description available"
)

// Outcome classifies how an event was handled. The webhook layer records it
// and always acknowledges; only malformed payloads are rejected upstream.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeEnded     Outcome = "ended"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeScheduled Outcome = "scheduled"
	OutcomeApplied   Outcome = "applied"
	OutcomeError     Outcome = "error"
)

// Correlator turns provider lifecycle notifications into session state. It
// resolves the provider's channel reference through the directory, seeds new
// sessions from the channel's template, and routes recording events to the
// deferred enricher.
type Correlator struct {
	repo      storage.Repository
	directory directory.Client
	scheduler *Scheduler
	logger    *slog.Logger
	metrics   *metrics.Recorder
	now       func() time.Time
}

// CorrelatorConfig configures a Correlator. Zero values fall back to
// defaults; a nil Directory disables external resolution.
type CorrelatorConfig struct {
	Repository storage.Repository
	Directory  directory.Client
	Scheduler  *Scheduler
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
	Clock      func() time.Time
}

func NewCorrelator(cfg CorrelatorConfig) *Correlator {
	correlator := &Correlator{
		repo:      cfg.Repository,
		directory: cfg.Directory,
		scheduler: cfg.Scheduler,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Clock,
	}
	if correlator.directory == nil {
		correlator.directory = directory.NoopClient{}
	}
	if correlator.logger == nil {
		correlator.logger = logging.WithComponent(slog.Default(), "lifecycle")
	}
	if correlator.metrics == nil {
		correlator.metrics = metrics.Default()
	}
	if correlator.now == nil {
		correlator.now = func() time.Time { return time.Now().UTC() }
	}
	if correlator.scheduler == nil {
		correlator.scheduler = NewScheduler(SchedulerConfig{
			Repository: cfg.Repository,
			Logger:     correlator.logger,
			Metrics:    correlator.metrics,
			Clock:      correlator.now,
		})
	}
	return correlator
}

// Scheduler exposes the deferred enricher wired into the correlator.
func (c *Correlator) Scheduler() *Scheduler {
	return c.scheduler
}

// HandleLifecycle processes one stream state change.
func (c *Correlator) HandleLifecycle(ctx context.Context, event LifecycleEvent) (Outcome, error) {
	switch event.Kind {
	case KindStreamStart:
		return c.handleStart(ctx, event)
	case KindStreamEnd:
		return c.handleEnd(ctx, event)
	case KindRecordingStart, KindRecordingEnd:
		// Recording notifications arrive on their own endpoint; one showing
		// up here is acknowledged without acting.
		return OutcomeIgnored, nil
	case KindUnknown:
		return OutcomeIgnored, nil
	default:
		return OutcomeIgnored, fmt.Errorf("unhandled event kind %v", event.Kind)
	}
}

// HandleRecording processes one recording state change.
func (c *Correlator) HandleRecording(ctx context.Context, event RecordingEvent) (Outcome, error) {
	switch event.Kind {
	case KindRecordingStart:
		if err := c.scheduler.Schedule(event.ProviderSessionID, thumbnailURL(event)); err != nil {
			return OutcomeError, fmt.Errorf("schedule thumbnail: %w", err)
		}
		return OutcomeScheduled, nil
	case KindRecordingEnd:
		// The VOD asset is confirmed ready, so the URL applies immediately.
		session, matched, err := c.repo.SetVodByProviderID(event.ProviderSessionID, vodURL(event))
		if err != nil {
			return OutcomeError, fmt.Errorf("apply vod url: %w", err)
		}
		if !matched {
			c.logger.Warn("vod url dropped, no matching session",
				"provider_session_id", event.ProviderSessionID)
			return OutcomeIgnored, nil
		}
		c.logger.Info("vod url applied",
			"session_id", session.ID,
			"provider_session_id", event.ProviderSessionID)
		if session.Finished() {
			c.publishVod(session)
		}
		return OutcomeApplied, nil
	case KindStreamStart, KindStreamEnd:
		return OutcomeIgnored, nil
	case KindUnknown:
		return OutcomeIgnored, nil
	default:
		return OutcomeIgnored, fmt.Errorf("unhandled event kind %v", event.Kind)
	}
}

func (c *Correlator) handleStart(ctx context.Context, event LifecycleEvent) (Outcome, error) {
	c.metrics.ObserveDirectoryLookup("resolve")
	preview, err := c.directory.ResolveByReference(ctx, event.ChannelReference)
	if err != nil {
		c.metrics.ObserveDirectoryFailure("resolve")
		return OutcomeError, fmt.Errorf("resolve channel %s: %w", event.ChannelReference, err)
	}

	title, description, category := c.sessionDefaults(preview.ID)

	startedAt := event.OccurredAt
	if startedAt.IsZero() {
		startedAt = c.now()
	}

	session, err := c.repo.CreateSession(storage.CreateSessionParams{
		ChannelID:         preview.ID,
		ProviderSessionID: event.ProviderSessionID,
		Title:             title,
		Description:       description,
		Category:          category,
		StartedAt:         startedAt,
	})
	if errors.Is(err, storage.ErrConflict) {
		// Duplicate start delivery, or a start racing another on the same
		// channel. The first session stands.
		c.logger.Warn("start event rejected as duplicate",
			"channel_id", preview.ID,
			"provider_session_id", event.ProviderSessionID)
		return OutcomeDuplicate, nil
	} else if err != nil {
		return OutcomeError, fmt.Errorf("create session: %w", err)
	}

	c.metrics.SessionStarted()
	c.logger.Info("session started",
		"session_id", session.ID,
		"channel_id", session.ChannelID,
		"provider_session_id", session.ProviderSessionID)
	return OutcomeCreated, nil
}

func (c *Correlator) handleEnd(ctx context.Context, event LifecycleEvent) (Outcome, error) {
	endedAt := event.OccurredAt
	if endedAt.IsZero() {
		endedAt = c.now()
	}

	session, changed, err := c.repo.EndSessionByProviderID(event.ProviderSessionID, endedAt)
	if err != nil {
		return OutcomeError, fmt.Errorf("end session: %w", err)
	}
	if !changed {
		// Duplicate or out-of-order end delivery. Nothing to do.
		c.logger.Debug("end event matched no live session",
			"provider_session_id", event.ProviderSessionID)
		return OutcomeIgnored, nil
	}

	c.metrics.SessionEnded()
	c.logger.Info("session ended",
		"session_id", session.ID,
		"channel_id", session.ChannelID,
		"provider_session_id", session.ProviderSessionID)
	if session.VodURL != "" {
		c.publishVod(session)
	}
	return OutcomeEnded, nil
}

// publishVod creates the catalog record for a finished session whose recording
// URL is known. Stream-end and recording-end can arrive in either order, so
// both paths call this once the session has ended and carries a VOD URL; the
// conflict on redelivery keeps it idempotent. A failure is logged and left for
// the next delivery, never surfaced to the webhook.
func (c *Correlator) publishVod(session models.Session) {
	vod, err := c.repo.CreateVodFromSession(session.ID)
	if errors.Is(err, storage.ErrConflict) {
		return
	}
	if err != nil {
		c.logger.Error("vod creation failed",
			"session_id", session.ID,
			"channel_id", session.ChannelID,
			"error", err)
		return
	}
	c.logger.Info("vod published",
		"vod_id", vod.ID,
		"session_id", session.ID,
		"channel_id", session.ChannelID,
		"duration_seconds", vod.DurationSeconds)
}

// sessionDefaults resolves the title, description, and category a new session
// starts with, falling back field by field when the channel has no template.
func (c *Correlator) sessionDefaults(channelID string) (string, string, models.Category) {
	title := fallbackTitle
	description := fallbackDescription
	category := models.CategoryOther

	template, err := c.repo.TemplateByChannel(channelID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("template lookup failed, using fallbacks",
				"channel_id", channelID,
				"error", err)
		}
		return title, description, category
	}

	if template.Title != "" {
		title = template.Title
	}
	if template.Description != "" {
		description = template.Description
	}
	if template.Category.Valid() {
		category = template.Category
	}
	return title, description, category
}
