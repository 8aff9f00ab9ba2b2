package storage

import (
	"context"
	"time"

	"streampulse/internal/models"
)

// CreateSessionParams captures the materialized values a new session is
// created with. The caller resolves the channel and template before invoking
// CreateSession so no storage transaction spans an external call.
type CreateSessionParams struct {
	ChannelID         string
	ProviderSessionID string
	Title             string
	Description       string
	Category          models.Category
	StartedAt         time.Time
}

// UpsertTemplateParams captures the per-channel defaults managed by channel
// owners.
type UpsertTemplateParams struct {
	ChannelID   string
	Title       string
	Description string
	Category    models.Category
}

// UpdateVodParams carries the editable VOD fields. A nil pointer leaves the
// field untouched; a blank title is rejected.
type UpdateVodParams struct {
	Title       *string
	Description *string
}

// EnqueueThumbnailParams describes a deferred thumbnail assignment.
type EnqueueThumbnailParams struct {
	ProviderSessionID string
	ThumbnailURL      string
	ApplyAt           time.Time
}

// Repository exposes the datastore operations required by the lifecycle
// correlator, the enrichment query service, and the API handlers. Every
// mutating call is a self-contained atomic transaction.
type Repository interface {
	Ping(ctx context.Context) error

	CreateSession(params CreateSessionParams) (models.Session, error)
	GetSession(id string) (models.Session, error)
	GetSessionByProviderID(providerID string) (models.Session, error)

	// EndSessionByProviderID terminates the live session correlated to the
	// provider id. The bool reports whether a transition happened; a missing
	// or already ended session is not an error.
	EndSessionByProviderID(providerID string, endedAt time.Time) (models.Session, bool, error)

	// SetThumbnailByProviderID and SetVodByProviderID update media URLs on the
	// session correlated to the provider id. The bool reports whether a
	// session matched.
	SetThumbnailByProviderID(providerID, thumbnailURL string) (models.Session, bool, error)
	SetVodByProviderID(providerID, vodURL string) (models.Session, bool, error)

	// IncrementViewers and DecrementViewers adjust the live viewer counter as
	// a single atomic storage update. The count never drops below zero.
	IncrementViewers(sessionID string) (models.Session, error)
	DecrementViewers(sessionID string) (models.Session, error)

	LiveSessions() ([]models.Session, error)
	LiveSessionByChannel(channelID string) (models.Session, error)

	// FinishedSessionsByChannel pages a channel's finished sessions, most
	// recently started first. The int64 is the total finished count.
	FinishedSessionsByChannel(channelID string, offset, limit int) ([]models.Session, int64, error)

	// FinishedSessionsByViewers pages all finished sessions, most viewed
	// first. The int64 is the total finished count.
	FinishedSessionsByViewers(offset, limit int) ([]models.Session, int64, error)

	// CreateVodFromSession materializes the catalog record for a finished
	// session: duration is computed from the session's start and end, and
	// title, description, and media URLs are copied as they stand. A live
	// session is ErrInvalidArgument; a session that already has a VOD is
	// ErrConflict.
	CreateVodFromSession(sessionID string) (models.Vod, error)
	GetVod(id string) (models.Vod, error)
	VodBySession(sessionID string) (models.Vod, error)
	UpdateVod(id string, params UpdateVodParams) (models.Vod, error)
	DeleteVod(id string) error

	// IncrementVodViews bumps the view counter as a single atomic storage
	// update.
	IncrementVodViews(id string) (models.Vod, error)

	// Vods and VodsByChannel page the catalog, most recently created first.
	// The int64 is the total matching count.
	Vods(offset, limit int) ([]models.Vod, int64, error)
	VodsByChannel(channelID string, offset, limit int) ([]models.Vod, int64, error)

	TemplateByChannel(channelID string) (models.DefaultStreamTemplate, error)
	UpsertTemplate(params UpsertTemplateParams) (models.DefaultStreamTemplate, error)
	DeleteTemplate(channelID string) error

	EnqueueThumbnail(params EnqueueThumbnailParams) (models.PendingThumbnail, error)

	// ClaimDueThumbnails removes and returns up to limit pending thumbnails
	// whose ApplyAt has passed. Claimed records are gone even if the caller
	// fails to apply them; the write is idempotent and duplicates are allowed.
	ClaimDueThumbnails(now time.Time, limit int) ([]models.PendingThumbnail, error)

	PendingThumbnailCount() (int, error)
}

var _ Repository = (*Storage)(nil)
