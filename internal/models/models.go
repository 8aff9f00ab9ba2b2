package models

import "time"

// Session is one broadcast instance on a channel. It is created when the
// provider reports a stream start and mutated by end, viewer, thumbnail, and
// VOD events. EndedAt is set exactly once; EndedAt != nil always mirrors
// IsLive == false.
type Session struct {
	ID                string     `json:"id"`
	ChannelID         string     `json:"channelId"`
	ProviderSessionID string     `json:"providerSessionId,omitempty"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Category          Category   `json:"category"`
	IsLive            bool       `json:"isLive"`
	Viewers           int64      `json:"viewers"`
	StartedAt         time.Time  `json:"startedAt"`
	EndedAt           *time.Time `json:"endedAt,omitempty"`
	ThumbnailURL      string     `json:"thumbnailUrl,omitempty"`
	VodURL            string     `json:"vodUrl,omitempty"`
}

// Finished reports whether the session has been terminated.
func (s Session) Finished() bool {
	return !s.IsLive && s.EndedAt != nil
}

// DefaultStreamTemplate holds the per-channel defaults used to seed new
// sessions. It is managed by channel owners through the template endpoints and
// read-only to the lifecycle path.
type DefaultStreamTemplate struct {
	ChannelID   string    `json:"channelId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    Category  `json:"category"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ChannelPreview is the directory-owned projection of a channel used to
// enrich session listings. This service never mutates channel data.
type ChannelPreview struct {
	ID          string `json:"channelId"`
	Name        string `json:"channelName"`
	PlaybackURL string `json:"playbackUrl,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Vod is the catalog record for a finished session's recording. It is created
// once the session has ended and its VOD URL is known, seeded from the
// session's metadata at that moment. Title and description are editable
// afterwards; the session itself is not.
type Vod struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"sessionId"`
	ChannelID       string    `json:"channelId"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	URL             string    `json:"url"`
	ThumbnailURL    string    `json:"thumbnailUrl,omitempty"`
	DurationSeconds int64     `json:"durationSeconds"`
	Views           int64     `json:"views"`
	CreatedAt       time.Time `json:"createdAt"`
}

// PendingThumbnail is a durable deferred enrichment: once ApplyAt passes, the
// thumbnail URL is applied to the session matching ProviderSessionID. Records
// whose session no longer exists are dropped silently when they come due.
type PendingThumbnail struct {
	ID                string    `json:"id"`
	ProviderSessionID string    `json:"providerSessionId"`
	ThumbnailURL      string    `json:"thumbnailUrl"`
	ApplyAt           time.Time `json:"applyAt"`
	CreatedAt         time.Time `json:"createdAt"`
}
