package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"streampulse/internal/models"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL,
		provider_session_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT 'OTHER',
		is_live BOOLEAN NOT NULL DEFAULT TRUE,
		viewers BIGINT NOT NULL DEFAULT 0 CHECK (viewers >= 0),
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		thumbnail_url TEXT NOT NULL DEFAULT '',
		vod_url TEXT NOT NULL DEFAULT ''
	)`,
	// One live session per channel, enforced where the data lives.
	`CREATE UNIQUE INDEX IF NOT EXISTS sessions_live_channel_idx
		ON sessions (channel_id) WHERE is_live`,
	`CREATE INDEX IF NOT EXISTS sessions_channel_started_idx
		ON sessions (channel_id, started_at DESC)`,
	`CREATE INDEX IF NOT EXISTS sessions_finished_viewers_idx
		ON sessions (viewers DESC) WHERE NOT is_live`,
	`CREATE TABLE IF NOT EXISTS vods (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE,
		channel_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		thumbnail_url TEXT NOT NULL DEFAULT '',
		duration_seconds BIGINT NOT NULL DEFAULT 0 CHECK (duration_seconds >= 0),
		views BIGINT NOT NULL DEFAULT 0 CHECK (views >= 0),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS vods_channel_created_idx
		ON vods (channel_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS default_stream_templates (
		channel_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pending_thumbnails (
		id TEXT PRIMARY KEY,
		provider_session_id TEXT NOT NULL,
		thumbnail_url TEXT NOT NULL,
		apply_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS pending_thumbnails_apply_at_idx
		ON pending_thumbnails (apply_at)`,
}

// Migrate applies the schema. Statements are idempotent so the call is safe on
// every startup.
func (r *postgresRepository) Migrate(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return ErrPostgresUnavailable
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)

	for _, statement := range schemaStatements {
		if _, err := tx.Exec(ctx, statement); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

func rollbackTx(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(ctx)
}

func (r *postgresRepository) importSnapshot(ctx context.Context, snapshot *Snapshot) error {
	if r == nil || r.pool == nil {
		return ErrPostgresUnavailable
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)

	if err := importSnapshotSessions(ctx, tx, snapshot.Sessions); err != nil {
		return err
	}
	if err := importSnapshotVods(ctx, tx, snapshot.Vods); err != nil {
		return err
	}
	if err := importSnapshotTemplates(ctx, tx, snapshot.Templates); err != nil {
		return err
	}
	if err := importSnapshotPendingThumbnails(ctx, tx, snapshot.PendingThumbnails); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot import: %w", err)
	}
	return nil
}

func importSnapshotSessions(ctx context.Context, tx pgx.Tx, sessions map[string]models.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	for _, key := range sortedKeys(sessions) {
		session := sessions[key]
		id := strings.TrimSpace(session.ID)
		if id == "" {
			id = key
		}
		category := session.Category
		if !category.Valid() {
			category = models.CategoryOther
		}
		var endedAt *time.Time
		if session.EndedAt != nil {
			ended := session.EndedAt.UTC()
			endedAt = &ended
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO sessions (id, channel_id, provider_session_id, title, description, category, is_live, viewers, started_at, ended_at, thumbnail_url, vod_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO NOTHING`,
			id, strings.TrimSpace(session.ChannelID), strings.TrimSpace(session.ProviderSessionID),
			session.Title, session.Description, string(category),
			session.IsLive, session.Viewers, session.StartedAt.UTC(), endedAt,
			session.ThumbnailURL, session.VodURL)
		if err != nil {
			return fmt.Errorf("insert session %s: %w", id, err)
		}
	}
	return nil
}

func importSnapshotVods(ctx context.Context, tx pgx.Tx, vods map[string]models.Vod) error {
	if len(vods) == 0 {
		return nil
	}
	for _, key := range sortedKeys(vods) {
		vod := vods[key]
		id := strings.TrimSpace(vod.ID)
		if id == "" {
			id = key
		}
		createdAt := vod.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		} else {
			createdAt = createdAt.UTC()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO vods (id, session_id, channel_id, title, description, url, thumbnail_url, duration_seconds, views, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO NOTHING`,
			id, strings.TrimSpace(vod.SessionID), strings.TrimSpace(vod.ChannelID),
			vod.Title, vod.Description, vod.URL, vod.ThumbnailURL,
			vod.DurationSeconds, vod.Views, createdAt)
		if err != nil {
			return fmt.Errorf("insert vod %s: %w", id, err)
		}
	}
	return nil
}

func importSnapshotTemplates(ctx context.Context, tx pgx.Tx, templates map[string]models.DefaultStreamTemplate) error {
	if len(templates) == 0 {
		return nil
	}
	for _, key := range sortedKeys(templates) {
		template := templates[key]
		channelID := strings.TrimSpace(template.ChannelID)
		if channelID == "" {
			channelID = key
		}
		updatedAt := template.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		} else {
			updatedAt = updatedAt.UTC()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO default_stream_templates (channel_id, title, description, category, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (channel_id) DO NOTHING`,
			channelID, template.Title, template.Description, string(template.Category), updatedAt)
		if err != nil {
			return fmt.Errorf("insert template %s: %w", channelID, err)
		}
	}
	return nil
}

func importSnapshotPendingThumbnails(ctx context.Context, tx pgx.Tx, pending map[string]models.PendingThumbnail) error {
	if len(pending) == 0 {
		return nil
	}
	for _, key := range sortedKeys(pending) {
		record := pending[key]
		id := strings.TrimSpace(record.ID)
		if id == "" {
			id = key
		}
		createdAt := record.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		} else {
			createdAt = createdAt.UTC()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO pending_thumbnails (id, provider_session_id, thumbnail_url, apply_at, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`,
			id, strings.TrimSpace(record.ProviderSessionID), record.ThumbnailURL, record.ApplyAt.UTC(), createdAt)
		if err != nil {
			return fmt.Errorf("insert pending thumbnail %s: %w", id, err)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
