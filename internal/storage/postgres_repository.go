package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"streampulse/internal/models"
)

// ErrPostgresUnavailable is returned when the Postgres repository is used
// before its pool has been opened.
var ErrPostgresUnavailable = fmt.Errorf("postgres repository unavailable")

const defaultQueryTimeout = 5 * time.Second

const sessionColumns = "id, channel_id, provider_session_id, title, description, category, is_live, viewers, started_at, ended_at, thumbnail_url, vod_url"

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
	now  func() time.Time
}

// NewPostgresRepository opens a Postgres-backed repository and applies the
// schema.
func NewPostgresRepository(dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &postgresRepository{pool: pool, cfg: cfg, now: cfg.Clock}
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *postgresRepository) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), defaultQueryTimeout)
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return ErrPostgresUnavailable
	}
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanSession(row pgx.Row) (models.Session, error) {
	var (
		session models.Session
		endedAt *time.Time
	)
	err := row.Scan(
		&session.ID,
		&session.ChannelID,
		&session.ProviderSessionID,
		&session.Title,
		&session.Description,
		&session.Category,
		&session.IsLive,
		&session.Viewers,
		&session.StartedAt,
		&endedAt,
		&session.ThumbnailURL,
		&session.VodURL,
	)
	if err != nil {
		return models.Session{}, err
	}
	if endedAt != nil {
		ended := endedAt.UTC()
		session.EndedAt = &ended
	}
	session.StartedAt = session.StartedAt.UTC()
	return session, nil
}

func collectSessions(rows pgx.Rows) ([]models.Session, error) {
	defer rows.Close()
	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

const vodColumns = "id, session_id, channel_id, title, description, url, thumbnail_url, duration_seconds, views, created_at"

func scanVod(row pgx.Row) (models.Vod, error) {
	var vod models.Vod
	err := row.Scan(
		&vod.ID,
		&vod.SessionID,
		&vod.ChannelID,
		&vod.Title,
		&vod.Description,
		&vod.URL,
		&vod.ThumbnailURL,
		&vod.DurationSeconds,
		&vod.Views,
		&vod.CreatedAt,
	)
	if err != nil {
		return models.Vod{}, err
	}
	vod.CreatedAt = vod.CreatedAt.UTC()
	return vod, nil
}

func collectVods(rows pgx.Rows) ([]models.Vod, error) {
	defer rows.Close()
	vods := make([]models.Vod, 0)
	for rows.Next() {
		vod, err := scanVod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vod: %w", err)
		}
		vods = append(vods, vod)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vods: %w", err)
	}
	return vods, nil
}

// Session operations

func (r *postgresRepository) CreateSession(params CreateSessionParams) (models.Session, error) {
	channelID := strings.TrimSpace(params.ChannelID)
	if channelID == "" {
		return models.Session{}, fmt.Errorf("%w: channelId is required", ErrInvalidArgument)
	}
	providerID := strings.TrimSpace(params.ProviderSessionID)
	if providerID == "" {
		return models.Session{}, fmt.Errorf("%w: providerSessionId is required", ErrInvalidArgument)
	}

	startedAt := params.StartedAt
	if startedAt.IsZero() {
		startedAt = r.now()
	}
	category := params.Category
	if !category.Valid() {
		category = models.CategoryOther
	}

	ctx, cancel := r.opContext()
	defer cancel()

	row := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, channel_id, provider_session_id, title, description, category, is_live, viewers, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE, 0, $7)
		 RETURNING `+sessionColumns,
		generateID(), channelID, providerID,
		normalizeText(params.Title), normalizeText(params.Description),
		category.String(), startedAt.UTC(),
	)
	session, err := scanSession(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Session{}, fmt.Errorf("%w: channel %s already live or provider session %s tracked", ErrConflict, channelID, providerID)
		}
		return models.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

func (r *postgresRepository) GetSession(id string) (models.Session, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	row := r.pool.QueryRow(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = $1", id)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
	} else if err != nil {
		return models.Session{}, fmt.Errorf("select session: %w", err)
	}
	return session, nil
}

func (r *postgresRepository) GetSessionByProviderID(providerID string) (models.Session, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	row := r.pool.QueryRow(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE provider_session_id = $1", providerID)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, fmt.Errorf("%w: provider session %s", ErrNotFound, providerID)
	} else if err != nil {
		return models.Session{}, fmt.Errorf("select session: %w", err)
	}
	return session, nil
}

func (r *postgresRepository) EndSessionByProviderID(providerID string, endedAt time.Time) (models.Session, bool, error) {
	if endedAt.IsZero() {
		endedAt = r.now()
	}

	ctx, cancel := r.opContext()
	defer cancel()

	row := r.pool.QueryRow(ctx,
		`UPDATE sessions SET is_live = FALSE, ended_at = $2
		 WHERE provider_session_id = $1 AND is_live
		 RETURNING `+sessionColumns,
		providerID, endedAt.UTC(),
	)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, false, nil
	} else if err != nil {
		return models.Session{}, false, fmt.Errorf("end session: %w", err)
	}
	return session, true, nil
}

func (r *postgresRepository) SetThumbnailByProviderID(providerID, thumbnailURL string) (models.Session, bool, error) {
	return r.setMediaColumn("thumbnail_url", providerID, thumbnailURL)
}

func (r *postgresRepository) SetVodByProviderID(providerID, vodURL string) (models.Session, bool, error) {
	return r.setMediaColumn("vod_url", providerID, vodURL)
}

func (r *postgresRepository) setMediaColumn(column, providerID, url string) (models.Session, bool, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	// column is one of two compile-time constants, never caller input.
	row := r.pool.QueryRow(ctx,
		"UPDATE sessions SET "+column+" = $2 WHERE provider_session_id = $1 RETURNING "+sessionColumns,
		providerID, url,
	)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, false, nil
	} else if err != nil {
		return models.Session{}, false, fmt.Errorf("update %s: %w", column, err)
	}
	return session, true, nil
}

func (r *postgresRepository) IncrementViewers(sessionID string) (models.Session, error) {
	return r.adjustViewers(sessionID, "viewers + 1")
}

func (r *postgresRepository) DecrementViewers(sessionID string) (models.Session, error) {
	return r.adjustViewers(sessionID, "GREATEST(viewers - 1, 0)")
}

func (r *postgresRepository) adjustViewers(sessionID, expression string) (models.Session, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	// The counter moves in a single statement so concurrent adjustments
	// never lose updates.
	row := r.pool.QueryRow(ctx,
		"UPDATE sessions SET viewers = "+expression+" WHERE id = $1 RETURNING "+sessionColumns,
		sessionID,
	)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	} else if err != nil {
		return models.Session{}, fmt.Errorf("adjust viewers: %w", err)
	}
	return session, nil
}

func (r *postgresRepository) LiveSessions() ([]models.Session, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	rows, err := r.pool.Query(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE is_live ORDER BY started_at DESC, id",
	)
	if err != nil {
		return nil, fmt.Errorf("select live sessions: %w", err)
	}
	return collectSessions(rows)
}

func (r *postgresRepository) LiveSessionByChannel(channelID string) (models.Session, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	row := r.pool.QueryRow(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE channel_id = $1 AND is_live",
		channelID,
	)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, fmt.Errorf("%w: no live session for channel %s", ErrNotFound, channelID)
	} else if err != nil {
		return models.Session{}, fmt.Errorf("select live session: %w", err)
	}
	return session, nil
}

func (r *postgresRepository) FinishedSessionsByChannel(channelID string, offset, limit int) ([]models.Session, int64, error) {
	if limit <= 0 {
		return nil, 0, fmt.Errorf("%w: limit must be positive", ErrInvalidArgument)
	}
	if offset < 0 {
		return nil, 0, fmt.Errorf("%w: offset cannot be negative", ErrInvalidArgument)
	}

	ctx, cancel := r.opContext()
	defer cancel()

	var total int64
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM sessions WHERE channel_id = $1 AND NOT is_live AND ended_at IS NOT NULL",
		channelID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count finished sessions: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE channel_id = $1 AND NOT is_live AND ended_at IS NOT NULL
		 ORDER BY started_at DESC, id
		 OFFSET $2 LIMIT $3`,
		channelID, offset, limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("select finished sessions: %w", err)
	}
	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

func (r *postgresRepository) FinishedSessionsByViewers(offset, limit int) ([]models.Session, int64, error) {
	if limit <= 0 {
		return nil, 0, fmt.Errorf("%w: limit must be positive", ErrInvalidArgument)
	}
	if offset < 0 {
		return nil, 0, fmt.Errorf("%w: offset cannot be negative", ErrInvalidArgument)
	}

	ctx, cancel := r.opContext()
	defer cancel()

	var total int64
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM sessions WHERE NOT is_live AND ended_at IS NOT NULL",
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count finished sessions: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE NOT is_live AND ended_at IS NOT NULL
		 ORDER BY viewers DESC, started_at DESC, id
		 OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("select popular sessions: %w", err)
	}
	sessions, err := collectSessions(rows)
	if err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// VOD catalog operations

func (r *postgresRepository) CreateVodFromSession(sessionID string) (models.Vod, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	// The insert sources the finished session directly so creation and the
	// ended-state check are one statement.
	row := r.pool.QueryRow(ctx,
		`INSERT INTO vods (id, session_id, channel_id, title, description, url, thumbnail_url, duration_seconds, created_at)
		 SELECT $1, id, channel_id, title, description, vod_url, thumbnail_url,
			GREATEST(EXTRACT(EPOCH FROM (ended_at - started_at))::BIGINT, 0), $3
		 FROM sessions WHERE id = $2 AND NOT is_live AND ended_at IS NOT NULL
		 RETURNING `+vodColumns,
		generateID(), sessionID, r.now(),
	)
	vod, err := scanVod(row)
	if errors.Is(err, pgx.ErrNoRows) {
		session, lookupErr := r.GetSession(sessionID)
		if lookupErr != nil {
			return models.Vod{}, lookupErr
		}
		if !session.Finished() {
			return models.Vod{}, fmt.Errorf("%w: session %s has not ended", ErrInvalidArgument, sessionID)
		}
		return models.Vod{}, fmt.Errorf("insert vod: %w", err)
	} else if err != nil {
		if isUniqueViolation(err) {
			return models.Vod{}, fmt.Errorf("%w: session %s already has a vod", ErrConflict, sessionID)
		}
		return models.Vod{}, fmt.Errorf("insert vod: %w", err)
	}
	return vod, nil
}

func (r *postgresRepository) GetVod(id string) (models.Vod, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	row := r.pool.QueryRow(ctx, "SELECT "+vodColumns+" FROM vods WHERE id = $1", id)
	vod, err := scanVod(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Vod{}, fmt.Errorf("%w: vod %s", ErrNotFound, id)
	} else if err != nil {
		return models.Vod{}, fmt.Errorf("select vod: %w", err)
	}
	return vod, nil
}

func (r *postgresRepository) VodBySession(sessionID string) (models.Vod, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	row := r.pool.QueryRow(ctx, "SELECT "+vodColumns+" FROM vods WHERE session_id = $1", sessionID)
	vod, err := scanVod(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Vod{}, fmt.Errorf("%w: no vod for session %s", ErrNotFound, sessionID)
	} else if err != nil {
		return models.Vod{}, fmt.Errorf("select vod: %w", err)
	}
	return vod, nil
}

func (r *postgresRepository) UpdateVod(id string, params UpdateVodParams) (models.Vod, error) {
	var (
		title       any
		description any
	)
	if params.Title != nil {
		normalized := normalizeText(*params.Title)
		if normalized == "" {
			return models.Vod{}, fmt.Errorf("%w: title cannot be blank", ErrInvalidArgument)
		}
		title = normalized
	}
	if params.Description != nil {
		description = normalizeText(*params.Description)
	}

	ctx, cancel := r.opContext()
	defer cancel()

	row := r.pool.QueryRow(ctx,
		`UPDATE vods SET
			title = COALESCE($2::TEXT, title),
			description = COALESCE($3::TEXT, description)
		 WHERE id = $1
		 RETURNING `+vodColumns,
		id, title, description,
	)
	vod, err := scanVod(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Vod{}, fmt.Errorf("%w: vod %s", ErrNotFound, id)
	} else if err != nil {
		return models.Vod{}, fmt.Errorf("update vod: %w", err)
	}
	return vod, nil
}

func (r *postgresRepository) DeleteVod(id string) error {
	ctx, cancel := r.opContext()
	defer cancel()

	tag, err := r.pool.Exec(ctx, "DELETE FROM vods WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete vod: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: vod %s", ErrNotFound, id)
	}
	return nil
}

func (r *postgresRepository) IncrementVodViews(id string) (models.Vod, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	row := r.pool.QueryRow(ctx,
		"UPDATE vods SET views = views + 1 WHERE id = $1 RETURNING "+vodColumns,
		id,
	)
	vod, err := scanVod(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Vod{}, fmt.Errorf("%w: vod %s", ErrNotFound, id)
	} else if err != nil {
		return models.Vod{}, fmt.Errorf("increment vod views: %w", err)
	}
	return vod, nil
}

func (r *postgresRepository) Vods(offset, limit int) ([]models.Vod, int64, error) {
	return r.listVods("", offset, limit)
}

func (r *postgresRepository) VodsByChannel(channelID string, offset, limit int) ([]models.Vod, int64, error) {
	return r.listVods(channelID, offset, limit)
}

func (r *postgresRepository) listVods(channelID string, offset, limit int) ([]models.Vod, int64, error) {
	if limit <= 0 {
		return nil, 0, fmt.Errorf("%w: limit must be positive", ErrInvalidArgument)
	}
	if offset < 0 {
		return nil, 0, fmt.Errorf("%w: offset cannot be negative", ErrInvalidArgument)
	}

	ctx, cancel := r.opContext()
	defer cancel()

	// An empty channel id selects the whole catalog.
	var total int64
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM vods WHERE ($1 = '' OR channel_id = $1)",
		channelID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count vods: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+vodColumns+` FROM vods
		 WHERE ($1 = '' OR channel_id = $1)
		 ORDER BY created_at DESC, id
		 OFFSET $2 LIMIT $3`,
		channelID, offset, limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("select vods: %w", err)
	}
	vods, err := collectVods(rows)
	if err != nil {
		return nil, 0, err
	}
	return vods, total, nil
}

// Template operations

func (r *postgresRepository) TemplateByChannel(channelID string) (models.DefaultStreamTemplate, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	var template models.DefaultStreamTemplate
	err := r.pool.QueryRow(ctx,
		"SELECT channel_id, title, description, category, updated_at FROM default_stream_templates WHERE channel_id = $1",
		channelID,
	).Scan(&template.ChannelID, &template.Title, &template.Description, &template.Category, &template.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DefaultStreamTemplate{}, fmt.Errorf("%w: template for channel %s", ErrNotFound, channelID)
	} else if err != nil {
		return models.DefaultStreamTemplate{}, fmt.Errorf("select template: %w", err)
	}
	template.UpdatedAt = template.UpdatedAt.UTC()
	return template, nil
}

func (r *postgresRepository) UpsertTemplate(params UpsertTemplateParams) (models.DefaultStreamTemplate, error) {
	channelID := strings.TrimSpace(params.ChannelID)
	if channelID == "" {
		return models.DefaultStreamTemplate{}, fmt.Errorf("%w: channelId is required", ErrInvalidArgument)
	}
	title := normalizeText(params.Title)
	if title == "" {
		return models.DefaultStreamTemplate{}, fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	category := params.Category
	if category != "" && !category.Valid() {
		return models.DefaultStreamTemplate{}, fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, category)
	}

	ctx, cancel := r.opContext()
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.DefaultStreamTemplate{}, fmt.Errorf("begin template transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)

	template := models.DefaultStreamTemplate{
		ChannelID:   channelID,
		Title:       title,
		Description: normalizeText(params.Description),
		Category:    category,
		UpdatedAt:   r.now(),
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO default_stream_templates (channel_id, title, description, category, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (channel_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			updated_at = EXCLUDED.updated_at`,
		template.ChannelID, template.Title, template.Description, template.Category.String(), template.UpdatedAt,
	); err != nil {
		return models.DefaultStreamTemplate{}, fmt.Errorf("upsert template: %w", err)
	}

	// Reflect the new defaults onto the channel's live session, if any.
	if template.Category != "" {
		_, err = tx.Exec(ctx,
			"UPDATE sessions SET title = $2, description = $3, category = $4 WHERE channel_id = $1 AND is_live",
			channelID, template.Title, template.Description, template.Category.String(),
		)
	} else {
		_, err = tx.Exec(ctx,
			"UPDATE sessions SET title = $2, description = $3 WHERE channel_id = $1 AND is_live",
			channelID, template.Title, template.Description,
		)
	}
	if err != nil {
		return models.DefaultStreamTemplate{}, fmt.Errorf("refresh live session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.DefaultStreamTemplate{}, fmt.Errorf("commit template: %w", err)
	}
	return template, nil
}

func (r *postgresRepository) DeleteTemplate(channelID string) error {
	ctx, cancel := r.opContext()
	defer cancel()

	tag, err := r.pool.Exec(ctx, "DELETE FROM default_stream_templates WHERE channel_id = $1", channelID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: template for channel %s", ErrNotFound, channelID)
	}
	return nil
}

// Deferred thumbnail operations

func (r *postgresRepository) EnqueueThumbnail(params EnqueueThumbnailParams) (models.PendingThumbnail, error) {
	providerID := strings.TrimSpace(params.ProviderSessionID)
	if providerID == "" {
		return models.PendingThumbnail{}, fmt.Errorf("%w: providerSessionId is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(params.ThumbnailURL) == "" {
		return models.PendingThumbnail{}, fmt.Errorf("%w: thumbnailUrl is required", ErrInvalidArgument)
	}

	pending := models.PendingThumbnail{
		ID:                generateID(),
		ProviderSessionID: providerID,
		ThumbnailURL:      params.ThumbnailURL,
		ApplyAt:           params.ApplyAt.UTC(),
		CreatedAt:         r.now(),
	}

	ctx, cancel := r.opContext()
	defer cancel()

	if _, err := r.pool.Exec(ctx,
		`INSERT INTO pending_thumbnails (id, provider_session_id, thumbnail_url, apply_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		pending.ID, pending.ProviderSessionID, pending.ThumbnailURL, pending.ApplyAt, pending.CreatedAt,
	); err != nil {
		return models.PendingThumbnail{}, fmt.Errorf("insert pending thumbnail: %w", err)
	}
	return pending, nil
}

func (r *postgresRepository) ClaimDueThumbnails(now time.Time, limit int) ([]models.PendingThumbnail, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidArgument)
	}

	ctx, cancel := r.opContext()
	defer cancel()

	// SKIP LOCKED lets multiple workers drain the queue without claiming the
	// same record twice.
	rows, err := r.pool.Query(ctx,
		`DELETE FROM pending_thumbnails
		 WHERE id IN (
			SELECT id FROM pending_thumbnails
			WHERE apply_at <= $1
			ORDER BY apply_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, provider_session_id, thumbnail_url, apply_at, created_at`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending thumbnails: %w", err)
	}
	defer rows.Close()

	claimed := make([]models.PendingThumbnail, 0)
	for rows.Next() {
		var pending models.PendingThumbnail
		if err := rows.Scan(&pending.ID, &pending.ProviderSessionID, &pending.ThumbnailURL, &pending.ApplyAt, &pending.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending thumbnail: %w", err)
		}
		pending.ApplyAt = pending.ApplyAt.UTC()
		pending.CreatedAt = pending.CreatedAt.UTC()
		claimed = append(claimed, pending)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending thumbnails: %w", err)
	}
	if len(claimed) == 0 {
		return nil, nil
	}
	return claimed, nil
}

func (r *postgresRepository) PendingThumbnailCount() (int, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM pending_thumbnails").Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending thumbnails: %w", err)
	}
	return count, nil
}

var _ Repository = (*postgresRepository)(nil)
