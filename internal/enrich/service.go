package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"streampulse/internal/directory"
	"streampulse/internal/models"
	"streampulse/internal/observability/logging"
	"streampulse/internal/observability/metrics"
	"streampulse/internal/storage"
)

// Page is one slice of a paginated result set.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// Session is a stored session joined with its channel's directory preview.
// Channel is nil when the directory has no record for the channel; the
// session itself is always returned.
type Session struct {
	models.Session
	Channel *models.ChannelPreview `json:"channel"`
}

// Service answers read queries over sessions, decorating each result with
// channel previews fetched from the directory in one batched call per request.
type Service struct {
	repo      storage.Repository
	directory directory.Client
	logger    *slog.Logger
	metrics   *metrics.Recorder
}

// ServiceConfig configures a Service. A nil Directory disables preview
// decoration beyond channel ids.
type ServiceConfig struct {
	Repository storage.Repository
	Directory  directory.Client
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
}

func NewService(cfg ServiceConfig) *Service {
	service := &Service{
		repo:      cfg.Repository,
		directory: cfg.Directory,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
	if service.directory == nil {
		service.directory = directory.NoopClient{}
	}
	if service.logger == nil {
		service.logger = logging.WithComponent(slog.Default(), "enrich")
	}
	if service.metrics == nil {
		service.metrics = metrics.Default()
	}
	return service
}

// LiveSessions returns every live session, most recently started first.
func (s *Service) LiveSessions(ctx context.Context) ([]Session, error) {
	sessions, err := s.repo.LiveSessions()
	if err != nil {
		return nil, fmt.Errorf("list live sessions: %w", err)
	}
	return s.decorate(ctx, sessions)
}

// LiveSessionByChannel returns the channel's live session, or
// storage.ErrNotFound when the channel is offline.
func (s *Service) LiveSessionByChannel(ctx context.Context, channelID string) (Session, error) {
	session, err := s.repo.LiveSessionByChannel(channelID)
	if err != nil {
		return Session{}, err
	}
	return s.decorateOne(ctx, session)
}

// SessionByID returns one session regardless of its live state.
func (s *Service) SessionByID(ctx context.Context, id string) (Session, error) {
	session, err := s.repo.GetSession(id)
	if err != nil {
		return Session{}, err
	}
	return s.decorateOne(ctx, session)
}

// FinishedByChannel returns the channel's finished sessions, most recently
// started first.
func (s *Service) FinishedByChannel(ctx context.Context, channelID string, page, size int) (Page[Session], error) {
	if err := validatePage(page, size); err != nil {
		return Page[Session]{}, err
	}
	sessions, total, err := s.repo.FinishedSessionsByChannel(channelID, page*size, size)
	if err != nil {
		return Page[Session]{}, fmt.Errorf("list finished sessions: %w", err)
	}
	return s.decoratePage(ctx, sessions, page, size, total)
}

// PopularFinished returns finished sessions across all channels ordered by
// viewer count.
func (s *Service) PopularFinished(ctx context.Context, page, size int) (Page[Session], error) {
	if err := validatePage(page, size); err != nil {
		return Page[Session]{}, err
	}
	sessions, total, err := s.repo.FinishedSessionsByViewers(page*size, size)
	if err != nil {
		return Page[Session]{}, fmt.Errorf("list popular sessions: %w", err)
	}
	return s.decoratePage(ctx, sessions, page, size, total)
}

func validatePage(page, size int) error {
	if page < 0 {
		return fmt.Errorf("%w: page must not be negative", storage.ErrInvalidArgument)
	}
	if size <= 0 {
		return fmt.Errorf("%w: size must be positive", storage.ErrInvalidArgument)
	}
	return nil
}

func (s *Service) decorateOne(ctx context.Context, session models.Session) (Session, error) {
	decorated, err := s.decorate(ctx, []models.Session{session})
	if err != nil {
		return Session{}, err
	}
	return decorated[0], nil
}

func (s *Service) decoratePage(ctx context.Context, sessions []models.Session, page, size int, total int64) (Page[Session], error) {
	content, err := s.decorate(ctx, sessions)
	if err != nil {
		return Page[Session]{}, err
	}
	totalPages := int((total + int64(size) - 1) / int64(size))
	return Page[Session]{
		Content:       content,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
	}, nil
}

// decorate joins sessions with channel previews. The directory is asked once
// per call, for the distinct channel ids in first-appearance order; an empty
// input never reaches the directory.
func (s *Service) decorate(ctx context.Context, sessions []models.Session) ([]Session, error) {
	result := make([]Session, len(sessions))
	for i, session := range sessions {
		result[i] = Session{Session: session}
	}
	if len(sessions) == 0 {
		return result, nil
	}

	seen := make(map[string]struct{}, len(sessions))
	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		if _, ok := seen[session.ChannelID]; ok {
			continue
		}
		seen[session.ChannelID] = struct{}{}
		ids = append(ids, session.ChannelID)
	}

	s.metrics.ObserveDirectoryLookup("batch_resolve")
	previews, err := s.directory.BatchResolve(ctx, ids)
	if err != nil {
		s.metrics.ObserveDirectoryFailure("batch_resolve")
		// Sessions still go out; the previews are decoration.
		s.logger.Warn("channel preview lookup failed", "error", err)
		return result, nil
	}

	byID := make(map[string]models.ChannelPreview, len(previews))
	for _, preview := range previews {
		byID[preview.ID] = preview
	}
	for i := range result {
		if preview, ok := byID[result[i].ChannelID]; ok {
			p := preview
			result[i].Channel = &p
		}
	}
	return result, nil
}
