package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"streampulse/internal/models"
)

type dataset struct {
	Sessions          map[string]models.Session               `json:"sessions"`
	Vods              map[string]models.Vod                   `json:"vods"`
	Templates         map[string]models.DefaultStreamTemplate `json:"templates"`
	PendingThumbnails map[string]models.PendingThumbnail      `json:"pendingThumbnails"`
}

// Storage is the JSON-file backed repository. Every mutating call either
// persists the full dataset atomically or leaves the in-memory state
// untouched.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	now      func() time.Time
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

func newDataset() dataset {
	return dataset{
		Sessions:          make(map[string]models.Session),
		Vods:              make(map[string]models.Vod),
		Templates:         make(map[string]models.DefaultStreamTemplate),
		PendingThumbnails: make(map[string]models.PendingThumbnail),
	}
}

func (s *Storage) ensureDatasetInitializedLocked() {
	if s.data.Sessions == nil {
		s.data.Sessions = make(map[string]models.Session)
	}
	if s.data.Vods == nil {
		s.data.Vods = make(map[string]models.Vod)
	}
	if s.data.Templates == nil {
		s.data.Templates = make(map[string]models.DefaultStreamTemplate)
	}
	if s.data.PendingThumbnails == nil {
		s.data.PendingThumbnails = make(map[string]models.PendingThumbnail)
	}
}

func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{
		filePath: path,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	if store.now == nil {
		store.now = func() time.Time { return time.Now().UTC() }
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	s.ensureDatasetInitializedLocked()

	return nil
}

func (s *Storage) persist() error {
	return s.persistDataset(s.data)
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func cloneDataset(src dataset) dataset {
	clone := dataset{}

	if src.Sessions != nil {
		clone.Sessions = make(map[string]models.Session, len(src.Sessions))
		for id, session := range src.Sessions {
			cloned := session
			if session.EndedAt != nil {
				ended := *session.EndedAt
				cloned.EndedAt = &ended
			}
			clone.Sessions[id] = cloned
		}
	}

	if src.Vods != nil {
		clone.Vods = make(map[string]models.Vod, len(src.Vods))
		for id, vod := range src.Vods {
			clone.Vods[id] = vod
		}
	}

	if src.Templates != nil {
		clone.Templates = make(map[string]models.DefaultStreamTemplate, len(src.Templates))
		for id, template := range src.Templates {
			clone.Templates[id] = template
		}
	}

	if src.PendingThumbnails != nil {
		clone.PendingThumbnails = make(map[string]models.PendingThumbnail, len(src.PendingThumbnails))
		for id, pending := range src.PendingThumbnails {
			clone.PendingThumbnails[id] = pending
		}
	}

	return clone
}

func generateID() string {
	return uuid.NewString()
}

// normalizeText trims surrounding whitespace and folds the value to NFC so
// composed and decomposed spellings of the same title compare and store
// identically.
func normalizeText(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}

// Ping reports readiness. The JSON store is ready once loaded.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// Session operations

func (s *Storage) CreateSession(params CreateSessionParams) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channelID := strings.TrimSpace(params.ChannelID)
	if channelID == "" {
		return models.Session{}, fmt.Errorf("%w: channelId is required", ErrInvalidArgument)
	}
	providerID := strings.TrimSpace(params.ProviderSessionID)
	if providerID == "" {
		return models.Session{}, fmt.Errorf("%w: providerSessionId is required", ErrInvalidArgument)
	}

	for _, existing := range s.data.Sessions {
		if existing.ProviderSessionID == providerID {
			return models.Session{}, fmt.Errorf("%w: provider session %s already tracked", ErrConflict, providerID)
		}
		if existing.ChannelID == channelID && existing.IsLive {
			return models.Session{}, fmt.Errorf("%w: channel %s already live", ErrConflict, channelID)
		}
	}

	startedAt := params.StartedAt
	if startedAt.IsZero() {
		startedAt = s.now()
	}
	category := params.Category
	if !category.Valid() {
		category = models.CategoryOther
	}

	session := models.Session{
		ID:                generateID(),
		ChannelID:         channelID,
		ProviderSessionID: providerID,
		Title:             normalizeText(params.Title),
		Description:       normalizeText(params.Description),
		Category:          category,
		IsLive:            true,
		StartedAt:         startedAt,
	}

	s.data.Sessions[session.ID] = session
	if err := s.persist(); err != nil {
		delete(s.data.Sessions, session.ID)
		return models.Session{}, err
	}

	return session, nil
}

func (s *Storage) GetSession(id string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data.Sessions[id]
	if !ok {
		return models.Session{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return session, nil
}

func (s *Storage) GetSessionByProviderID(providerID string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.data.Sessions {
		if session.ProviderSessionID == providerID {
			return session, nil
		}
	}
	return models.Session{}, fmt.Errorf("%w: provider session %s", ErrNotFound, providerID)
}

func (s *Storage) EndSessionByProviderID(providerID string, endedAt time.Time) (models.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, session := range s.data.Sessions {
		if session.ProviderSessionID != providerID || !session.IsLive {
			continue
		}
		original := session
		if endedAt.IsZero() {
			endedAt = s.now()
		}
		ended := endedAt
		session.IsLive = false
		session.EndedAt = &ended
		s.data.Sessions[id] = session
		if err := s.persist(); err != nil {
			s.data.Sessions[id] = original
			return models.Session{}, false, err
		}
		return session, true, nil
	}

	return models.Session{}, false, nil
}

func (s *Storage) SetThumbnailByProviderID(providerID, thumbnailURL string) (models.Session, bool, error) {
	return s.setMediaByProviderID(providerID, func(session *models.Session) {
		session.ThumbnailURL = thumbnailURL
	})
}

func (s *Storage) SetVodByProviderID(providerID, vodURL string) (models.Session, bool, error) {
	return s.setMediaByProviderID(providerID, func(session *models.Session) {
		session.VodURL = vodURL
	})
}

func (s *Storage) setMediaByProviderID(providerID string, apply func(*models.Session)) (models.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, session := range s.data.Sessions {
		if session.ProviderSessionID != providerID {
			continue
		}
		original := session
		apply(&session)
		s.data.Sessions[id] = session
		if err := s.persist(); err != nil {
			s.data.Sessions[id] = original
			return models.Session{}, false, err
		}
		return session, true, nil
	}

	return models.Session{}, false, nil
}

func (s *Storage) IncrementViewers(sessionID string) (models.Session, error) {
	return s.adjustViewers(sessionID, 1)
}

func (s *Storage) DecrementViewers(sessionID string) (models.Session, error) {
	return s.adjustViewers(sessionID, -1)
}

func (s *Storage) adjustViewers(sessionID string, delta int64) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.data.Sessions[sessionID]
	if !ok {
		return models.Session{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	original := session
	session.Viewers += delta
	if session.Viewers < 0 {
		session.Viewers = 0
	}
	s.data.Sessions[sessionID] = session
	if err := s.persist(); err != nil {
		s.data.Sessions[sessionID] = original
		return models.Session{}, err
	}

	return session, nil
}

func (s *Storage) LiveSessions() ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]models.Session, 0)
	for _, session := range s.data.Sessions {
		if session.IsLive {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	return sessions, nil
}

func (s *Storage) LiveSessionByChannel(channelID string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.data.Sessions {
		if session.ChannelID == channelID && session.IsLive {
			return session, nil
		}
	}
	return models.Session{}, fmt.Errorf("%w: no live session for channel %s", ErrNotFound, channelID)
}

func (s *Storage) FinishedSessionsByChannel(channelID string, offset, limit int) ([]models.Session, int64, error) {
	if limit <= 0 {
		return nil, 0, fmt.Errorf("%w: limit must be positive", ErrInvalidArgument)
	}
	if offset < 0 {
		return nil, 0, fmt.Errorf("%w: offset cannot be negative", ErrInvalidArgument)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	finished := make([]models.Session, 0)
	for _, session := range s.data.Sessions {
		if session.ChannelID == channelID && session.Finished() {
			finished = append(finished, session)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		if finished[i].StartedAt.Equal(finished[j].StartedAt) {
			return finished[i].ID < finished[j].ID
		}
		return finished[i].StartedAt.After(finished[j].StartedAt)
	})

	return pageSessions(finished, offset, limit)
}

func (s *Storage) FinishedSessionsByViewers(offset, limit int) ([]models.Session, int64, error) {
	if limit <= 0 {
		return nil, 0, fmt.Errorf("%w: limit must be positive", ErrInvalidArgument)
	}
	if offset < 0 {
		return nil, 0, fmt.Errorf("%w: offset cannot be negative", ErrInvalidArgument)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	finished := make([]models.Session, 0)
	for _, session := range s.data.Sessions {
		if session.Finished() {
			finished = append(finished, session)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		if finished[i].Viewers == finished[j].Viewers {
			if finished[i].StartedAt.Equal(finished[j].StartedAt) {
				return finished[i].ID < finished[j].ID
			}
			return finished[i].StartedAt.After(finished[j].StartedAt)
		}
		return finished[i].Viewers > finished[j].Viewers
	})

	return pageSessions(finished, offset, limit)
}

func pageSessions(sessions []models.Session, offset, limit int) ([]models.Session, int64, error) {
	total := int64(len(sessions))
	if offset >= len(sessions) {
		return []models.Session{}, total, nil
	}
	end := offset + limit
	if end > len(sessions) {
		end = len(sessions)
	}
	page := make([]models.Session, end-offset)
	copy(page, sessions[offset:end])
	return page, total, nil
}

// VOD catalog operations

func (s *Storage) CreateVodFromSession(sessionID string) (models.Vod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.data.Sessions[sessionID]
	if !ok {
		return models.Vod{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if !session.Finished() {
		return models.Vod{}, fmt.Errorf("%w: session %s has not ended", ErrInvalidArgument, sessionID)
	}
	for _, existing := range s.data.Vods {
		if existing.SessionID == sessionID {
			return models.Vod{}, fmt.Errorf("%w: session %s already has a vod", ErrConflict, sessionID)
		}
	}

	duration := int64(session.EndedAt.Sub(session.StartedAt) / time.Second)
	if duration < 0 {
		duration = 0
	}

	vod := models.Vod{
		ID:              generateID(),
		SessionID:       sessionID,
		ChannelID:       session.ChannelID,
		Title:           session.Title,
		Description:     session.Description,
		URL:             session.VodURL,
		ThumbnailURL:    session.ThumbnailURL,
		DurationSeconds: duration,
		CreatedAt:       s.now(),
	}

	s.data.Vods[vod.ID] = vod
	if err := s.persist(); err != nil {
		delete(s.data.Vods, vod.ID)
		return models.Vod{}, err
	}

	return vod, nil
}

func (s *Storage) GetVod(id string) (models.Vod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vod, ok := s.data.Vods[id]
	if !ok {
		return models.Vod{}, fmt.Errorf("%w: vod %s", ErrNotFound, id)
	}
	return vod, nil
}

func (s *Storage) VodBySession(sessionID string) (models.Vod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, vod := range s.data.Vods {
		if vod.SessionID == sessionID {
			return vod, nil
		}
	}
	return models.Vod{}, fmt.Errorf("%w: no vod for session %s", ErrNotFound, sessionID)
}

func (s *Storage) UpdateVod(id string, params UpdateVodParams) (models.Vod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vod, ok := s.data.Vods[id]
	if !ok {
		return models.Vod{}, fmt.Errorf("%w: vod %s", ErrNotFound, id)
	}
	original := vod

	if params.Title != nil {
		title := normalizeText(*params.Title)
		if title == "" {
			return models.Vod{}, fmt.Errorf("%w: title cannot be blank", ErrInvalidArgument)
		}
		vod.Title = title
	}
	if params.Description != nil {
		vod.Description = normalizeText(*params.Description)
	}

	s.data.Vods[id] = vod
	if err := s.persist(); err != nil {
		s.data.Vods[id] = original
		return models.Vod{}, err
	}
	return vod, nil
}

func (s *Storage) DeleteVod(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Vods[id]; !ok {
		return fmt.Errorf("%w: vod %s", ErrNotFound, id)
	}

	updatedData := cloneDataset(s.data)
	delete(updatedData.Vods, id)

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData
	return nil
}

func (s *Storage) IncrementVodViews(id string) (models.Vod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vod, ok := s.data.Vods[id]
	if !ok {
		return models.Vod{}, fmt.Errorf("%w: vod %s", ErrNotFound, id)
	}
	original := vod
	vod.Views++

	s.data.Vods[id] = vod
	if err := s.persist(); err != nil {
		s.data.Vods[id] = original
		return models.Vod{}, err
	}
	return vod, nil
}

func (s *Storage) Vods(offset, limit int) ([]models.Vod, int64, error) {
	return s.listVods(offset, limit, func(models.Vod) bool { return true })
}

func (s *Storage) VodsByChannel(channelID string, offset, limit int) ([]models.Vod, int64, error) {
	return s.listVods(offset, limit, func(vod models.Vod) bool { return vod.ChannelID == channelID })
}

func (s *Storage) listVods(offset, limit int, keep func(models.Vod) bool) ([]models.Vod, int64, error) {
	if limit <= 0 {
		return nil, 0, fmt.Errorf("%w: limit must be positive", ErrInvalidArgument)
	}
	if offset < 0 {
		return nil, 0, fmt.Errorf("%w: offset cannot be negative", ErrInvalidArgument)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	vods := make([]models.Vod, 0)
	for _, vod := range s.data.Vods {
		if keep(vod) {
			vods = append(vods, vod)
		}
	}
	sort.Slice(vods, func(i, j int) bool {
		if vods[i].CreatedAt.Equal(vods[j].CreatedAt) {
			return vods[i].ID < vods[j].ID
		}
		return vods[i].CreatedAt.After(vods[j].CreatedAt)
	})

	total := int64(len(vods))
	if offset >= len(vods) {
		return []models.Vod{}, total, nil
	}
	end := offset + limit
	if end > len(vods) {
		end = len(vods)
	}
	page := make([]models.Vod, end-offset)
	copy(page, vods[offset:end])
	return page, total, nil
}

// Template operations

func (s *Storage) TemplateByChannel(channelID string) (models.DefaultStreamTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	template, ok := s.data.Templates[channelID]
	if !ok {
		return models.DefaultStreamTemplate{}, fmt.Errorf("%w: template for channel %s", ErrNotFound, channelID)
	}
	return template, nil
}

func (s *Storage) UpsertTemplate(params UpsertTemplateParams) (models.DefaultStreamTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	updatedData := cloneDataset(s.data)

	template := models.DefaultStreamTemplate{
		ChannelID:   channelID,
		Title:       title,
		Description: normalizeText(params.Description),
		Category:    category,
		UpdatedAt:   s.now(),
	}
	updatedData.Templates[channelID] = template

	// A template change is reflected onto the channel's live session so the
	// directory shows the new defaults without waiting for the next start.
	for id, session := range updatedData.Sessions {
		if session.ChannelID != channelID || !session.IsLive {
			continue
		}
		session.Title = template.Title
		session.Description = template.Description
		if template.Category != "" {
			session.Category = template.Category
		}
		updatedData.Sessions[id] = session
	}

	if err := s.persistDataset(updatedData); err != nil {
		return models.DefaultStreamTemplate{}, err
	}

	s.data = updatedData

	return template, nil
}

func (s *Storage) DeleteTemplate(channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Templates[channelID]; !ok {
		return fmt.Errorf("%w: template for channel %s", ErrNotFound, channelID)
	}

	updatedData := cloneDataset(s.data)
	delete(updatedData.Templates, channelID)

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData

	return nil
}

// Deferred thumbnail operations

func (s *Storage) EnqueueThumbnail(params EnqueueThumbnailParams) (models.PendingThumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
		ApplyAt:           params.ApplyAt,
		CreatedAt:         s.now(),
	}

	s.data.PendingThumbnails[pending.ID] = pending
	if err := s.persist(); err != nil {
		delete(s.data.PendingThumbnails, pending.ID)
		return models.PendingThumbnail{}, err
	}

	return pending, nil
}

func (s *Storage) ClaimDueThumbnails(now time.Time, limit int) ([]models.PendingThumbnail, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]models.PendingThumbnail, 0)
	for _, pending := range s.data.PendingThumbnails {
		if !pending.ApplyAt.After(now) {
			due = append(due, pending)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ApplyAt.Equal(due[j].ApplyAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].ApplyAt.Before(due[j].ApplyAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	updatedData := cloneDataset(s.data)
	for _, pending := range due {
		delete(updatedData.PendingThumbnails, pending.ID)
	}

	if err := s.persistDataset(updatedData); err != nil {
		return nil, err
	}

	s.data = updatedData

	return due, nil
}

func (s *Storage) PendingThumbnailCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.PendingThumbnails), nil
}
