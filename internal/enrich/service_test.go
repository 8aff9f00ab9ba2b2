package enrich

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"streampulse/internal/models"
	"streampulse/internal/observability/metrics"
	"streampulse/internal/storage"
)

type recordingDirectory struct {
	previews map[string]models.ChannelPreview
	err      error
	batches  [][]string
}

func (d *recordingDirectory) ResolveByReference(_ context.Context, reference string) (models.ChannelPreview, error) {
	return models.ChannelPreview{ID: reference}, nil
}

func (d *recordingDirectory) BatchResolve(_ context.Context, ids []string) ([]models.ChannelPreview, error) {
	d.batches = append(d.batches, append([]string{}, ids...))
	if d.err != nil {
		return nil, d.err
	}
	previews := make([]models.ChannelPreview, 0, len(ids))
	for _, id := range ids {
		if preview, ok := d.previews[id]; ok {
			previews = append(previews, preview)
		}
	}
	return previews, nil
}

func newTestService(t *testing.T, dir *recordingDirectory) (*Service, *storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "data.json"))
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}
	service := NewService(ServiceConfig{
		Repository: store,
		Directory:  dir,
		Metrics:    metrics.New(),
	})
	return service, store
}

func seedSession(t *testing.T, store *storage.Storage, channelID, providerID string, startedAt time.Time) models.Session {
	t.Helper()
	session, err := store.CreateSession(storage.CreateSessionParams{
		ChannelID:         channelID,
		ProviderSessionID: providerID,
		Title:             "Untitled-Stream",
		Description:       "No description available",
		Category:          models.CategoryOther,
		StartedAt:         startedAt,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func endSession(t *testing.T, store *storage.Storage, providerID string, endedAt time.Time) {
	t.Helper()
	if _, _, err := store.EndSessionByProviderID(providerID, endedAt); err != nil {
		t.Fatalf("end session: %v", err)
	}
}

func TestLiveSessionsDecoratesWithPreviews(t *testing.T) {
	dir := &recordingDirectory{previews: map[string]models.ChannelPreview{
		"channel-1": {ID: "channel-1", Name: "Alice"},
	}}
	service, store := newTestService(t, dir)

	base := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	seedSession(t, store, "channel-1", "st-1", base)
	seedSession(t, store, "channel-2", "st-2", base.Add(time.Minute))

	sessions, err := service.LiveSessions(context.Background())
	if err != nil {
		t.Fatalf("live sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	byChannel := map[string]Session{}
	for _, session := range sessions {
		byChannel[session.ChannelID] = session
	}
	if byChannel["channel-1"].Channel == nil || byChannel["channel-1"].Channel.Name != "Alice" {
		t.Fatalf("expected preview for channel-1, got %+v", byChannel["channel-1"].Channel)
	}
	if byChannel["channel-2"].Channel != nil {
		t.Fatalf("unresolved channel must have nil preview, got %+v", byChannel["channel-2"].Channel)
	}

	if len(dir.batches) != 1 {
		t.Fatalf("expected one batched lookup, got %d", len(dir.batches))
	}
	if len(dir.batches[0]) != 2 {
		t.Fatalf("expected distinct channel ids in batch, got %v", dir.batches[0])
	}
}

func TestLiveSessionsEmptySkipsDirectory(t *testing.T) {
	dir := &recordingDirectory{}
	service, _ := newTestService(t, dir)

	sessions, err := service.LiveSessions(context.Background())
	if err != nil {
		t.Fatalf("live sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
	if len(dir.batches) != 0 {
		t.Fatalf("empty result must not query the directory, got %d calls", len(dir.batches))
	}
}

func TestLiveSessionsSurviveDirectoryOutage(t *testing.T) {
	dir := &recordingDirectory{err: fmt.Errorf("directory down")}
	service, store := newTestService(t, dir)
	seedSession(t, store, "channel-1", "st-1", time.Now().UTC())

	sessions, err := service.LiveSessions(context.Background())
	if err != nil {
		t.Fatalf("directory outage must not fail the query: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Channel != nil {
		t.Fatalf("expected nil preview during outage, got %+v", sessions[0].Channel)
	}
}

func TestFinishedByChannelPaginates(t *testing.T) {
	dir := &recordingDirectory{}
	service, store := newTestService(t, dir)

	base := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		providerID := fmt.Sprintf("st-%d", i)
		seedSession(t, store, "channel-1", providerID, base.Add(time.Duration(i)*time.Hour))
		endSession(t, store, providerID, base.Add(time.Duration(i)*time.Hour+30*time.Minute))
	}

	page, err := service.FinishedByChannel(context.Background(), "channel-1", 1, 2)
	if err != nil {
		t.Fatalf("finished by channel: %v", err)
	}
	if page.TotalElements != 5 {
		t.Fatalf("expected 5 total, got %d", page.TotalElements)
	}
	if page.TotalPages != 3 {
		t.Fatalf("expected 3 pages, got %d", page.TotalPages)
	}
	if len(page.Content) != 2 {
		t.Fatalf("expected 2 sessions on page, got %d", len(page.Content))
	}
	// Newest first; page 1 holds the third and second most recent.
	if page.Content[0].ProviderSessionID != "st-2" || page.Content[1].ProviderSessionID != "st-1" {
		t.Fatalf("unexpected page order: %s, %s",
			page.Content[0].ProviderSessionID, page.Content[1].ProviderSessionID)
	}
}

func TestFinishedByChannelPastEndIsEmpty(t *testing.T) {
	dir := &recordingDirectory{}
	service, store := newTestService(t, dir)

	base := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	seedSession(t, store, "channel-1", "st-1", base)
	endSession(t, store, "st-1", base.Add(time.Hour))

	page, err := service.FinishedByChannel(context.Background(), "channel-1", 7, 10)
	if err != nil {
		t.Fatalf("finished by channel: %v", err)
	}
	if len(page.Content) != 0 {
		t.Fatalf("expected empty page, got %d", len(page.Content))
	}
	if page.TotalElements != 1 {
		t.Fatalf("expected total to survive empty pages, got %d", page.TotalElements)
	}
	if len(dir.batches) != 0 {
		t.Fatal("empty page must not query the directory")
	}
}

func TestPopularFinishedOrdersByViewers(t *testing.T) {
	dir := &recordingDirectory{}
	service, store := newTestService(t, dir)

	base := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	quiet := seedSession(t, store, "channel-1", "st-quiet", base)
	busy := seedSession(t, store, "channel-2", "st-busy", base)
	for i := 0; i < 3; i++ {
		if _, err := store.IncrementViewers(busy.ID); err != nil {
			t.Fatalf("increment viewers: %v", err)
		}
	}
	if _, err := store.IncrementViewers(quiet.ID); err != nil {
		t.Fatalf("increment viewers: %v", err)
	}
	endSession(t, store, "st-quiet", base.Add(time.Hour))
	endSession(t, store, "st-busy", base.Add(time.Hour))

	page, err := service.PopularFinished(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("popular finished: %v", err)
	}
	if len(page.Content) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(page.Content))
	}
	if page.Content[0].ProviderSessionID != "st-busy" {
		t.Fatalf("expected busiest session first, got %s", page.Content[0].ProviderSessionID)
	}
}

func TestDecorateDeduplicatesChannelsAndKeepsOrder(t *testing.T) {
	dir := &recordingDirectory{previews: map[string]models.ChannelPreview{
		"channel-a": {ID: "channel-a", Name: "Alice"},
	}}
	service, store := newTestService(t, dir)

	// Three finished sessions whose channels repeat: a, b, a. Viewer counts
	// pin the result order.
	base := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	seeds := []struct {
		channelID  string
		providerID string
		viewers    int
	}{
		{"channel-a", "st-a1", 3},
		{"channel-b", "st-b", 2},
		{"channel-a", "st-a2", 1},
	}
	for i, seed := range seeds {
		session := seedSession(t, store, seed.channelID, seed.providerID, base.Add(time.Duration(i)*time.Hour))
		for v := 0; v < seed.viewers; v++ {
			if _, err := store.IncrementViewers(session.ID); err != nil {
				t.Fatalf("increment viewers: %v", err)
			}
		}
		endSession(t, store, seed.providerID, base.Add(time.Duration(i)*time.Hour+30*time.Minute))
	}

	page, err := service.PopularFinished(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("popular finished: %v", err)
	}
	if len(page.Content) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(page.Content))
	}
	for i, want := range []string{"st-a1", "st-b", "st-a2"} {
		if page.Content[i].ProviderSessionID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, page.Content[i].ProviderSessionID)
		}
	}

	// The repeated channel collapses to one id, in first-appearance order.
	if len(dir.batches) != 1 {
		t.Fatalf("expected one batched lookup, got %d", len(dir.batches))
	}
	if got := dir.batches[0]; len(got) != 2 || got[0] != "channel-a" || got[1] != "channel-b" {
		t.Fatalf("unexpected batch ids %v", dir.batches[0])
	}

	// Both channel-a sessions carry the preview; the unresolved channel-b
	// session stays in place with a nil preview.
	first, second, third := page.Content[0], page.Content[1], page.Content[2]
	if first.Channel == nil || first.Channel.Name != "Alice" {
		t.Fatalf("expected preview on first session, got %+v", first.Channel)
	}
	if second.Channel != nil {
		t.Fatalf("expected nil preview for unresolved channel, got %+v", second.Channel)
	}
	if third.Channel == nil || third.Channel.Name != "Alice" {
		t.Fatalf("expected preview on third session, got %+v", third.Channel)
	}
}

func TestPageValidation(t *testing.T) {
	service, _ := newTestService(t, &recordingDirectory{})

	if _, err := service.FinishedByChannel(context.Background(), "channel-1", -1, 10); !errors.Is(err, storage.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for negative page, got %v", err)
	}
	if _, err := service.PopularFinished(context.Background(), 0, 0); !errors.Is(err, storage.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for zero size, got %v", err)
	}
}

func TestSessionByIDNotFound(t *testing.T) {
	service, _ := newTestService(t, &recordingDirectory{})

	if _, err := service.SessionByID(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLiveSessionByChannel(t *testing.T) {
	dir := &recordingDirectory{previews: map[string]models.ChannelPreview{
		"channel-1": {ID: "channel-1", Name: "Alice"},
	}}
	service, store := newTestService(t, dir)
	seedSession(t, store, "channel-1", "st-1", time.Now().UTC())

	session, err := service.LiveSessionByChannel(context.Background(), "channel-1")
	if err != nil {
		t.Fatalf("live session by channel: %v", err)
	}
	if session.Channel == nil || session.Channel.Name != "Alice" {
		t.Fatalf("expected decorated preview, got %+v", session.Channel)
	}

	if _, err := service.LiveSessionByChannel(context.Background(), "channel-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found for offline channel, got %v", err)
	}
}
