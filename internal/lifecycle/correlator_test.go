package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"streampulse/internal/directory"
	"streampulse/internal/models"
	"streampulse/internal/observability/metrics"
	"streampulse/internal/storage"
)

type stubDirectory struct {
	previews map[string]models.ChannelPreview
	err      error
	resolves int
}

func (s *stubDirectory) ResolveByReference(_ context.Context, reference string) (models.ChannelPreview, error) {
	s.resolves++
	if s.err != nil {
		return models.ChannelPreview{}, s.err
	}
	preview, ok := s.previews[reference]
	if !ok {
		return models.ChannelPreview{}, directory.ErrChannelNotFound
	}
	return preview, nil
}

func (s *stubDirectory) BatchResolve(_ context.Context, ids []string) ([]models.ChannelPreview, error) {
	return nil, nil
}

func newTestCorrelator(t *testing.T, dir directory.Client, clock func() time.Time) (*Correlator, *storage.Storage) {
	t.Helper()
	opts := []storage.Option{}
	if clock != nil {
		opts = append(opts, storage.WithClock(clock))
	}
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "data.json"), opts...)
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}
	correlator := NewCorrelator(CorrelatorConfig{
		Repository: store,
		Directory:  dir,
		Metrics:    metrics.New(),
		Clock:      clock,
	})
	return correlator, store
}

const channelRef = "arn:aws:ivs:us-east-1:123456789012:channel/abc"

func startEvent(providerID string) LifecycleEvent {
	return LifecycleEvent{
		Kind:              KindStreamStart,
		ChannelReference:  channelRef,
		ProviderSessionID: providerID,
		OccurredAt:        time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC),
	}
}

func TestHandleLifecycleStartUsesFallbackDefaults(t *testing.T) {
	dir := &stubDirectory{previews: map[string]models.ChannelPreview{
		channelRef: {ID: "channel-1", Name: "Alice"},
	}}
	correlator, store := newTestCorrelator(t, dir, nil)

	outcome, err := correlator.HandleLifecycle(context.Background(), startEvent("st-1"))
	if err != nil {
		t.Fatalf("handle start: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("expected created, got %v", outcome)
	}

	session, err := store.GetSessionByProviderID("st-1")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if session.ChannelID != "channel-1" {
		t.Fatalf("expected resolved channel id, got %q", session.ChannelID)
	}
	if session.Title != "Untitled-Stream" {
		t.Fatalf("expected fallback title, got %q", session.Title)
	}
	if session.Description != "No description available" {
		t.Fatalf("expected fallback description, got %q", session.Description)
	}
	if session.Category != models.CategoryOther {
		t.Fatalf("expected fallback category, got %v", session.Category)
	}
	if !session.IsLive {
		t.Fatal("expected session to be live")
	}
}

func TestHandleLifecycleStartSeedsFromTemplate(t *testing.T) {
	dir := &stubDirectory{previews: map[string]models.ChannelPreview{
		channelRef: {ID: "channel-1"},
	}}
	correlator, store := newTestCorrelator(t, dir, nil)

	if _, err := store.UpsertTemplate(storage.UpsertTemplateParams{
		ChannelID: "channel-1",
		Title:     "Ranked Grind",
		Category:  models.CategoryGaming,
	}); err != nil {
		t.Fatalf("seed template: %v", err)
	}

	if _, err := correlator.HandleLifecycle(context.Background(), startEvent("st-1")); err != nil {
		t.Fatalf("handle start: %v", err)
	}

	session, err := store.GetSessionByProviderID("st-1")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if session.Title != "Ranked Grind" {
		t.Fatalf("expected template title, got %q", session.Title)
	}
	if session.Description != "No description available" {
		t.Fatalf("blank template field should fall back, got %q", session.Description)
	}
	if session.Category != models.CategoryGaming {
		t.Fatalf("expected template category, got %v", session.Category)
	}
}

func TestHandleLifecycleDuplicateStart(t *testing.T) {
	dir := &stubDirectory{previews: map[string]models.ChannelPreview{
		channelRef: {ID: "channel-1"},
	}}
	correlator, _ := newTestCorrelator(t, dir, nil)

	if _, err := correlator.HandleLifecycle(context.Background(), startEvent("st-1")); err != nil {
		t.Fatalf("first start: %v", err)
	}

	outcome, err := correlator.HandleLifecycle(context.Background(), startEvent("st-1"))
	if err != nil {
		t.Fatalf("duplicate start should not error: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %v", outcome)
	}

	// A different provider session on the same channel is also rejected while
	// the first is live.
	outcome, err = correlator.HandleLifecycle(context.Background(), startEvent("st-2"))
	if err != nil {
		t.Fatalf("second channel start should not error: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %v", outcome)
	}
}

func TestHandleLifecycleStartDirectoryFailure(t *testing.T) {
	dir := &stubDirectory{err: fmt.Errorf("directory down")}
	correlator, _ := newTestCorrelator(t, dir, nil)

	outcome, err := correlator.HandleLifecycle(context.Background(), startEvent("st-1"))
	if err == nil {
		t.Fatal("expected resolve error")
	}
	if outcome != OutcomeError {
		t.Fatalf("expected error outcome, got %v", outcome)
	}
}

func TestHandleLifecycleEndIsIdempotent(t *testing.T) {
	dir := &stubDirectory{previews: map[string]models.ChannelPreview{
		channelRef: {ID: "channel-1"},
	}}
	correlator, store := newTestCorrelator(t, dir, nil)

	if _, err := correlator.HandleLifecycle(context.Background(), startEvent("st-1")); err != nil {
		t.Fatalf("start: %v", err)
	}

	end := LifecycleEvent{
		Kind:              KindStreamEnd,
		ChannelReference:  channelRef,
		ProviderSessionID: "st-1",
		OccurredAt:        time.Date(2026, time.March, 14, 11, 0, 0, 0, time.UTC),
	}
	outcome, err := correlator.HandleLifecycle(context.Background(), end)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if outcome != OutcomeEnded {
		t.Fatalf("expected ended, got %v", outcome)
	}

	later := end
	later.OccurredAt = end.OccurredAt.Add(time.Hour)
	outcome, err = correlator.HandleLifecycle(context.Background(), later)
	if err != nil {
		t.Fatalf("repeat end: %v", err)
	}
	if outcome != OutcomeIgnored {
		t.Fatalf("expected ignored, got %v", outcome)
	}

	session, err := store.GetSessionByProviderID("st-1")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if session.EndedAt == nil || !session.EndedAt.Equal(end.OccurredAt) {
		t.Fatalf("first ended timestamp should stand, got %v", session.EndedAt)
	}
}

func TestHandleLifecycleIgnoresRecordingAndUnknownKinds(t *testing.T) {
	correlator, _ := newTestCorrelator(t, &stubDirectory{}, nil)

	for _, kind := range []EventKind{KindRecordingStart, KindRecordingEnd, KindUnknown} {
		outcome, err := correlator.HandleLifecycle(context.Background(), LifecycleEvent{Kind: kind})
		if err != nil {
			t.Fatalf("kind %v: %v", kind, err)
		}
		if outcome != OutcomeIgnored {
			t.Fatalf("kind %v: expected ignored, got %v", kind, outcome)
		}
	}
}

func TestHandleRecordingEndAppliesVodImmediately(t *testing.T) {
	dir := &stubDirectory{previews: map[string]models.ChannelPreview{
		channelRef: {ID: "channel-1"},
	}}
	correlator, store := newTestCorrelator(t, dir, nil)

	if _, err := correlator.HandleLifecycle(context.Background(), startEvent("st-1")); err != nil {
		t.Fatalf("start: %v", err)
	}

	outcome, err := correlator.HandleRecording(context.Background(), RecordingEvent{
		Kind:              KindRecordingEnd,
		ProviderSessionID: "st-1",
		Bucket:            "captures",
		Region:            "us-east-1",
		KeyPrefix:         "prefix",
	})
	if err != nil {
		t.Fatalf("recording end: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %v", outcome)
	}

	session, err := store.GetSessionByProviderID("st-1")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	want := "https://captures.s3.us-east-1.amazonaws.com/prefix/media/hls/master.m3u8"
	if session.VodURL != want {
		t.Fatalf("expected vod url %q, got %q", want, session.VodURL)
	}
}

func TestHandleRecordingEndWithoutSessionIgnored(t *testing.T) {
	correlator, _ := newTestCorrelator(t, &stubDirectory{}, nil)

	outcome, err := correlator.HandleRecording(context.Background(), RecordingEvent{
		Kind:              KindRecordingEnd,
		ProviderSessionID: "st-missing",
		Bucket:            "captures",
		Region:            "us-east-1",
		KeyPrefix:         "prefix",
	})
	if err != nil {
		t.Fatalf("recording end: %v", err)
	}
	if outcome != OutcomeIgnored {
		t.Fatalf("expected ignored, got %v", outcome)
	}
}

func TestHandleRecordingStartSchedulesThumbnail(t *testing.T) {
	dir := &stubDirectory{previews: map[string]models.ChannelPreview{
		channelRef: {ID: "channel-1"},
	}}
	current := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }
	correlator, store := newTestCorrelator(t, dir, clock)

	if _, err := correlator.HandleLifecycle(context.Background(), startEvent("st-1")); err != nil {
		t.Fatalf("start: %v", err)
	}

	outcome, err := correlator.HandleRecording(context.Background(), RecordingEvent{
		Kind:              KindRecordingStart,
		ProviderSessionID: "st-1",
		Bucket:            "captures",
		Region:            "us-east-1",
		KeyPrefix:         "prefix",
	})
	if err != nil {
		t.Fatalf("recording start: %v", err)
	}
	if outcome != OutcomeScheduled {
		t.Fatalf("expected scheduled, got %v", outcome)
	}

	count, err := store.PendingThumbnailCount()
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one pending thumbnail, got %d", count)
	}

	session, err := store.GetSessionByProviderID("st-1")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if session.ThumbnailURL != "" {
		t.Fatalf("thumbnail must not apply before the delay, got %q", session.ThumbnailURL)
	}
}

func TestRecordingEndAfterStreamEndPublishesVod(t *testing.T) {
	dir := &stubDirectory{previews: map[string]models.ChannelPreview{
		channelRef: {ID: "channel-1"},
	}}
	correlator, store := newTestCorrelator(t, dir, nil)

	if _, err := correlator.HandleLifecycle(context.Background(), startEvent("st-1")); err != nil {
		t.Fatalf("start: %v", err)
	}
	end := LifecycleEvent{
		Kind:              KindStreamEnd,
		ChannelReference:  channelRef,
		ProviderSessionID: "st-1",
		OccurredAt:        time.Date(2026, time.March, 14, 11, 0, 0, 0, time.UTC),
	}
	if _, err := correlator.HandleLifecycle(context.Background(), end); err != nil {
		t.Fatalf("end: %v", err)
	}

	recording := RecordingEvent{
		Kind:              KindRecordingEnd,
		ProviderSessionID: "st-1",
		Bucket:            "captures",
		Region:            "us-east-1",
		KeyPrefix:         "prefix",
	}
	outcome, err := correlator.HandleRecording(context.Background(), recording)
	if err != nil {
		t.Fatalf("recording end: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %v", outcome)
	}

	session, err := store.GetSessionByProviderID("st-1")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	vod, err := store.VodBySession(session.ID)
	if err != nil {
		t.Fatalf("expected vod for ended session: %v", err)
	}
	if vod.URL != session.VodURL {
		t.Fatalf("expected vod url %q, got %q", session.VodURL, vod.URL)
	}
	if vod.DurationSeconds != 3600 {
		t.Fatalf("expected one hour duration, got %d", vod.DurationSeconds)
	}

	// Redelivery applies the same URL again but never duplicates the record.
	if _, err := correlator.HandleRecording(context.Background(), recording); err != nil {
		t.Fatalf("redelivered recording end: %v", err)
	}
	vods, total, err := store.VodsByChannel("channel-1", 0, 10)
	if err != nil {
		t.Fatalf("VodsByChannel: %v", err)
	}
	if total != 1 || len(vods) != 1 || vods[0].ID != vod.ID {
		t.Fatalf("expected single vod %s, got %d records", vod.ID, total)
	}
}

func TestStreamEndAfterRecordingEndPublishesVod(t *testing.T) {
	dir := &stubDirectory{previews: map[string]models.ChannelPreview{
		channelRef: {ID: "channel-1"},
	}}
	correlator, store := newTestCorrelator(t, dir, nil)

	if _, err := correlator.HandleLifecycle(context.Background(), startEvent("st-1")); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := correlator.HandleRecording(context.Background(), RecordingEvent{
		Kind:              KindRecordingEnd,
		ProviderSessionID: "st-1",
		Bucket:            "captures",
		Region:            "us-east-1",
		KeyPrefix:         "prefix",
	}); err != nil {
		t.Fatalf("recording end: %v", err)
	}

	session, err := store.GetSessionByProviderID("st-1")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if _, err := store.VodBySession(session.ID); err == nil {
		t.Fatal("vod must not exist while the session is live")
	}

	end := LifecycleEvent{
		Kind:              KindStreamEnd,
		ChannelReference:  channelRef,
		ProviderSessionID: "st-1",
		OccurredAt:        time.Date(2026, time.March, 14, 12, 30, 0, 0, time.UTC),
	}
	if _, err := correlator.HandleLifecycle(context.Background(), end); err != nil {
		t.Fatalf("end: %v", err)
	}

	vod, err := store.VodBySession(session.ID)
	if err != nil {
		t.Fatalf("expected vod after stream end: %v", err)
	}
	if vod.ChannelID != "channel-1" {
		t.Fatalf("unexpected vod channel %q", vod.ChannelID)
	}
	if vod.DurationSeconds != 9000 {
		t.Fatalf("unexpected duration %d", vod.DurationSeconds)
	}
}
