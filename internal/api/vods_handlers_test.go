package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"streampulse/internal/lifecycle"
	"streampulse/internal/models"
	"streampulse/internal/storage"
)

// publishVod drives one session through its full lifecycle so a catalog
// record exists.
func publishVod(t *testing.T, handler *Handler, store *storage.Storage, streamID string) models.Vod {
	t.Helper()
	postEvent(t, handler.LifecycleEvents, "/events/lifecycle", lifecycleBody("Stream Start", streamID))
	postEvent(t, handler.LifecycleEvents, "/events/lifecycle", lifecycleBody("Stream End", streamID))
	rec, outcome := postEvent(t, handler.RecordingEvents, "/events/recording", recordingBody("Recording End", streamID))
	if rec.Code != http.StatusOK || outcome != lifecycle.OutcomeApplied {
		t.Fatalf("expected 200/applied, got %d/%v", rec.Code, outcome)
	}

	session, err := store.GetSessionByProviderID(streamID)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	vod, err := store.VodBySession(session.ID)
	if err != nil {
		t.Fatalf("load vod: %v", err)
	}
	return vod
}

func TestVodPublishedThroughEventEndpoints(t *testing.T) {
	handler, store := newTestHandler(t)
	vod := publishVod(t, handler, store, "st-1")

	if vod.ChannelID != "channel-1" {
		t.Fatalf("unexpected vod channel %q", vod.ChannelID)
	}
	if vod.URL == "" {
		t.Fatal("expected vod url copied from session")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/vods", nil)
	rec := httptest.NewRecorder()
	handler.Vods(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page struct {
		Content       []models.Vod `json:"content"`
		TotalElements int64        `json:"totalElements"`
		TotalPages    int          `json:"totalPages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if page.TotalElements != 1 || len(page.Content) != 1 || page.Content[0].ID != vod.ID {
		t.Fatalf("unexpected catalog page %+v", page)
	}
	if page.TotalPages != 1 {
		t.Fatalf("expected 1 page, got %d", page.TotalPages)
	}
}

func TestVodReadEndpoints(t *testing.T) {
	handler, store := newTestHandler(t)
	vod := publishVod(t, handler, store, "st-1")

	rec := httptest.NewRecorder()
	handler.VodByID(rec, httptest.NewRequest(http.MethodGet, "/api/vods/"+vod.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get vod: expected 200, got %d", rec.Code)
	}
	var fetched models.Vod
	if err := json.NewDecoder(rec.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode vod: %v", err)
	}
	if fetched.ID != vod.ID || fetched.SessionID != vod.SessionID {
		t.Fatalf("unexpected vod %+v", fetched)
	}

	rec = httptest.NewRecorder()
	handler.ChannelByID(rec, httptest.NewRequest(http.MethodGet, "/api/channels/channel-1/vods", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("channel vods: expected 200, got %d", rec.Code)
	}
	var page struct {
		Content []models.Vod `json:"content"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode channel vods: %v", err)
	}
	if len(page.Content) != 1 || page.Content[0].ID != vod.ID {
		t.Fatalf("unexpected channel catalog %+v", page.Content)
	}

	rec = httptest.NewRecorder()
	handler.SessionByID(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+vod.SessionID+"/vod", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("session vod: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.VodByID(rec, httptest.NewRequest(http.MethodGet, "/api/vods/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown vod: expected 404, got %d", rec.Code)
	}
}

func TestVodViewCounter(t *testing.T) {
	handler, store := newTestHandler(t)
	vod := publishVod(t, handler, store, "st-1")

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.VodByID(rec, httptest.NewRequest(http.MethodPost, "/api/vods/"+vod.ID+"/views", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("views: expected 200, got %d", rec.Code)
		}
	}

	counted, err := store.GetVod(vod.ID)
	if err != nil {
		t.Fatalf("load vod: %v", err)
	}
	if counted.Views != 2 {
		t.Fatalf("expected 2 views, got %d", counted.Views)
	}
}

func TestVodUpdateAndDelete(t *testing.T) {
	handler, store := newTestHandler(t)
	vod := publishVod(t, handler, store, "st-1")

	body := `{"title": "Launch Day Highlights"}`
	rec := httptest.NewRecorder()
	handler.VodByID(rec, httptest.NewRequest(http.MethodPut, "/api/vods/"+vod.ID, strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", rec.Code)
	}
	var updated models.Vod
	if err := json.NewDecoder(rec.Body).Decode(&updated); err != nil {
		t.Fatalf("decode updated vod: %v", err)
	}
	if updated.Title != "Launch Day Highlights" {
		t.Fatalf("unexpected title %q", updated.Title)
	}
	if updated.Description != vod.Description {
		t.Fatalf("description should be untouched, got %q", updated.Description)
	}

	rec = httptest.NewRecorder()
	handler.VodByID(rec, httptest.NewRequest(http.MethodPut, "/api/vods/"+vod.ID, strings.NewReader(`{"title": "  "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank title: expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.VodByID(rec, httptest.NewRequest(http.MethodDelete, "/api/vods/"+vod.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	handler.VodByID(rec, httptest.NewRequest(http.MethodDelete, "/api/vods/"+vod.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("repeat delete: expected 404, got %d", rec.Code)
	}
}
