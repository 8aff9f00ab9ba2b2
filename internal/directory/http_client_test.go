package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, baseURL string) *HTTPClient {
	t.Helper()
	cfg := Config{
		BaseURL:       baseURL,
		Token:         "secret",
		MaxAttempts:   3,
		RetryInterval: time.Millisecond,
	}
	client, err := cfg.NewHTTPClient()
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return client
}

func TestResolveByReferenceDecodesPreview(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		// The slash inside the reference must stay escaped in the path.
		if r.URL.EscapedPath() != "/v1/channels/by-reference/arn:aws:ivs:us-east-1:123:channel%2Fabc" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"channelId":   "chan-1",
			"channelName": "Alice",
			"playbackUrl": "https://play.example.com/chan-1",
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	preview, err := client.ResolveByReference(context.Background(), "arn:aws:ivs:us-east-1:123:channel/abc")
	if err != nil {
		t.Fatalf("ResolveByReference: %v", err)
	}
	if preview.ID != "chan-1" || preview.Name != "Alice" {
		t.Fatalf("unexpected preview %+v", preview)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
}

func TestResolveByReferenceNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.ResolveByReference(context.Background(), "arn:unknown")
	if !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestResolveByReferenceRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "temporarily unavailable", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"channelId": "chan-1"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	preview, err := client.ResolveByReference(context.Background(), "arn:retry")
	if err != nil {
		t.Fatalf("ResolveByReference after retries: %v", err)
	}
	if preview.ID != "chan-1" {
		t.Fatalf("unexpected preview %+v", preview)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestResolveByReferenceDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.ResolveByReference(context.Background(), "arn:bad"); err == nil {
		t.Fatalf("expected error for 400 response")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single attempt, got %d", calls.Load())
	}
}

func TestBatchResolvePostsIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/channels/previews" {
			http.NotFound(w, r)
			return
		}
		var payload struct {
			ChannelIDs []string `json:"channelIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(payload.ChannelIDs) != 2 {
			t.Errorf("expected 2 ids, got %v", payload.ChannelIDs)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"channels": []map[string]string{
				{"channelId": "chan-1", "channelName": "Alice"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	previews, err := client.BatchResolve(context.Background(), []string{"chan-1", "chan-2"})
	if err != nil {
		t.Fatalf("BatchResolve: %v", err)
	}
	if len(previews) != 1 || previews[0].ID != "chan-1" {
		t.Fatalf("unexpected previews %+v", previews)
	}
}

func TestBatchResolveEmptyInputSkipsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	previews, err := client.BatchResolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("BatchResolve: %v", err)
	}
	if len(previews) != 0 {
		t.Fatalf("expected no previews, got %+v", previews)
	}
}
