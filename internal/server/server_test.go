package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"streampulse/internal/api"
	"streampulse/internal/directory"
	"streampulse/internal/enrich"
	"streampulse/internal/lifecycle"
	"streampulse/internal/models"
	"streampulse/internal/observability/metrics"
	"streampulse/internal/storage"
)

type staticDirectory struct{}

func (staticDirectory) ResolveByReference(_ context.Context, reference string) (models.ChannelPreview, error) {
	return models.ChannelPreview{ID: "channel-1", Name: "Alice"}, nil
}

func (staticDirectory) BatchResolve(_ context.Context, ids []string) ([]models.ChannelPreview, error) {
	previews := make([]models.ChannelPreview, 0, len(ids))
	for _, id := range ids {
		previews = append(previews, models.ChannelPreview{ID: id})
	}
	return previews, nil
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "data.json"))
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}

	var dir directory.Client = staticDirectory{}
	recorder := metrics.New()
	correlator := lifecycle.NewCorrelator(lifecycle.CorrelatorConfig{
		Repository: store,
		Directory:  dir,
		Metrics:    recorder,
	})
	enrichService := enrich.NewService(enrich.ServiceConfig{
		Repository: store,
		Directory:  dir,
		Metrics:    recorder,
	})

	handler := api.NewHandler(store, correlator, enrichService)
	handler.Metrics = recorder

	cfg.Metrics = recorder
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	return srv
}

const startBody = `{
	"resources": ["arn:aws:ivs:us-east-1:123456789012:channel/abc"],
	"detail": {"event_name": "Stream Start", "channel_arn": "arn:aws:ivs:us-east-1:123456789012:channel/abc", "stream_id": "st-1"}
}`

func TestServerRoutesLifecycleEvents(t *testing.T) {
	srv := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/events/lifecycle", strings.NewReader(startBody))
	rec := httptest.NewRecorder()
	srv.HTTPServer().Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	listRec := httptest.NewRecorder()
	srv.HTTPServer().Handler.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listRec.Code)
	}
	var payload struct {
		Sessions []json.RawMessage `json:"sessions"`
	}
	if err := json.NewDecoder(listRec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(payload.Sessions) != 1 {
		t.Fatalf("expected 1 live session, got %d", len(payload.Sessions))
	}
}

func TestServerSetsRequestIDAndSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.HTTPServer().Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected nosniff header, got %q", rec.Header().Get("X-Content-Type-Options"))
	}
}

func TestServerEchoesProvidedRequestID(t *testing.T) {
	srv := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	srv.HTTPServer().Handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

func TestServerGlobalRateLimit(t *testing.T) {
	srv := newTestServer(t, Config{
		RateLimit: RateLimitConfig{GlobalRPS: 0.001, GlobalBurst: 1},
	})

	first := httptest.NewRecorder()
	srv.HTTPServer().Handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	srv.HTTPServer().Handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", second.Code)
	}
}

func TestServerEventRateLimitPerSource(t *testing.T) {
	srv := newTestServer(t, Config{
		RateLimit: RateLimitConfig{EventLimit: 2, EventWindow: time.Minute},
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/events/lifecycle", strings.NewReader(startBody))
		req.Header.Set("X-Forwarded-For", "10.0.0.9")
		srv.HTTPServer().Handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/events/lifecycle", strings.NewReader(startBody))
	req.Header.Set("X-Forwarded-For", "10.0.0.9")
	srv.HTTPServer().Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after budget spent, got %d", rec.Code)
	}

	// A different source keeps its own budget.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/events/lifecycle", strings.NewReader(startBody))
	req.Header.Set("X-Forwarded-For", "10.0.0.10")
	srv.HTTPServer().Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for second source, got %d", rec.Code)
	}
}

func TestServerCORSBlocksUnknownOrigin(t *testing.T) {
	srv := newTestServer(t, Config{
		CORS: CORSConfig{AllowedOrigins: []string{"https://app.example.com"}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	srv.HTTPServer().Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec = httptest.NewRecorder()
	srv.HTTPServer().Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for allowed origin, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("expected allow-origin header, got %q", got)
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Config{})

	srv.HTTPServer().Handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	srv.HTTPServer().Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "streampulse_http_requests_total") {
		t.Fatalf("expected request counter in exposition, got %s", rec.Body.String())
	}
}
