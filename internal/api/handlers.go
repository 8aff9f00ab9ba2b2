package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"streampulse/internal/enrich"
	"streampulse/internal/lifecycle"
	"streampulse/internal/observability/logging"
	"streampulse/internal/observability/metrics"
	"streampulse/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Handler struct {
	Store      storage.Repository
	Correlator *lifecycle.Correlator
	Enrich     *enrich.Service
	Metrics    *metrics.Recorder
	Logger     *slog.Logger
}

func NewHandler(store storage.Repository, correlator *lifecycle.Correlator, enrichService *enrich.Service) *Handler {
	return &Handler{
		Store:      store,
		Correlator: correlator,
		Enrich:     enrichService,
		Metrics:    metrics.Default(),
		Logger:     logging.WithComponent(slog.Default(), "api"),
	}
}

func (h *Handler) recorder() *metrics.Recorder {
	if h.Metrics == nil {
		h.Metrics = metrics.Default()
	}
	return h.Metrics
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		h.Logger = logging.WithComponent(slog.Default(), "api")
	}
	return h.Logger
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
}

// pathSegments splits the request path after the given prefix into its
// non-empty segments.
func pathSegments(r *http.Request, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// pageParams reads page and size query parameters, applying defaults and the
// size cap.
func pageParams(r *http.Request) (int, int, error) {
	page := 0
	size := defaultPageSize

	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, 0, fmt.Errorf("invalid page %q", raw)
		}
		page = parsed
	}
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return 0, 0, fmt.Errorf("invalid size %q", raw)
		}
		size = parsed
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size, nil
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}

	status := "ok"
	statusCode := http.StatusOK
	components := make([]componentStatus, 0, 1)
	if h.Store != nil {
		component := componentStatus{Component: "datastore", Status: "ok"}
		if err := h.Store.Ping(r.Context()); err != nil {
			component.Status = "degraded"
			component.Error = err.Error()
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
		components = append(components, component)
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":     status,
		"components": components,
	})
}

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}
