package directorystub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"streampulse/internal/models"
)

// Options describes how the fake directory should behave.
type Options struct {
	// Channels maps provider references (ARNs) to the previews returned from
	// the resolve endpoint. Previews are also served from the batch endpoint
	// keyed by their channel id.
	Channels map[string]models.ChannelPreview

	// FailResolves causes the first N resolve requests to return HTTP 503.
	// Subsequent attempts succeed.
	FailResolves int

	// Token, when set, is the bearer token the stub enforces.
	Token string
}

// Operation represents a recorded directory interaction.
type Operation struct {
	Kind       string
	Reference  string
	ChannelIDs []string
	Attempt    int
	Status     int
	Timestamp  time.Time
}

// Directory hosts a single httptest.Server that serves the directory
// endpoints the service depends on.
type Directory struct {
	server *httptest.Server
	opts   Options

	mu         sync.Mutex
	operations []Operation
	resolveErr int
}

// Start spins up a new directory stub using the provided options.
func Start(opts Options) *Directory {
	d := &Directory{opts: opts}
	d.server = httptest.NewServer(http.HandlerFunc(d.handle))
	return d
}

// Close shuts down the underlying HTTP server.
func (d *Directory) Close() {
	if d.server != nil {
		d.server.Close()
	}
}

// BaseURL returns the HTTP base URL for the directory endpoints.
func (d *Directory) BaseURL() string {
	return d.server.URL
}

// Operations returns a copy of all recorded operations in the order they
// occurred.
func (d *Directory) Operations() []Operation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Operation, len(d.operations))
	copy(out, d.operations)
	return out
}

func (d *Directory) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.EscapedPath(), "/v1/channels/by-reference/"):
		d.handleResolve(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/channels/previews":
		d.handleBatch(w, r)
	default:
		http.Error(w, "unexpected request", http.StatusNotFound)
	}
}

func (d *Directory) handleResolve(w http.ResponseWriter, r *http.Request) {
	if !d.expectBearer(w, r) {
		return
	}

	escaped := strings.TrimPrefix(r.URL.EscapedPath(), "/v1/channels/by-reference/")
	reference := unescapeSegment(escaped)

	d.mu.Lock()
	d.resolveErr++
	attempt := d.resolveErr
	d.mu.Unlock()

	op := Operation{
		Kind:      "resolve",
		Reference: reference,
		Attempt:   attempt,
		Status:    http.StatusOK,
		Timestamp: time.Now(),
	}

	if attempt <= d.opts.FailResolves {
		op.Status = http.StatusServiceUnavailable
		d.record(op)
		http.Error(w, "directory unavailable", http.StatusServiceUnavailable)
		return
	}

	preview, ok := d.opts.Channels[reference]
	if !ok {
		op.Status = http.StatusNotFound
		d.record(op)
		http.Error(w, "channel not found", http.StatusNotFound)
		return
	}

	d.record(op)
	_ = json.NewEncoder(w).Encode(preview)
}

func (d *Directory) handleBatch(w http.ResponseWriter, r *http.Request) {
	if !d.expectBearer(w, r) {
		return
	}

	var req struct {
		ChannelIDs []string `json:"channelIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	d.record(Operation{
		Kind:       "batch-resolve",
		ChannelIDs: append([]string{}, req.ChannelIDs...),
		Status:     http.StatusOK,
	})

	byID := make(map[string]models.ChannelPreview, len(d.opts.Channels))
	for _, preview := range d.opts.Channels {
		byID[preview.ID] = preview
	}

	channels := make([]models.ChannelPreview, 0, len(req.ChannelIDs))
	for _, id := range req.ChannelIDs {
		if preview, ok := byID[id]; ok {
			channels = append(channels, preview)
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"channels": channels})
}

func (d *Directory) record(op Operation) {
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.operations = append(d.operations, op)
}

func (d *Directory) expectBearer(w http.ResponseWriter, r *http.Request) bool {
	expected := strings.TrimSpace(d.opts.Token)
	if expected == "" {
		return true
	}
	if got := r.Header.Get("Authorization"); got != fmt.Sprintf("Bearer %s", expected) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func unescapeSegment(segment string) string {
	segment = strings.ReplaceAll(segment, "%2F", "/")
	return strings.ReplaceAll(segment, "%2f", "/")
}
