package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// WebhookEventLabel identifies a processed webhook event by its kind and the
// outcome of handling it (e.g. "created", "ignored", "duplicate", "error").
type WebhookEventLabel struct {
	Kind    string
	Outcome string
}

// Recorder aggregates in-memory metrics counters and gauges for HTTP requests,
// webhook lifecycle events, directory lookups, and deferred enrichment. It
// coordinates concurrent writers via a RWMutex while exposing thread-safe
// gauges for live-session tracking.
type Recorder struct {
	mu                sync.RWMutex
	requestCount      map[requestLabel]uint64
	requestDuration   map[requestLabel]time.Duration
	webhookEvents     map[WebhookEventLabel]uint64
	directoryLookups  map[string]uint64
	directoryFailures map[string]uint64
	enrichmentEvents  map[string]uint64
	liveSessions      atomic.Int64
	pendingThumbnails atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers can
// immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:      make(map[requestLabel]uint64),
		requestDuration:   make(map[requestLabel]time.Duration),
		webhookEvents:     make(map[WebhookEventLabel]uint64),
		directoryLookups:  make(map[string]uint64),
		directoryFailures: make(map[string]uint64),
		enrichmentEvents:  make(map[string]uint64),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveWebhookEvent records one processed webhook event by kind and outcome.
func (r *Recorder) ObserveWebhookEvent(kind, outcome string) {
	label := WebhookEventLabel{
		Kind:    normalizeName(kind),
		Outcome: normalizeName(outcome),
	}
	r.mu.Lock()
	r.webhookEvents[label]++
	r.mu.Unlock()
}

// SessionStarted increments the live session gauge.
func (r *Recorder) SessionStarted() {
	r.liveSessions.Add(1)
}

// SessionEnded decrements the live session gauge, guarding against negative
// counts when concurrent updates race.
func (r *Recorder) SessionEnded() {
	r.decrementGauge(&r.liveSessions)
}

// LiveSessions exposes the current gauge of concurrently live sessions.
func (r *Recorder) LiveSessions() int64 {
	return r.liveSessions.Load()
}

// ObserveDirectoryLookup records a directory round trip keyed by operation
// name (e.g. "resolve", "batch_resolve").
func (r *Recorder) ObserveDirectoryLookup(operation string) {
	op := normalizeName(operation)
	r.mu.Lock()
	r.directoryLookups[op]++
	r.mu.Unlock()
}

// ObserveDirectoryFailure records a failed directory round trip keyed by
// operation name. The caller should also record the lookup separately.
func (r *Recorder) ObserveDirectoryFailure(operation string) {
	op := normalizeName(operation)
	r.mu.Lock()
	r.directoryFailures[op]++
	r.mu.Unlock()
}

// ObserveEnrichment records a deferred enrichment event ("scheduled",
// "applied", or "dropped").
func (r *Recorder) ObserveEnrichment(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.enrichmentEvents[normalized]++
	r.mu.Unlock()
}

// SetPendingThumbnails publishes the current depth of the deferred thumbnail
// queue.
func (r *Recorder) SetPendingThumbnails(count int) {
	if count < 0 {
		count = 0
	}
	r.pendingThumbnails.Store(int64(count))
}

// WebhookEventCounts returns a copy of the webhook event counters for testing
// and reporting purposes.
func (r *Recorder) WebhookEventCounts() map[WebhookEventLabel]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[WebhookEventLabel]uint64, len(r.webhookEvents))
	for label, count := range r.webhookEvents {
		counts[label] = count
	}
	return counts
}

// EnrichmentCounts returns a copy of the enrichment event counters.
func (r *Recorder) EnrichmentCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]uint64, len(r.enrichmentEvents))
	for event, count := range r.enrichmentEvents {
		counts[event] = count
	}
	return counts
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.webhookEvents = make(map[WebhookEventLabel]uint64)
	r.directoryLookups = make(map[string]uint64)
	r.directoryFailures = make(map[string]uint64)
	r.enrichmentEvents = make(map[string]uint64)
	r.liveSessions.Store(0)
	r.pendingThumbnails.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting label
// sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	webhookLabels := r.sortedWebhookLabels()
	directoryOps := r.sortedDirectoryOperations()
	enrichmentEvents := r.sortedEnrichmentEvents()

	fmt.Fprintln(w, "# HELP streampulse_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE streampulse_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "streampulse_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP streampulse_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE streampulse_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "streampulse_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP streampulse_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE streampulse_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "streampulse_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP streampulse_webhook_events_total Webhook events by kind and outcome")
	fmt.Fprintln(w, "# TYPE streampulse_webhook_events_total counter")
	for _, label := range webhookLabels {
		count := r.webhookEvents[label]
		fmt.Fprintf(w, "streampulse_webhook_events_total{kind=\"%s\",outcome=\"%s\"} %d\n", label.Kind, label.Outcome, count)
	}

	fmt.Fprintln(w, "# HELP streampulse_live_sessions Current number of sessions marked as live")
	fmt.Fprintln(w, "# TYPE streampulse_live_sessions gauge")
	fmt.Fprintf(w, "streampulse_live_sessions %d\n", r.liveSessions.Load())

	fmt.Fprintln(w, "# HELP streampulse_directory_lookups_total Directory round trips by operation")
	fmt.Fprintln(w, "# TYPE streampulse_directory_lookups_total counter")
	for _, op := range directoryOps {
		count := r.directoryLookups[op]
		fmt.Fprintf(w, "streampulse_directory_lookups_total{operation=\"%s\"} %d\n", op, count)
	}

	fmt.Fprintln(w, "# HELP streampulse_directory_failures_total Failed directory round trips by operation")
	fmt.Fprintln(w, "# TYPE streampulse_directory_failures_total counter")
	for _, op := range directoryOps {
		count := r.directoryFailures[op]
		fmt.Fprintf(w, "streampulse_directory_failures_total{operation=\"%s\"} %d\n", op, count)
	}

	fmt.Fprintln(w, "# HELP streampulse_enrichment_events_total Deferred enrichment events by type")
	fmt.Fprintln(w, "# TYPE streampulse_enrichment_events_total counter")
	for _, event := range enrichmentEvents {
		count := r.enrichmentEvents[event]
		fmt.Fprintf(w, "streampulse_enrichment_events_total{event=\"%s\"} %d\n", event, count)
	}

	fmt.Fprintln(w, "# HELP streampulse_pending_thumbnails Current depth of the deferred thumbnail queue")
	fmt.Fprintln(w, "# TYPE streampulse_pending_thumbnails gauge")
	fmt.Fprintf(w, "streampulse_pending_thumbnails %d\n", r.pendingThumbnails.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedWebhookLabels() []WebhookEventLabel {
	labels := make([]WebhookEventLabel, 0, len(r.webhookEvents))
	for label := range r.webhookEvents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Kind != labels[j].Kind {
			return labels[i].Kind < labels[j].Kind
		}
		return labels[i].Outcome < labels[j].Outcome
	})
	return labels
}

func (r *Recorder) sortedDirectoryOperations() []string {
	seen := make(map[string]struct{}, len(r.directoryLookups)+len(r.directoryFailures))
	for op := range r.directoryLookups {
		seen[op] = struct{}{}
	}
	for op := range r.directoryFailures {
		seen[op] = struct{}{}
	}
	ops := make([]string, 0, len(seen))
	for op := range seen {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

func (r *Recorder) sortedEnrichmentEvents() []string {
	events := make([]string, 0, len(r.enrichmentEvents))
	for event := range r.enrichmentEvents {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
			continue
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return strings.ReplaceAll(normalized, " ", "_")
}
