package api

import (
	"fmt"
	"io"
	"net/http"

	"streampulse/internal/lifecycle"
)

// maxEventBody bounds webhook payload reads. Provider notifications are a few
// hundred bytes.
const maxEventBody = 64 * 1024

type eventAck struct {
	Outcome lifecycle.Outcome `json:"outcome"`
}

// LifecycleEvents handles POST /events/lifecycle. The provider retries on
// non-2xx responses, so every well-formed notification is acknowledged with
// 200 regardless of how it was handled; only malformed payloads earn a 400.
func (h *Handler) LifecycleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	body, err := readEventBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	event, err := lifecycle.ParseLifecycleEvent(body)
	if err != nil {
		h.recorder().ObserveWebhookEvent("unknown", string(lifecycle.OutcomeError))
		writeError(w, http.StatusBadRequest, err)
		return
	}

	outcome, err := h.Correlator.HandleLifecycle(r.Context(), event)
	h.recorder().ObserveWebhookEvent(event.Kind.String(), string(outcome))
	if err != nil {
		h.logger().Error("lifecycle event failed",
			"kind", event.Kind.String(),
			"provider_session_id", event.ProviderSessionID,
			"error", err)
	}
	writeJSON(w, http.StatusOK, eventAck{Outcome: outcome})
}

// RecordingEvents handles POST /events/recording with the same
// acknowledgement contract as LifecycleEvents.
func (h *Handler) RecordingEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	body, err := readEventBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	event, err := lifecycle.ParseRecordingEvent(body)
	if err != nil {
		h.recorder().ObserveWebhookEvent("unknown", string(lifecycle.OutcomeError))
		writeError(w, http.StatusBadRequest, err)
		return
	}

	outcome, err := h.Correlator.HandleRecording(r.Context(), event)
	h.recorder().ObserveWebhookEvent(event.Kind.String(), string(outcome))
	if err != nil {
		h.logger().Error("recording event failed",
			"kind", event.Kind.String(),
			"provider_session_id", event.ProviderSessionID,
			"error", err)
	}
	writeJSON(w, http.StatusOK, eventAck{Outcome: outcome})
}

func readEventBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, fmt.Errorf("request body is required")
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody+1))
	if err != nil {
		return nil, fmt.Errorf("read event body: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("request body is required")
	}
	if len(body) > maxEventBody {
		return nil, fmt.Errorf("event body exceeds %d bytes", maxEventBody)
	}
	return body, nil
}
