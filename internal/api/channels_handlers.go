package api

import (
	"fmt"
	"net/http"
)

// ChannelByID routes /api/channels/{channelId}/live,
// /api/channels/{channelId}/sessions, and /api/channels/{channelId}/vods.
func (h *Handler) ChannelByID(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/api/channels/")
	if len(segments) != 2 {
		writeError(w, http.StatusNotFound, fmt.Errorf("invalid channel path"))
		return
	}
	channelID := segments[0]

	switch segments[1] {
	case "live":
		h.liveSessionForChannel(w, r, channelID)
	case "sessions":
		h.finishedSessionsForChannel(w, r, channelID)
	case "vods":
		h.vodsForChannel(w, r, channelID)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown channel resource %q", segments[1]))
	}
}

func (h *Handler) liveSessionForChannel(w http.ResponseWriter, r *http.Request, channelID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}

	session, err := h.Enrich.LiveSessionByChannel(r.Context(), channelID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) finishedSessionsForChannel(w http.ResponseWriter, r *http.Request, channelID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}

	page, size, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.Enrich.FinishedByChannel(r.Context(), channelID, page, size)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
