package api

import (
	"fmt"
	"net/http"

	"streampulse/internal/models"
)

// Sessions handles GET /api/sessions, listing every live session.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}

	sessions, err := h.Enrich.LiveSessions(r.Context())
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// PopularSessions handles GET /api/sessions/popular, listing finished
// sessions across all channels ordered by viewer count.
func (h *Handler) PopularSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}

	page, size, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.Enrich.PopularFinished(r.Context(), page, size)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SessionByID routes /api/sessions/{id}, the viewer counter subpaths
// /api/sessions/{id}/viewers and /api/sessions/{id}/viewers/{increment|decrement},
// and the recording lookup /api/sessions/{id}/vod.
func (h *Handler) SessionByID(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/api/sessions/")
	switch len(segments) {
	case 1:
		if segments[0] == "popular" {
			h.PopularSessions(w, r)
			return
		}
		h.getSession(w, r, segments[0])
	case 2:
		switch segments[1] {
		case "viewers":
			h.getViewers(w, r, segments[0])
		case "vod":
			h.vodForSession(w, r, segments[0])
		default:
			writeError(w, http.StatusNotFound, fmt.Errorf("unknown session resource %q", segments[1]))
		}
	case 3:
		if segments[1] != "viewers" {
			writeError(w, http.StatusNotFound, fmt.Errorf("unknown session resource %q", segments[1]))
			return
		}
		h.adjustViewers(w, r, segments[0], segments[2])
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("invalid session path"))
	}
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}

	session, err := h.Enrich.SessionByID(r.Context(), id)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) getViewers(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}

	session, err := h.Store.GetSession(id)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": session.ID,
		"viewers":   session.Viewers,
	})
}

func (h *Handler) adjustViewers(w http.ResponseWriter, r *http.Request, id, direction string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var adjust func(string) (models.Session, error)
	switch direction {
	case "increment":
		adjust = h.Store.IncrementViewers
	case "decrement":
		adjust = h.Store.DecrementViewers
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown viewer operation %q", direction))
		return
	}

	session, err := adjust(id)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
