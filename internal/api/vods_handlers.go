package api

import (
	"fmt"
	"net/http"

	"streampulse/internal/enrich"
	"streampulse/internal/models"
	"streampulse/internal/storage"
)

// Vods handles GET /api/vods, paging the whole catalog most recent first.
func (h *Handler) Vods(w http.ResponseWriter, r *http.Request) {
	h.listVods(w, r, h.Store.Vods)
}

// VodByID routes /api/vods/{id} and the view counter subpath
// /api/vods/{id}/views.
func (h *Handler) VodByID(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/api/vods/")
	switch len(segments) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			h.getVod(w, r, segments[0])
		case http.MethodPut:
			h.updateVod(w, r, segments[0])
		case http.MethodDelete:
			h.deleteVod(w, r, segments[0])
		default:
			methodNotAllowed(w, r, "GET, PUT, DELETE")
		}
	case 2:
		if segments[1] != "views" {
			writeError(w, http.StatusNotFound, fmt.Errorf("unknown vod resource %q", segments[1]))
			return
		}
		h.incrementVodViews(w, r, segments[0])
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("invalid vod path"))
	}
}

func (h *Handler) getVod(w http.ResponseWriter, r *http.Request, id string) {
	vod, err := h.Store.GetVod(id)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vod)
}

type updateVodRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (h *Handler) updateVod(w http.ResponseWriter, r *http.Request, id string) {
	var payload updateVodRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid vod payload: %w", err))
		return
	}

	vod, err := h.Store.UpdateVod(id, storage.UpdateVodParams{
		Title:       payload.Title,
		Description: payload.Description,
	})
	if err != nil {
		writeStorageError(w, err)
		return
	}
	h.logger().Info("vod updated", "vod_id", vod.ID, "channel_id", vod.ChannelID)
	writeJSON(w, http.StatusOK, vod)
}

func (h *Handler) deleteVod(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.Store.DeleteVod(id); err != nil {
		writeStorageError(w, err)
		return
	}
	h.logger().Info("vod deleted", "vod_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) incrementVodViews(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	vod, err := h.Store.IncrementVodViews(id)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vodId": vod.ID,
		"views": vod.Views,
	})
}

func (h *Handler) vodsForChannel(w http.ResponseWriter, r *http.Request, channelID string) {
	h.listVods(w, r, func(offset, limit int) ([]models.Vod, int64, error) {
		return h.Store.VodsByChannel(channelID, offset, limit)
	})
}

func (h *Handler) vodForSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}

	vod, err := h.Store.VodBySession(sessionID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vod)
}

func (h *Handler) listVods(w http.ResponseWriter, r *http.Request, list func(offset, limit int) ([]models.Vod, int64, error)) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}

	page, size, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	vods, total, err := list(page*size, size)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enrich.Page[models.Vod]{
		Content:       vods,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    int((total + int64(size) - 1) / int64(size)),
	})
}
