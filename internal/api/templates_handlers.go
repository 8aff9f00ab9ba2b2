package api

import (
	"fmt"
	"net/http"

	"streampulse/internal/models"
	"streampulse/internal/storage"
)

type templateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// TemplateByChannel routes /api/templates/{channelId}. Owners manage their
// channel's default stream settings here; the lifecycle path reads them when
// a session starts.
func (h *Handler) TemplateByChannel(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/api/templates/")
	if len(segments) != 1 {
		writeError(w, http.StatusNotFound, fmt.Errorf("invalid template path"))
		return
	}
	channelID := segments[0]

	switch r.Method {
	case http.MethodGet:
		h.getTemplate(w, r, channelID)
	case http.MethodPut:
		h.putTemplate(w, r, channelID)
	case http.MethodDelete:
		h.deleteTemplate(w, r, channelID)
	default:
		methodNotAllowed(w, r, "GET, PUT, DELETE")
	}
}

func (h *Handler) getTemplate(w http.ResponseWriter, _ *http.Request, channelID string) {
	template, err := h.Store.TemplateByChannel(channelID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, template)
}

func (h *Handler) putTemplate(w http.ResponseWriter, r *http.Request, channelID string) {
	var req templateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	category := models.CategoryOther
	if req.Category != "" {
		parsed, err := models.ParseCategory(req.Category)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		category = parsed
	}

	template, err := h.Store.UpsertTemplate(storage.UpsertTemplateParams{
		ChannelID:   channelID,
		Title:       req.Title,
		Description: req.Description,
		Category:    category,
	})
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, template)
}

func (h *Handler) deleteTemplate(w http.ResponseWriter, _ *http.Request, channelID string) {
	if err := h.Store.DeleteTemplate(channelID); err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type categoryInfo struct {
	ID          models.Category `json:"id"`
	DisplayName string          `json:"displayName"`
}

// Categories handles GET /api/categories, listing every stream category the
// service accepts.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}

	categories := models.Categories()
	payload := make([]categoryInfo, 0, len(categories))
	for _, category := range categories {
		payload = append(payload, categoryInfo{
			ID:          category,
			DisplayName: category.DisplayName(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"categories": payload})
}
