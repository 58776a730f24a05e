package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/toran-bot/engage/internal/command"
	"github.com/toran-bot/engage/internal/engine"
	"github.com/toran-bot/engage/internal/model"
)

// ChatHandler exposes per-chat management and diagnostics.
type ChatHandler struct {
	engine *engine.Engine
}

// NewChatHandler creates a chat handler.
func NewChatHandler(eng *engine.Engine) *ChatHandler {
	return &ChatHandler{engine: eng}
}

// GetState handles GET /chats/{chatID}/state.
func (h *ChatHandler) GetState(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	snap, err := h.engine.Snapshot(r.Context(), chatID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type settingsRequest struct {
	Threshold *float64 `json:"threshold,omitempty"`
	Mode      *string  `json:"mode,omitempty"`
}

// UpdateSettings handles PUT /chats/{chatID}/settings.
func (h *ChatHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Threshold == nil && req.Mode == nil {
		writeError(w, http.StatusBadRequest, "threshold or mode required")
		return
	}

	if req.Threshold != nil {
		if err := h.engine.SetThreshold(r.Context(), chatID, *req.Threshold); err != nil {
			h.writeEngineError(w, err)
			return
		}
	}
	if req.Mode != nil {
		if err := h.engine.SetMode(r.Context(), chatID, model.Mode(*req.Mode)); err != nil {
			h.writeEngineError(w, err)
			return
		}
	}

	snap, err := h.engine.Snapshot(r.Context(), chatID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type optOutRequest struct {
	UserID   string `json:"user_id"`
	OptedOut bool   `json:"opted_out"`
}

// OptOut handles POST /chats/{chatID}/optout.
func (h *ChatHandler) OptOut(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	var req optOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.OptOut(r.Context(), chatID, req.UserID, req.OptedOut); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Reset handles POST /chats/{chatID}/reset.
func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	if err := h.engine.ResetChat(r.Context(), chatID); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type summaryRequest struct {
	Period string `json:"period"`
}

// Summarize handles POST /chats/{chatID}/summary.
func (h *ChatHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.ManualSummary(r.Context(), chatID, model.Period(req.Period)); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Diagnostics handles GET /diagnostics.
func (h *ChatHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_lanes": h.engine.Lanes(),
	})
}

func (h *ChatHandler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, command.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store unavailable, retry later")
	default:
		writeError(w, http.StatusInternalServerError, "request failed")
	}
}
