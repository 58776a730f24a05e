package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/toran-bot/engage/internal/engine"
	"github.com/toran-bot/engage/internal/lane"
	"github.com/toran-bot/engage/internal/model"
)

// EventHandler receives platform webhook deliveries.
type EventHandler struct {
	engine *engine.Engine
}

// NewEventHandler creates an event handler.
func NewEventHandler(eng *engine.Engine) *EventHandler {
	return &EventHandler{engine: eng}
}

type eventRequest struct {
	EventID        string    `json:"event_id"`
	ChatID         string    `json:"chat_id"`
	UserID         string    `json:"user_id"`
	Timestamp      time.Time `json:"timestamp"`
	MentionsBot    bool      `json:"mentions_bot"`
	MentionsOthers bool      `json:"mentions_others"`
	Text           string    `json:"text"`
	ImageRefs      []string  `json:"image_refs"`
	IsCommand      bool      `json:"is_command"`
}

// Receive handles POST /events. Duplicates get 409 so redeliveries are
// visibly dropped; store outages get 503 so the platform redelivers.
func (h *EventHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventID == "" || req.ChatID == "" {
		writeError(w, http.StatusBadRequest, "event_id and chat_id are required")
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	err := h.engine.HandleEvent(r.Context(), model.InboundMessage{
		EventID:        req.EventID,
		ChatID:         req.ChatID,
		UserID:         req.UserID,
		Timestamp:      req.Timestamp,
		MentionsBot:    req.MentionsBot,
		MentionsOthers: req.MentionsOthers,
		Text:           req.Text,
		ImageRefs:      req.ImageRefs,
		IsCommand:      req.IsCommand,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, engine.ErrDuplicateEvent):
		writeJSON(w, http.StatusConflict, map[string]string{"status": "duplicate"})
	case errors.Is(err, engine.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store unavailable, retry later")
	case errors.Is(err, lane.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "chat queue full, retry later")
	default:
		writeError(w, http.StatusInternalServerError, "event processing failed")
	}
}

type memberJoinedRequest struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

// MemberJoined handles POST /events/member-joined.
func (h *EventHandler) MemberJoined(w http.ResponseWriter, r *http.Request) {
	var req memberJoinedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChatID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "chat_id and user_id are required")
		return
	}

	err := h.engine.HandleMemberJoined(r.Context(), req.ChatID, req.UserID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, engine.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store unavailable, retry later")
	default:
		writeError(w, http.StatusInternalServerError, "event processing failed")
	}
}
