package handler

import (
	"net/http"
)

// ConnChecker reports broker connectivity for readiness checks.
type ConnChecker interface {
	IsConnected() bool
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	broker ConnChecker
}

// NewHealthHandler creates a health handler. broker may be nil when the
// service runs without an external broker.
func NewHealthHandler(broker ConnChecker) *HealthHandler {
	return &HealthHandler{broker: broker}
}

// Live handles GET /healthz.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /readyz.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.broker != nil && !h.broker.IsConnected() {
		writeError(w, http.StatusServiceUnavailable, "broker disconnected")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
