package handlers

import (
	"net/http"
)

// Healthz reports process liveness.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports readiness: the scheduler has published a snapshot and
// the transaction log store answers.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.sched.Snapshot() == nil {
		httpError(w, http.StatusServiceUnavailable, "scheduler not ready")
		return
	}
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			h.logger.ErrorContext(r.Context(), "storage ping failed", "error", err)
			httpError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	respondJson(w, http.StatusOK, map[string]string{"status": "ready"})
}
