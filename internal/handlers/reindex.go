package handlers

import (
	"net/http"

	"clipvault/internal/logging"
	"clipvault/internal/reindexsse"
)

// TriggerReindex handles POST /api/reindex. When a scan is already in
// flight, the request is folded into it and reported as 202 Accepted
// rather than starting a redundant scan.
func (h *Handlers) TriggerReindex(w http.ResponseWriter, r *http.Request) {
	if token := h.config.HookToken; token != "" {
		if r.Header.Get("X-Hook-Token") != token {
			http.Error(w, "invalid hook token", http.StatusUnauthorized)
			return
		}
	}

	force := r.URL.Query().Get("force") == "true"
	started := h.indexer.TriggerReindex(force)

	w.Header().Set("Content-Type", "application/json")
	if !started {
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]string{
			"status":  "already_running",
			"message": "a scan is already in progress, this request was folded into it",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	writeJSON(w, map[string]string{
		"status":  "started",
		"message": "reindex started",
	})
}

// StreamReindex handles GET /api/reindex/stream, upgrading to
// Server-Sent Events for the duration of the current or next scan.
func (h *Handlers) StreamReindex(w http.ResponseWriter, r *http.Request) {
	if err := reindexsse.Stream(r.Context(), w, h.indexer); err != nil {
		logging.Debug("reindex stream ended: %v", err)
	}
}
