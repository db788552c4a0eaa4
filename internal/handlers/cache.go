package handlers

import "net/http"

// GetCacheStatus handles GET /api/cache/status.
func (h *Handlers) GetCacheStatus(w http.ResponseWriter, _ *http.Request) {
	h.thumbs.UpdateCacheMetrics()
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status": "see /metrics for clipvault_thumbnail_cache_size_bytes and clipvault_thumbnail_cache_count",
	})
}

// ClearCache handles POST /api/cache/clear: a sweep with no byte budget, so
// only orphaned artifacts (source item no longer indexed) are removed.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	removed, freed, err := h.thumbs.Cleanup(r.Context(), 0)
	if err != nil {
		writeJSONError(w, "failed to clear thumbnail cache", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"status":     "ok",
		"removed":    removed,
		"freedBytes": freed,
	})
}
