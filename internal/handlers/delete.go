package handlers

import (
	"net/http"
	"os"
	"strconv"

	"clipvault/internal/logging"
)

// DeleteItem handles DELETE /api/delete?id=N: a thin unlink of the source
// file plus its index row, with no confirmation workflow and no trash/undo.
// Deleting an id whose file is already gone is not an error.
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	item, found, err := h.store.GetItem(id)
	if err != nil {
		writeJSONError(w, "failed to look up item", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if path, resolveErr := h.resolvePath(item); resolveErr == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logging.Warn("delete item %d: remove %s: %v", id, path, err)
			writeJSONError(w, "failed to remove source file", http.StatusInternalServerError)
			return
		}
	}

	if err := h.store.DeleteItem(id); err != nil {
		writeJSONError(w, "failed to remove index entry", http.StatusInternalServerError)
		return
	}

	if err := h.thumbs.Invalidate(id); err != nil {
		logging.Warn("delete item %d: invalidate thumbnails: %v", id, err)
	}

	writeJSONStatus(w, "deleted")
}
