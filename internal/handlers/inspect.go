package handlers

import "net/http"

// Inspector would perform MP4 container deep-inspection (codec, resolution,
// key-frame layout). The interface is intentionally not implemented — a
// non-goal of this build — so the endpoint reports that plainly rather than
// faking a result.
type Inspector interface {
	Inspect(path string) (map[string]interface{}, error)
}

// GetInspect handles GET /api/inspect.
func (h *Handlers) GetInspect(w http.ResponseWriter, _ *http.Request) {
	writeJSONError(w, "container inspection is not implemented", http.StatusNotImplemented)
}
