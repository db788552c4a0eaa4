package handlers

import (
	"net/http"
	"runtime"

	"clipvault/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	Ready       bool   `json:"ready"`
	Version     string `json:"version"`
	Indexing    bool   `json:"indexing"`
	LastIndexed string `json:"lastIndexed,omitempty"`
	LastError   string `json:"lastError,omitempty"`

	FilesSeen    int64 `json:"filesSeen"`
	FilesUpdated int64 `json:"filesUpdated"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	ItemsByKind map[string]int `json:"itemsByKind,omitempty"`
	TagCount    int            `json:"tagCount,omitempty"`
}

// HealthCheck returns the health status of the service.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	progress := h.indexer.Progress()
	ready := !progress.Running

	response := HealthResponse{
		Ready:        ready,
		Version:      startup.Version,
		Indexing:     progress.Running,
		FilesSeen:    progress.FilesSeen,
		FilesUpdated: progress.FilesUpdated,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if ready {
		response.Status = statusHealthy
	} else {
		response.Status = statusStarting
	}

	if !progress.FinishedAt.IsZero() {
		response.LastIndexed = progress.FinishedAt.Format("2006-01-02T15:04:05Z07:00")
	}

	if progress.LastError != "" {
		response.LastError = progress.LastError
		response.Status = statusDegraded
	}

	if itemsByKind, tagCount, err := h.store.Stats(); err == nil {
		response.ItemsByKind = itemsByKind
		response.TagCount = tagCount
	}

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if the
// process is running).
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 once the index store answers a Stats query,
// and 503 otherwise. A running scan does not affect readiness.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, _, err := h.store.Stats(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{"status": "not_ready"})
		return
	}
	w.WriteHeader(http.StatusOK)
	writeJSON(w, map[string]string{"status": "ready"})
}
