package handlers

import "net/http"

// configSnapshot is a read-only view of the active configuration. There is
// no write endpoint and nothing here is persisted — the environment is the
// only source of truth.
type configSnapshot struct {
	MediaDirs              []string `json:"mediaDirs"`
	IndexInterval          string   `json:"indexInterval"`
	IndexDirMtimeOpt       bool     `json:"indexDirMtimeOpt"`
	ThumbnailsEnabled      bool     `json:"thumbnailsEnabled"`
	ThumbnailWorkers       int      `json:"thumbnailWorkers,omitempty"`
	VThumbWorkers          int      `json:"vthumbWorkers,omitempty"`
	ThumbnailCacheMaxBytes int64    `json:"thumbnailCacheMaxBytes,omitempty"`
	MetricsEnabled         bool     `json:"metricsEnabled"`
	HookTokenConfigured    bool     `json:"hookTokenConfigured"`
}

// GetConfig handles GET /api/config.
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.config
	snapshot := configSnapshot{
		MediaDirs:              cfg.MediaDirs,
		IndexInterval:          cfg.IndexInterval.String(),
		IndexDirMtimeOpt:       cfg.IndexMtimeOpt,
		ThumbnailsEnabled:      cfg.ThumbnailsEnabled,
		ThumbnailWorkers:       cfg.ThumbnailWorkers,
		VThumbWorkers:          cfg.VThumbWorkers,
		ThumbnailCacheMaxBytes: cfg.ThumbnailCacheMaxBytes,
		MetricsEnabled:         cfg.MetricsEnabled,
		HookTokenConfigured:    cfg.HookToken != "",
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, snapshot)
}
