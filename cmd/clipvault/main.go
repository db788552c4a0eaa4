// Main entry point for the media library server.
//
// It starts an HTTP server that provides:
//   - A filename-grammar filesystem index, kept current by a background scanner
//   - A grouped, paginated query API over the index
//   - Byte-range media serving and on-demand thumbnail generation
//   - Reindex control, including a Server-Sent Events progress stream
//
// Configuration is provided via environment variables; see
// internal/startup for the full list and defaults.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clipvault/internal/handlers"
	"clipvault/internal/indexer"
	"clipvault/internal/indexstore"
	"clipvault/internal/logging"
	"clipvault/internal/memory"
	"clipvault/internal/middleware"
	"clipvault/internal/query"
	"clipvault/internal/startup"
	"clipvault/internal/thumbnail"

	"github.com/gorilla/mux"
)

// thumbnailCleanupInterval is how often the cache-eviction sweep runs
// against the configured byte budget.
const thumbnailCleanupInterval = 15 * time.Minute

// metricsRefreshInterval is how often index/db/cache gauges are refreshed
// outside of the events that already update them.
const metricsRefreshInterval = 30 * time.Second

func main() {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	storeStart := time.Now()
	store, err := indexstore.Open(config.IndexDBPath)
	if err != nil {
		startup.LogFatal("Failed to initialize index store: %v", err)
	}
	startup.LogIndexStoreInit(time.Since(storeStart))

	for _, dir := range config.MediaDirs {
		if _, err := store.EnsureMediaDir(dir); err != nil {
			startup.LogFatal("Failed to register media directory %q: %v", dir, err)
		}
	}

	memConfig := memory.DefaultConfig()
	memConfig.MemoryLimitBytes = config.MemoryLimitBytes
	memConfig.HighWaterMark = config.MemoryRatio
	memConfig.CriticalWaterMark = config.MemoryRatio + (1-config.MemoryRatio)/2
	memMonitor := memory.NewMonitor(memConfig)
	memMonitor.Start()

	startup.LogThumbnailInit(config.ThumbnailsEnabled)
	thumbs := thumbnail.NewStore(
		config.ThumbnailDir,
		config.ThumbnailsEnabled,
		func(item indexstore.MediaItem) (string, error) {
			return indexstore.ResolveItemPath(store, item)
		},
		store.ItemExists,
		memMonitor,
	)

	startup.LogIndexerInit(config.IndexInterval)
	idx := indexer.New(store, config.MediaDirs, config.IndexInterval)
	go func() {
		if err := idx.Start(); err != nil {
			logging.Error("Failed to start indexer: %v", err)
		}
	}()
	startup.LogIndexerStarted()

	qe := query.New(store)

	h := handlers.New(store, idx, qe, thumbs, config)

	router := setupRouter(h, config)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggedHandler := middleware.Logger(loggingConfig)(router)

	metricsHandler := middleware.Metrics(middleware.DefaultMetricsConfig())(loggedHandler)

	compressionConfig := middleware.DefaultCompressionConfig()
	handler := middleware.Compression(compressionConfig)(metricsHandler)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // thumbnail/media streaming and SSE can run long
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", h.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:    ":" + config.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	stopMaintenance := make(chan struct{})
	go runMaintenanceLoop(store, thumbs, config.ThumbnailCacheMaxBytes, stopMaintenance)

	shutdownComplete := make(chan struct{})
	go handleShutdown(srv, metricsSrv, store, idx, memMonitor, stopMaintenance, shutdownComplete)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}

	<-shutdownComplete
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/resources", h.GetResources).Methods("GET")
	api.HandleFunc("/authors", h.GetAuthors).Methods("GET")
	api.HandleFunc("/tags", h.GetTagGroups).Methods("GET")
	api.HandleFunc("/reindex", h.TriggerReindex).Methods("POST")
	api.HandleFunc("/reindex/stream", h.StreamReindex).Methods("GET")
	api.HandleFunc("/config", h.GetConfig).Methods("GET")
	api.HandleFunc("/inspect", h.GetInspect).Methods("GET")
	api.HandleFunc("/delete", h.DeleteItem).Methods("DELETE")
	api.HandleFunc("/cache/status", h.GetCacheStatus).Methods("GET")
	api.HandleFunc("/cache/clear", h.ClearCache).Methods("POST")

	r.HandleFunc("/media/{id}", h.GetMedia).Methods("GET")
	r.HandleFunc("/thumb/{id}", h.GetImageThumbnail).Methods("GET")
	r.HandleFunc("/vthumb/{id}", h.GetVideoThumbnail).Methods("GET")

	if !config.MetricsEnabled {
		// Expose on the main port too when the dedicated metrics port is off,
		// so scrapers configured against the app port still find it.
		r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	}

	staticDir := "./static"
	if _, err := os.Stat(staticDir); err == nil {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	}

	return r
}

// runMaintenanceLoop periodically refreshes Prometheus gauges and evicts
// thumbnails beyond the configured cache budget.
func runMaintenanceLoop(store *indexstore.Store, thumbs *thumbnail.Store, maxCacheBytes int64, stop <-chan struct{}) {
	metricsTicker := time.NewTicker(metricsRefreshInterval)
	defer metricsTicker.Stop()
	cleanupTicker := time.NewTicker(thumbnailCleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-metricsTicker.C:
			store.UpdateIndexMetrics()
			store.UpdateDBMetrics()
			thumbs.UpdateCacheMetrics()
		case <-cleanupTicker.C:
			if maxCacheBytes <= 0 {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			removed, freed, err := thumbs.Cleanup(ctx, maxCacheBytes)
			cancel()
			if err != nil {
				logging.Warn("thumbnail cache cleanup: %v", err)
			} else if removed > 0 {
				logging.Info("thumbnail cache cleanup: removed %d files, freed %d bytes", removed, freed)
			}
		case <-stop:
			return
		}
	}
}

func handleShutdown(srv, metricsSrv *http.Server, store *indexstore.Store, idx *indexer.Indexer, memMonitor *memory.Monitor, stopMaintenance chan<- struct{}, done chan<- struct{}) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	close(stopMaintenance)

	startup.LogShutdownStep("Stopping indexer")
	idx.Stop()
	startup.LogShutdownStepComplete("Indexer stopped")

	startup.LogShutdownStep("Stopping memory monitor")
	memMonitor.Stop()
	startup.LogShutdownStepComplete("Memory monitor stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Closing index store")
	if err := store.Close(); err != nil {
		logging.Warn("Index store close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Index store closed")
	}

	startup.LogShutdownComplete()
}
