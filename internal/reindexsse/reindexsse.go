// Package reindexsse streams indexer progress to HTTP clients as
// Server-Sent Events. There is no SSE library in the dependency set, so
// this is implemented directly against net/http the way the teacher
// implements its other raw-protocol handlers (chunked video streaming)
// rather than reaching for a wrapper.
package reindexsse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"clipvault/internal/indexer"
	"clipvault/internal/logging"
	"clipvault/internal/metrics"
	"clipvault/internal/streaming"
)

// pollInterval is how often the stream re-checks Indexer.Progress for a
// new tick to emit.
const pollInterval = 500 * time.Millisecond

type event struct {
	FilesSeen    int64  `json:"filesSeen"`
	FilesUpdated int64  `json:"filesUpdated"`
	Dir          string `json:"dir"`
	Done         bool   `json:"done"`
	Error        string `json:"error,omitempty"`
}

// Stream writes one JSON-encoded progress event per tick of ix's progress
// until the scan it is currently tracking finishes, then writes a terminal
// done:true event and returns. If no scan is running when the client
// connects, it emits a single already-done event immediately.
func Stream(ctx context.Context, w http.ResponseWriter, ix *indexer.Indexer) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	metrics.ReindexStreamClients.Inc()
	defer metrics.ReindexStreamClients.Dec()

	// A scan can legitimately run for minutes without a progress change, so
	// only the write itself is timeout-guarded; idle detection between
	// events would cut off a slow directory walk for no reason.
	writerConfig := streaming.DefaultTimeoutWriterConfig()
	writerConfig.IdleTimeout = 0
	tw := streaming.NewTimeoutWriter(ctx, w, writerConfig)
	defer tw.Close()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastSeen, lastUpdated int64
	var lastDir string

	for {
		p := ix.Progress()
		changed := p.FilesSeen != lastSeen || p.FilesUpdated != lastUpdated || p.CurrentDir != lastDir
		done := !p.Running

		if changed || done {
			lastSeen, lastUpdated, lastDir = p.FilesSeen, p.FilesUpdated, p.CurrentDir
			if err := writeEvent(tw, event{
				FilesSeen:    p.FilesSeen,
				FilesUpdated: p.FilesUpdated,
				Dir:          p.CurrentDir,
				Done:         done,
				Error:        p.LastError,
			}); err != nil {
				return err
			}
			flusher.Flush()
			metrics.ReindexStreamEventsTotal.Inc()
		}

		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func writeEvent(w io.Writer, e event) error {
	body, err := json.Marshal(e)
	if err != nil {
		logging.Error("marshal reindex sse event: %v", err)
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", body)
	return err
}
