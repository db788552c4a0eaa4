package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"clipvault/internal/filesystem"
	"clipvault/internal/indexstore"
	"clipvault/internal/logging"
	"clipvault/internal/mediatypes"
	"clipvault/internal/metrics"
	"clipvault/internal/parser"
	"clipvault/internal/tags"

	"github.com/fsnotify/fsnotify"
)

// Progress is a point-in-time snapshot of an in-progress or just-finished
// scan, published for consumption by the reindex SSE stream.
type Progress struct {
	Running        bool
	FilesSeen      int64
	FilesUpdated   int64
	CurrentDir     string
	StartedAt      time.Time
	FinishedAt     time.Time
	LastError      string
}

// Indexer walks every configured media directory and reconciles the
// result into an indexstore.Store.
type Indexer struct {
	store    *indexstore.Store
	dirs     []string
	interval time.Duration
	mtimeOpt bool

	mu             sync.Mutex
	running        bool
	rerunRequested bool
	forceRequested bool

	filesSeen    atomic.Int64
	filesUpdated atomic.Int64
	progress     atomic.Value // Progress

	runID atomic.Int64

	stopCh  chan struct{}
	watcher *fsnotify.Watcher
}

// New creates an Indexer over dirs, re-scanning every interval in
// addition to any explicitly triggered runs.
func New(store *indexstore.Store, dirs []string, interval time.Duration) *Indexer {
	ix := &Indexer{
		store:    store,
		dirs:     dirs,
		interval: interval,
		mtimeOpt: mtimeOptEnabled(),
		stopCh:   make(chan struct{}),
	}
	ix.progress.Store(Progress{})
	return ix
}

func mtimeOptEnabled() bool {
	v := os.Getenv("INDEX_DIR_MTIME_OPT")
	return v == "" || v == "true" || v == "1"
}

// Start launches the initial scan, the periodic re-scan loop, and the
// optional fsnotify watch augmentation.
func (ix *Indexer) Start() error {
	ix.TriggerReindex(false)
	go ix.periodicLoop()
	go ix.watchLoop()
	return nil
}

// Stop halts the periodic loop and filesystem watcher. It does not
// interrupt a scan already in progress.
func (ix *Indexer) Stop() {
	close(ix.stopCh)
	if ix.watcher != nil {
		if err := ix.watcher.Close(); err != nil {
			logging.Warn("closing file watcher: %v", err)
		}
	}
}

// TriggerReindex requests a scan. If one is already running, the request
// is coalesced into a single extra run once the current one finishes
// rather than queued. It reports whether this call started a new scan
// goroutine (false means the request was folded into a running scan).
func (ix *Indexer) TriggerReindex(force bool) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.running {
		ix.rerunRequested = true
		if force {
			ix.forceRequested = true
		}
		metrics.IndexerRunsCoalesced.Inc()
		return false
	}

	ix.running = true
	go ix.runLoop(force)
	return true
}

// Progress returns the most recent scan snapshot.
func (ix *Indexer) Progress() Progress {
	if p, ok := ix.progress.Load().(Progress); ok {
		return p
	}
	return Progress{}
}

func (ix *Indexer) runLoop(force bool) {
	for {
		ix.runOnce(force)

		ix.mu.Lock()
		if !ix.rerunRequested {
			ix.running = false
			ix.mu.Unlock()
			return
		}
		force = ix.forceRequested
		ix.rerunRequested = false
		ix.forceRequested = false
		ix.mu.Unlock()
	}
}

func (ix *Indexer) runOnce(force bool) {
	runID := ix.runID.Add(1)
	start := time.Now()

	metrics.IndexerIsRunning.Set(1)
	defer metrics.IndexerIsRunning.Set(0)
	metrics.IndexerRunsTotal.Inc()

	ix.filesSeen.Store(0)
	ix.filesUpdated.Store(0)
	ix.publishProgress(true, start, time.Time{}, "", nil)

	logging.Info("starting index run %d over %d director%s", runID, len(ix.dirs), plural(len(ix.dirs)))

	var lastErr error
	for _, root := range ix.dirs {
		if err := ix.scanRoot(root, runID, force); err != nil {
			logging.Error("scanning %s: %v", root, err)
			metrics.IndexerErrors.Inc()
			lastErr = err
		}
	}

	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	finished := time.Now()
	ix.publishProgress(false, start, finished, "", lastErr)

	metrics.IndexerLastRunTimestamp.Set(float64(finished.Unix()))
	metrics.IndexerLastRunDuration.Set(finished.Sub(start).Seconds())
	metrics.IndexerFilesProcessed.Add(float64(ix.filesSeen.Load()))

	if err := ix.store.SetMeta("last_run_id", fmt.Sprintf("%d", runID)); err != nil {
		logging.Warn("recording last_run_id: %v", err)
	}

	logging.Info("index run %d complete: %d files seen, %d updated, in %v (err=%s)",
		runID, ix.filesSeen.Load(), ix.filesUpdated.Load(), finished.Sub(start), errMsg)
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

func (ix *Indexer) publishProgress(running bool, started, finished time.Time, currentDir string, err error) {
	p := Progress{
		Running:      running,
		FilesSeen:    ix.filesSeen.Load(),
		FilesUpdated: ix.filesUpdated.Load(),
		CurrentDir:   currentDir,
		StartedAt:    started,
		FinishedAt:   finished,
	}
	if err != nil {
		p.LastError = err.Error()
	}
	ix.progress.Store(p)
}

func (ix *Indexer) scanRoot(root string, runID int64, force bool) error {
	dirID, err := ix.store.EnsureMediaDir(root)
	if err != nil {
		return fmt.Errorf("ensure media dir %s: %w", root, err)
	}

	seen := make(map[string]struct{})
	if err := ix.scanDir(dirID, root, "", runID, force, seen); err != nil {
		return err
	}

	deleted, err := ix.store.DeleteMissing(dirID, seen, runID)
	if err != nil {
		return fmt.Errorf("delete missing under %s: %w", root, err)
	}
	if deleted > 0 {
		logging.Info("removed %d entries no longer present under %s", deleted, root)
	}
	return nil
}

type pendingTags struct {
	itemID int64
	tags   []string
}

type pendingTypes struct {
	itemID int64
	types  []string
}

// scanDir processes one directory, recursing into subdirectories before
// returning. relDir is relative to root ("" for the root itself). Every
// file name that parses under the filename grammar (whether or not the
// directory's contents were re-indexed) is added to seen so DeleteMissing
// never drops an unchanged file.
func (ix *Indexer) scanDir(dirID int64, root, relDir string, runID int64, force bool, seen map[string]struct{}) error {
	select {
	case <-ix.stopCh:
		return nil
	default:
	}

	absDir := filepath.Join(root, relDir)
	info, err := filesystem.StatWithRetry(absDir, filesystem.DefaultRetryConfig())
	if err != nil {
		return fmt.Errorf("stat %s: %w", absDir, err)
	}
	currentModMs := info.ModTime().UnixMilli()

	skip := false
	if ix.mtimeOpt && !force {
		if state, ok, err := ix.store.GetDirState(dirID, relDir); err == nil && ok && state.LastModMs == currentModMs {
			skip = true
			metrics.IndexerDirsSkippedMtime.Inc()
		}
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", absDir, err)
	}

	var batch *indexstore.Batch
	if !skip {
		batch, err = ix.store.BeginBatch()
		if err != nil {
			return fmt.Errorf("begin batch for %s: %w", absDir, err)
		}
	}

	var deferredTags []pendingTags
	var deferredTypes []pendingTypes

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		entryRel := filepath.Join(relDir, name)

		if entry.IsDir() {
			if err := ix.scanDir(dirID, root, entryRel, runID, force, seen); err != nil {
				logging.Warn("scanning subdirectory %s: %v", entryRel, err)
				metrics.IndexerErrors.Inc()
			}
			continue
		}

		ix.filesSeen.Add(1)

		parsed, ok := parser.Parse(name)
		if !ok {
			// Not a media file under the filename grammar: it is never
			// tracked, so it must not appear in seen and must not
			// influence DeleteMissing for this directory.
			continue
		}

		seen[entryRel] = struct{}{}

		if skip {
			continue
		}

		fi, err := filesystem.StatWithRetry(filepath.Join(absDir, name), filesystem.DefaultRetryConfig())
		if err != nil {
			logging.Warn("stat %s: %v", entryRel, err)
			continue
		}

		item := buildItem(dirID, entryRel, name, fi, parsed)
		runStartMs := ix.Progress().StartedAt.UnixMilli()
		item.CreatedAtMs, item.UpdatedAtMs = runStartMs, runStartMs
		id, err := batch.UpsertItem(item)
		if err != nil {
			logging.Warn("upsert %s: %v", entryRel, err)
			metrics.IndexerErrors.Inc()
			continue
		}
		ix.filesUpdated.Add(1)

		if extracted := tags.ExtractTags(item.Theme); len(extracted) > 0 {
			deferredTags = append(deferredTags, pendingTags{itemID: id, tags: extracted})
		}
		if declared := indexstore.SplitTypes(item.TypeText); len(declared) > 0 {
			deferredTypes = append(deferredTypes, pendingTypes{itemID: id, types: declared})
		}
	}

	if batch != nil {
		if err := batch.Commit(); err != nil {
			return fmt.Errorf("commit batch for %s: %w", absDir, err)
		}
		if err := ix.store.PutDirState(indexstore.DirState{
			DirID: dirID, RelDir: relDir, LastModMs: currentModMs, LastRunID: runID,
		}); err != nil {
			logging.Warn("put dir state for %s: %v", absDir, err)
		}
	}

	// SetTags/SetTypes each open their own transaction, so they must run
	// after the batch commits to avoid contending with it for SQLite's
	// single writer.
	for _, pt := range deferredTags {
		if err := ix.store.SetTags(pt.itemID, pt.tags); err != nil {
			logging.Warn("set tags for item %d: %v", pt.itemID, err)
		}
	}
	for _, pt := range deferredTypes {
		if err := ix.store.SetTypes(pt.itemID, pt.types); err != nil {
			logging.Warn("set types for item %d: %v", pt.itemID, err)
		}
	}

	metrics.IndexerDirsProcessed.Inc()
	ix.publishProgress(true, ix.Progress().StartedAt, time.Time{}, absDir, nil)
	return nil
}

func buildItem(dirID int64, relPath, name string, fi os.FileInfo, parsed parser.ParsedName) indexstore.MediaItem {
	nowMs := time.Now().UnixMilli()
	ext := strings.ToLower(filepath.Ext(name))
	return indexstore.MediaItem{
		DirID:       dirID,
		RelPath:     relPath,
		FileName:    name,
		Size:        fi.Size(),
		ModTimeUnix: fi.ModTime().Unix(),
		Kind:        string(mediatypes.ClassifyExtension(ext)),
		TimeText:    parsed.TimeText,
		Iso:         parsed.Iso,
		Timestamp:   parsed.TimestampMs,
		TypeText:    parsed.TypeText,
		Author:      parsed.Author,
		Theme:       parsed.Theme,
		Seq:         parsed.Seq,
		CreatedAtMs: nowMs,
		UpdatedAtMs: nowMs,
	}
}

func (ix *Indexer) periodicLoop() {
	if ix.interval <= 0 {
		return
	}
	ticker := time.NewTicker(ix.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logging.Debug("periodic re-index triggered")
			ix.TriggerReindex(false)
		case <-ix.stopCh:
			return
		}
	}
}

func (ix *Indexer) watchLoop() {
	var err error
	ix.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		logging.Error("failed to create file watcher: %v", err)
		return
	}

	watched := 0
	for _, root := range ix.dirs {
		if err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			if addErr := ix.watcher.Add(path); addErr == nil {
				watched++
			}
			return nil
		}); err != nil {
			logging.Warn("walking %s for watcher setup: %v", root, err)
		}
	}
	metrics.WatchedDirectories.Set(float64(watched))
	logging.Debug("file watcher active over %d directories", watched)

	debounce := newDebouncer(2*time.Second, func() {
		logging.Debug("filesystem change detected, re-indexing")
		ix.TriggerReindex(false)
	})

	for {
		select {
		case event, ok := <-ix.watcher.Events:
			if !ok {
				return
			}
			if strings.Contains(event.Name, string(filepath.Separator)+".") {
				continue
			}
			metrics.WatcherEventsTotal.WithLabelValues(event.Op.String()).Inc()
			debounce.trigger()

		case werr, ok := <-ix.watcher.Errors:
			if !ok {
				return
			}
			metrics.WatcherErrors.Inc()
			logging.Error("file watcher error: %v", werr)

		case <-ix.stopCh:
			return
		}
	}
}

// debouncer folds bursts of fsnotify events into a single callback
// invocation delay after the last event.
type debouncer struct {
	delay    time.Duration
	callback func()
	mu       sync.Mutex
	timer    *time.Timer
}

func newDebouncer(delay time.Duration, callback func()) *debouncer {
	return &debouncer{delay: delay, callback: callback}
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.callback)
}
