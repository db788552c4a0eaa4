package indexer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"clipvault/internal/indexstore"
	"clipvault/internal/parser"
)

const grammarName = "2024-01-15 12.30.45-vid-alice-sunset_1.mp4"

func newTestStoreAndIndexer(t *testing.T, dirs []string) (*indexstore.Store, *Indexer) {
	t.Helper()
	store, err := indexstore.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ix := New(store, dirs, 0)
	return store, ix
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func runAndWait(t *testing.T, ix *Indexer) {
	t.Helper()
	ix.runOnce(false)
}

func itemsFor(t *testing.T, store *indexstore.Store, mediaDir string) []indexstore.MediaItem {
	t.Helper()
	dirID, err := store.EnsureMediaDir(mediaDir)
	if err != nil {
		t.Fatalf("EnsureMediaDir: %v", err)
	}
	items, err := store.ItemsByDir(dirID)
	if err != nil {
		t.Fatalf("ItemsByDir: %v", err)
	}
	return items
}

func TestScanIndexesGrammarFile(t *testing.T) {
	mediaDir := t.TempDir()
	writeFile(t, filepath.Join(mediaDir, grammarName))

	store, ix := newTestStoreAndIndexer(t, []string{mediaDir})
	runAndWait(t, ix)

	items := itemsFor(t, store, mediaDir)
	if len(items) != 1 {
		t.Fatalf("indexed item count = %d, want 1", len(items))
	}
	item := items[0]
	if item.Kind != "video" || item.Author != "alice" || item.Theme != "sunset" || item.Seq != 1 {
		t.Errorf("got kind=%s author=%s theme=%s seq=%d, want video/alice/sunset/1",
			item.Kind, item.Author, item.Theme, item.Seq)
	}
	if item.TimeText != "2024-01-15 12.30.45" || item.Iso != "2024-01-15T12:30:45" {
		t.Errorf("got timeText=%s iso=%s, want literal timestamp preserved and normalized", item.TimeText, item.Iso)
	}
}

func TestScanNonGrammarFileIsNotIndexed(t *testing.T) {
	mediaDir := t.TempDir()
	writeFile(t, filepath.Join(mediaDir, "random-name.txt"))

	store, ix := newTestStoreAndIndexer(t, []string{mediaDir})
	runAndWait(t, ix)

	items := itemsFor(t, store, mediaDir)
	if len(items) != 0 {
		t.Fatalf("expected non-grammar file to be skipped entirely, got %+v", items)
	}
}

func TestScanDeletesRemovedFiles(t *testing.T) {
	mediaDir := t.TempDir()
	path := filepath.Join(mediaDir, grammarName)
	writeFile(t, path)

	store, ix := newTestStoreAndIndexer(t, []string{mediaDir})
	runAndWait(t, ix)

	if items := itemsFor(t, store, mediaDir); len(items) != 1 {
		t.Fatalf("expected 1 item before deletion, got %d", len(items))
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	runAndWait(t, ix)

	if items := itemsFor(t, store, mediaDir); len(items) != 0 {
		t.Errorf("expected 0 items after deletion scan, got %d", len(items))
	}
}

func TestScanSkipsHiddenEntries(t *testing.T) {
	mediaDir := t.TempDir()
	writeFile(t, filepath.Join(mediaDir, ".hidden.jpg"))
	writeFile(t, filepath.Join(mediaDir, ".hiddendir", "a.jpg"))

	store, ix := newTestStoreAndIndexer(t, []string{mediaDir})
	runAndWait(t, ix)

	if items := itemsFor(t, store, mediaDir); len(items) != 0 {
		t.Errorf("expected hidden entries to be skipped, got %d items", len(items))
	}
}

func TestScanRecursesSubdirectories(t *testing.T) {
	mediaDir := t.TempDir()
	writeFile(t, filepath.Join(mediaDir, "sub", grammarName))

	store, ix := newTestStoreAndIndexer(t, []string{mediaDir})
	runAndWait(t, ix)

	if items := itemsFor(t, store, mediaDir); len(items) != 1 {
		t.Errorf("expected nested file to be indexed, got %d items", len(items))
	}
}

func TestTriggerReindexCoalescesWhileRunning(t *testing.T) {
	mediaDir := t.TempDir()
	_, ix := newTestStoreAndIndexer(t, []string{mediaDir})

	ix.mu.Lock()
	ix.running = true
	ix.mu.Unlock()

	started := ix.TriggerReindex(false)
	if started {
		t.Error("expected TriggerReindex to coalesce into the running scan, not start a new one")
	}

	ix.mu.Lock()
	rerun := ix.rerunRequested
	ix.mu.Unlock()
	if !rerun {
		t.Error("expected rerunRequested to be set after coalescing")
	}
}

func TestProgressReflectsCompletedRun(t *testing.T) {
	mediaDir := t.TempDir()
	writeFile(t, filepath.Join(mediaDir, grammarName))

	_, ix := newTestStoreAndIndexer(t, []string{mediaDir})
	runAndWait(t, ix)

	p := ix.Progress()
	if p.Running {
		t.Error("expected Progress().Running == false after runOnce returns")
	}
	if p.FilesSeen != 1 {
		t.Errorf("FilesSeen = %d, want 1", p.FilesSeen)
	}
	if p.FinishedAt.Before(p.StartedAt) {
		t.Error("expected FinishedAt after StartedAt")
	}
}

func TestProgressCountsNonGrammarFilesAsSeenButNotUpdated(t *testing.T) {
	mediaDir := t.TempDir()
	writeFile(t, filepath.Join(mediaDir, "random-name.txt"))

	_, ix := newTestStoreAndIndexer(t, []string{mediaDir})
	runAndWait(t, ix)

	p := ix.Progress()
	if p.FilesSeen != 1 {
		t.Errorf("FilesSeen = %d, want 1 (observed but unparsed)", p.FilesSeen)
	}
	if p.FilesUpdated != 0 {
		t.Errorf("FilesUpdated = %d, want 0 for a file that never parses", p.FilesUpdated)
	}
}

func TestMtimeOptimizationSkipsUnchangedDirectory(t *testing.T) {
	mediaDir := t.TempDir()
	writeFile(t, filepath.Join(mediaDir, grammarName))

	store, ix := newTestStoreAndIndexer(t, []string{mediaDir})
	ix.mtimeOpt = true
	runAndWait(t, ix)

	dirID, err := store.EnsureMediaDir(mediaDir)
	if err != nil {
		t.Fatalf("EnsureMediaDir: %v", err)
	}
	state, ok, err := store.GetDirState(dirID, "")
	if err != nil || !ok {
		t.Fatalf("GetDirState: ok=%v err=%v", ok, err)
	}
	if state.LastRunID != 1 {
		t.Errorf("LastRunID = %d, want 1", state.LastRunID)
	}

	// A second run with no filesystem changes should skip re-indexing the
	// directory's files but must not delete them.
	runAndWait(t, ix)

	if items := itemsFor(t, store, mediaDir); len(items) != 1 {
		t.Errorf("expected unchanged file to survive mtime-skip scan, got %d items", len(items))
	}
}

func TestMtimeOptDisabledEnvVar(t *testing.T) {
	t.Setenv("INDEX_DIR_MTIME_OPT", "false")
	if mtimeOptEnabled() {
		t.Error("expected mtimeOptEnabled() to be false when INDEX_DIR_MTIME_OPT=false")
	}
	t.Setenv("INDEX_DIR_MTIME_OPT", "")
	if !mtimeOptEnabled() {
		t.Error("expected mtimeOptEnabled() to default to true")
	}
}

func TestBuildItemFromParsedName(t *testing.T) {
	fi := fakeFileInfo{name: grammarName, size: 10, mod: time.Now()}
	parsed, ok := parser.Parse(fi.Name())
	if !ok {
		t.Fatalf("Parse(%q) unexpectedly failed", fi.Name())
	}

	item := buildItem(1, fi.Name(), fi.Name(), fi, parsed)
	if item.Kind != "video" || item.Author != "alice" || item.TypeText != "vid" {
		t.Errorf("got kind=%s author=%s typeText=%s, want video/alice/vid", item.Kind, item.Author, item.TypeText)
	}
	if item.TimeText != parsed.TimeText || item.Iso != parsed.Iso {
		t.Errorf("buildItem did not carry through parsed TimeText/Iso")
	}
}

type fakeFileInfo struct {
	name string
	size int64
	mod  time.Time
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return f.size }
func (f fakeFileInfo) Mode() os.FileMode  { return 0o644 }
func (f fakeFileInfo) ModTime() time.Time { return f.mod }
func (f fakeFileInfo) IsDir() bool        { return false }
func (f fakeFileInfo) Sys() any           { return nil }
