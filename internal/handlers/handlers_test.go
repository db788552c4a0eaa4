package handlers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"clipvault/internal/indexer"
	"clipvault/internal/indexstore"
	"clipvault/internal/query"
	"clipvault/internal/startup"
	"clipvault/internal/thumbnail"
)

func writeFileAll(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

// testEnv bundles a fully wired Handlers against a real (temp-file) index
// store, mirroring how main.go wires the same pieces in production.
type testEnv struct {
	h     *Handlers
	store *indexstore.Store
	dirID int64
	dir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := indexstore.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("indexstore.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	mediaDir := t.TempDir()
	dirID, err := store.EnsureMediaDir(mediaDir)
	if err != nil {
		t.Fatalf("EnsureMediaDir: %v", err)
	}

	idx := indexer.New(store, []string{mediaDir}, time.Hour)
	qe := query.New(store)
	thumbs := thumbnail.NewStore(t.TempDir(), true, func(item indexstore.MediaItem) (string, error) {
		return filepath.Join(mediaDir, item.RelPath), nil
	}, store.ItemExists, nil)

	config := &startup.Config{
		MediaDirs:         []string{mediaDir},
		IndexInterval:     time.Hour,
		ThumbnailsEnabled: true,
	}

	return &testEnv{
		h:     New(store, idx, qe, thumbs, config),
		store: store,
		dirID: dirID,
		dir:   mediaDir,
	}
}

// putFile writes relPath under the test media dir and indexes it, returning
// the resulting item id.
func (e *testEnv) putFile(t *testing.T, relPath string, content []byte) int64 {
	t.Helper()

	full := filepath.Join(e.dir, relPath)
	if err := writeFileAll(full, content); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	id, err := e.store.UpsertItem(indexstore.MediaItem{
		DirID:    e.dirID,
		RelPath:  relPath,
		FileName: filepath.Base(relPath),
		Size:     int64(len(content)),
		Kind:     "image",
	})
	if err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	return id
}
