package indexstore

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenCreatesSchema(t *testing.T) {
	store := newTestStore(t)

	if _, _, err := store.GetDirState(1, ""); err != nil {
		t.Fatalf("GetDirState on fresh schema: %v", err)
	}
	if _, _, err := store.GetMeta("schema_version"); err != nil {
		t.Fatalf("GetMeta on fresh schema: %v", err)
	}
}

func TestEnsureMediaDirIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	id1, err := store.EnsureMediaDir("/media/a")
	if err != nil {
		t.Fatalf("EnsureMediaDir: %v", err)
	}
	id2, err := store.EnsureMediaDir("/media/a")
	if err != nil {
		t.Fatalf("EnsureMediaDir (repeat): %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected stable id across repeat calls, got %d then %d", id1, id2)
	}

	id3, err := store.EnsureMediaDir("/media/b")
	if err != nil {
		t.Fatalf("EnsureMediaDir (second dir): %v", err)
	}
	if id3 == id1 {
		t.Error("expected distinct dirs to get distinct ids")
	}
}

func TestUpsertItemInsertsAndUpdates(t *testing.T) {
	store := newTestStore(t)
	dirID, err := store.EnsureMediaDir("/media")
	if err != nil {
		t.Fatalf("EnsureMediaDir: %v", err)
	}

	item := MediaItem{
		DirID: dirID, RelPath: "a.mp4", FileName: "a.mp4",
		Size: 100, ModTimeUnix: 1700000000, Kind: "video",
		Author: "alice", CreatedAtMs: 1, UpdatedAtMs: 1,
	}
	id, err := store.UpsertItem(item)
	if err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	if id == 0 {
		t.Fatal("expected nonzero id")
	}

	// Re-upsert with an empty author should not clobber the stored one.
	item.Author = ""
	item.Size = 200
	item.UpdatedAtMs = 2
	id2, err := store.UpsertItem(item)
	if err != nil {
		t.Fatalf("UpsertItem (update): %v", err)
	}
	if id2 != id {
		t.Fatalf("expected same id on conflict, got %d vs %d", id2, id)
	}
}

func TestUpsertItemPreservesAuthorOnEmptyRescan(t *testing.T) {
	store := newTestStore(t)
	dirID, _ := store.EnsureMediaDir("/media")

	first := MediaItem{DirID: dirID, RelPath: "a.jpg", FileName: "a.jpg", Kind: "image", Author: "bob"}
	if _, err := store.UpsertItem(first); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}

	second := first
	second.Author = ""
	second.Size = 999
	if _, err := store.UpsertItem(second); err != nil {
		t.Fatalf("UpsertItem (rescan): %v", err)
	}

	var author string
	err := store.db.QueryRow(`SELECT author FROM media_items WHERE dir_id = ? AND rel_path = ?`, dirID, "a.jpg").Scan(&author)
	if err != nil {
		t.Fatalf("query author: %v", err)
	}
	if author != "bob" {
		t.Errorf("author = %q, want %q (rescan with empty author must not clobber)", author, "bob")
	}
}

func TestDeleteMissingRemovesUnseenItems(t *testing.T) {
	store := newTestStore(t)
	dirID, _ := store.EnsureMediaDir("/media")

	if _, err := store.UpsertItem(MediaItem{DirID: dirID, RelPath: "keep.jpg", FileName: "keep.jpg", Kind: "image"}); err != nil {
		t.Fatalf("UpsertItem keep: %v", err)
	}
	if _, err := store.UpsertItem(MediaItem{DirID: dirID, RelPath: "gone.jpg", FileName: "gone.jpg", Kind: "image"}); err != nil {
		t.Fatalf("UpsertItem gone: %v", err)
	}

	seen := map[string]struct{}{"keep.jpg": {}}
	deleted, err := store.DeleteMissing(dirID, seen, 1)
	if err != nil {
		t.Fatalf("DeleteMissing: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM media_items WHERE dir_id = ?`, dirID).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("remaining items = %d, want 1", count)
	}
}

func TestSetTagsReplacesFullSet(t *testing.T) {
	store := newTestStore(t)
	dirID, _ := store.EnsureMediaDir("/media")
	itemID, err := store.UpsertItem(MediaItem{DirID: dirID, RelPath: "a.jpg", FileName: "a.jpg", Kind: "image"})
	if err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}

	if err := store.SetTags(itemID, []string{"sunset", "beach"}); err != nil {
		t.Fatalf("SetTags: %v", err)
	}
	if err := store.SetTags(itemID, []string{"sunset"}); err != nil {
		t.Fatalf("SetTags (replace): %v", err)
	}

	rows, err := store.db.Query(`SELECT tag FROM media_item_tags WHERE item_id = ?`, itemID)
	if err != nil {
		t.Fatalf("query tags: %v", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			t.Fatalf("scan tag: %v", err)
		}
		tags = append(tags, tag)
	}
	if len(tags) != 1 || tags[0] != "sunset" {
		t.Errorf("tags = %v, want [sunset]", tags)
	}
}

func TestDirStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	dirID, _ := store.EnsureMediaDir("/media")

	if _, ok, err := store.GetDirState(dirID, "sub"); err != nil || ok {
		t.Fatalf("expected no dir state yet, got ok=%v err=%v", ok, err)
	}

	want := DirState{DirID: dirID, RelDir: "sub", LastModMs: 123, LastRunID: 5}
	if err := store.PutDirState(want); err != nil {
		t.Fatalf("PutDirState: %v", err)
	}

	got, ok, err := store.GetDirState(dirID, "sub")
	if err != nil || !ok {
		t.Fatalf("GetDirState: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("GetDirState = %+v, want %+v", got, want)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if _, ok, err := store.GetMeta("last_run_id"); err != nil || ok {
		t.Fatalf("expected no meta value yet, got ok=%v err=%v", ok, err)
	}
	if err := store.SetMeta("last_run_id", "42"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	value, ok, err := store.GetMeta("last_run_id")
	if err != nil || !ok || value != "42" {
		t.Fatalf("GetMeta = (%q, %v, %v), want (42, true, nil)", value, ok, err)
	}
	if err := store.SetMeta("last_run_id", "43"); err != nil {
		t.Fatalf("SetMeta (update): %v", err)
	}
	value, _, _ = store.GetMeta("last_run_id")
	if value != "43" {
		t.Errorf("value = %q, want 43", value)
	}
}

func TestBatchCommitsAllUpserts(t *testing.T) {
	store := newTestStore(t)
	dirID, _ := store.EnsureMediaDir("/media")

	batch, err := store.BeginBatch()
	if err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		if _, err := batch.UpsertItem(MediaItem{DirID: dirID, RelPath: name, FileName: name, Kind: "image"}); err != nil {
			t.Fatalf("batch UpsertItem(%s): %v", name, err)
		}
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM media_items WHERE dir_id = ?`, dirID).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestBatchRollbackDiscardsUpserts(t *testing.T) {
	store := newTestStore(t)
	dirID, _ := store.EnsureMediaDir("/media")

	batch, err := store.BeginBatch()
	if err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	if _, err := batch.UpsertItem(MediaItem{DirID: dirID, RelPath: "a.jpg", FileName: "a.jpg", Kind: "image"}); err != nil {
		t.Fatalf("batch UpsertItem: %v", err)
	}
	if err := batch.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM media_items WHERE dir_id = ?`, dirID).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 after rollback", count)
	}

	// Store must still be usable after a rollback releases the batch lock.
	if _, err := store.UpsertItem(MediaItem{DirID: dirID, RelPath: "b.jpg", FileName: "b.jpg", Kind: "image"}); err != nil {
		t.Fatalf("UpsertItem after rollback: %v", err)
	}
}
