package indexstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"clipvault/internal/metrics"
)

// EnsureMediaDir returns the id for a configured root directory, inserting
// a media_dirs row on first sight.
func (s *Store) EnsureMediaDir(path string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("ensure_media_dir")

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO media_dirs (path) VALUES (?) ON CONFLICT(path) DO NOTHING`, path); err != nil {
		done(err)
		return 0, fmt.Errorf("ensure media dir: %w", err)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM media_dirs WHERE path = ?`, path).Scan(&id)
	done(err)
	if err != nil {
		return 0, fmt.Errorf("ensure media dir: %w", err)
	}
	return id, nil
}

const upsertItemSQL = `
INSERT INTO media_items (
	dir_id, rel_path, file_name, size, mod_time_unix, kind,
	time_text, iso, timestamp, type_text, author, theme, seq,
	created_at_ms, updated_at_ms, search_text
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(dir_id, rel_path) DO UPDATE SET
	file_name     = excluded.file_name,
	size          = excluded.size,
	mod_time_unix = excluded.mod_time_unix,
	kind          = excluded.kind,
	time_text     = excluded.time_text,
	iso           = excluded.iso,
	timestamp     = excluded.timestamp,
	type_text     = excluded.type_text,
	author        = COALESCE(NULLIF(excluded.author, ''), media_items.author),
	theme         = excluded.theme,
	seq           = excluded.seq,
	updated_at_ms = excluded.updated_at_ms,
	search_text   = excluded.search_text
`

// UpsertItem inserts or updates a single indexed file outside of an
// explicit batch transaction.
func (s *Store) UpsertItem(item MediaItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("upsert_item")
	id, err := upsertItem(ctx, s.db, item)
	done(err)
	return id, err
}

// upsertItem runs the upsert against anything that implements the
// sql.DB/sql.Tx exec+query surface, so Batch can share the same statement.
func upsertItem(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, item MediaItem) (int64, error) {
	_, err := execer.ExecContext(ctx, upsertItemSQL,
		item.DirID, item.RelPath, item.FileName, item.Size, item.ModTimeUnix, item.Kind,
		item.TimeText, item.Iso, item.Timestamp, nullIfEmpty(item.TypeText), nullIfEmpty(item.Author), item.Theme, item.Seq,
		item.CreatedAtMs, item.UpdatedAtMs, searchText(item),
	)
	if err != nil {
		return 0, fmt.Errorf("upsert media item %s: %w", item.RelPath, err)
	}

	var id int64
	err = execer.QueryRowContext(ctx,
		`SELECT id FROM media_items WHERE dir_id = ? AND rel_path = ?`, item.DirID, item.RelPath).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup upserted media item %s: %w", item.RelPath, err)
	}
	return id, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// searchText builds the precomputed lowercase column the Query Engine's
// substring filter matches against with a plain LIKE, avoiding an FTS5
// virtual table for a feature explicitly scoped to substring matching.
func searchText(item MediaItem) string {
	return strings.ToLower(strings.Join([]string{
		item.FileName, item.Author, item.Theme, item.TypeText, item.TimeText,
	}, " "))
}

// ItemsByDir returns every indexed item under dirID, ordered by rel_path.
// It exists for introspection and test assertions; the Query Engine's
// filtered/paginated reads live in package query.
func (s *Store) ItemsByDir(dirID int64) ([]MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("items_by_dir")
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dir_id, rel_path, file_name, size, mod_time_unix, kind,
		       time_text, iso, timestamp, COALESCE(type_text, ''), COALESCE(author, ''), theme, seq,
		       created_at_ms, updated_at_ms
		FROM media_items WHERE dir_id = ? ORDER BY rel_path
	`, dirID)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("items by dir: %w", err)
	}
	defer rows.Close()

	var items []MediaItem
	for rows.Next() {
		var it MediaItem
		if err := rows.Scan(&it.ID, &it.DirID, &it.RelPath, &it.FileName, &it.Size, &it.ModTimeUnix,
			&it.Kind, &it.TimeText, &it.Iso, &it.Timestamp, &it.TypeText, &it.Author, &it.Theme, &it.Seq,
			&it.CreatedAtMs, &it.UpdatedAtMs); err != nil {
			done(err)
			return nil, fmt.Errorf("items by dir: scan: %w", err)
		}
		items = append(items, it)
	}
	err = rows.Err()
	done(err)
	return items, err
}

// DeleteMissing removes every row under dirID whose rel_path was not
// observed (present in seenRelPaths) during the scan run identified by
// runID, and reports how many rows were removed. It is how on-disk
// deletions propagate to the index without a separate delete-watch path.
func (s *Store) DeleteMissing(dirID int64, seenRelPaths map[string]struct{}, runID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("delete_missing")

	rows, err := s.db.QueryContext(ctx, `SELECT id, rel_path FROM media_items WHERE dir_id = ?`, dirID)
	if err != nil {
		done(err)
		return 0, fmt.Errorf("delete missing: list items: %w", err)
	}

	var stale []int64
	for rows.Next() {
		var id int64
		var relPath string
		if err := rows.Scan(&id, &relPath); err != nil {
			_ = rows.Close()
			done(err)
			return 0, fmt.Errorf("delete missing: scan item: %w", err)
		}
		if _, seen := seenRelPaths[relPath]; !seen {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		done(err)
		return 0, err
	}
	_ = rows.Close()

	if len(stale) == 0 {
		done(nil)
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return 0, fmt.Errorf("delete missing: begin tx: %w", err)
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM media_items WHERE id = ?`, id); err != nil {
			_ = tx.Rollback()
			done(err)
			return 0, fmt.Errorf("delete missing: delete item %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return 0, fmt.Errorf("delete missing: commit: %w", err)
	}

	done(nil)
	metrics.IndexerFilesDeleted.Add(float64(len(stale)))
	return len(stale), nil
}

// SetTags replaces the full tag set for itemID.
func (s *Store) SetTags(itemID int64, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("set_tags")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return fmt.Errorf("set tags: begin tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM media_item_tags WHERE item_id = ?`, itemID); err != nil {
		_ = tx.Rollback()
		done(err)
		return fmt.Errorf("set tags: clear: %w", err)
	}

	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO media_item_tags (item_id, tag) VALUES (?, ?) ON CONFLICT(item_id, tag) DO NOTHING`,
			itemID, tag); err != nil {
			_ = tx.Rollback()
			done(err)
			return fmt.Errorf("set tags: insert %q: %w", tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return fmt.Errorf("set tags: commit: %w", err)
	}
	done(nil)
	return nil
}

// SetTypes replaces the full declared-type set for itemID, mirroring
// SetTags's delete-then-reinsert discipline.
func (s *Store) SetTypes(itemID int64, types []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("set_types")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return fmt.Errorf("set types: begin tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM media_item_types WHERE item_id = ?`, itemID); err != nil {
		_ = tx.Rollback()
		done(err)
		return fmt.Errorf("set types: clear: %w", err)
	}

	for _, typ := range types {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO media_item_types (item_id, type) VALUES (?, ?) ON CONFLICT(item_id, type) DO NOTHING`,
			itemID, typ); err != nil {
			_ = tx.Rollback()
			done(err)
			return fmt.Errorf("set types: insert %q: %w", typ, err)
		}
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return fmt.Errorf("set types: commit: %w", err)
	}
	done(nil)
	return nil
}

// GetDirState returns the recorded scan bookkeeping for a directory, and
// false if none has been recorded yet.
func (s *Store) GetDirState(dirID int64, relDir string) (DirState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("get_dir_state")

	var st DirState
	err := s.db.QueryRowContext(ctx,
		`SELECT dir_id, rel_dir, last_mod_ms, last_run_id FROM dir_state WHERE dir_id = ? AND rel_dir = ?`,
		dirID, relDir).Scan(&st.DirID, &st.RelDir, &st.LastModMs, &st.LastRunID)
	if err == sql.ErrNoRows {
		done(nil)
		return DirState{}, false, nil
	}
	if err != nil {
		done(err)
		return DirState{}, false, fmt.Errorf("get dir state: %w", err)
	}
	done(nil)
	return st, true, nil
}

// PutDirState records scan bookkeeping for a directory.
func (s *Store) PutDirState(state DirState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("put_dir_state")
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dir_state (dir_id, rel_dir, last_mod_ms, last_run_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(dir_id, rel_dir) DO UPDATE SET
			last_mod_ms = excluded.last_mod_ms,
			last_run_id = excluded.last_run_id
	`, state.DirID, state.RelDir, state.LastModMs, state.LastRunID)
	done(err)
	if err != nil {
		return fmt.Errorf("put dir state: %w", err)
	}
	return nil
}

// GetMeta reads a single settings value, returning false if unset.
func (s *Store) GetMeta(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("get_meta")
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		done(nil)
		return "", false, nil
	}
	if err != nil {
		done(err)
		return "", false, fmt.Errorf("get meta %q: %w", key, err)
	}
	done(nil)
	return value, true, nil
}

// SetMeta writes a single settings value.
func (s *Store) SetMeta(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("set_meta")
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	done(err)
	if err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}
	return nil
}

// ListDirs returns every configured media directory, ordered by id.
func (s *Store) ListDirs() ([]MediaDir, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("list_dirs")
	rows, err := s.db.QueryContext(ctx, `SELECT id, path FROM media_dirs ORDER BY id`)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("list dirs: %w", err)
	}
	defer rows.Close()

	var dirs []MediaDir
	for rows.Next() {
		var d MediaDir
		if err := rows.Scan(&d.ID, &d.Path); err != nil {
			done(err)
			return nil, fmt.Errorf("list dirs: scan: %w", err)
		}
		dirs = append(dirs, d)
	}
	err = rows.Err()
	done(err)
	return dirs, err
}

// ResolveItemPath joins an item's configured media dir with its stored
// relative path and rejects anything that escapes the root. It is the
// single source of truth for turning a MediaItem into an on-disk path,
// shared by the HTTP handlers and the thumbnail pipeline's path resolver.
func ResolveItemPath(s *Store, item MediaItem) (string, error) {
	dirs, err := s.ListDirs()
	if err != nil {
		return "", err
	}

	var root string
	for _, d := range dirs {
		if d.ID == item.DirID {
			root = d.Path
			break
		}
	}
	if root == "" {
		return "", errors.New("resolve path: unknown media dir")
	}

	full := filepath.Join(root, item.RelPath)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	if absFull != absRoot && !strings.HasPrefix(absFull, absRoot+string(filepath.Separator)) {
		return "", errors.New("resolve path: outside media root")
	}
	return absFull, nil
}

// GetItem looks up a single indexed item by id, returning false if it is
// not present (already deleted, or never indexed).
func (s *Store) GetItem(id int64) (MediaItem, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("get_item")
	var it MediaItem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, dir_id, rel_path, file_name, size, mod_time_unix, kind,
		       time_text, iso, timestamp, COALESCE(type_text, ''), COALESCE(author, ''), theme, seq,
		       created_at_ms, updated_at_ms
		FROM media_items WHERE id = ?
	`, id).Scan(&it.ID, &it.DirID, &it.RelPath, &it.FileName, &it.Size, &it.ModTimeUnix,
		&it.Kind, &it.TimeText, &it.Iso, &it.Timestamp, &it.TypeText, &it.Author, &it.Theme, &it.Seq,
		&it.CreatedAtMs, &it.UpdatedAtMs)
	if err == sql.ErrNoRows {
		done(nil)
		return MediaItem{}, false, nil
	}
	if err != nil {
		done(err)
		return MediaItem{}, false, fmt.Errorf("get item %d: %w", id, err)
	}
	done(nil)
	return it, true, nil
}

// ItemExists reports whether id still has a row in media_items, used by the
// thumbnail store's cleanup pass to identify orphaned cache entries.
func (s *Store) ItemExists(id int64) bool {
	_, ok, err := s.GetItem(id)
	return ok && err == nil
}

// DeleteItem removes a single indexed item by id. It is idempotent: deleting
// an id that is already gone is not an error.
func (s *Store) DeleteItem(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("delete_item")
	_, err := s.db.ExecContext(ctx, `DELETE FROM media_items WHERE id = ?`, id)
	done(err)
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	return nil
}

// Stats reports coarse index-wide counts for the health endpoint: total
// indexed items by kind and the number of distinct tags.
func (s *Store) Stats() (itemsByKind map[string]int, tagCount int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("stats")

	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM media_items GROUP BY kind`)
	if err != nil {
		done(err)
		return nil, 0, fmt.Errorf("stats: count by kind: %w", err)
	}
	itemsByKind = make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			rows.Close()
			done(err)
			return nil, 0, fmt.Errorf("stats: scan kind count: %w", err)
		}
		itemsByKind[kind] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		done(err)
		return nil, 0, err
	}
	rows.Close()

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT tag) FROM media_item_tags`).Scan(&tagCount)
	done(err)
	if err != nil {
		return nil, 0, fmt.Errorf("stats: count tags: %w", err)
	}
	return itemsByKind, tagCount, nil
}

// Batch is an explicit transaction helper for bulk UpsertItem calls made
// during a single indexer scan, mirroring the teacher's BeginBatch/EndBatch
// pair but scoped to the index store's own item-upsert statement.
type Batch struct {
	store *Store
	tx    *sql.Tx
}

// BeginBatch opens a transaction for a run of UpsertItem calls. The
// returned Batch must be closed with Commit or Rollback.
func (s *Store) BeginBatch() (*Batch, error) {
	s.txMu.Lock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("begin_batch")
	tx, err := s.db.BeginTx(ctx, nil)
	done(err)
	if err != nil {
		s.txMu.Unlock()
		return nil, fmt.Errorf("begin batch: %w", err)
	}

	return &Batch{store: s, tx: tx}, nil
}

// UpsertItem upserts a single item within the batch's transaction.
func (b *Batch) UpsertItem(item MediaItem) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	done := observeQuery("batch_upsert_item")
	id, err := upsertItem(ctx, b.tx, item)
	done(err)
	return id, err
}

// Commit commits the batch's transaction.
func (b *Batch) Commit() error {
	defer b.store.txMu.Unlock()
	done := observeQuery("commit_batch")
	err := b.tx.Commit()
	done(err)
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Rollback aborts the batch's transaction.
func (b *Batch) Rollback() error {
	defer b.store.txMu.Unlock()
	done := observeQuery("rollback_batch")
	err := b.tx.Rollback()
	done(err)
	return err
}
