package indexstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"clipvault/internal/logging"
	"clipvault/internal/metrics"
)

const defaultTimeout = 5 * time.Second

const driverName = "sqlite3_clipvault"

var registerOnce sync.Once

func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				pragmas := []string{
					"PRAGMA busy_timeout = 5000",
					"PRAGMA foreign_keys = ON",
					"PRAGMA mmap_size = 268435456",
				}
				for _, p := range pragmas {
					if _, err := conn.Exec(p, nil); err != nil {
						return err
					}
				}
				return nil
			},
		})
	})
}

func init() {
	registerDriver()
}

// Store is the SQLite-backed persistent media index. All mutating access
// goes through one *sql.DB guarded by mu, matching the single-writer
// discipline of the teacher's database layer.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex

	txMu    sync.Mutex
	txStart time.Time
}

func observeQuery(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		duration := time.Since(start).Seconds()
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
		metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
		if duration > 0.1 {
			logging.Warn("slow index store query: operation=%s duration=%.3fs status=%s error=%v",
				operation, duration, status, err)
		}
	}
}

// Open creates or opens the SQLite index database at path, ensuring its
// schema and migrations are current before returning.
func Open(path string) (*Store, error) {
	if err := diagnosePermissions(path); err != nil {
		logging.Warn("index store permission check: %v", err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", path)
	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("open index store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to index store: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: path}

	if err := s.initialize(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize index store schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize(ctx context.Context) error {
	done := observeQuery("initialize_schema")

	schema := `
	CREATE TABLE IF NOT EXISTS media_dirs (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS media_items (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		dir_id         INTEGER NOT NULL REFERENCES media_dirs(id) ON DELETE CASCADE,
		rel_path       TEXT NOT NULL,
		file_name      TEXT NOT NULL,
		size           INTEGER NOT NULL DEFAULT 0,
		mod_time_unix  INTEGER NOT NULL DEFAULT 0,
		kind           TEXT NOT NULL DEFAULT 'file',
		time_text      TEXT NOT NULL DEFAULT '',
		iso            TEXT NOT NULL DEFAULT '',
		timestamp      INTEGER NOT NULL DEFAULT 0,
		type_text      TEXT,
		author         TEXT,
		theme          TEXT,
		seq            INTEGER NOT NULL DEFAULT 0,
		created_at_ms  INTEGER NOT NULL DEFAULT 0,
		updated_at_ms  INTEGER NOT NULL DEFAULT 0,
		search_text    TEXT NOT NULL DEFAULT '',
		UNIQUE(dir_id, rel_path)
	);

	CREATE INDEX IF NOT EXISTS idx_media_items_sort ON media_items(timestamp DESC, time_text, author, theme);
	CREATE INDEX IF NOT EXISTS idx_media_items_author ON media_items(author);
	CREATE INDEX IF NOT EXISTS idx_media_items_theme ON media_items(theme);
	CREATE INDEX IF NOT EXISTS idx_media_items_time_text ON media_items(time_text);
	CREATE INDEX IF NOT EXISTS idx_media_items_created ON media_items(created_at_ms DESC);
	CREATE INDEX IF NOT EXISTS idx_media_items_updated ON media_items(updated_at_ms DESC);

	CREATE TABLE IF NOT EXISTS media_item_types (
		item_id INTEGER NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
		type    TEXT NOT NULL,
		UNIQUE(item_id, type)
	);

	CREATE INDEX IF NOT EXISTS idx_media_item_types_type ON media_item_types(type);

	CREATE TABLE IF NOT EXISTS media_item_tags (
		item_id INTEGER NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
		tag     TEXT NOT NULL,
		UNIQUE(item_id, tag)
	);

	CREATE INDEX IF NOT EXISTS idx_media_item_tags_tag ON media_item_tags(tag);

	CREATE TABLE IF NOT EXISTS dir_state (
		dir_id      INTEGER NOT NULL REFERENCES media_dirs(id) ON DELETE CASCADE,
		rel_dir     TEXT NOT NULL,
		last_mod_ms INTEGER NOT NULL DEFAULT 0,
		last_run_id INTEGER NOT NULL DEFAULT 0,
		UNIQUE(dir_id, rel_dir)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	done(err)
	if err != nil {
		return err
	}

	return s.runMigrations(ctx)
}

// addColumnIfMissing issues an idempotent ALTER TABLE ... ADD COLUMN, gated
// on pragma_table_info so restarting against an already-migrated database
// is a no-op.
func (s *Store) addColumnIfMissing(ctx context.Context, table, column, ddl string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*) > 0 FROM pragma_table_info('%s') WHERE name = ?
	`, table), column).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check column %s.%s: %w", table, column, err)
	}
	if exists {
		return nil
	}

	logging.Info("migrating index store: adding %s.%s", table, column)
	done := observeQuery(fmt.Sprintf("migrate_add_%s_%s", table, column))
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddl))
	done(err)
	return err
}

func (s *Store) runMigrations(ctx context.Context) error {
	// Placeholder for future additive migrations; kept structurally
	// identical to the teacher's pragma_table_info-gated pattern so a new
	// column can be added here without touching initialize's CREATE TABLE.
	return nil
}

// diagnosePermissions checks that the index database's directory and any
// existing WAL/SHM siblings are writable, fixing obviously-wrong
// permissions the same way the teacher's startup path does.
func diagnosePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("stat index store directory: %w", err)
	}

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("index store directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, suffix := range []string{"-wal", "-shm"} {
		path := dbPath + suffix
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("index store %s file is read-only, attempting to fix", suffix)
			if err := os.Chmod(path, 0o600); err != nil {
				logging.Error("failed to fix %s permissions: %v", suffix, err)
			}
		}
	}
	return nil
}

// QueryContext exposes read access to package query, which composes its
// own filtered/paginated/windowed SQL over the media_items/media_item_tags
// tables rather than going through per-operation Store methods.
func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.QueryContext(ctx, query, args...)
}

// QueryRowContext is QueryContext's single-row counterpart.
func (s *Store) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.QueryRowContext(ctx, query, args...)
}

// UpdateDBMetrics refreshes connection-pool and on-disk size gauges.
func (s *Store) UpdateDBMetrics() {
	stats := s.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))

	for _, f := range []struct{ suffix, label string }{
		{"", "main"}, {"-wal", "wal"}, {"-shm", "shm"},
	} {
		if info, err := os.Stat(s.dbPath + f.suffix); err == nil {
			metrics.DBSizeBytes.WithLabelValues(f.label).Set(float64(info.Size()))
		}
	}
}

// UpdateIndexMetrics refreshes the media-library-wide item/tag gauges from
// a fresh Stats() call.
func (s *Store) UpdateIndexMetrics() {
	itemsByKind, tagCount, err := s.Stats()
	if err != nil {
		logging.Warn("update index metrics: %v", err)
		return
	}
	for _, kind := range []string{"image", "video", "file"} {
		metrics.MediaItemsTotal.WithLabelValues(kind).Set(float64(itemsByKind[kind]))
	}
	metrics.MediaTagsTotal.Set(float64(tagCount))
}
