package thumbnail

import (
	"bytes"
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"clipvault/internal/filesystem"
	"clipvault/internal/indexstore"
	"clipvault/internal/logging"
	"clipvault/internal/memory"
	"clipvault/internal/metrics"
	"clipvault/internal/workers"

	// Image format decoders, required for image.Decode to support these formats.
	_ "image/gif"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Variant names a named thumbnail size preset. It participates in the
// content-addressed cache key, so a request for a different variant of the
// same source file never collides with a cached artifact for another.
type Variant string

const (
	// VariantDefault is the grid/list thumbnail size used by /thumb and /vthumb.
	VariantDefault Variant = "default"
	// VariantLarge is used for preview-on-hover or detail-view requests.
	VariantLarge Variant = "large"
)

func (v Variant) dimensions() (width, height int) {
	switch v {
	case VariantLarge:
		return 480, 480
	default:
		return 200, 200
	}
}

func (v Variant) ext() string {
	return "jpg"
}

// ThumbnailArtifact describes a generated thumbnail on disk.
type ThumbnailArtifact struct {
	Key               string
	Path              string
	ContentType       string
	SourceSize        int64
	SourceModTimeUnix int64
}

// Sentinel errors Get can return, wrapped with context via %w so callers
// can branch with errors.Is while still seeing the underlying cause in
// logs: ErrSourceUnreadable maps to 404, ErrToolUnavailable to 503,
// ErrUnsupportedFormat to 415.
var (
	ErrSourceUnreadable  = errors.New("thumbnail: source file unreadable")
	ErrToolUnavailable   = errors.New("thumbnail: generation tool unavailable")
	ErrUnsupportedFormat = errors.New("thumbnail: unsupported media kind")
)

// PathResolver maps an indexed item back to an absolute path on disk.
type PathResolver func(item indexstore.MediaItem) (string, error)

// ExistenceChecker reports whether an item id is still present in the index,
// used by Cleanup to identify orphaned cache entries.
type ExistenceChecker func(itemID int64) bool

// Store is a content-addressed on-disk thumbnail cache for indexed media.
type Store struct {
	cacheDir      string
	enabled       bool
	resolvePath   PathResolver
	itemExists    ExistenceChecker
	memoryMonitor *memory.Monitor

	fileLocks sync.Map // cache key -> *sync.Mutex
	imageSem  chan struct{}
	videoSem  chan struct{}
}

// NewStore creates a Store rooted at cacheDir. resolvePath and itemExists
// are supplied by the caller (typically wiring to the index store) so this
// package stays independent of how items are persisted. Worker pool sizes
// follow internal/workers conventions: THUMBNAIL_WORKERS bounds concurrent
// image decodes, VTHUMB_WORKERS bounds concurrent ffmpeg frame extractions.
func NewStore(cacheDir string, enabled bool, resolvePath PathResolver, itemExists ExistenceChecker, memMonitor *memory.Monitor) *Store {
	if enabled {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			logging.Warn("thumbnail store: failed to create cache dir: %v", err)
		}
	}
	return &Store{
		cacheDir:      cacheDir,
		enabled:       enabled,
		resolvePath:   resolvePath,
		itemExists:    itemExists,
		memoryMonitor: memMonitor,
		imageSem:      make(chan struct{}, workers.ForMixed(maxThumbnailWorkers)),
		videoSem:      make(chan struct{}, videoWorkerCount()),
	}
}

const maxThumbnailWorkers = 6

// videoWorkerCount mirrors internal/workers.Count but reads VTHUMB_WORKERS,
// since ffmpeg frame extraction is a separate I/O-bound pool from image decode.
func videoWorkerCount() int {
	if override := os.Getenv("VTHUMB_WORKERS"); override != "" {
		if n, err := strconv.Atoi(override); err == nil && n > 0 {
			return n
		}
	}
	n := int(float64(runtime.GOMAXPROCS(0)) * 1.5)
	if n < 1 {
		n = 1
	}
	if n > maxThumbnailWorkers {
		n = maxThumbnailWorkers
	}
	return n
}

func (s *Store) cacheKey(item indexstore.MediaItem, variant Variant) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%d:%d:%d:%s", item.ID, item.Size, item.ModTimeUnix, variant)))
	return fmt.Sprintf("%x", sum)
}

func (s *Store) cacheFileName(item indexstore.MediaItem, variant Variant) string {
	return fmt.Sprintf("%d_%s.%s", item.ID, s.cacheKey(item, variant), variant.ext())
}

// Get returns a cached thumbnail for item/variant, generating and caching
// one if it doesn't exist yet. Concurrent requests for the same not-yet-
// cached key de-duplicate into a single generation.
func (s *Store) Get(ctx context.Context, item indexstore.MediaItem, variant Variant) (ThumbnailArtifact, error) {
	if !s.enabled {
		return ThumbnailArtifact{}, fmt.Errorf("thumbnails disabled")
	}
	if err := ctx.Err(); err != nil {
		return ThumbnailArtifact{}, err
	}

	key := s.cacheKey(item, variant)
	fileName := s.cacheFileName(item, variant)
	cachePath := filepath.Join(s.cacheDir, fileName)

	artifact := ThumbnailArtifact{
		Key:               key,
		Path:              cachePath,
		ContentType:       "image/jpeg",
		SourceSize:        item.Size,
		SourceModTimeUnix: item.ModTimeUnix,
	}

	if touchIfExists(cachePath) {
		metrics.ThumbnailCacheHits.Inc()
		return artifact, nil
	}
	metrics.ThumbnailCacheMisses.Inc()

	lockAny, _ := s.fileLocks.LoadOrStore(key, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	lock.Lock()
	defer func() {
		lock.Unlock()
		s.fileLocks.Delete(key)
	}()

	if touchIfExists(cachePath) {
		metrics.ThumbnailCacheHits.Inc()
		return artifact, nil
	}

	srcPath, err := s.resolvePath(item)
	if err != nil {
		return ThumbnailArtifact{}, fmt.Errorf("resolve source path: %w", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	img, err := s.generate(genCtx, srcPath, item.Kind)
	metrics.ThumbnailGenerationDuration.WithLabelValues(item.Kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(item.Kind, "error").Inc()
		return ThumbnailArtifact{}, fmt.Errorf("generate thumbnail: %w", err)
	}

	width, height := variant.dimensions()
	thumb := imaging.Fit(img, width, height, imaging.Lanczos)
	runtime.GC()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(item.Kind, "error_encode").Inc()
		return ThumbnailArtifact{}, fmt.Errorf("encode thumbnail: %w", err)
	}

	if err := writeFileAtomic(cachePath, buf.Bytes()); err != nil {
		logging.Warn("thumbnail store: failed to cache %s: %v", cachePath, err)
	}

	metrics.ThumbnailGenerationsTotal.WithLabelValues(item.Kind, "success").Inc()
	return artifact, nil
}

// generate decodes a source file into an image.Image according to its kind.
func (s *Store) generate(ctx context.Context, path, kind string) (image.Image, error) {
	if s.memoryMonitor != nil && !s.memoryMonitor.WaitIfPaused() {
		return nil, fmt.Errorf("thumbnail generation stopped")
	}

	if _, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}

	switch kind {
	case "image":
		sem := s.imageSem
		sem <- struct{}{}
		defer func() { <-sem }()
		return s.generateImage(ctx, path)
	case "video":
		sem := s.videoSem
		sem <- struct{}{}
		defer func() { <-sem }()
		return s.generateVideo(ctx, path)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// =============================================================================
// IMAGE THUMBNAIL GENERATION
// =============================================================================

func (s *Store) generateImage(ctx context.Context, path string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := loadImageConstrained(path, maxImageDimension, maxImagePixels)
	if err == nil {
		return img, nil
	}
	logging.Debug("constrained load failed for %s: %v, trying imaging.Open", path, err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err = imaging.Open(path, imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	logging.Debug("imaging.Open failed for %s: %v, trying ffmpeg fallback", path, err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err = s.decodeWithFFmpeg(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("all image decode methods failed for %s: %w", path, err)
	}
	return img, nil
}

func (s *Store) decodeWithFFmpeg(ctx context.Context, path string) (image.Image, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v", ErrToolUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	// #nosec G204 -- path resolves through the index store, not raw user input
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", path, "-vframes", "1", "-f", "image2pipe", "-vcodec", "png", "-pix_fmt", "rgb24", "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	metrics.ThumbnailFFmpegDuration.WithLabelValues("image").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", path)
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

// =============================================================================
// VIDEO THUMBNAIL GENERATION
// =============================================================================

func (s *Store) generateVideo(ctx context.Context, path string) (image.Image, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v", ErrToolUnavailable, err)
	}

	// Tier 1: fixed 1-second seek, cheap and correct for most clips.
	if img, err := s.extractFrame(ctx, path, "00:00:01"); err == nil {
		return img, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Tier 2: ffprobe-informed seek to 10% of duration.
	if duration, err := s.probeDuration(ctx, path); err == nil && duration > 0 {
		seek := duration * 0.1
		if seek < 0.1 {
			seek = 0.1
		}
		if img, err := s.extractFrame(ctx, path, formatSeekTime(seek)); err == nil {
			return img, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Tier 3: no-seek fallback, most compatible, slowest.
	img, err := s.extractFrame(ctx, path, "")
	if err != nil {
		return nil, fmt.Errorf("all video frame extraction attempts failed for %s: %w", path, err)
	}
	return img, nil
}

func (s *Store) extractFrame(ctx context.Context, path, seek string) (image.Image, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	args := []string{"-i", path}
	if seek != "" {
		args = append(args, "-ss", seek)
	}
	args = append(args, "-vframes", "1", "-f", "image2pipe", "-vcodec", "png", "-")

	// #nosec G204 -- path resolves through the index store, not raw user input
	cmd := exec.CommandContext(timeoutCtx, "ffmpeg", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	metrics.ThumbnailFFmpegDuration.WithLabelValues("video").Observe(time.Since(start).Seconds())

	if err != nil || stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame (seek=%q): %w, stderr: %s", seek, err, stderr.String())
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

func (s *Store) probeDuration(ctx context.Context, path string) (float64, error) {
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe: %v", ErrToolUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	// #nosec G204 -- path resolves through the index store, not raw user input
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	metrics.ThumbnailFFmpegDuration.WithLabelValues("probe").Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	durationStr := strings.TrimSpace(stdout.String())
	if durationStr == "" || durationStr == "N/A" {
		return 0, fmt.Errorf("no duration found")
	}
	return strconv.ParseFloat(durationStr, 64)
}

func formatSeekTime(seconds float64) string {
	hours := int(seconds / 3600)
	minutes := int((seconds - float64(hours*3600)) / 60)
	secs := seconds - float64(hours*3600) - float64(minutes*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", hours, minutes, secs)
}

// =============================================================================
// CACHE MANAGEMENT
// =============================================================================

// Invalidate removes every cached variant for an item id.
func (s *Store) Invalidate(itemID int64) error {
	if !s.enabled {
		return nil
	}

	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache dir: %w", err)
	}

	prefix := fmt.Sprintf("%d_", itemID)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		path := filepath.Join(s.cacheDir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logging.Debug("thumbnail store: failed to remove %s: %v", path, err)
		}
	}
	return nil
}

// Cleanup sweeps the cache: entries whose source item no longer exists in
// the index are removed unconditionally, then if the remaining cache still
// exceeds maxBytes (0 disables the budget), least-recently-served entries
// are evicted until it fits.
func (s *Store) Cleanup(ctx context.Context, maxBytes int64) (removed int, freedBytes int64, err error) {
	if !s.enabled {
		return 0, 0, nil
	}

	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("read cache dir: %w", err)
	}

	type fileInfo struct {
		name    string
		size    int64
		modUnix int64
	}
	var live []fileInfo

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, freedBytes, err
		}
		if entry.IsDir() {
			continue
		}

		itemID, ok := itemIDFromCacheFileName(entry.Name())
		info, statErr := entry.Info()
		if statErr != nil {
			continue
		}

		if !ok || (s.itemExists != nil && !s.itemExists(itemID)) {
			path := filepath.Join(s.cacheDir, entry.Name())
			if err := os.Remove(path); err == nil {
				removed++
				freedBytes += info.Size()
				metrics.ThumbnailCacheEvictionsTotal.WithLabelValues("orphaned").Inc()
			}
			continue
		}

		live = append(live, fileInfo{name: entry.Name(), size: info.Size(), modUnix: info.ModTime().Unix()})
	}

	if maxBytes <= 0 {
		return removed, freedBytes, nil
	}

	var total int64
	for _, f := range live {
		total += f.size
	}
	if total <= maxBytes {
		return removed, freedBytes, nil
	}

	sort.Slice(live, func(i, j int) bool { return live[i].modUnix < live[j].modUnix })

	for _, f := range live {
		if total <= maxBytes {
			break
		}
		path := filepath.Join(s.cacheDir, f.name)
		if err := os.Remove(path); err != nil {
			continue
		}
		total -= f.size
		removed++
		freedBytes += f.size
		metrics.ThumbnailCacheEvictionsTotal.WithLabelValues("budget").Inc()
	}

	return removed, freedBytes, nil
}

// UpdateCacheMetrics scans the cache directory and updates Prometheus gauges.
func (s *Store) UpdateCacheMetrics() {
	if !s.enabled {
		metrics.ThumbnailCacheSize.Set(0)
		metrics.ThumbnailCacheCount.Set(0)
		return
	}

	var size int64
	var count int

	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Debug("thumbnail store: failed to read cache dir for metrics: %v", err)
		}
		metrics.ThumbnailCacheSize.Set(0)
		metrics.ThumbnailCacheCount.Set(0)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		count++
		if info, err := entry.Info(); err == nil {
			size += info.Size()
		}
	}

	metrics.ThumbnailCacheSize.Set(float64(size))
	metrics.ThumbnailCacheCount.Set(float64(count))
}

func itemIDFromCacheFileName(name string) (int64, bool) {
	idx := strings.IndexByte(name, '_')
	if idx <= 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(name[:idx], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func touchIfExists(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	now := time.Now()
	_ = os.Chtimes(path, now, now)
	return true
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
