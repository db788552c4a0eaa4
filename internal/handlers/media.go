package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"clipvault/internal/filesystem"
	"clipvault/internal/httpcache"
	"clipvault/internal/indexstore"
	"clipvault/internal/logging"
	"clipvault/internal/mediatypes"
	"clipvault/internal/thumbnail"

	"github.com/gorilla/mux"
)

// resolvePath is the /media/{id} path-building logic: join the item's
// configured MediaDir with its stored relative path, rejecting anything
// that escapes the root. It shares its implementation with the thumbnail
// pipeline's PathResolver, wired in main.go against the same store.
func (h *Handlers) resolvePath(item indexstore.MediaItem) (string, error) {
	return indexstore.ResolveItemPath(h.store, item)
}

func isSubPath(parent, child string) bool {
	parent = filepath.Clean(parent)
	child = filepath.Clean(child)
	return child == parent || strings.HasPrefix(child, parent+string(filepath.Separator))
}

func itemIDFromRequest(r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}

// GetMedia handles GET /media/{id}: a byte-range-capable stream of the
// indexed file's source bytes.
func (h *Handlers) GetMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := itemIDFromRequest(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	item, found, err := h.store.GetItem(id)
	if err != nil {
		logging.Error("media: get item %d: %v", id, err)
		http.Error(w, "failed to look up item", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	path, err := h.resolvePath(item)
	if err != nil {
		logging.Warn("media: resolve path for item %d: %v", id, err)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if _, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig()); err != nil {
		logging.Warn("media: stat item %d at %s: %v", id, path, err)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	etag := httpcache.ETagForFingerprint(item.ID, item.Size, item.ModTimeUnix, "source")
	if httpcache.WriteHeaders(w, r, etag, httpcache.PolicyMedia) {
		httpcache.NotModified(w)
		return
	}

	w.Header().Set("Content-Type", mediatypes.GetMimeType(strings.ToLower(filepath.Ext(item.FileName))))
	http.ServeFile(w, r, path)
}

// getThumbnail is shared between /thumb/{id} and /vthumb/{id}: the only
// difference between the two endpoints is which kinds of item they accept.
func (h *Handlers) getThumbnail(w http.ResponseWriter, r *http.Request, variant thumbnail.Variant, allowedKind string) {
	id, ok := itemIDFromRequest(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	item, found, err := h.store.GetItem(id)
	if err != nil {
		logging.Error("thumbnail: get item %d: %v", id, err)
		http.Error(w, "failed to look up item", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if item.Kind != allowedKind {
		http.Error(w, "wrong endpoint for this item kind", http.StatusUnsupportedMediaType)
		return
	}

	if r.URL.Query().Get("size") == "large" {
		variant = thumbnail.VariantLarge
	}

	etag := httpcache.ETagForFingerprint(item.ID, item.Size, item.ModTimeUnix, string(variant))
	if httpcache.WriteHeaders(w, r, etag, httpcache.PolicyImmutable) {
		httpcache.NotModified(w)
		return
	}

	artifact, err := h.thumbs.Get(r.Context(), item, variant)
	if err != nil {
		status, message := thumbnailErrorStatus(err)
		http.Error(w, message, status)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	http.ServeFile(w, r, artifact.Path)
}

// GetImageThumbnail handles GET /thumb/{id}.
func (h *Handlers) GetImageThumbnail(w http.ResponseWriter, r *http.Request) {
	h.getThumbnail(w, r, thumbnail.VariantDefault, "image")
}

// GetVideoThumbnail handles GET /vthumb/{id}.
func (h *Handlers) GetVideoThumbnail(w http.ResponseWriter, r *http.Request) {
	h.getThumbnail(w, r, thumbnail.VariantDefault, "video")
}

func thumbnailErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, thumbnail.ErrSourceUnreadable):
		return http.StatusNotFound, "source file unreadable"
	case errors.Is(err, thumbnail.ErrToolUnavailable):
		return http.StatusServiceUnavailable, "thumbnail generation tool unavailable"
	case errors.Is(err, thumbnail.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported media kind"
	default:
		return http.StatusInternalServerError, "failed to generate thumbnail"
	}
}
