// Package mediatypes classifies files by extension into the kinds the
// index store understands.
package mediatypes

// Kind represents the canonical classification of an indexed file.
type Kind string

const (
	// KindImage is a file recognized as a still image.
	KindImage Kind = "image"
	// KindVideo is a file recognized as a short-form video.
	KindVideo Kind = "video"
	// KindFile is the canonical non-media value: a filename that matched
	// the grammar but carries no known media extension. Filenames that do
	// not match the grammar are not indexed under any kind. Handlers must
	// treat this the same as any other "not structured media" case rather
	// than special-casing it.
	KindFile Kind = "file"
)

// ImageExtensions maps file extensions to whether they are supported image formats.
var ImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".webp": true, ".heic": true, ".heif": true,
	".tiff": true, ".tif": true,
}

// VideoExtensions maps file extensions to whether they are supported video formats.
var VideoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".mov": true, ".webm": true,
	".m4v": true, ".avi": true, ".ts": true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".png": "image/png",
	".gif": "image/gif", ".bmp": "image/bmp", ".webp": "image/webp",
	".heic": "image/heic", ".heif": "image/heif", ".tiff": "image/tiff", ".tif": "image/tiff",
	".mp4": "video/mp4", ".mkv": "video/x-matroska", ".mov": "video/quicktime",
	".webm": "video/webm", ".m4v": "video/x-m4v", ".avi": "video/x-msvideo", ".ts": "video/mp2t",
}

// ClassifyExtension returns the Kind implied by a file extension alone.
// It does not consider filename grammar: the indexer only calls it for
// names that already parsed, and skips names that do not parse.
func ClassifyExtension(ext string) Kind {
	if ImageExtensions[ext] {
		return KindImage
	}
	if VideoExtensions[ext] {
		return KindVideo
	}
	return KindFile
}

// GetMimeType returns the MIME type for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsMediaExtension returns true if the extension represents a recognized
// image or video format.
func IsMediaExtension(ext string) bool {
	k := ClassifyExtension(ext)
	return k == KindImage || k == KindVideo
}
