// Package thumbnail implements the content-addressed on-disk thumbnail
// cache: image decode/resize, ffmpeg-based video frame extraction, and
// cache cleanup for indexed media items.
package thumbnail
