// Package indexstore persists the media index in SQLite: directories,
// items, tags, per-directory scan bookkeeping, and a small settings table.
package indexstore

import "strings"

// MediaDir is one configured root directory that gets scanned.
type MediaDir struct {
	ID   int64
	Path string
}

// MediaItem is one indexed file. Identity is (DirID, RelPath). A row only
// exists for filenames that parsed under the filename grammar.
type MediaItem struct {
	ID          int64
	DirID       int64
	RelPath     string // path relative to the MediaDir root
	FileName    string
	Size        int64
	ModTimeUnix int64
	Kind        string // "image", "video", "file" (canonical non-media value)
	TimeText    string // literal 19-char "YYYY-MM-DD HH.MM.SS" timestamp substring
	Iso         string // TimeText normalized to "YYYY-MM-DDTHH:MM:SS"
	Timestamp   int64  // unix millis derived from Iso
	TypeText    string // raw grammar TYPE field, may be "A+B" for multi-type
	Author      string // "" merged with NULL via COALESCE, see DESIGN.md
	Theme       string // may contain #hashtags
	Seq         int
	CreatedAtMs int64 // start time (unix ms) of the scan run that first inserted the row
	UpdatedAtMs int64
}

// MediaItemType is the denormalized set of tokens produced by splitting a
// MediaItem's TypeText on '+'. Rebuilt (delete-then-reinsert) whenever the
// parent MediaItem is written.
type MediaItemType struct {
	ItemID int64
	Type   string
}

// SplitTypes splits a raw TypeText field on '+' into its declared type
// tokens, dropping empty segments.
func SplitTypes(typeText string) []string {
	if typeText == "" {
		return nil
	}
	parts := strings.Split(typeText, "+")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MediaItemTag is a many-to-many join between a MediaItem and a normalized
// hashtag string.
type MediaItemTag struct {
	ItemID int64
	Tag    string
}

// DirState is per-directory bookkeeping for the indexer's mtime optimization.
type DirState struct {
	DirID     int64
	RelDir    string
	LastModMs int64
	LastRunID int64
}

// ResourceGroup is an equivalence class of MediaItems sharing (TimeText,
// Author, Theme) — the unit of queryResources output and pagination.
type ResourceGroup struct {
	ID        string
	TimeText  string
	Iso       string
	Author    string
	Theme     string
	ThemeText string   // Theme with hashtag tokens stripped
	Types     []string // deduped union of member items' TypeText, split on '+'
	GroupType string   // the single type, or "mixed" when len(Types) > 1
	Tags      []string // deduped union of member items' tags
	Items     []MediaItem
}

// AuthorStat is one row of the queryAuthors aggregate.
type AuthorStat struct {
	Author            string
	GroupCount        int // distinct (TimeText, Author, Theme) under this author
	ItemCount         int
	LatestTimestampMs int64
	LatestItem        *MediaItem // nil only when the latest-item lookup itself fails
}

// TagStat is one row of the queryTags aggregate.
type TagStat struct {
	Tag               string
	GroupCount        int
	ItemCount         int
	LatestTimestampMs int64
}
