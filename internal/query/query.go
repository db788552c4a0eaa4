// Package query is the read side of the index store: filtered, paginated,
// and grouped lookups over indexed media items.
package query

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"clipvault/internal/indexstore"
	"clipvault/internal/logging"
	"clipvault/internal/metrics"
	"clipvault/internal/tags"
)

// SortMode selects which field orders a queryResources page of groups.
type SortMode string

const (
	// SortPublish orders by the filename-derived timestamp.
	SortPublish SortMode = "publish"
	// SortIngest orders by scan/insert order.
	SortIngest SortMode = "ingest"
)

// Filter carries the optional constraints a query may apply. A zero Filter
// matches everything; Author is tri-state and must be set via WithAuthor.
type Filter struct {
	Type     string // exact match against a media_item_types.type token
	DirID    int64
	HasDirID bool
	author   *string // nil = no filter; non-nil (including "") = exact match
	Tag      string  // normalized tag, exact match
	Q        string  // free-text substring, matched against the precomputed search column
}

// WithAuthor returns a copy of f with an exact-match author constraint,
// including the empty string, which selects the "unknown publisher" bucket.
func (f Filter) WithAuthor(author string) Filter {
	f.author = &author
	return f
}

// Author reports the tri-state author filter: ok is false when unset.
func (f Filter) Author() (author string, ok bool) {
	if f.author == nil {
		return "", false
	}
	return *f.author, true
}

// Pagination is the envelope returned alongside a page of groups/authors.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

// itemsPerGroup is not referenced by any query: queryResources returns
// every member item of a matched group, and groups.go does no batching.
const itemsPerGroup = 12

// Engine is the query-side companion to an indexstore.Store.
type Engine struct {
	store            *indexstore.Store
	windowFuncsReady bool
}

// New builds an Engine over store, probing once for SQLite window-function
// support. When the probe succeeds, each QueryAuthors request tries the
// ROW_NUMBER() query and falls back to one query per author if it errors.
// When the probe fails, the ROW_NUMBER() query is never attempted for the
// life of the Engine and every request uses the per-author fallback.
func New(store *indexstore.Store) *Engine {
	q := &Engine{store: store}
	q.windowFuncsReady = q.probeWindowFunctions()
	if !q.windowFuncsReady {
		logging.Warn("SQLite build lacks window function support, using in-process grouping fallback")
	}
	return q
}

func (q *Engine) probeWindowFunctions() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := q.store.QueryContext(ctx, `SELECT ROW_NUMBER() OVER (ORDER BY 1)`)
	return err == nil
}

// buildFromWhere constructs the FROM/WHERE clause pair and bound args for f,
// joining media_item_tags/media_item_types only when Tag/Type are set. It is
// shared by queryResources and queryAuthors; queryTags uses its own
// tag-centric builder since its Q filter matches the tag name, not the
// item-level search column.
func (f Filter) buildFromWhere() (from, where string, args []any) {
	from = "media_items"
	var clauses []string

	if f.Type != "" {
		from += " JOIN media_item_types ON media_item_types.item_id = media_items.id"
		clauses = append(clauses, "media_item_types.type = ?")
		args = append(args, f.Type)
	}
	if f.Tag != "" {
		from += " JOIN media_item_tags ON media_item_tags.item_id = media_items.id"
		clauses = append(clauses, "media_item_tags.tag = ?")
		args = append(args, f.Tag)
	}
	if f.HasDirID {
		clauses = append(clauses, "media_items.dir_id = ?")
		args = append(args, f.DirID)
	}
	if author, ok := f.Author(); ok {
		clauses = append(clauses, "COALESCE(media_items.author, '') = ?")
		args = append(args, author)
	}
	if f.Q != "" {
		clauses = append(clauses, "media_items.search_text LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(strings.ToLower(f.Q))+"%")
	}

	if len(clauses) == 0 {
		where = "1=1"
	} else {
		where = strings.Join(clauses, " AND ")
	}
	return from, where, args
}

// escapeLike escapes the characters meaningful to a SQLite LIKE pattern so a
// user-supplied substring is matched literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

const itemColumns = `media_items.id, media_items.dir_id, media_items.rel_path, media_items.file_name,
	media_items.size, media_items.mod_time_unix, media_items.kind,
	media_items.time_text, media_items.iso, media_items.timestamp,
	COALESCE(media_items.type_text, ''), COALESCE(media_items.author, ''), media_items.theme, media_items.seq,
	media_items.created_at_ms, media_items.updated_at_ms`

// QueryResources groups matching items by (TimeText, Author, Theme) and
// returns one page of groups, the pagination envelope, and the count of
// matching items before grouping.
func (q *Engine) QueryResources(f Filter, page, pageSize int, sortMode SortMode) ([]indexstore.ResourceGroup, Pagination, int, error) {
	done := observe("resources")
	defer done()

	page, pageSize = normalizePaging(page, pageSize, 20, 200)
	ctx := context.Background()

	from, where, args := f.buildFromWhere()
	query := fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE %s`, itemColumns, from, where)

	rows, err := q.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Pagination{}, 0, fmt.Errorf("query resources: %w", err)
	}
	items, err := scanItems(rows)
	rows.Close()
	if err != nil {
		return nil, Pagination{}, 0, err
	}

	totalItems := len(items)
	if totalItems == 0 {
		return nil, paginate(0, page, pageSize), 0, nil
	}

	tagsByItem, err := q.tagsByItemIDs(ctx, itemIDs(items))
	if err != nil {
		return nil, Pagination{}, 0, err
	}

	groups := groupResourceItems(items, tagsByItem, sortMode)

	pg := paginate(len(groups), page, pageSize)
	start := (pg.Page - 1) * pg.PageSize
	end := start + pg.PageSize
	if start > len(groups) {
		start = len(groups)
	}
	if end > len(groups) {
		end = len(groups)
	}

	return groups[start:end], pg, totalItems, nil
}

type groupAccumulator struct {
	group          indexstore.ResourceGroup
	maxTimestampMs int64
	maxCreatedAtMs int64
}

// groupResourceItems partitions items by (TimeText, Author, Theme),
// preserving first-seen group order, then sorts the groups per sortMode and
// each group's members by seq (zero last) then RelPath. Grouping happens in process rather than via
// SQL GROUP BY because the per-group derived fields (Types, GroupType, Tags,
// ThemeText, member ordering) are cheaper to compute over the already
// fetched row set than to express as additional joined aggregate SQL.
func groupResourceItems(items []indexstore.MediaItem, tagsByItem map[int64][]string, sortMode SortMode) []indexstore.ResourceGroup {
	order := make([]string, 0, len(items))
	accByKey := make(map[string]*groupAccumulator)

	for _, it := range items {
		key := it.TimeText + "|" + it.Author + "|" + it.Theme
		acc, ok := accByKey[key]
		if !ok {
			acc = &groupAccumulator{group: indexstore.ResourceGroup{
				ID:       groupID(it.TimeText, it.Author, it.Theme),
				TimeText: it.TimeText,
				Iso:      it.Iso,
				Author:   it.Author,
				Theme:    it.Theme,
			}}
			accByKey[key] = acc
			order = append(order, key)
		}
		acc.group.Items = append(acc.group.Items, it)
		if it.Timestamp > acc.maxTimestampMs {
			acc.maxTimestampMs = it.Timestamp
		}
		if it.CreatedAtMs > acc.maxCreatedAtMs {
			acc.maxCreatedAtMs = it.CreatedAtMs
		}
	}

	groups := make([]indexstore.ResourceGroup, 0, len(order))
	accs := make([]*groupAccumulator, 0, len(order))
	for _, key := range order {
		acc := accByKey[key]
		finishGroup(acc, tagsByItem)
		groups = append(groups, acc.group)
		accs = append(accs, acc)
	}

	sort.SliceStable(accs, func(i, j int) bool {
		if sortMode == SortIngest {
			if accs[i].maxCreatedAtMs != accs[j].maxCreatedAtMs {
				return accs[i].maxCreatedAtMs > accs[j].maxCreatedAtMs
			}
		}
		if accs[i].maxTimestampMs != accs[j].maxTimestampMs {
			return accs[i].maxTimestampMs > accs[j].maxTimestampMs
		}
		return accs[i].group.TimeText > accs[j].group.TimeText
	})

	sorted := make([]indexstore.ResourceGroup, len(accs))
	for i, acc := range accs {
		sorted[i] = acc.group
	}
	return sorted
}

func finishGroup(acc *groupAccumulator, tagsByItem map[int64][]string) {
	g := &acc.group

	sort.SliceStable(g.Items, func(i, j int) bool {
		si, sj := effectiveSeq(g.Items[i]), effectiveSeq(g.Items[j])
		if si != sj {
			return si < sj
		}
		return g.Items[i].RelPath < g.Items[j].RelPath
	})

	typeSeen := make(map[string]struct{})
	tagSeen := make(map[string]struct{})
	var types, tagList []string
	for _, it := range g.Items {
		for _, t := range indexstore.SplitTypes(it.TypeText) {
			if _, ok := typeSeen[t]; !ok {
				typeSeen[t] = struct{}{}
				types = append(types, t)
			}
		}
		for _, t := range tagsByItem[it.ID] {
			if _, ok := tagSeen[t]; !ok {
				tagSeen[t] = struct{}{}
				tagList = append(tagList, t)
			}
		}
	}

	g.Types = types
	g.Tags = tagList
	g.ThemeText = tags.StripHashtags(g.Theme)
	switch len(types) {
	case 0:
		g.GroupType = "file"
	case 1:
		g.GroupType = types[0]
	default:
		g.GroupType = "mixed"
	}
}

func effectiveSeq(it indexstore.MediaItem) int {
	if it.Seq == 0 {
		return math.MaxInt32
	}
	return it.Seq
}

// groupID is the stable id for a resource group, sha1 hex of its key fields.
func groupID(timeText, author, theme string) string {
	sum := sha1.Sum([]byte(timeText + "|" + author + "|" + theme))
	return hex.EncodeToString(sum[:])
}

func itemIDs(items []indexstore.MediaItem) []int64 {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// tagsByItemIDs batches a tags-per-item lookup for every id in ids.
func (q *Engine) tagsByItemIDs(ctx context.Context, ids []int64) (map[int64][]string, error) {
	result := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT item_id, tag FROM media_item_tags WHERE item_id IN (%s)`, strings.Join(placeholders, ", "))
	rows, err := q.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tags by item ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var itemID int64
		var tag string
		if err := rows.Scan(&itemID, &tag); err != nil {
			return nil, fmt.Errorf("tags by item ids: scan: %w", err)
		}
		result[itemID] = append(result[itemID], tag)
	}
	return result, rows.Err()
}

func scanItems(rows *sql.Rows) ([]indexstore.MediaItem, error) {
	var items []indexstore.MediaItem
	for rows.Next() {
		var it indexstore.MediaItem
		if err := rows.Scan(&it.ID, &it.DirID, &it.RelPath, &it.FileName, &it.Size, &it.ModTimeUnix,
			&it.Kind, &it.TimeText, &it.Iso, &it.Timestamp, &it.TypeText, &it.Author, &it.Theme, &it.Seq,
			&it.CreatedAtMs, &it.UpdatedAtMs); err != nil {
			return nil, fmt.Errorf("scan media item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// paginate builds a Pagination envelope for total items of pageSize size,
// clamping page into [1, totalPages].
func paginate(total, page, pageSize int) Pagination {
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasMore:    page < totalPages,
	}
}

// normalizePaging clamps page to >= 1 and pageSize into [1, maxSize],
// defaulting an unset pageSize to minDefault.
func normalizePaging(page, pageSize, minDefault, maxSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = minDefault
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}

// normalizeLimit clamps a flat (non-paginated) limit into [1, max].
func normalizeLimit(limit, max int) int {
	if limit < 1 {
		limit = max
	}
	if limit > max {
		limit = max
	}
	return limit
}

func observe(operation string) func() {
	start := time.Now()
	return func() {
		metrics.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
