package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"clipvault/internal/httpcache"
	"clipvault/internal/indexstore"
	"clipvault/internal/query"
)

// resourceFilter parses the type/dirId/author/tag/q query parameters shared
// by /api/resources, /api/authors, and /api/tags. author is tri-state: the
// param must be present (r.URL.Query().Has) to apply any author constraint
// at all, so an explicit empty value still selects the unknown-publisher
// bucket instead of being indistinguishable from "no filter".
func resourceFilter(r *http.Request) query.Filter {
	q := r.URL.Query()

	f := query.Filter{
		Type: q.Get("type"),
		Tag:  q.Get("tag"),
		Q:    q.Get("q"),
	}
	if dirID, err := strconv.ParseInt(q.Get("dirId"), 10, 64); err == nil {
		f.DirID = dirID
		f.HasDirID = true
	}
	if q.Has("author") {
		f = f.WithAuthor(q.Get("author"))
	}
	return f
}

func parsePage(r *http.Request) (page, pageSize int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	pageSize, _ = strconv.Atoi(q.Get("pageSize"))
	return page, pageSize
}

func parseSortMode(r *http.Request) query.SortMode {
	if r.URL.Query().Get("sort") == string(query.SortIngest) {
		return query.SortIngest
	}
	return query.SortPublish
}

func parseLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}

// resourceItemView is the wire shape of one member of a resource group: the
// stored fields a client needs plus the URLs it can't derive without
// knowing our route layout.
type resourceItemView struct {
	ID       int64  `json:"id"`
	DirID    int64  `json:"dirId"`
	FileName string `json:"fileName"`
	Ext      string `json:"ext"`
	Kind     string `json:"kind"`
	Size     int64  `json:"size"`
	Seq      int    `json:"seq"`
	URL      string `json:"url"`
	ThumbURL string `json:"thumbUrl,omitempty"`
}

func newResourceItemView(item indexstore.MediaItem) resourceItemView {
	v := resourceItemView{
		ID: item.ID, DirID: item.DirID, FileName: item.FileName,
		Ext: filepath.Ext(item.FileName), Kind: item.Kind, Size: item.Size, Seq: item.Seq,
		URL: fmt.Sprintf("/media/%d", item.ID),
	}
	switch item.Kind {
	case "image":
		v.ThumbURL = fmt.Sprintf("/thumb/%d", item.ID)
	case "video":
		v.ThumbURL = fmt.Sprintf("/vthumb/%d", item.ID)
	}
	return v
}

// resourceGroupView is the wire shape of one ResourceGroup.
type resourceGroupView struct {
	ID        string              `json:"id"`
	TimeText  string              `json:"timeText"`
	Iso       string              `json:"iso"`
	Author    string              `json:"author"`
	Theme     string              `json:"theme"`
	ThemeText string              `json:"themeText"`
	Types     []string            `json:"types"`
	GroupType string              `json:"groupType"`
	Tags      []string            `json:"tags"`
	Items     []resourceItemView  `json:"items"`
}

func newResourceGroupView(g indexstore.ResourceGroup) resourceGroupView {
	items := make([]resourceItemView, len(g.Items))
	for i, it := range g.Items {
		items[i] = newResourceItemView(it)
	}
	return resourceGroupView{
		ID: g.ID, TimeText: g.TimeText, Iso: g.Iso, Author: g.Author, Theme: g.Theme,
		ThemeText: g.ThemeText, Types: orEmptyStrings(g.Types), GroupType: g.GroupType,
		Tags: orEmptyStrings(g.Tags), Items: items,
	}
}

func orEmptyStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type resourcesPageMeta struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	Total      int  `json:"total"`
	TotalItems int  `json:"totalItems"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

type resourcesResponse struct {
	Groups []resourceGroupView `json:"groups"`
	Page   resourcesPageMeta   `json:"page"`
}

// GetResources handles GET /api/resources.
func (h *Handlers) GetResources(w http.ResponseWriter, r *http.Request) {
	f := resourceFilter(r)
	page, pageSize := parsePage(r)
	sortMode := parseSortMode(r)

	groups, pg, totalItems, err := h.query.QueryResources(f, page, pageSize, sortMode)
	if err != nil {
		writeJSONError(w, "failed to query resources", http.StatusInternalServerError)
		return
	}

	views := make([]resourceGroupView, len(groups))
	for i, g := range groups {
		views[i] = newResourceGroupView(g)
	}

	resp := resourcesResponse{
		Groups: views,
		Page: resourcesPageMeta{
			Page: pg.Page, PageSize: pg.PageSize, Total: pg.Total,
			TotalItems: totalItems, TotalPages: pg.TotalPages, HasMore: pg.HasMore,
		},
	}
	writeCachedJSON(w, r, resp)
}

type authorView struct {
	Author            string             `json:"author"`
	GroupCount        int                `json:"groupCount"`
	ItemCount         int                `json:"itemCount"`
	LatestTimestampMs int64              `json:"latestTimestampMs"`
	LatestItem        *resourceItemView  `json:"latestItem,omitempty"`
}

func newAuthorView(s indexstore.AuthorStat) authorView {
	v := authorView{
		Author: s.Author, GroupCount: s.GroupCount, ItemCount: s.ItemCount,
		LatestTimestampMs: s.LatestTimestampMs,
	}
	if s.LatestItem != nil {
		item := newResourceItemView(*s.LatestItem)
		v.LatestItem = &item
	}
	return v
}

type authorsPageMeta struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

type authorsResponse struct {
	Authors []authorView    `json:"authors"`
	Page    authorsPageMeta `json:"page"`
}

// GetAuthors handles GET /api/authors.
func (h *Handlers) GetAuthors(w http.ResponseWriter, r *http.Request) {
	f := resourceFilter(r)
	page, pageSize := parsePage(r)

	stats, pg, err := h.query.QueryAuthors(f, page, pageSize)
	if err != nil {
		writeJSONError(w, "failed to query authors", http.StatusInternalServerError)
		return
	}

	views := make([]authorView, len(stats))
	for i, s := range stats {
		views[i] = newAuthorView(s)
	}

	resp := authorsResponse{
		Authors: views,
		Page: authorsPageMeta{
			Page: pg.Page, PageSize: pg.PageSize, Total: pg.Total,
			TotalPages: pg.TotalPages, HasMore: pg.HasMore,
		},
	}
	writeCachedJSON(w, r, resp)
}

type tagView struct {
	Tag               string `json:"tag"`
	GroupCount        int    `json:"groupCount"`
	ItemCount         int    `json:"itemCount"`
	LatestTimestampMs int64  `json:"latestTimestampMs"`
}

type tagsResponse struct {
	Tags []tagView `json:"tags"`
}

// GetTagGroups handles GET /api/tags. It has no pagination envelope, only a
// flat limit.
func (h *Handlers) GetTagGroups(w http.ResponseWriter, r *http.Request) {
	f := resourceFilter(r)
	limit := parseLimit(r)

	stats, err := h.query.QueryTags(f, limit)
	if err != nil {
		writeJSONError(w, "failed to query tags", http.StatusInternalServerError)
		return
	}

	views := make([]tagView, len(stats))
	for i, s := range stats {
		views[i] = tagView{
			Tag: s.Tag, GroupCount: s.GroupCount, ItemCount: s.ItemCount,
			LatestTimestampMs: s.LatestTimestampMs,
		}
	}

	writeCachedJSON(w, r, tagsResponse{Tags: views})
}

// writeCachedJSON marshals v, applies the no-cache JSON policy with a
// content-hash ETag, and honors If-None-Match with a bodyless 304.
func writeCachedJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	body, err := marshalJSON(v)
	if err != nil {
		writeJSONError(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	etag := httpcache.ETagForBytes(body)
	if httpcache.WriteHeaders(w, r, etag, httpcache.PolicyNoCache) {
		httpcache.NotModified(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
