package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetResourcesEmpty(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/resources", http.NoBody)
	w := httptest.NewRecorder()

	env.h.GetResources(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp resourcesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Groups) != 0 {
		t.Errorf("expected no groups, got %d", len(resp.Groups))
	}
}

func TestGetResourcesReturnsIndexedItems(t *testing.T) {
	env := newTestEnv(t)
	env.putFile(t, "clip.jpg", []byte("data"))

	req := httptest.NewRequest(http.MethodGet, "/api/resources", http.NoBody)
	w := httptest.NewRecorder()

	env.h.GetResources(w, req)

	var resp resourcesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Groups) != 1 || len(resp.Groups[0].Items) != 1 {
		t.Fatalf("expected 1 group with 1 item, got %+v", resp.Groups)
	}
	if resp.Page.TotalItems != 1 || resp.Page.Total != 1 {
		t.Errorf("expected total/totalItems 1, got %+v", resp.Page)
	}
	if resp.Groups[0].Items[0].ThumbURL == "" {
		t.Error("expected an image item to carry a ThumbURL")
	}
}

func TestGetResourcesHonorsIfNoneMatch(t *testing.T) {
	env := newTestEnv(t)
	env.putFile(t, "clip.jpg", []byte("data"))

	req1 := httptest.NewRequest(http.MethodGet, "/api/resources", http.NoBody)
	w1 := httptest.NewRecorder()
	env.h.GetResources(w1, req1)

	etag := w1.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected an ETag header")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/resources", http.NoBody)
	req2.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	env.h.GetResources(w2, req2)

	if w2.Code != http.StatusNotModified {
		t.Errorf("expected 304, got %d", w2.Code)
	}
	if w2.Body.Len() != 0 {
		t.Errorf("expected empty body on 304, got %d bytes", w2.Body.Len())
	}
}

func TestGetResourcesDirIDFilter(t *testing.T) {
	env := newTestEnv(t)
	id := env.putFile(t, "clip.jpg", []byte("data"))

	req := httptest.NewRequest(http.MethodGet, "/api/resources?dirId=999999", http.NoBody)
	w := httptest.NewRecorder()
	env.h.GetResources(w, req)

	var resp resourcesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Groups) != 0 {
		t.Fatalf("expected dirId filter for an unrelated dir to exclude item %d, got %+v", id, resp.Groups)
	}
}

func TestGetResourcesAuthorTriState(t *testing.T) {
	env := newTestEnv(t)
	env.putFile(t, "clip.jpg", []byte("data"))

	// Unset author: no filter, item returned.
	req := httptest.NewRequest(http.MethodGet, "/api/resources", http.NoBody)
	w := httptest.NewRecorder()
	env.h.GetResources(w, req)
	var resp resourcesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Groups) != 1 {
		t.Fatalf("expected 1 group with no author filter, got %d", len(resp.Groups))
	}

	// Explicit empty author: selects the unknown-publisher bucket, which this
	// item (Author=="") belongs to.
	req2 := httptest.NewRequest(http.MethodGet, "/api/resources?author=", http.NoBody)
	w2 := httptest.NewRecorder()
	env.h.GetResources(w2, req2)
	var resp2 resourcesResponse
	_ = json.Unmarshal(w2.Body.Bytes(), &resp2)
	if len(resp2.Groups) != 1 {
		t.Fatalf("expected explicit empty author to still match the unknown-publisher item, got %d", len(resp2.Groups))
	}

	// A non-matching author excludes it.
	req3 := httptest.NewRequest(http.MethodGet, "/api/resources?author=nobody", http.NoBody)
	w3 := httptest.NewRecorder()
	env.h.GetResources(w3, req3)
	var resp3 resourcesResponse
	_ = json.Unmarshal(w3.Body.Bytes(), &resp3)
	if len(resp3.Groups) != 0 {
		t.Fatalf("expected non-matching author to exclude the item, got %d", len(resp3.Groups))
	}
}

func TestGetAuthorsGroupsByAuthor(t *testing.T) {
	env := newTestEnv(t)
	id := env.putFile(t, "clip.jpg", []byte("data"))
	item, _, err := env.store.GetItem(id)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	item.Author = "alice"
	if _, err := env.store.UpsertItem(item); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/authors", http.NoBody)
	w := httptest.NewRecorder()
	env.h.GetAuthors(w, req)

	var resp authorsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Authors) != 1 || resp.Authors[0].Author != "alice" {
		t.Errorf("expected a single alice author, got %+v", resp.Authors)
	}
	if resp.Authors[0].LatestItem == nil {
		t.Error("expected LatestItem to be populated")
	}
}

func TestGetTagGroupsEmpty(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tags", http.NoBody)
	w := httptest.NewRecorder()
	env.h.GetTagGroups(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp tagsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Tags == nil {
		t.Error("expected Tags to be an empty slice, not nil")
	}
}

func TestResourceFilterParsesQueryParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/api/resources?type=video&dirId=7&author=bob&tag=funny&q=cat&page=2&pageSize=10&sort=ingest", http.NoBody)

	f := resourceFilter(req)
	page, pageSize := parsePage(req)
	sortMode := parseSortMode(req)

	if f.Type != "video" || f.Tag != "funny" || f.Q != "cat" {
		t.Errorf("unexpected filter: %+v", f)
	}
	if !f.HasDirID || f.DirID != 7 {
		t.Errorf("expected dirId=7, got HasDirID=%v DirID=%d", f.HasDirID, f.DirID)
	}
	if author, ok := f.Author(); !ok || author != "bob" {
		t.Errorf("expected author=bob, got ok=%v author=%q", ok, author)
	}
	if page != 2 || pageSize != 10 {
		t.Errorf("expected page=2 pageSize=10, got page=%d pageSize=%d", page, pageSize)
	}
	if string(sortMode) != "ingest" {
		t.Errorf("expected ingest sort mode, got %q", sortMode)
	}
}

func TestResourceFilterAuthorUnsetWhenAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/resources", http.NoBody)
	f := resourceFilter(req)
	if _, ok := f.Author(); ok {
		t.Error("expected author filter to be unset when the query param is absent")
	}
}
