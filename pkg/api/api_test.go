package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hnidx/hnidx/pkg/search"
	"github.com/hnidx/hnidx/pkg/storage"
)

func newTestServer(t *testing.T) (http.Handler, *storage.Store) {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("closing store: %v", err)
		}
	})

	service := search.NewService(store, nil, search.Config{})
	server := NewServer(service, store)

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	return CorsMiddleware(RequestIDMiddleware(mux)), store
}

func seedStories(t *testing.T, store *storage.Store) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err := store.IndexItems(context.Background(), []storage.Item{
		{ID: 1, Title: "Go Performance Tips", Author: "gopher", Score: 120,
			URL: "https://example.com/go", CreatedAt: base},
		{ID: 2, Title: "React Hooks Guide", Author: "fe", Score: 80,
			URL: "https://react.dev/hooks", CreatedAt: base.Add(time.Hour)},
		{ID: 3, Title: "Ask HN: Favorite Editor", Author: "curious", Score: 45,
			CreatedAt: base.Add(2 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("seeding stories: %v", err)
	}
}

func doGET(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestListItems(t *testing.T) {
	handler, store := newTestServer(t)
	seedStories(t, store)

	rec := doGET(t, handler, "/api/items?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ListItemsResponse
	decode(t, rec, &resp)
	if resp.Count != 2 || resp.Total != 3 {
		t.Errorf("count/total = %d/%d, want 2/3", resp.Count, resp.Total)
	}
	// Newest first.
	if resp.Items[0].ID != 3 {
		t.Errorf("first item = %d, want 3", resp.Items[0].ID)
	}
}

func TestListItemsClampsPagination(t *testing.T) {
	handler, store := newTestServer(t)
	seedStories(t, store)

	rec := doGET(t, handler, "/api/items?page=-1&limit=99999")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ListItemsResponse
	decode(t, rec, &resp)
	if resp.Page != 1 || resp.Limit != 20 {
		t.Errorf("page/limit = %d/%d, want clamped 1/20", resp.Page, resp.Limit)
	}
}

func TestGetItem(t *testing.T) {
	handler, store := newTestServer(t)
	seedStories(t, store)

	rec := doGET(t, handler, "/api/items/2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var item storage.Item
	decode(t, rec, &item)
	if item.Title != "React Hooks Guide" {
		t.Errorf("title = %q", item.Title)
	}

	if rec := doGET(t, handler, "/api/items/999"); rec.Code != http.StatusNotFound {
		t.Errorf("missing item status = %d, want 404", rec.Code)
	}
	if rec := doGET(t, handler, "/api/items/banana"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	handler, store := newTestServer(t)
	seedStories(t, store)

	rec := doGET(t, handler, "/api/search?q=react")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp SearchResponse
	decode(t, rec, &resp)
	if resp.Count != 1 || resp.Items[0].ID != 2 {
		t.Errorf("expected item 2, got %+v", resp.Items)
	}
	if resp.Query != "react" {
		t.Errorf("query echoed as %q", resp.Query)
	}
}

func TestSearchWithFilters(t *testing.T) {
	handler, store := newTestServer(t)
	seedStories(t, store)

	rec := doGET(t, handler, "/api/search?min_score=100&sort=score")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp SearchResponse
	decode(t, rec, &resp)
	if resp.Count != 1 || resp.Items[0].ID != 1 {
		t.Errorf("expected only the high-score item, got %+v", resp.Items)
	}

	rec = doGET(t, handler, "/api/search?has_url=false")
	decode(t, rec, &resp)
	if resp.Count != 1 || resp.Items[0].ID != 3 {
		t.Errorf("expected only the story without a URL, got %+v", resp.Items)
	}
}

func TestSearchRejectsMalformedParams(t *testing.T) {
	handler, _ := newTestServer(t)

	bad := []string{
		"/api/search?since=yesterday",
		"/api/search?until=2024-99-99",
		"/api/search?min_score=lots",
		"/api/search?has_url=maybe",
	}
	for _, path := range bad {
		if rec := doGET(t, handler, path); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestSuggestAlwaysSucceeds(t *testing.T) {
	handler, store := newTestServer(t)
	seedStories(t, store)

	rec := doGET(t, handler, "/api/suggest?q=re")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp SuggestResponse
	decode(t, rec, &resp)
	if resp.Count == 0 {
		t.Errorf("expected suggestions for %q, got none", "re")
	}

	// Below minimum length still answers 200 with an empty list.
	rec = doGET(t, handler, "/api/suggest?q=r")
	if rec.Code != http.StatusOK {
		t.Fatalf("short partial status = %d, want 200", rec.Code)
	}
	decode(t, rec, &resp)
	if resp.Count != 0 {
		t.Errorf("expected no suggestions for a single rune, got %v", resp.Suggestions)
	}
}

func TestRebuildEndpoint(t *testing.T) {
	handler, store := newTestServer(t)
	seedStories(t, store)

	// Drift the index, then rebuild through the API.
	if _, err := store.DB().Exec("DELETE FROM items_fts"); err != nil {
		t.Fatalf("clearing full-text table: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/rebuild", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	res := doGET(t, handler, "/api/search?q=react")
	var resp SearchResponse
	decode(t, res, &resp)
	if resp.Count != 1 {
		t.Errorf("search after rebuild found %d items, want 1", resp.Count)
	}
}

func TestStatsEndpoint(t *testing.T) {
	handler, store := newTestServer(t)
	seedStories(t, store)

	rec := doGET(t, handler, "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp StatsResponse
	decode(t, rec, &resp)
	if resp.Stats["total_items"] != float64(3) {
		t.Errorf("total_items = %v, want 3", resp.Stats["total_items"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := doGET(t, handler, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	decode(t, rec, &resp)
	if resp.Status != "healthy" || resp.Version == "" {
		t.Errorf("unexpected health payload %+v", resp)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := doGET(t, handler, "/health")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "caller-supplied" {
		t.Errorf("request id = %q, want caller-supplied", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS headers on preflight")
	}
}
