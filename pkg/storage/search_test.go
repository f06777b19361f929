package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func intPtr(v int) *int              { return &v }
func boolPtr(v bool) *bool           { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func ids(page *Page) []int64 {
	out := make([]int64, 0, len(page.Items))
	for _, it := range page.Items {
		out = append(out, it.ID)
	}
	return out
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// seedCatalog writes the canonical four-story fixture used by the filter
// tests.
func seedCatalog(t *testing.T, store *Store) {
	t.Helper()
	mustIndex(t, store,
		Item{ID: 1, Title: "JS Best Practices", Author: "dev", Score: 150,
			URL: "https://example.com/a", CreatedAt: at("2024-01-01T10:00:00Z")},
		Item{ID: 2, Title: "React Testing", Author: "tester", Score: 200,
			URL: "https://react.dev/t", CreatedAt: at("2024-01-02T10:00:00Z")},
		Item{ID: 3, Title: "No URL Story", Author: "dev2", Score: 75,
			CreatedAt: at("2024-01-03T10:00:00Z")},
		Item{ID: 4, Title: "Popular Article", Author: "pop", Score: 500,
			URL: "https://popular.com/x", CreatedAt: at("2024-01-04T10:00:00Z")},
	)
}

func TestSearchByText(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)

	page, err := store.Search(context.Background(), Query{Text: "react", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !sameIDs(ids(page), []int64{2}) {
		t.Errorf("expected item 2, got %v", ids(page))
	}
	if page.Total != 1 {
		t.Errorf("total = %d, want 1", page.Total)
	}
}

func TestSearchMinScoreSortedByScore(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)

	page, err := store.Search(context.Background(), Query{
		Page: 1, PageSize: 10, Sort: SortScore,
		Filters: Filters{MinScore: intPtr(100)},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !sameIDs(ids(page), []int64{4, 2, 1}) {
		t.Errorf("expected [4 2 1] (scores 500, 200, 150), got %v", ids(page))
	}
}

func TestSearchHasURLFalse(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)

	page, err := store.Search(context.Background(), Query{
		Page: 1, PageSize: 10,
		Filters: Filters{HasURL: boolPtr(false)},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !sameIDs(ids(page), []int64{3}) {
		t.Errorf("expected only the story without a URL, got %v", ids(page))
	}
}

func TestSearchAuthorAndDomainFilters(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	ctx := context.Background()

	byAuthor, err := store.Search(ctx, Query{
		Page: 1, PageSize: 10, Filters: Filters{Author: "dev"},
	})
	if err != nil {
		t.Fatalf("author search: %v", err)
	}
	if !sameIDs(ids(byAuthor), []int64{1}) {
		t.Errorf("author filter must be exact, got %v", ids(byAuthor))
	}

	byDomain, err := store.Search(ctx, Query{
		Page: 1, PageSize: 10, Filters: Filters{Domain: "react.dev"},
	})
	if err != nil {
		t.Fatalf("domain search: %v", err)
	}
	if !sameIDs(ids(byDomain), []int64{2}) {
		t.Errorf("domain filter, got %v", ids(byDomain))
	}
}

func TestSearchDateRange(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)

	page, err := store.Search(context.Background(), Query{
		Page: 1, PageSize: 10, Sort: SortOldest,
		Filters: Filters{
			Since: timePtr(at("2024-01-02T00:00:00Z")),
			Until: timePtr(at("2024-01-03T23:59:59Z")),
		},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !sameIDs(ids(page), []int64{2, 3}) {
		t.Errorf("expected items created Jan 2-3 in ascending order, got %v", ids(page))
	}
}

func TestSortOrders(t *testing.T) {
	store := newTestStore(t)
	mustIndex(t, store,
		Item{ID: 1, Title: "alpha story", Author: "a", Score: 10, Comments: 100,
			CreatedAt: at("2024-01-01T00:00:00Z")},
		Item{ID: 2, Title: "beta story", Author: "a", Score: 30, Comments: 5,
			CreatedAt: at("2024-01-02T00:00:00Z")},
		Item{ID: 3, Title: "gamma story", Author: "a", Score: 20, Comments: 50,
			CreatedAt: at("2024-01-03T00:00:00Z")},
	)

	tests := []struct {
		sort SortOrder
		want []int64
	}{
		{SortScore, []int64{2, 3, 1}},
		{SortRecent, []int64{3, 2, 1}},
		{SortOldest, []int64{1, 2, 3}},
		{SortComments, []int64{1, 3, 2}},
		// Relevance without a text term degrades to score ordering.
		{SortRelevance, []int64{2, 3, 1}},
	}

	for _, tt := range tests {
		page, err := store.Search(context.Background(), Query{
			Text: "story", Page: 1, PageSize: 10, Sort: tt.sort,
		})
		if err != nil {
			t.Fatalf("sort %s: %v", tt.sort, err)
		}
		if tt.sort == SortRelevance {
			// Ranking order is an FTS implementation detail; only check
			// the full result set.
			if len(page.Items) != 3 {
				t.Errorf("sort %s: expected 3 results, got %d", tt.sort, len(page.Items))
			}
			continue
		}
		if !sameIDs(ids(page), tt.want) {
			t.Errorf("sort %s: got %v, want %v", tt.sort, ids(page), tt.want)
		}
	}

	// Without a text term, relevance must order deterministically by score.
	page, err := store.Search(context.Background(), Query{Page: 1, PageSize: 10, Sort: SortRelevance})
	if err != nil {
		t.Fatalf("relevance without text: %v", err)
	}
	if !sameIDs(ids(page), []int64{2, 3, 1}) {
		t.Errorf("relevance without text should fall back to score, got %v", ids(page))
	}
}

func TestPaginationDisjointAndOrdered(t *testing.T) {
	store := newTestStore(t)
	var items []Item
	base := at("2024-01-01T00:00:00Z")
	for i := int64(1); i <= 7; i++ {
		items = append(items, Item{
			ID: i, Title: "paging story", Author: "a", Score: int(i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	mustIndex(t, store, items...)

	ctx := context.Background()
	q := Query{Text: "paging", Page: 1, PageSize: 3, Sort: SortRecent}

	page1, err := store.Search(ctx, q)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	q.Page = 2
	page2, err := store.Search(ctx, q)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	q.Page = 1
	q.PageSize = 6
	both, err := store.Search(ctx, q)
	if err != nil {
		t.Fatalf("combined page: %v", err)
	}

	seen := map[int64]bool{}
	for _, id := range ids(page1) {
		seen[id] = true
	}
	for _, id := range ids(page2) {
		if seen[id] {
			t.Fatalf("id %d appears on both pages", id)
		}
	}

	combined := append(ids(page1), ids(page2)...)
	if !sameIDs(combined, ids(both)) {
		t.Errorf("page1+page2 = %v, single large page = %v", combined, ids(both))
	}
}

func TestFullTextSyncOnInsertUpdateDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustIndex(t, store, Item{
		ID: 1, Title: "kubernetes networking", Author: "ops",
		CreatedAt: at("2024-01-01T00:00:00Z"),
	})
	page, err := store.Search(ctx, Query{Text: "kubernetes", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("search after insert: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected inserted item to be searchable, got %d results", len(page.Items))
	}

	mustIndex(t, store, Item{
		ID: 1, Title: "postgres replication", Author: "ops",
		CreatedAt: at("2024-01-01T00:00:00Z"),
	})
	page, err = store.Search(ctx, Query{Text: "kubernetes", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("search after update: %v", err)
	}
	if len(page.Items) != 0 {
		t.Errorf("old title must not match after update, got %v", ids(page))
	}
	page, err = store.Search(ctx, Query{Text: "postgres", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("search for new title: %v", err)
	}
	if !sameIDs(ids(page), []int64{1}) {
		t.Errorf("new title must match after update, got %v", ids(page))
	}

	if _, err := store.DeleteItemsOlderThan(ctx, time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	page, err = store.Search(ctx, Query{Text: "postgres", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("search after delete: %v", err)
	}
	if len(page.Items) != 0 {
		t.Errorf("deleted item must not be searchable, got %v", ids(page))
	}
}

func TestSearchValidation(t *testing.T) {
	store := newTestStore(t)

	long := make([]byte, maxQueryLength+1)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name  string
		query Query
		field string
	}{
		{"page too small", Query{Page: 0, PageSize: 10}, "page"},
		{"page size too small", Query{Page: 1, PageSize: 0}, "page_size"},
		{"page size too large", Query{Page: 1, PageSize: maxPageSize + 1}, "page_size"},
		{"query too long", Query{Text: string(long), Page: 1, PageSize: 10}, "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Search(context.Background(), tt.query)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestFallbackWhenFullTextUnavailable(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)

	// Break the full-text path outright. The delete trigger also dies with
	// the table, so this must run after all writes.
	if _, err := store.DB().Exec("DROP TABLE items_fts"); err != nil {
		t.Fatalf("dropping full-text table: %v", err)
	}

	page, err := store.Search(context.Background(), Query{
		Text: "React", Page: 1, PageSize: 10,
		Filters: Filters{MinScore: intPtr(100)},
	})
	if err != nil {
		t.Fatalf("fallback search: %v", err)
	}
	if !sameIDs(ids(page), []int64{2}) {
		t.Errorf("fallback should find item 2, got %v", ids(page))
	}
}

func TestEmptyResultDoesNotUseFallback(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)

	// "practice" only matches via substring, which is the fallback's text
	// semantics. A successful empty full-text result must be returned as is.
	page, err := store.Search(context.Background(), Query{Text: "ractic", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Items) != 0 {
		t.Errorf("expected no full-text match and no fallback, got %v", ids(page))
	}
}

func TestSearchHostileInput(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)

	hostile := []string{
		`"; DROP TABLE items; --`,
		`title:react OR author:dev`,
		`" OR has_url = 1 OR "`,
		`100%_\`,
	}

	for _, text := range hostile {
		page, err := store.Search(context.Background(), Query{Text: text, Page: 1, PageSize: 10})
		if err != nil {
			t.Errorf("hostile input %q must not error: %v", text, err)
			continue
		}
		if len(page.Items) != 0 {
			t.Errorf("hostile input %q must match nothing, got %v", text, ids(page))
		}
	}

	// The table must have survived.
	if _, err := store.CountItems(context.Background()); err != nil {
		t.Fatalf("items table damaged by hostile input: %v", err)
	}
}

func TestSuggest(t *testing.T) {
	store := newTestStore(t)
	mustIndex(t, store,
		Item{ID: 1, Title: "JavaScript Basics", Author: "mentor",
			CreatedAt: at("2024-01-01T00:00:00Z")},
		Item{ID: 2, Title: "Advanced JavaScript Patterns", Author: "expert",
			CreatedAt: at("2024-01-02T00:00:00Z")},
	)
	ctx := context.Background()

	terms, err := store.Suggest(ctx, "ja", 10)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	found := false
	for _, term := range terms {
		if term == "JavaScript Basics" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %q among suggestions, got %v", "JavaScript Basics", terms)
	}

	short, err := store.Suggest(ctx, "j", 10)
	if err != nil {
		t.Fatalf("Suggest below minimum length: %v", err)
	}
	if len(short) != 0 {
		t.Errorf("partials under two characters must yield nothing, got %v", short)
	}

	none, err := store.Suggest(ctx, "zzzz", 10)
	if err != nil || len(none) != 0 {
		t.Errorf("unmatched partial should yield an empty slice, got %v / %v", none, err)
	}
}

func TestSuggestDeduplicatesCaseInsensitively(t *testing.T) {
	store := newTestStore(t)
	mustIndex(t, store,
		Item{ID: 1, Title: "golang tips", Author: "a", CreatedAt: at("2024-01-01T00:00:00Z")},
		Item{ID: 2, Title: "GOLANG TIPS", Author: "b", CreatedAt: at("2024-01-02T00:00:00Z")},
	)

	terms, err := store.Suggest(context.Background(), "gola", 10)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(terms) != 1 {
		t.Errorf("expected case-insensitive dedup to one entry, got %v", terms)
	}
}

func TestRebuildIndex(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	ctx := context.Background()

	// Simulate drift by clearing the index behind the triggers' back.
	if _, err := store.DB().Exec("DELETE FROM items_fts"); err != nil {
		t.Fatalf("clearing full-text table: %v", err)
	}
	page, err := store.Search(ctx, Query{Text: "react", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("search against drifted index: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("expected drifted index to miss, got %v", ids(page))
	}

	if err := store.RebuildIndex(ctx); err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}

	page, err = store.Search(ctx, Query{Text: "react", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("search after rebuild: %v", err)
	}
	if !sameIDs(ids(page), []int64{2}) {
		t.Errorf("rebuild should restore searchability, got %v", ids(page))
	}

	// Denormalized filter columns must be restored too.
	filtered, err := store.Search(ctx, Query{
		Page: 1, PageSize: 10, Filters: Filters{HasURL: boolPtr(false)},
	})
	if err != nil {
		t.Fatalf("filtered search after rebuild: %v", err)
	}
	if !sameIDs(ids(filtered), []int64{3}) {
		t.Errorf("expected has_url to survive the rebuild, got %v", ids(filtered))
	}
}

func TestParseSortOrder(t *testing.T) {
	tests := []struct {
		in   string
		want SortOrder
	}{
		{"score", SortScore},
		{"SCORE", SortScore},
		{"recent", SortRecent},
		{"oldest", SortOldest},
		{"comments", SortComments},
		{"relevance", SortRelevance},
		{"", SortRelevance},
		{"bogus", SortRelevance},
	}

	for _, tt := range tests {
		if got := ParseSortOrder(tt.in); got != tt.want {
			t.Errorf("ParseSortOrder(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
