package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SortOrder selects how search results are ranked.
type SortOrder string

const (
	SortRelevance SortOrder = "relevance"
	SortScore     SortOrder = "score"
	SortRecent    SortOrder = "recent"
	SortOldest    SortOrder = "oldest"
	SortComments  SortOrder = "comments"
)

// ParseSortOrder maps a string to a SortOrder, defaulting to relevance.
func ParseSortOrder(s string) SortOrder {
	switch SortOrder(strings.ToLower(s)) {
	case SortScore, SortRecent, SortOldest, SortComments:
		return SortOrder(strings.ToLower(s))
	default:
		return SortRelevance
	}
}

// Filters restricts a search to items matching every active predicate.
type Filters struct {
	Since    *time.Time
	Until    *time.Time
	MinScore *int
	MaxScore *int
	Author   string
	Domain   string
	HasURL   *bool
}

// Query is a structured search request.
type Query struct {
	Text     string
	Page     int
	PageSize int
	Sort     SortOrder
	Filters  Filters
}

const (
	maxPageSize    = 100
	maxQueryLength = 200
	suggestFetch   = 20
)

// ValidationError reports an invalid search parameter. It is surfaced to the
// caller synchronously and never triggers query execution.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate checks pagination bounds and query length.
func (q *Query) Validate() error {
	if q.Page < 1 {
		return &ValidationError{Field: "page", Message: "must be >= 1"}
	}
	if q.PageSize < 1 || q.PageSize > maxPageSize {
		return &ValidationError{Field: "page_size", Message: fmt.Sprintf("must be between 1 and %d", maxPageSize)}
	}
	if len(q.Text) > maxQueryLength {
		return &ValidationError{Field: "query", Message: fmt.Sprintf("must be at most %d characters", maxQueryLength)}
	}
	return nil
}

// Search compiles and executes a structured query. The full-text index is the
// primary path; if its execution fails the same query is re-expressed as a
// relational scan. A legitimate empty result never triggers the fallback.
func (s *Store) Search(ctx context.Context, q Query) (*Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Sort == "" {
		q.Sort = SortRelevance
	}

	page, err := s.searchFTS(ctx, q)
	if err != nil {
		return s.searchScan(ctx, q)
	}
	return page, nil
}

// searchFTS runs the query against the full-text index. It selects a page of
// rowids first, then resolves full rows from the items table preserving the
// index-determined order.
func (s *Store) searchFTS(ctx context.Context, q Query) (*Page, error) {
	conds, args := ftsConditions(q)

	var whereClause string
	if len(conds) > 0 {
		whereClause = " WHERE " + strings.Join(conds, " AND ")
	}

	sqlQuery := "SELECT rowid FROM items_fts" + whereClause +
		" ORDER BY " + ftsOrderClause(q.Sort, q.Text != "") +
		" LIMIT ? OFFSET ?"
	queryArgs := append(append([]interface{}{}, args...), q.PageSize, (q.Page-1)*q.PageSize)

	rows, err := s.db.QueryContext(ctx, sqlQuery, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("querying full-text index: %w", err)
	}

	var ids []int64
	func() {
		defer func() {
			if cerr := rows.Close(); cerr != nil {
				fmt.Printf("Warning: failed to close rows: %v\n", cerr)
			}
		}()
		for rows.Next() {
			var id int64
			if err = rows.Scan(&id); err != nil {
				return
			}
			ids = append(ids, id)
		}
		err = rows.Err()
	}()
	if err != nil {
		return nil, fmt.Errorf("scanning full-text results: %w", err)
	}

	items, err := s.itemsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Best-effort count over the same predicate; -1 when unavailable.
	total := int64(-1)
	var count int64
	countQuery := "SELECT COUNT(*) FROM items_fts" + whereClause
	if cerr := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&count); cerr == nil {
		total = count
	}

	return &Page{Items: items, Page: q.Page, PageSize: q.PageSize, Total: total}, nil
}

// searchScan is the structured fallback over the items table: free text
// becomes a case-insensitive substring match across title/author/domain.
func (s *Store) searchScan(ctx context.Context, q Query) (*Page, error) {
	var conds []string
	var args []interface{}

	if q.Text != "" {
		pattern := "%" + escapeLike(q.Text) + "%"
		conds = append(conds, `(title LIKE ? ESCAPE '\' OR author LIKE ? ESCAPE '\' OR domain LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}

	f := q.Filters
	if f.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339))
	}
	if f.Until != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.Until.UTC().Format(time.RFC3339))
	}
	if f.MinScore != nil {
		conds = append(conds, "score >= ?")
		args = append(args, *f.MinScore)
	}
	if f.MaxScore != nil {
		conds = append(conds, "score <= ?")
		args = append(args, *f.MaxScore)
	}
	if f.Author != "" {
		conds = append(conds, "author = ?")
		args = append(args, f.Author)
	}
	if f.Domain != "" {
		conds = append(conds, "domain = ?")
		args = append(args, f.Domain)
	}
	if f.HasURL != nil {
		if *f.HasURL {
			conds = append(conds, "url IS NOT NULL AND url != ''")
		} else {
			conds = append(conds, "(url IS NULL OR url = '')")
		}
	}

	var whereClause string
	if len(conds) > 0 {
		whereClause = " WHERE " + strings.Join(conds, " AND ")
	}

	sqlQuery := `
		SELECT id, title, author, url, score, comments, domain, created_at, updated_at, indexed_at
		FROM items` + whereClause +
		" ORDER BY " + scanOrderClause(q.Sort) +
		" LIMIT ? OFFSET ?"
	queryArgs := append(append([]interface{}{}, args...), q.PageSize, (q.Page-1)*q.PageSize)

	rows, err := s.db.QueryContext(ctx, sqlQuery, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}

	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}

	total := int64(-1)
	var count int64
	if cerr := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items"+whereClause, args...).Scan(&count); cerr == nil {
		total = count
	}

	return &Page{Items: items, Page: q.Page, PageSize: q.PageSize, Total: total}, nil
}

// ftsConditions builds the conjunctive WHERE predicates for the full-text
// path. Every user-influenced value is bound as a parameter, never
// interpolated into the query text.
func ftsConditions(q Query) ([]string, []interface{}) {
	var conds []string
	var args []interface{}

	if q.Text != "" {
		conds = append(conds, "items_fts MATCH ?")
		args = append(args, escapeFTS5Phrase(q.Text))
	}

	f := q.Filters
	if f.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339))
	}
	if f.Until != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.Until.UTC().Format(time.RFC3339))
	}
	if f.MinScore != nil {
		conds = append(conds, "CAST(score AS INTEGER) >= ?")
		args = append(args, *f.MinScore)
	}
	if f.MaxScore != nil {
		conds = append(conds, "CAST(score AS INTEGER) <= ?")
		args = append(args, *f.MaxScore)
	}
	if f.Author != "" {
		conds = append(conds, "author = ?")
		args = append(args, f.Author)
	}
	if f.Domain != "" {
		conds = append(conds, "domain = ?")
		args = append(args, f.Domain)
	}
	if f.HasURL != nil {
		val := 0
		if *f.HasURL {
			val = 1
		}
		conds = append(conds, "CAST(has_url AS INTEGER) = ?")
		args = append(args, val)
	}

	return conds, args
}

// ftsOrderClause maps a sort order to the full-text path's ORDER BY. Relevance
// ranking is only available when a MATCH term is present; without one it falls
// back to score.
func ftsOrderClause(sort SortOrder, hasText bool) string {
	switch sort {
	case SortScore:
		return "CAST(score AS INTEGER) DESC, created_at DESC"
	case SortRecent:
		return "created_at DESC"
	case SortOldest:
		return "created_at ASC"
	case SortComments:
		return "CAST(comments AS INTEGER) DESC, CAST(score AS INTEGER) DESC"
	default:
		if hasText {
			return "rank, created_at DESC"
		}
		return "CAST(score AS INTEGER) DESC, created_at DESC"
	}
}

// scanOrderClause maps a sort order to the fallback path's ORDER BY with the
// same semantics. There is no rank without an index, so relevance degrades to
// score.
func scanOrderClause(sort SortOrder) string {
	switch sort {
	case SortRecent:
		return "created_at DESC"
	case SortOldest:
		return "created_at ASC"
	case SortComments:
		return "comments DESC, score DESC"
	default:
		return "score DESC, created_at DESC"
	}
}

// itemsByIDs fetches full rows for the given ids and returns them in the same
// order, which a bare IN query does not guarantee.
func (s *Store) itemsByIDs(ctx context.Context, ids []int64) ([]Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, author, url, score, comments, domain, created_at, updated_at, indexed_at
		FROM items WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items by id: %w", err)
	}

	fetched, err := scanItems(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]Item, len(fetched))
	for _, item := range fetched {
		byID[item.ID] = item
	}

	ordered := make([]Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
		}
	}

	return ordered, nil
}

// Suggest returns distinct title/author/domain values containing the partial
// string, found via a prefix full-text match. Inputs under 2 characters and
// any backing failure yield an empty slice, never an error.
func (s *Store) Suggest(ctx context.Context, partial string, limit int) ([]string, error) {
	if len([]rune(partial)) < 2 {
		return []string{}, nil
	}
	if limit <= 0 || limit > suggestFetch {
		limit = suggestFetch
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT title, author, domain FROM items_fts
		WHERE items_fts MATCH ?
		LIMIT ?
	`, escapeFTS5Prefix(partial), suggestFetch)
	if err != nil {
		return []string{}, nil
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			fmt.Printf("Warning: failed to close rows: %v\n", cerr)
		}
	}()

	lower := strings.ToLower(partial)
	seen := make(map[string]bool)
	suggestions := []string{}

	for rows.Next() {
		var title, author, domain string
		if err := rows.Scan(&title, &author, &domain); err != nil {
			return []string{}, nil
		}

		for _, candidate := range []string{title, author, domain} {
			if candidate == "" {
				continue
			}
			key := strings.ToLower(candidate)
			if seen[key] || !strings.Contains(key, lower) {
				continue
			}
			seen[key] = true
			suggestions = append(suggestions, candidate)
			if len(suggestions) >= limit {
				return suggestions, nil
			}
		}
	}
	if err := rows.Err(); err != nil {
		return []string{}, nil
	}

	return suggestions, nil
}

// RebuildIndex clears the full-text index and repopulates it from the items
// table in one transaction, recovering from any drift between the two.
func (s *Store) RebuildIndex(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				fmt.Printf("Warning: failed to rollback transaction: %v\n", err)
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM items_fts"); err != nil {
		return fmt.Errorf("clearing full-text index: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO items_fts (rowid, title, author, domain, score, comments, created_at, has_url)
		SELECT id, title, author, COALESCE(domain, ''), score, comments, created_at,
		       CASE WHEN url IS NULL OR url = '' THEN 0 ELSE 1 END
		FROM items
	`)
	if err != nil {
		return fmt.Errorf("repopulating full-text index: %w", err)
	}

	err = tx.Commit()
	if err == nil {
		committed = true
	}
	return err
}

// escapeFTS5Phrase wraps free text as an FTS5 phrase, doubling embedded
// quotes so user input cannot alter the match expression. The result is still
// bound as a parameter.
func escapeFTS5Phrase(text string) string {
	return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
}

// escapeFTS5Prefix builds a prefix match expression from a partial string.
func escapeFTS5Prefix(partial string) string {
	return `"` + strings.ReplaceAll(partial, `"`, `""`) + `"*`
}

// escapeLike escapes LIKE metacharacters for the fallback substring match.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
