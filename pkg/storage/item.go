package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when an item does not exist in the store.
var ErrNotFound = errors.New("item not found")

// Item is a single indexed story. The ID is assigned by the remote source and
// doubles as the rowid of the corresponding full-text index entry.
type Item struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	URL       string    `json:"url,omitempty"`
	Score     int       `json:"score"`
	Comments  int       `json:"comments"`
	Domain    string    `json:"domain,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IndexedAt time.Time `json:"indexed_at,omitempty"`
}

// Page is one page of items plus pagination metadata. Total is -1 when the
// count was skipped or unavailable.
type Page struct {
	Items    []Item `json:"items"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Total    int64  `json:"total"`
}

// DomainFromURL extracts the host portion of a URL with any "www." prefix
// stripped. Returns "" for empty or unparsable URLs.
func DomainFromURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// IndexItems writes a batch of items in a single transaction. Items already
// present are updated in place without touching created_at; absent items are
// inserted whole. The triggers defined in the schema propagate every write to
// the full-text index within the same transaction.
func (s *Store) IndexItems(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}

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

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (id, title, author, url, score, comments, domain, created_at, updated_at, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			url = excluded.url,
			score = excluded.score,
			comments = excluded.comments,
			domain = excluded.domain,
			updated_at = excluded.updated_at,
			indexed_at = excluded.indexed_at
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			fmt.Printf("Warning: failed to close statement: %v\n", err)
		}
	}()

	now := time.Now().UTC()
	for _, item := range items {
		domain := DomainFromURL(item.URL)
		_, err = stmt.ExecContext(ctx,
			item.ID,
			item.Title,
			item.Author,
			nullString(item.URL),
			item.Score,
			item.Comments,
			nullString(domain),
			item.CreatedAt.UTC(),
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("indexing item %d: %w", item.ID, err)
		}
	}

	err = tx.Commit()
	if err == nil {
		committed = true
	}
	return err
}

// Item fetches a single item by id.
func (s *Store) Item(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, author, url, score, comments, domain, created_at, updated_at, indexed_at
		FROM items WHERE id = ?
	`, id)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying item %d: %w", id, err)
	}

	return item, nil
}

// ListItems returns one page of items, newest first, with the total count.
func (s *Store) ListItems(ctx context.Context, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&total); err != nil {
		return nil, fmt.Errorf("counting items: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, author, url, score, comments, domain, created_at, updated_at, indexed_at
		FROM items
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}

	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}

	return &Page{Items: items, Page: page, PageSize: pageSize, Total: total}, nil
}

// CountItems returns the number of indexed items.
func (s *Store) CountItems(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting items: %w", err)
	}
	return count, nil
}

// ExistingIDs reports which of the given ids are already present in the store.
func (s *Store) ExistingIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	existing := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM items WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("querying existing ids: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			fmt.Printf("Warning: failed to close rows: %v\n", err)
		}
	}()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		existing[id] = true
	}

	return existing, rows.Err()
}

// DeleteItemsOlderThan removes items whose last indexing (or, failing that,
// creation) predates the cutoff. The delete trigger removes the matching
// full-text entries. Returns the number of deleted rows.
func (s *Store) DeleteItemsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM items WHERE COALESCE(indexed_at, created_at) < ?
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting old items: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var urlStr, domain sql.NullString
	var indexedAt sql.NullTime

	err := row.Scan(&item.ID, &item.Title, &item.Author, &urlStr, &item.Score,
		&item.Comments, &domain, &item.CreatedAt, &item.UpdatedAt, &indexedAt)
	if err != nil {
		return nil, err
	}

	item.URL = urlStr.String
	item.Domain = domain.String
	if indexedAt.Valid {
		item.IndexedAt = indexedAt.Time
	}

	return &item, nil
}

func scanItems(rows *sql.Rows) ([]Item, error) {
	defer func() {
		if err := rows.Close(); err != nil {
			fmt.Printf("Warning: failed to close rows: %v\n", err)
		}
	}()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
