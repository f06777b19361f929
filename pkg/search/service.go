// Package search is the read-side service layer: it fronts the durable store
// with a short-lived cache and shields callers from backend failures. Cache
// problems degrade to store reads; store problems degrade to empty results.
// Only validation errors ever reach the caller.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/hnidx/hnidx/pkg/cache"
	"github.com/hnidx/hnidx/pkg/log"
	"github.com/hnidx/hnidx/pkg/storage"
)

const maxSuggestLimit = 20

// Config carries the cache lifetimes for the read paths.
type Config struct {
	ItemTTL   time.Duration
	SearchTTL time.Duration
}

// Service answers item, search and suggest reads.
type Service struct {
	store  *storage.Store
	cache  cache.Cache
	config Config
	logger *log.Logger
}

func NewService(store *storage.Store, c cache.Cache, config Config) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	return &Service{
		store:  store,
		cache:  c,
		config: config,
		logger: log.ForService("search"),
	}
}

// Search runs a query, serving repeated queries from the cache. Invalid
// queries return a *storage.ValidationError; any other failure yields an
// empty page rather than an error.
func (s *Service) Search(ctx context.Context, q storage.Query) (*storage.Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	key := searchKey(q)
	var cached storage.Page
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	page, err := s.store.Search(ctx, q)
	if err != nil {
		var verr *storage.ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		s.logger.Errorf("search failed, returning empty page: %v", err)
		return &storage.Page{Items: []storage.Item{}, Page: q.Page, PageSize: q.PageSize, Total: 0}, nil
	}

	if err := s.cache.Set(ctx, key, page, s.config.SearchTTL); err != nil {
		s.logger.Debugf("caching search result: %v", err)
	}
	return page, nil
}

// Item returns a single story by id, cached individually. A missing story is
// storage.ErrNotFound.
func (s *Service) Item(ctx context.Context, id int64) (*storage.Item, error) {
	key := fmt.Sprintf("item:%d", id)
	var cached storage.Item
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	item, err := s.store.Item(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, item, s.config.ItemTTL); err != nil {
		s.logger.Debugf("caching item %d: %v", id, err)
	}
	return item, nil
}

// List returns a page of stories, newest first. List results are not cached;
// the underlying query is cheap and changes on every indexing pass.
func (s *Service) List(ctx context.Context, page, pageSize int) (*storage.Page, error) {
	return s.store.ListItems(ctx, page, pageSize)
}

// Suggest returns up to limit completion candidates for a partial term. It
// never fails: short inputs and backend errors both produce an empty list.
func (s *Service) Suggest(ctx context.Context, partial string, limit int) ([]string, error) {
	if limit <= 0 || limit > maxSuggestLimit {
		limit = maxSuggestLimit
	}

	key := fmt.Sprintf("suggest:%d:%s", limit, partial)
	var cached []string
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	terms, err := s.store.Suggest(ctx, partial, limit)
	if err != nil {
		return []string{}, nil
	}

	if len(terms) > 0 {
		if err := s.cache.Set(ctx, key, terms, s.config.SearchTTL); err != nil {
			s.logger.Debugf("caching suggestions: %v", err)
		}
	}
	return terms, nil
}

// RebuildIndex drops and repopulates the full-text index from the item rows.
func (s *Service) RebuildIndex(ctx context.Context) error {
	return s.store.RebuildIndex(ctx)
}

// searchKey derives a stable cache key from the full query shape, so two
// queries differing in any filter or page never share an entry.
func searchKey(q storage.Query) string {
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Sprintf("search:%q", q.Text)
	}
	return fmt.Sprintf("search:%x", xxhash.Sum64(raw))
}
