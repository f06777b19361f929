// Package indexer keeps the durable store a fresh superset of the remote
// source's newest stories. An empty store is bulk-seeded once; afterwards a
// fixed-interval scheduler indexes only stories not yet present. At most one
// indexing pass runs at a time; a pass that cannot acquire the permit within
// a short bound skips its cycle instead of queuing.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/hnidx/hnidx/pkg/hn"
	"github.com/hnidx/hnidx/pkg/log"
	"github.com/hnidx/hnidx/pkg/storage"
)

// Source lists the newest story ids and resolves individual items.
type Source interface {
	NewStoryIDs(ctx context.Context) ([]int64, error)
	Item(ctx context.Context, id int64) (*hn.Item, error)
}

// Store is the slice of the durable store the indexer needs.
type Store interface {
	CountItems(ctx context.Context) (int64, error)
	ExistingIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
	IndexItems(ctx context.Context, items []storage.Item) error
	UpdateLastFetchTime(ctx context.Context, t time.Time) error
}

// Config tunes the scheduler. Zero values are replaced with defaults.
type Config struct {
	Interval         time.Duration // time between incremental passes
	BulkTarget       int           // total stories to backfill into an empty store
	BulkPageSize     int           // stories resolved per backfill page
	IncrementalCount int           // newest stories checked per incremental pass
	FetchDelay       time.Duration // politeness delay between item fetches
	PermitTimeout    time.Duration // how long a pass waits for the permit before skipping
}

func (c *Config) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = 15 * time.Minute
	}
	if c.BulkTarget == 0 {
		c.BulkTarget = 5000
	}
	if c.BulkPageSize == 0 {
		c.BulkPageSize = 500
	}
	if c.IncrementalCount == 0 {
		c.IncrementalCount = 20
	}
	if c.FetchDelay == 0 {
		c.FetchDelay = 50 * time.Millisecond
	}
	if c.PermitTimeout == 0 {
		c.PermitTimeout = time.Second
	}
}

// Indexer is the background indexing scheduler. Construct with New; all
// collaborators are passed in explicitly.
type Indexer struct {
	source Source
	store  Store
	config Config
	permit chan struct{}
	logger *log.Logger
}

func New(source Source, store Store, config Config) *Indexer {
	config.applyDefaults()

	permit := make(chan struct{}, 1)
	permit <- struct{}{}

	return &Indexer{
		source: source,
		store:  store,
		config: config,
		permit: permit,
		logger: log.ForService("indexer"),
	}
}

// Run blocks until ctx is cancelled. It seeds an empty store first, then runs
// incremental passes on a fixed interval. Pass failures are logged; the next
// tick retries from scratch.
func (ix *Indexer) Run(ctx context.Context) error {
	if err := ix.RunOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		ix.logger.Errorf("initial indexing pass failed: %v", err)
	}

	ticker := time.NewTicker(ix.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ix.logger.Infof("indexer stopped")
			return nil
		case <-ticker.C:
			if err := ix.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				ix.logger.Errorf("indexing pass failed: %v", err)
			}
		}
	}
}

// RunOnce executes a single indexing pass: a bulk seed when the store is
// empty, an incremental update otherwise. If another pass holds the permit it
// skips the cycle entirely rather than waiting.
func (ix *Indexer) RunOnce(ctx context.Context) error {
	if !ix.tryAcquire(ctx) {
		ix.logger.Warnf("indexing pass already running, skipping cycle")
		return nil
	}
	defer ix.release()

	count, err := ix.store.CountItems(ctx)
	if err != nil {
		return fmt.Errorf("counting indexed items: %w", err)
	}

	if count == 0 {
		return ix.bulkSeed(ctx)
	}
	return ix.incrementalUpdate(ctx)
}

// tryAcquire takes the single-flight permit, giving up after PermitTimeout.
func (ix *Indexer) tryAcquire(ctx context.Context) bool {
	select {
	case <-ix.permit:
		return true
	default:
	}

	timer := time.NewTimer(ix.config.PermitTimeout)
	defer timer.Stop()

	select {
	case <-ix.permit:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (ix *Indexer) release() {
	ix.permit <- struct{}{}
}

// bulkSeed backfills an empty store from the newest BulkTarget stories,
// resolving them in pages. Per-item failures are logged and skipped; the
// whole batch is written in one call at the end. Cancellation between fetches
// discards the partial batch.
func (ix *Indexer) bulkSeed(ctx context.Context) error {
	ix.logger.Infof("store is empty, starting bulk seed (target %d)", ix.config.BulkTarget)

	ids, err := ix.source.NewStoryIDs(ctx)
	if err != nil {
		return fmt.Errorf("fetching story ids: %w", err)
	}
	if len(ids) > ix.config.BulkTarget {
		ids = ids[:ix.config.BulkTarget]
	}

	var batch []storage.Item
	for start := 0; start < len(ids); start += ix.config.BulkPageSize {
		end := start + ix.config.BulkPageSize
		if end > len(ids) {
			end = len(ids)
		}

		items, err := ix.resolveItems(ctx, ids[start:end])
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A failed page does not abort the seed.
			ix.logger.Warnf("skipping page %d-%d: %v", start, end, err)
			continue
		}
		batch = append(batch, items...)
		ix.logger.Infof("resolved %d/%d stories", len(batch), len(ids))

		// Pause between pages to avoid hammering the API.
		if end < len(ids) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(ix.config.FetchDelay * 10):
			}
		}
	}

	if err := ix.store.IndexItems(ctx, batch); err != nil {
		return fmt.Errorf("indexing seed batch: %w", err)
	}
	if err := ix.store.UpdateLastFetchTime(ctx, time.Now()); err != nil {
		ix.logger.Warnf("recording fetch time: %v", err)
	}

	ix.logger.Infof("bulk seed complete, indexed %d stories", len(batch))
	return nil
}

// incrementalUpdate indexes the subset of the newest stories not already
// present. No write happens when nothing is new.
func (ix *Indexer) incrementalUpdate(ctx context.Context) error {
	ids, err := ix.source.NewStoryIDs(ctx)
	if err != nil {
		return fmt.Errorf("fetching story ids: %w", err)
	}
	if len(ids) > ix.config.IncrementalCount {
		ids = ids[:ix.config.IncrementalCount]
	}

	existing, err := ix.store.ExistingIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("checking existing ids: %w", err)
	}

	var newIDs []int64
	for _, id := range ids {
		if !existing[id] {
			newIDs = append(newIDs, id)
		}
	}

	if len(newIDs) == 0 {
		ix.logger.Debugf("no new stories")
		return nil
	}

	batch, err := ix.resolveItems(ctx, newIDs)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	if err := ix.store.IndexItems(ctx, batch); err != nil {
		return fmt.Errorf("indexing batch: %w", err)
	}
	if err := ix.store.UpdateLastFetchTime(ctx, time.Now()); err != nil {
		ix.logger.Warnf("recording fetch time: %v", err)
	}

	ix.logger.Infof("indexed %d new stories", len(batch))
	return nil
}

// resolveItems fetches full items for the given ids, logging and skipping
// individual failures and discarding stories without a title. It aborts only
// on cancellation.
func (ix *Indexer) resolveItems(ctx context.Context, ids []int64) ([]storage.Item, error) {
	var items []storage.Item

	for i, id := range ids {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		remote, err := ix.source.Item(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			ix.logger.Warnf("failed to fetch item %d: %v", id, err)
			continue
		}
		if remote == nil || remote.Title == "" {
			continue
		}

		items = append(items, storage.Item{
			ID:        remote.ID,
			Title:     remote.Title,
			Author:    remote.By,
			URL:       remote.URL,
			Score:     remote.Score,
			Comments:  remote.Descendants,
			CreatedAt: time.Unix(remote.Time, 0).UTC(),
		})

		if i < len(ids)-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(ix.config.FetchDelay):
			}
		}
	}

	return items, nil
}
