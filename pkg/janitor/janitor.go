// Package janitor enforces a size bound on the database by periodically
// deleting the oldest indexed stories once the file passes a threshold.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/hnidx/hnidx/pkg/log"
)

// Store is the slice of the durable store the janitor needs.
type Store interface {
	DatabaseSize(ctx context.Context) (int64, error)
	DeleteItemsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	WALCheckpoint(ctx context.Context) error
	Vacuum(ctx context.Context) error
}

// Config tunes the retention loop. Zero values are replaced with defaults.
type Config struct {
	Interval    time.Duration // time between retention checks
	Retention   time.Duration // stories older than this are eligible for deletion
	MaxDBSizeMB int64         // size threshold that triggers a cleanup
}

func (c *Config) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = 6 * time.Hour
	}
	if c.Retention == 0 {
		c.Retention = 90 * 24 * time.Hour
	}
	if c.MaxDBSizeMB == 0 {
		c.MaxDBSizeMB = 512
	}
}

// Janitor runs the retention loop. Construct with New.
type Janitor struct {
	store  Store
	config Config
	logger *log.Logger
}

func New(store Store, config Config) *Janitor {
	config.applyDefaults()
	return &Janitor{
		store:  store,
		config: config,
		logger: log.ForService("janitor"),
	}
}

// Run blocks until ctx is cancelled, checking the database size on a fixed
// interval. A failed cleanup is logged; the next tick retries.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Infof("janitor stopped")
			return nil
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				j.logger.Errorf("cleanup failed: %v", err)
			}
		}
	}
}

// RunOnce performs a single retention check. Nothing is deleted while the
// database stays under the size threshold.
func (j *Janitor) RunOnce(ctx context.Context) error {
	size, err := j.store.DatabaseSize(ctx)
	if err != nil {
		return fmt.Errorf("checking database size: %w", err)
	}

	limit := j.config.MaxDBSizeMB * 1024 * 1024
	if size <= limit {
		j.logger.Debugf("database size %d bytes is under the %d MB limit", size, j.config.MaxDBSizeMB)
		return nil
	}

	cutoff := time.Now().UTC().Add(-j.config.Retention)
	j.logger.Infof("database size %d bytes exceeds %d MB, deleting stories indexed before %s",
		size, j.config.MaxDBSizeMB, cutoff.Format(time.RFC3339))

	deleted, err := j.store.DeleteItemsOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("deleting expired stories: %w", err)
	}

	if err := j.store.WALCheckpoint(ctx); err != nil {
		j.logger.Warnf("WAL checkpoint failed: %v", err)
	}
	if err := j.store.Vacuum(ctx); err != nil {
		j.logger.Warnf("vacuum failed: %v", err)
	}

	j.logger.Infof("cleanup removed %d stories", deleted)
	return nil
}
