// Package cmd contains the CLI commands.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hnidx/hnidx/pkg/cache"
	"github.com/hnidx/hnidx/pkg/config"
	"github.com/hnidx/hnidx/pkg/log"
	"github.com/hnidx/hnidx/pkg/search"
	"github.com/hnidx/hnidx/pkg/storage"
)

// setupLogging applies the global --debug flag.
func setupLogging(c *cli.Command) {
	if c.Bool("debug") {
		log.SetGlobalDebug(true)
	}
}

// openStore opens the database configured at configPath.
func openStore(cfg *config.Config) (*storage.Store, error) {
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.DBPath, err)
	}
	return store, nil
}

// newCache connects to Redis when an address is configured, degrading to the
// no-op cache when it is absent or unreachable.
func newCache(cfg *config.Config) cache.Cache {
	logger := log.ForService("cache")

	if cfg.Cache.Addr == "" {
		return cache.Nop{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := cache.NewRedis(ctx, cfg.Cache.Addr)
	if err != nil {
		logger.Warnf("redis at %s unavailable, caching disabled: %v", cfg.Cache.Addr, err)
		return cache.Nop{}
	}

	logger.Infof("caching via redis at %s", cfg.Cache.Addr)
	return c
}

func newService(store *storage.Store, cfg *config.Config) *search.Service {
	return search.NewService(store, newCache(cfg), search.Config{
		ItemTTL:   cfg.Cache.ItemTTL.Duration,
		SearchTTL: cfg.Cache.SearchTTL.Duration,
	})
}
