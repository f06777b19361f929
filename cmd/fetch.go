package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hnidx/hnidx/pkg/config"
	"github.com/hnidx/hnidx/pkg/hn"
	"github.com/hnidx/hnidx/pkg/indexer"
)

// FetchCommand creates the fetch command
func FetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Run a single indexing pass and exit",
		Action: func(ctx context.Context, c *cli.Command) error {
			setupLogging(c)
			return fetchOnce(ctx, c.String("config"))
		},
	}
}

// fetchOnce runs one indexing pass: a bulk seed when the database is empty,
// an incremental update otherwise.
func fetchOnce(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Printf("Warning: failed to close store: %v\n", err)
		}
	}()

	ix := indexer.New(hn.NewClient(), store, indexer.Config{
		Interval:         cfg.Indexer.Interval.Duration,
		BulkTarget:       cfg.Indexer.BulkTarget,
		BulkPageSize:     cfg.Indexer.BulkPageSize,
		IncrementalCount: cfg.Indexer.IncrementalCount,
	})

	if err := ix.RunOnce(ctx); err != nil {
		return fmt.Errorf("indexing pass: %w", err)
	}

	count, err := store.CountItems(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Done. %d stories indexed.\n", count)
	return nil
}
