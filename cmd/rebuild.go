package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hnidx/hnidx/pkg/config"
)

// RebuildCommand creates the rebuild command
func RebuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "rebuild",
		Usage: "Rebuild the full-text index from the stored items",
		Action: func(ctx context.Context, c *cli.Command) error {
			setupLogging(c)
			return rebuildIndex(ctx, c.String("config"))
		},
	}
}

// rebuildIndex repopulates the full-text index and optimizes the database,
// recovering from index drift or corruption.
func rebuildIndex(ctx context.Context, configPath string) error {
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

	fmt.Println("Rebuilding full-text index...")
	if err := store.RebuildIndex(ctx); err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}

	if err := store.Optimize(ctx); err != nil {
		fmt.Printf("Warning: optimize failed: %v\n", err)
	}

	count, err := store.CountItems(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Done. %d stories reindexed.\n", count)
	return nil
}
