package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hnidx/hnidx/pkg/config"
)

// StatsCommand creates the stats command
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show index statistics",
		Action: func(ctx context.Context, c *cli.Command) error {
			setupLogging(c)
			return showStats(ctx, c.String("config"))
		},
	}
}

func showStats(ctx context.Context, configPath string) error {
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

	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("collecting stats: %w", err)
	}

	fmt.Printf("📊 Index Statistics\n")
	fmt.Printf("═══════════════════\n\n")

	if total, ok := stats["total_items"].(int64); ok {
		fmt.Printf("Indexed stories: %s\n", formatNumber(int(total)))
	}
	if oldest, ok := stats["oldest_item"].(string); ok {
		fmt.Printf("Oldest story:    %s\n", oldest)
	}
	if newest, ok := stats["newest_item"].(string); ok {
		fmt.Printf("Newest story:    %s\n", newest)
	}
	if size, ok := stats["db_size_bytes"].(int64); ok {
		fmt.Printf("Database size:   %s\n", formatBytes(size))
	}

	lastFetch, err := store.GetLastFetchTime(ctx)
	if err == nil && !lastFetch.IsZero() {
		fmt.Printf("Last fetch:      %s\n", formatTime(lastFetch))
	}

	return nil
}
