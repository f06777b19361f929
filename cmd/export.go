package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/urfave/cli/v3"

	"github.com/hnidx/hnidx/pkg/config"
)

const exportPageSize = 500

// ExportCommand creates the export command
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export all indexed stories as zstd-compressed JSON lines",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "output",
				Usage: "Output file, or - for stdout",
				Value: "hnidx-export.jsonl.zst",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			setupLogging(c)
			return exportItems(ctx, c.String("config"), c.String("output"))
		},
	}
}

// exportItems streams every stored item through a zstd writer, one JSON
// object per line.
func exportItems(ctx context.Context, configPath, output string) error {
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

	var out io.Writer = os.Stdout
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				fmt.Printf("Warning: failed to close output file: %v\n", err)
			}
		}()
		out = f
	}

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}

	enc := json.NewEncoder(zw)
	exported := 0
	for page := 1; ; page++ {
		result, err := store.ListItems(ctx, page, exportPageSize)
		if err != nil {
			return fmt.Errorf("listing items: %w", err)
		}
		if len(result.Items) == 0 {
			break
		}
		for _, item := range result.Items {
			if err := enc.Encode(item); err != nil {
				return fmt.Errorf("encoding item %d: %w", item.ID, err)
			}
			exported++
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("flushing zstd stream: %w", err)
	}

	if output != "-" {
		fmt.Printf("Exported %d stories to %s\n", exported, output)
	}
	return nil
}
