package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragpipe/ragpipe/internal/app"
	"github.com/ragpipe/ragpipe/internal/config"
	"github.com/ragpipe/ragpipe/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Index files or directories for retrieval",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var removeCmd = &cobra.Command{
	Use:   "remove [source...]",
	Short: "Remove previously ingested documents from the index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(removeCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("inspecting %s: %w", path, err)
		}

		var result *ingest.Result
		if info.IsDir() {
			result, err = a.Ingestor.IngestDirectory(ctx, path)
		} else {
			result, err = a.Ingestor.IngestFile(ctx, path)
		}
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}

		fmt.Printf("%s: %d file(s), %d chunk(s), %d byte(s) in %s\n",
			path, result.FilesAdded, result.ChunksAdded, result.TotalSize,
			result.Duration.Round(time.Millisecond))
		if result.FilesSkipped > 0 {
			fmt.Printf("  skipped %d unsupported or ignored file(s)\n", result.FilesSkipped)
		}
		if result.FilesFailed > 0 {
			fmt.Printf("  failed to read %d file(s), see logs\n", result.FilesFailed)
		}
	}

	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	for _, source := range args {
		if err := a.Ingestor.Remove(ctx, source); err != nil {
			return fmt.Errorf("removing %s: %w", source, err)
		}
		fmt.Printf("Removed %s\n", source)
	}

	return nil
}
