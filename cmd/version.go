package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragpipe/ragpipe/internal/config"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration information",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	fmt.Printf("ragpipe %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	fmt.Println("Configuration:")
	fmt.Printf("  Provider: %s\n", cfg.Provider)
	fmt.Printf("  Model: %s\n", cfg.ModelName)
	fmt.Printf("  Embedder: %s\n", cfg.EmbedderModel)
	fmt.Printf("  Index backend: %s\n", cfg.IndexBackend)
	fmt.Printf("  Chunk size: %d (overlap %d)\n", cfg.ChunkSize, cfg.ChunkOverlap)
	fmt.Printf("  Top-k: %d (min score %.2f)\n", cfg.TopK, cfg.MinScore)
	fmt.Printf("  Token budget: %d\n", cfg.TokenBudget)
	if cfg.CachePath != "" {
		fmt.Printf("  Embedding cache: %s\n", cfg.CachePath)
	} else {
		fmt.Println("  Embedding cache: disabled")
	}

	return nil
}
