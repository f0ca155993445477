package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ragpipe/ragpipe/internal/app"
	"github.com/ragpipe/ragpipe/internal/config"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Inspect the ingested documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents and their chunk counts",
	RunE:  runDocsList,
}

var docsRmCmd = &cobra.Command{
	Use:   "rm [source...]",
	Short: "Remove documents from the index by source",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemove,
}

func init() {
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsRmCmd)
	rootCmd.AddCommand(docsCmd)
}

func runDocsList(cmd *cobra.Command, args []string) error {
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

	stats, err := a.Index.Documents(ctx)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}

	if len(stats) == 0 {
		fmt.Println("No documents ingested.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DOCUMENT\tSOURCE\tCHUNKS")
	for _, stat := range stats {
		fmt.Fprintf(w, "%s\t%s\t%d\n", stat.ID, stat.Source, stat.Chunks)
	}
	return w.Flush()
}
