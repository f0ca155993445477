package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ragpipe/ragpipe/internal/app"
	"github.com/ragpipe/ragpipe/internal/config"
)

var piiJSON bool

var piiCmd = &cobra.Command{
	Use:   "pii [file]",
	Short: "Detect personal data in a document",
	Long: `Pii scans a text document for personal data as defined by GDPR
Article 4(1) and reports each identifier found. With no argument it
reads the document from standard input.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPII,
}

func init() {
	piiCmd.Flags().BoolVar(&piiJSON, "json", false, "emit findings as JSON")
	rootCmd.AddCommand(piiCmd)
}

func runPII(cmd *cobra.Command, args []string) error {
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

	text, err := readInput(args)
	if err != nil {
		return err
	}

	findings, err := a.PII.Detect(ctx, text)
	if err != nil {
		return fmt.Errorf("detecting personal data: %w", err)
	}

	if piiJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(findings)
	}

	if len(findings) == 0 {
		fmt.Println("No personal data found.")
		return nil
	}

	fmt.Printf("Found %d identifier(s):\n", len(findings))
	for _, f := range findings {
		fmt.Printf("  %-10s %-20s %q\n", f.Type, f.Category, f.Text)
		if f.Justification != "" {
			fmt.Printf("             %s\n", f.Justification)
		}
	}

	return nil
}
