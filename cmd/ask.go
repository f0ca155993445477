package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragpipe/ragpipe/internal/app"
	"github.com/ragpipe/ragpipe/internal/config"
	"github.com/ragpipe/ragpipe/internal/pipeline"
)

var (
	askStream      bool
	askShowSources bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question against the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print the answer as it is generated")
	askCmd.Flags().BoolVar(&askShowSources, "sources", false, "list the context chunks the answer was grounded in")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	question := strings.TrimSpace(strings.Join(args, " "))
	req := pipeline.Request{Query: question}

	var answer *pipeline.Answer
	if askStream {
		answer, err = a.Engine.AnswerStream(ctx, req, func(ctx context.Context, chunk string) error {
			fmt.Print(chunk)
			return nil
		})
		fmt.Println()
	} else {
		answer, err = a.Engine.Answer(ctx, req)
		if err == nil {
			fmt.Println(answer.Text)
		}
	}
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	if askShowSources {
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Sources:")
		for _, res := range answer.Context {
			fmt.Fprintf(os.Stderr, "  %.3f  %s\n", res.Score, res.Chunk.Metadata["source"])
		}
	}

	return nil
}
