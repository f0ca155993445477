package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragpipe/ragpipe/internal/app"
	"github.com/ragpipe/ragpipe/internal/config"
	"github.com/ragpipe/ragpipe/internal/pipeline"
	"github.com/ragpipe/ragpipe/internal/provider"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive question-and-answer session",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
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

	count, err := a.Index.Count(ctx)
	if err == nil && count == 0 {
		fmt.Println("The index is empty. Ingest documents first with:")
		fmt.Println("  ragpipe ingest <file-or-directory>")
		fmt.Println()
	}

	fmt.Println("ragpipe interactive chat. Type /help for commands, Ctrl+D to exit.")
	fmt.Println()

	var history []pipeline.Turn

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")

		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if handleChatCommand(input, &history) {
				break
			}
			continue
		}

		answer, err := a.Engine.AnswerStream(ctx, pipeline.Request{
			Query:   input,
			History: history,
		}, func(ctx context.Context, chunk string) error {
			fmt.Print(chunk)
			return nil
		})
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		history = append(history,
			pipeline.Turn{Role: provider.RoleUser, Content: input},
			pipeline.Turn{Role: provider.RoleAssistant, Content: answer.Text},
		)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	return nil
}

// handleChatCommand handles slash commands, returns true to exit the loop.
func handleChatCommand(input string, history *[]pipeline.Turn) bool {
	switch strings.Fields(input)[0] {
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help   show this help")
		fmt.Println("  /clear  forget the conversation so far")
		fmt.Println("  /exit   leave the chat")
		fmt.Println()

	case "/clear":
		*history = nil
		fmt.Println("Conversation cleared.")
		fmt.Println()

	case "/exit", "/quit":
		fmt.Println("Goodbye!")
		return true

	default:
		fmt.Printf("Unknown command: %s\n", input)
		fmt.Println("Type /help to see available commands")
		fmt.Println()
	}

	return false
}
