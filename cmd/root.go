// Package cmd wires the ragpipe CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ragpipe",
	Short: "ragpipe - retrieval-augmented document assistant",
	Long: `ragpipe ingests documents into a vector index and answers questions
grounded in them. It can also summarize documents and flag personal
data they contain.

Run ragpipe without arguments to start an interactive chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
