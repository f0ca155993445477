package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragpipe/ragpipe/internal/config"
	"github.com/ragpipe/ragpipe/internal/index"
	"github.com/ragpipe/ragpipe/internal/log"
)

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create or upgrade the postgres index schema",
	Long: `Initdb runs the database migrations for the postgres index backend.
It is safe to run repeatedly: an up-to-date schema is left unchanged.`,
	RunE: runInitDB,
}

func init() {
	rootCmd.AddCommand(initdbCmd)
}

func runInitDB(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if cfg.IndexBackend != config.IndexBackendPostgres {
		return fmt.Errorf("index backend is %q, initdb only applies to %q",
			cfg.IndexBackend, config.IndexBackendPostgres)
	}

	logger := log.New(log.Config{JSON: cfg.LogJSON})
	if err := index.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	fmt.Println("Index schema is up to date.")
	return nil
}
