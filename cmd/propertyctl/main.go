package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/propertyhub/internal/config"
	"github.com/BradenHooton/propertyhub/internal/database"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "propertyctl",
		Short:         "Operator tooling for the PropertyHub API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		MigrateCmd(),
		CreateAdminCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// connect loads configuration from the environment and opens the database.
func connect(logger *slog.Logger) (*config.Config, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}
