package main

import (
	"github.com/spf13/cobra"

	"github.com/BradenHooton/propertyhub/internal/database"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	cmd.AddCommand(
		migrateSubcommand(database.MigrateUp, "Apply all pending migrations"),
		migrateSubcommand(database.MigrateDown, "Roll back the most recent migration"),
		migrateSubcommand(database.MigrateStatus, "Show applied and pending migrations"),
	)
	return cmd
}

func migrateSubcommand(command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   command,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			_, db, err := connect(logger)
			if err != nil {
				return err
			}
			defer db.Close()

			return db.Migrate(cmd.Context(), command)
		},
	}
}
