package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/propertyhub/internal/repositories"
	"github.com/BradenHooton/propertyhub/internal/services"
	pkglogger "github.com/BradenHooton/propertyhub/pkg/logger"
)

// CreateAdminCmd creates the first administrator, or promotes an existing
// account with the same email.
func CreateAdminCmd() *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create or promote an administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			if email == "" {
				return errors.New("--email is required")
			}

			logger := newLogger()
			_, db, err := connect(logger)
			if err != nil {
				return err
			}
			defer db.Close()

			admins := services.NewAdminService(
				repositories.NewUserRepository(db.Pool),
				repositories.NewListingRepository(db.Pool),
				logger,
				pkglogger.NewAuditLogger(logger),
			)

			user, created, err := admins.BootstrapAdmin(cmd.Context(), email, password, name)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}

			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", user.Email, user.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "promoted %s (%s) to admin\n", user.Email, user.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "administrator email")
	cmd.Flags().StringVar(&password, "password", "", "password for a new account (defaults to $ADMIN_PASSWORD)")
	cmd.Flags().StringVar(&name, "name", "Administrator", "display name")
	return cmd
}
