package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tabauth/internal/auth/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}

		version, dirty, err := app.Migrate(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d (dirty=%t)\n", cfg.DatabaseFile, version, dirty)
		return nil
	},
}
