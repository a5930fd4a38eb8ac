package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tabauth/internal/auth/app"
)

var rootCmd = &cobra.Command{
	Use:   "auth",
	Short: "TabAuth credential and session service",
	Long: `Password, TOTP and OAuth sign-in with cookie sessions and rotating JWTs.
Configuration is read from the environment (AUTH_*, REDIS_*, LOG_*).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, usersCmd)
}

// newApp loads the environment and wires every backend.
func newApp() (*app.Application, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}
