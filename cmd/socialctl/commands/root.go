// Package commands implements socialctl, the operator CLI for the social-post
// services.
package commands

import (
	"fmt"
	"os"

	"backend-socialpost/internal/config"

	"github.com/spf13/cobra"
)

// loadConfig reads the same environment the services read.
var loadConfig = config.Load

func NewRootCmd() *cobra.Command {
	var dbURL string

	root := &cobra.Command{
		Use:   "socialctl",
		Short: "Operate the social-post services",
		Long: `socialctl applies service schemas and mints identity tokens for
local testing. Settings come from the same environment variables the
services use; flags override them.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dbURL, "db", "", "Database connection URL (defaults to DATABASE_URI)")

	root.AddCommand(newMigrateCmd(&dbURL), newTokenCmd())
	return root
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
