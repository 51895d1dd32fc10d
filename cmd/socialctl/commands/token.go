package commands

import (
	"fmt"
	"time"

	"backend-socialpost/internal/auth"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Work with identity tokens",
	}

	var (
		subject int64
		ttl     time.Duration
		secret  string
	)
	mint := &cobra.Command{
		Use:     "mint",
		Short:   "Sign an access token for an account id",
		Example: `  socialctl token mint --subject 42 --ttl 1h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if subject <= 0 {
				return fmt.Errorf("--subject must be a positive account id")
			}
			if secret == "" {
				secret = loadConfig().JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("--secret flag or JWT_SECRET_KEY is required")
			}

			token, err := auth.NewTokens(secret, ttl).Issue(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	mint.Flags().Int64Var(&subject, "subject", 0, "Account id to put in the token subject")
	mint.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "Token lifetime")
	mint.Flags().StringVar(&secret, "secret", "", "Signing key (defaults to JWT_SECRET_KEY)")

	verify := &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Check a token and print its account id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := secret
			if key == "" {
				key = loadConfig().JWTSecret
			}
			id, err := auth.NewTokens(key, 0).Verify(args[0])
			if err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	verify.Flags().StringVar(&secret, "secret", "", "Signing key (defaults to JWT_SECRET_KEY)")

	cmd.AddCommand(mint, verify)
	return cmd
}
