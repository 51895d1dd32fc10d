package commands

import (
	"context"
	"fmt"

	"backend-socialpost/internal/config"
	"backend-socialpost/internal/db"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var (
	newPool     = pgxpool.New
	migrateUp   = db.Migrate
	migrateStat = db.MigrationStatus
)

func newMigrateCmd(dbURL *string) *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Run the embedded schema migrations of one service.

Subcommands:
  up      - Apply pending migrations
  status  - Show migration status`,
	}
	cmd.PersistentFlags().StringVarP(&service, "service", "s", "", "Service whose schema to migrate (auth, posts, users)")
	_ = cmd.MarkPersistentFlagRequired("service")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Example: `  socialctl migrate up --service posts
  socialctl migrate up -s auth --db postgres://localhost/auth`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := withPool(cmd.Context(), *dbURL, service, migrateUp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s migrations applied\n", service)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd.Context(), *dbURL, service, migrateStat)
		},
	}

	cmd.AddCommand(up, status)
	return cmd
}

func withPool(ctx context.Context, dbURL, service string, fn func(context.Context, *pgxpool.Pool, config.Service) error) error {
	svc := config.Service(service)
	if _, err := db.MigrationsDir(svc); err != nil {
		return err
	}
	if dbURL == "" {
		dbURL = loadConfig().DatabaseURL
	}
	if dbURL == "" {
		return fmt.Errorf("--db flag or DATABASE_URI is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	pool, err := newPool(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, pool, svc)
}
