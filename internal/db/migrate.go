package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"backend-socialpost/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*/*.sql
var migrations embed.FS

var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

var gooseStatusContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.StatusContext(ctx, db, dir, opts...)
}

// MigrationsDir returns the embedded directory holding a service's schema.
func MigrationsDir(svc config.Service) (string, error) {
	switch svc {
	case config.Auth, config.Posts, config.Users:
		return "migrations/" + string(svc), nil
	case config.Feed:
		// Feed-Stream reads the Post-Store database and owns no schema.
		return "", nil
	default:
		return "", fmt.Errorf("no migrations for service %q", svc)
	}
}

// Migrate applies the embedded migrations of svc through the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool, svc config.Service) error {
	dir, err := MigrationsDir(svc)
	if err != nil || dir == "" {
		return err
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()
	return run(ctx, sqlDB, dir, gooseUpContext)
}

// MigrationStatus prints the applied/pending state of svc's migrations.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, svc config.Service) error {
	dir, err := MigrationsDir(svc)
	if err != nil || dir == "" {
		return err
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()
	return run(ctx, sqlDB, dir, gooseStatusContext)
}

func run(ctx context.Context, sqlDB *sql.DB, dir string, fn func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := fn(ctx, sqlDB, dir); err != nil {
		return fmt.Errorf("migrate %s: %w", dir, err)
	}
	return nil
}
