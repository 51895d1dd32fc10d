package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"backend-socialpost/internal/auth"
	"backend-socialpost/internal/broker"
	"backend-socialpost/internal/config"
	"backend-socialpost/internal/db"
	"backend-socialpost/internal/logging"
	"backend-socialpost/internal/outbox"
	"backend-socialpost/internal/server"
	"backend-socialpost/internal/shared/outbound"

	"github.com/jackc/pgx/v5/pgxpool"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	if err := mainRunner(mainDepsProvider()); err != nil {
		os.Exit(1)
	}
}

type mainDeps struct {
	loadConfig      func() config.Config
	newLogger       func(service string, debug bool) logging.Logger
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	migrate         func(context.Context, *pgxpool.Pool, config.Service) error
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, *server.Server, <-chan os.Signal) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		newLogger:       func(service string, debug bool) logging.Logger { return logging.New(service, debug) },
		connectPostgres: db.ConnectPostgres,
		migrate:         db.Migrate,
		notify:          signal.Notify,
		run: func(ctx context.Context, srv *server.Server, signals <-chan os.Signal) error {
			return srv.Run(ctx, signals, nil)
		},
	}
}

func realMain(deps mainDeps) error {
	ctx := context.Background()
	cfg := deps.loadConfig()
	logger := deps.newLogger(string(config.Auth), cfg.Debug)

	if err := cfg.Validate(config.Auth); err != nil {
		logger.Error(ctx, "invalid configuration", "error", err)
		return err
	}

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		logger.Error(ctx, "postgres connection failed", "error", err)
		return err
	}
	if err := deps.migrate(ctx, pg, config.Auth); err != nil {
		pg.Close()
		logger.Error(ctx, "migrations failed", "error", err)
		return err
	}

	mq := broker.New(cfg.AMQPURL, outbound.NewPolicy(cfg.OutboundTimeout, cfg.OutboundAttempts), logger)
	srv := newServer(cfg, logger, pg, mq)
	srv.OnClose(pg.Close)
	srv.OnClose(func() { _ = mq.Close() })

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(ctx, srv, signals); err != nil {
		logger.Error(ctx, "server exited with error", "error", err)
		return err
	}
	return nil
}

type accountsBroker interface {
	outbox.Publisher
	DeclareFanout(ctx context.Context, exchange string) error
}

func newServer(cfg config.Config, logger logging.Logger, pool db.TxQuerier, mq accountsBroker) *server.Server {
	srv := server.New(cfg, logger)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	auth.RegisterRoutes(srv.App, auth.NewService(tokens, pool, cfg.AccountsExchange))

	relay := outbox.NewRelay(pool, mq, logger, cfg.OutboxPollInterval)
	srv.Go("outbox relay", func(ctx context.Context) error {
		if err := mq.DeclareFanout(ctx, cfg.AccountsExchange); err != nil {
			return err
		}
		relay.Run(ctx)
		return nil
	})
	return srv
}
