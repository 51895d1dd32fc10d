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
	"backend-socialpost/internal/projection"
	"backend-socialpost/internal/server"
	"backend-socialpost/internal/shared/outbound"
	"backend-socialpost/internal/users"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
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
	connectRedis    func(config.Config) (*redis.Client, error)
	migrate         func(context.Context, *pgxpool.Pool, config.Service) error
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, *server.Server, <-chan os.Signal) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		newLogger:       func(service string, debug bool) logging.Logger { return logging.New(service, debug) },
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
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
	logger := deps.newLogger(string(config.Users), cfg.Debug)

	if err := cfg.Validate(config.Users); err != nil {
		logger.Error(ctx, "invalid configuration", "error", err)
		return err
	}

	rdb, err := deps.connectRedis(cfg)
	if err != nil {
		logger.Error(ctx, "redis connection failed", "error", err)
		return err
	}

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		logger.Error(ctx, "postgres connection failed", "error", err)
		return err
	}
	if err := deps.migrate(ctx, pg, config.Users); err != nil {
		pg.Close()
		logger.Error(ctx, "migrations failed", "error", err)
		return err
	}

	var mq projectionBroker
	if cfg.AMQPURL != "" {
		client := broker.New(cfg.AMQPURL, outbound.NewPolicy(cfg.OutboundTimeout, cfg.OutboundAttempts), logger)
		defer func() { _ = client.Close() }()
		mq = client
	} else {
		logger.Warn(ctx, "AMQP_URI not set, accounts registered through auth will not be projected")
	}

	srv := newServer(cfg, logger, pg, rdb, mq)
	srv.OnClose(pg.Close)
	if rdb != nil {
		srv.OnClose(func() { _ = rdb.Close() })
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(ctx, srv, signals); err != nil {
		logger.Error(ctx, "server exited with error", "error", err)
		return err
	}
	return nil
}

type projectionBroker interface {
	BindFanout(ctx context.Context, exchange, queue string) error
	Consume(ctx context.Context, queue, consumer string, handle broker.Handler) error
}

// newServer skips the projection consumer when mq is nil.
func newServer(cfg config.Config, logger logging.Logger, pool db.Querier, rdb *redis.Client, mq projectionBroker) *server.Server {
	srv := server.New(cfg, logger)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	svc := users.NewService(pool, rdb, logger)
	users.RegisterRoutes(srv.App, svc, auth.JWTMiddleware(tokens), users.ServiceTokenMiddleware(cfg.AllowedAPITokens))

	if mq != nil {
		store := projection.NewStore(pool, logger, svc.InvalidateCache)
		srv.Go("account projection", func(ctx context.Context) error {
			queue := cfg.AccountsExchange + "." + string(config.Users)
			if err := mq.BindFanout(ctx, cfg.AccountsExchange, queue); err != nil {
				return err
			}
			return mq.Consume(ctx, queue, "users-projection", store.Handle)
		})
	}
	return srv
}
