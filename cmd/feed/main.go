package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"backend-socialpost/internal/broker"
	"backend-socialpost/internal/config"
	"backend-socialpost/internal/db"
	"backend-socialpost/internal/logging"
	"backend-socialpost/internal/posts"
	"backend-socialpost/internal/server"
	"backend-socialpost/internal/shared/outbound"
	"backend-socialpost/internal/storage"
	"backend-socialpost/internal/stream"

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
	newPresigner    func(context.Context, storage.Options, outbound.Policy) (*storage.Presigner, error)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, *server.Server, <-chan os.Signal) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		newLogger:       func(service string, debug bool) logging.Logger { return logging.New(service, debug) },
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		newPresigner:    storage.New,
		notify:          signal.Notify,
		run: func(ctx context.Context, srv *server.Server, signals <-chan os.Signal) error {
			return srv.Run(ctx, signals, nil)
		},
	}
}

func realMain(deps mainDeps) error {
	ctx := context.Background()
	cfg := deps.loadConfig()
	logger := deps.newLogger(string(config.Feed), cfg.Debug)

	if err := cfg.Validate(config.Feed); err != nil {
		logger.Error(ctx, "invalid configuration", "error", err)
		return err
	}

	policy := outbound.NewPolicy(cfg.OutboundTimeout, cfg.OutboundAttempts)
	presigner, err := deps.newPresigner(ctx, storage.Options{
		Bucket:    cfg.Bucket,
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Region:    cfg.MinioRegion,
	}, policy)
	if err != nil {
		logger.Error(ctx, "object storage setup failed", "error", err)
		return err
	}

	rdb, err := deps.connectRedis(cfg)
	if err != nil {
		logger.Error(ctx, "redis connection failed", "error", err)
		return err
	}
	if rdb == nil {
		logger.Warn(ctx, "REDIS_URL not set, broadcasts stay on this instance")
	}

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		logger.Error(ctx, "postgres connection failed", "error", err)
		return err
	}

	mq := broker.New(cfg.AMQPURL, policy, logger)
	srv := newServer(cfg, logger, pg, rdb, presigner, mq)
	srv.OnClose(pg.Close)
	srv.OnClose(func() { _ = mq.Close() })
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

type feedBroker interface {
	DeclareQueue(ctx context.Context, name string) error
	Consume(ctx context.Context, queue, consumer string, handle broker.Handler) error
}

func newServer(cfg config.Config, logger logging.Logger, pool db.TxQuerier, rdb *redis.Client, signer posts.URLSigner, mq feedBroker) *server.Server {
	srv := server.New(cfg, logger)

	hub := stream.NewHub(rdb, logger)
	stream.RegisterRoutes(srv.App, hub)
	srv.Go("stream hub", hub.Run)

	consumer := stream.NewConsumer(hub, posts.NewService(pool, signer, cfg.CreatedPostsQueue), logger)
	srv.Go("post-created consumer", func(ctx context.Context) error {
		if err := mq.DeclareQueue(ctx, cfg.CreatedPostsQueue); err != nil {
			return err
		}
		return mq.Consume(ctx, cfg.CreatedPostsQueue, "feed-stream", consumer.Handle)
	})
	return srv
}
