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
	"backend-socialpost/internal/posts"
	"backend-socialpost/internal/projection"
	"backend-socialpost/internal/server"
	"backend-socialpost/internal/shared/outbound"
	"backend-socialpost/internal/storage"

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
	newPresigner    func(context.Context, storage.Options, outbound.Policy) (*storage.Presigner, error)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, *server.Server, <-chan os.Signal) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		newLogger:       func(service string, debug bool) logging.Logger { return logging.New(service, debug) },
		connectPostgres: db.ConnectPostgres,
		migrate:         db.Migrate,
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
	logger := deps.newLogger(string(config.Posts), cfg.Debug)

	if err := cfg.Validate(config.Posts); err != nil {
		logger.Error(ctx, "invalid configuration", "error", err)
		return err
	}

	policy := outbound.NewPolicy(cfg.OutboundTimeout, cfg.OutboundAttempts)
	presigner, err := deps.newPresigner(ctx, storageOptions(cfg), policy)
	if err != nil {
		logger.Error(ctx, "object storage setup failed", "error", err)
		return err
	}

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		logger.Error(ctx, "postgres connection failed", "error", err)
		return err
	}
	if err := deps.migrate(ctx, pg, config.Posts); err != nil {
		pg.Close()
		logger.Error(ctx, "migrations failed", "error", err)
		return err
	}

	mq := broker.New(cfg.AMQPURL, policy, logger)
	srv := newServer(cfg, logger, pg, presigner, mq)
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

func storageOptions(cfg config.Config) storage.Options {
	return storage.Options{
		Bucket:    cfg.Bucket,
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Region:    cfg.MinioRegion,
	}
}

type postsBroker interface {
	outbox.Publisher
	DeclareQueue(ctx context.Context, name string) error
	BindFanout(ctx context.Context, exchange, queue string) error
	Consume(ctx context.Context, queue, consumer string, handle broker.Handler) error
}

// projectionQueue is this service's private copy of the accounts fanout.
func projectionQueue(cfg config.Config) string {
	return cfg.AccountsExchange + "." + string(config.Posts)
}

func newServer(cfg config.Config, logger logging.Logger, pool db.TxQuerier, presigner *storage.Presigner, mq postsBroker) *server.Server {
	srv := server.New(cfg, logger)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	required := auth.JWTMiddleware(tokens)
	optional := auth.OptionalJWTMiddleware(tokens)

	// Static paths first so /:id does not swallow them.
	storage.RegisterRoutes(srv.App, presigner, required)
	posts.RegisterRoutes(srv.App, posts.NewService(pool, presigner, cfg.CreatedPostsQueue), required, optional)

	relay := outbox.NewRelay(pool, mq, logger, cfg.OutboxPollInterval)
	srv.Go("outbox relay", func(ctx context.Context) error {
		if err := mq.DeclareQueue(ctx, cfg.CreatedPostsQueue); err != nil {
			return err
		}
		relay.Run(ctx)
		return nil
	})

	store := projection.NewStore(pool, logger, nil)
	srv.Go("account projection", func(ctx context.Context) error {
		queue := projectionQueue(cfg)
		if err := mq.BindFanout(ctx, cfg.AccountsExchange, queue); err != nil {
			return err
		}
		return mq.Consume(ctx, queue, "posts-projection", store.Handle)
	})
	return srv
}
