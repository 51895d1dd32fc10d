// Package server builds the Fiber app every service shares and runs it next
// to the service's background workers.
package server

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"backend-socialpost/internal/config"
	"backend-socialpost/internal/logging"
	"backend-socialpost/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const shutdownTimeout = 5 * time.Second

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

type worker struct {
	name string
	run  func(ctx context.Context) error
}

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	Logger logging.Logger

	workers []worker
	closers []func()
}

func New(cfg config.Config, log logging.Logger) *Server {
	app := fiber.New(fiber.Config{
		ErrorHandler:          apperr.ErrorHandler(log),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return &Server{App: app, Cfg: cfg, Logger: log}
}

// Go registers a background worker. Workers start with Run and get a context
// that is cancelled on shutdown; a worker returning an error stops the server.
func (s *Server) Go(name string, run func(ctx context.Context) error) {
	s.workers = append(s.workers, worker{name: name, run: run})
}

// OnClose registers cleanup that runs after shutdown, last registered first.
func (s *Server) OnClose(fn func()) {
	s.closers = append(s.closers, fn)
}

// Run serves HTTP and runs the workers until a signal arrives, ctx is done,
// the listener fails, or a worker fails.
func (s *Server) Run(ctx context.Context, signals <-chan os.Signal, listen ListenFunc) error {
	if listen == nil {
		listen = defaultListen
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(s.workers)+1)
	var wg sync.WaitGroup
	for _, w := range s.workers {
		wg.Add(1)
		go func(w worker) {
			defer wg.Done()
			s.Logger.Info(runCtx, "worker started", "worker", w.name)
			if err := w.run(runCtx); err != nil && runCtx.Err() == nil {
				s.Logger.Error(runCtx, "worker failed", "worker", w.name, "error", err)
				errCh <- err
			}
		}(w)
	}

	go func() {
		s.Logger.Info(runCtx, "listening", "addr", s.Cfg.Addr())
		errCh <- listen(s.App, s.Cfg.Addr())
	}()

	var runErr error
	select {
	case <-signals:
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	shutdownErr := s.App.ShutdownWithContext(shutdownCtx)
	wg.Wait()

	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	return errors.Join(runErr, shutdownErr)
}
