package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/fenggwsx/hirechat/internal/config"
	"github.com/fenggwsx/hirechat/internal/history"
	"github.com/fenggwsx/hirechat/internal/session"
)

// App exposes the session manager over TCP and WebSocket and serves the
// request/response API.
type App struct {
	cfg       config.ServerConfig
	log       *slog.Logger
	manager   *session.Manager
	history   *history.Service
	directory Directory
	http      *fiber.App

	mu       sync.Mutex
	listener net.Listener
	baseCtx  context.Context
}

// Option customizes an App.
type Option func(*App)

// WithDirectory wires the participant listing collaborator.
func WithDirectory(directory Directory) Option {
	return func(a *App) {
		a.directory = directory
	}
}

// NewApp constructs a server instance using the provided dependencies.
func NewApp(cfg config.ServerConfig, log *slog.Logger, manager *session.Manager, history *history.Service, opts ...Option) *App {
	a := &App{
		cfg:     cfg,
		log:     log,
		manager: manager,
		history: history,
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.http = a.newHTTP()
	return a
}

// HTTP returns the Fiber application serving the API and WebSocket routes.
func (a *App) HTTP() *fiber.App {
	return a.http
}

// Run serves both transports until ctx is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.baseCtx = ctx
	a.mu.Unlock()

	listener, err := net.Listen("tcp", a.cfg.TCPAddr)
	if err != nil {
		return fmt.Errorf("listen tcp: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- a.ServeTCP(ctx, listener)
	}()
	go func() {
		if err := a.http.Listen(a.cfg.HTTPAddr); err != nil {
			errCh <- fmt.Errorf("listen http: %w", err)
			return
		}
		errCh <- nil
	}()
	a.log.Info("server listening", "tcp", listener.Addr().String(), "http", a.cfg.HTTPAddr)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops accepting connections on both transports.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	listener := a.listener
	a.mu.Unlock()

	var errs []error
	if listener != nil {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close tcp listener: %w", err))
		}
	}
	if err := a.http.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) connContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.baseCtx
}
