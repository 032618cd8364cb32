package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/mama165/sdk-go/logs"

	"github.com/fenggwsx/hirechat/internal/config"
	"github.com/fenggwsx/hirechat/internal/history"
	"github.com/fenggwsx/hirechat/internal/presence"
	"github.com/fenggwsx/hirechat/internal/server"
	"github.com/fenggwsx/hirechat/internal/session"
	"github.com/fenggwsx/hirechat/internal/storage"
	"github.com/fenggwsx/hirechat/internal/storage/badger"
	"github.com/fenggwsx/hirechat/internal/storage/sqlite"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	store, err := openStore(cfg)
	if err != nil {
		log.Error("init storage", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}

	if err := store.Migrate(context.Background()); err != nil {
		log.Error("migrate storage", "err", err)
		_ = store.Close()
		os.Exit(1)
	}

	directory := presence.NewDirectory()
	manager := session.NewManager(log, store, directory, session.WithSendBuffer(cfg.SendBuffer))
	app := server.NewApp(cfg, log, manager, history.NewService(store, log))

	serveCtx, stopServing := context.WithCancel(context.Background())
	defer stopServing()

	runErr := make(chan error, 1)
	go func() {
		if err := app.Run(serveCtx); err != nil {
			runErr <- err
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"server": func(ctx context.Context) error {
			log.Info("graceful shutdown initiated")
			stopServing()
			err := errors.Join(app.Shutdown(ctx), manager.Shutdown(ctx))
			directory.Reset()
			return errors.Join(err, store.Close())
		},
	})

	select {
	case code := <-wait:
		log.Info("server exited", "code", code)
		os.Exit(code)
	case err := <-runErr:
		log.Error("server stopped", "err", err)
		stopServing()
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		_ = app.Shutdown(ctx)
		_ = manager.Shutdown(ctx)
		cancel()
		_ = store.Close()
		os.Exit(1)
	}
}

func openStore(cfg config.ServerConfig) (storage.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverBadger:
		return badger.NewStore(cfg.Badger)
	default:
		return sqlite.NewStore(cfg.Database)
	}
}
