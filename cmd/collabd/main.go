// collabd is the collaboration server's process entrypoint: load config,
// open the store, serve HTTP/websocket until a signal arrives, then drain.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/astromechza/codecollab/internal/server"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	cfg := server.LoadConfig(os.Args[1:])
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-exit
		logger.Info("signal caught", "sig", sig)
		cancel()
	}()

	return srv.Run(ctx)
}
