package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuppid-coder/connect/internal/auth"
	"github.com/cuppid-coder/connect/internal/gateway"
	"github.com/cuppid-coder/connect/internal/identity/gormstore"
	"github.com/cuppid-coder/connect/internal/notify"
	"github.com/cuppid-coder/connect/internal/presence"
	"github.com/cuppid-coder/connect/internal/relay"
	"github.com/cuppid-coder/connect/pkg/config"
	"github.com/cuppid-coder/connect/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.ParseLevel(cfg.Log.Level))
	slog.SetDefault(logger)

	directory, err := gormstore.Open(cfg.Database.DSN)
	if err != nil {
		logger.Error("Failed to open user store", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := presence.NewManager(logger)
	r := relay.New(logger, manager)
	gw := gateway.New(logger, manager, r, directory, gateway.Options{
		TypingThrottle:     cfg.Presence.TypingThrottle,
		StatusWriteTimeout: cfg.Presence.StatusWriteTimeout,
	})
	authenticator := auth.New(logger, cfg.Server.Auth.JWTSecret, directory, cfg.Server.Auth.Timeout)

	worker := notify.NewWorker(logger, cfg.Queue.RedisAddr, cfg.Queue.Concurrency, gw)
	go func() {
		if err := worker.Run(); err != nil {
			logger.Error("Notification worker failed", slog.Any("error", err))
			stop()
		}
	}()
	defer worker.Shutdown()

	app := gateway.NewApp(logger, ctx, cfg, gw, manager, authenticator)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
