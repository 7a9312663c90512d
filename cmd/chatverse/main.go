package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Shadowcake59/ChatVerse/internal/identity"
	"github.com/Shadowcake59/ChatVerse/internal/server"
	"github.com/Shadowcake59/ChatVerse/internal/store"
	"github.com/Shadowcake59/ChatVerse/internal/store/postgres"
	"github.com/Shadowcake59/ChatVerse/internal/store/redispresence"
	"github.com/Shadowcake59/ChatVerse/pkg/config"
	"github.com/Shadowcake59/ChatVerse/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(cfg.Log.Level)
	slog.SetDefault(logger)

	stores, err := buildStores(logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize stores", slog.Any("error", err))
		os.Exit(1)
	}
	resolver := identity.NewJWTResolver(cfg.Server.Auth.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := server.NewApp(logger, ctx, cfg, stores, resolver)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}

// buildStores wires the optional backends: without a DSN the server runs on
// in-memory state alone, which is all the broadcast core needs.
func buildStores(logger *slog.Logger, cfg *config.Config) (server.Stores, error) {
	stores := server.Stores{
		Messages: store.NopMessageStore{},
		Presence: store.NopPresenceMirror{},
	}

	if cfg.Store.PostgresDSN != "" {
		pg, err := postgres.Open(cfg.Store.PostgresDSN)
		if err != nil {
			return stores, err
		}
		stores.Messages = pg
		logger.Info("Message store connected")
	} else {
		logger.Warn("No postgres DSN configured; messages will not be persisted")
	}

	if cfg.Store.RedisAddr != "" {
		mirror, err := redispresence.New(cfg.Store.RedisAddr, cfg.Store.RedisPassword)
		if err != nil {
			return stores, err
		}
		stores.Presence = mirror
		logger.Info("Presence mirror connected")
	}

	return stores, nil
}
