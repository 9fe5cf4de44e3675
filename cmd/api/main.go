package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Simplereally/bloomstudio-sub000/internal/db"
	"github.com/Simplereally/bloomstudio-sub000/internal/http/handlers"
	httpapi "github.com/Simplereally/bloomstudio-sub000/internal/http/httpapi"
	"github.com/Simplereally/bloomstudio-sub000/internal/infra"
	"github.com/Simplereally/bloomstudio-sub000/internal/infra/credentials"
	"github.com/Simplereally/bloomstudio-sub000/internal/notify"
	"github.com/Simplereally/bloomstudio-sub000/internal/schedule"
	"github.com/Simplereally/bloomstudio-sub000/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	queries := db.New(dbpool)
	if err := queries.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply schema")
	}

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}

	broker := notify.NewBroker(logger, notify.BrokerOptions{})
	go func() {
		if err := broker.Run(ctx, cfg.DatabaseURL); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("progress broker stopped")
		}
	}()

	app := &handlers.App{
		Logger:      logger,
		Store:       queries,
		Credentials: credentials.NewStore(queries),
		Scheduler:   schedule.NewScheduler(queries),
		Broker:      broker,
		Storage:     fileStore,
	}

	router := httpapi.NewRouter(cfg, logger, app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
