package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Simplereally/bloomstudio-sub000/internal/batch"
	"github.com/Simplereally/bloomstudio-sub000/internal/db"
	"github.com/Simplereally/bloomstudio-sub000/internal/infra"
	"github.com/Simplereally/bloomstudio-sub000/internal/infra/credentials"
	"github.com/Simplereally/bloomstudio-sub000/internal/providers/diffusion"
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

	generator, err := diffusion.NewClient(diffusion.Options{
		BaseURL:        cfg.ProviderBaseURL,
		Logger:         &logger,
		RequestTimeout: cfg.ProviderTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build generation client")
	}
	if generator.Remote() {
		logger.Info().Str("base_url", cfg.ProviderBaseURL).Msg("using remote generation provider")
	} else {
		logger.Info().Msg("no provider configured, generating synthetic images")
	}

	processor := batch.NewProcessor(batch.ProcessorConfig{
		Jobs:             queries,
		Assets:           queries,
		Credentials:      credentials.NewStore(queries),
		Generator:        generator,
		Storage:          fileStore,
		Rearm:            schedule.NewScheduler(queries),
		Logger:           logger,
		StepDelay:        cfg.StepDelay,
		FailureThreshold: cfg.FailureThreshold,
	})

	dispatcher := schedule.NewDispatcher(queries, logger, schedule.DispatcherOptions{
		PollInterval: cfg.WorkerPollInterval,
		Lease:        cfg.InvocationLease,
		MaxAttempts:  cfg.MaxAttempts,
	})
	dispatcher.Register(batch.HandlerRef, processor.HandleInvocation)

	logger.Info().Msg("worker started")
	if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("dispatcher stopped")
	}
	logger.Info().Msg("worker stopped")
}
