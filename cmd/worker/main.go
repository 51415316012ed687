package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/database"
	job "github.com/maheshrc27/crosspost/internal/jobs"
	"github.com/maheshrc27/crosspost/internal/logger"
	"github.com/maheshrc27/crosspost/internal/queue"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron"
	"github.com/rs/zerolog"
)

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		boot.Warn().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatal().Err(err).Msg("invalid configuration")
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		boot.Fatal().Err(err).Msg("invalid logger configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.PostgresURI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	store, err := storage.Open(ctx, *cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open staging store")
	}

	dial, err := queue.NewDialer(*cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure queue")
	}

	platforms := service.NewPlatforms(
		service.NewTwitterService(*cfg, log),
		service.NewLinkedInService(*cfg, log),
	)
	worker := queue.NewWorker(*cfg, dial, store, platforms, repository.NewPublishedPostRepository(db), log)

	retention := job.NewRetentionJob(store, cfg.Storage.ArchiveRetention, "", log)
	c := cron.New()
	if err := c.AddFunc(cfg.Storage.ArchivePruneSchedule, retention.PruneArchive); err != nil {
		log.Fatal().Err(err).Msg("invalid archive prune schedule")
	}
	c.Start()
	defer c.Stop()

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr(),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	log.Info().
		Str("driver", cfg.Queue.Driver).
		Str("queue", cfg.Queue.Name).
		Int("prefetch", cfg.Queue.Prefetch).
		Msg("delivery worker starting")

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "worker stopped: %v\n", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	log.Info().Msg("delivery worker stopped")
}
