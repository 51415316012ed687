package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/api/handlers"
	"github.com/maheshrc27/crosspost/internal/api/middleware"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Open(ctx, cfg.PostgresURI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db, log); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	store, err := storage.Open(ctx, *cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open staging store")
	}

	dial, err := queue.NewDialer(*cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure queue")
	}
	queueClient := queue.NewClient(dial, log)
	defer queueClient.Close()

	connectionRepo := repository.NewPlatformConnectionRepository(db)
	publishedPostRepo := repository.NewPublishedPostRepository(db)

	platforms := service.NewPlatforms(
		service.NewTwitterService(*cfg, log),
		service.NewLinkedInService(*cfg, log),
	)
	credentialService := service.NewCredentialService(*cfg, connectionRepo)
	postService := service.NewPostService(*cfg, platforms, credentialService, store, queueClient, publishedPostRepo, log)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    600 * 1024 * 1024, // largest accepted video plus form overhead
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	authMiddleware := middleware.NewAuthMiddleware(*cfg, log)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post, err := handlers.NewPostHandler(postService, *cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare upload directory")
	}
	api.Post("/posts", post.CreatePost)
	api.Get("/posts", post.ListPosts)

	platform := handlers.NewPlatformHandler(credentialService, log)
	api.Get("/accounts", platform.ListAccounts)
	api.Post("/accounts", platform.ConnectAccount)
	api.Delete("/accounts/:platform", platform.DeleteAccount)

	// cron jobs
	retention := job.NewRetentionJob(store, cfg.Storage.ArchiveRetention, cfg.Storage.UploadDir, log)

	c := cron.New()
	if err := c.AddFunc(cfg.Storage.ArchivePruneSchedule, retention.PruneArchive); err != nil {
		log.Fatal().Err(err).Msg("invalid archive prune schedule")
	}
	if err := c.AddFunc("@every 1h", retention.SweepUploads); err != nil {
		log.Fatal().Err(err).Msg("invalid upload sweep schedule")
	}
	c.Start()
	defer c.Stop()

	if cfg.RunWorker {
		worker := queue.NewWorker(*cfg, dial, store, platforms, publishedPostRepo, log)
		go func() {
			log.Info().Str("driver", cfg.Queue.Driver).Msg("starting in-process delivery worker")
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("delivery worker stopped")
			}
		}()
	}

	go func() {
		if err := app.Listen(cfg.Addr()); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Str("addr", cfg.Addr()).Msg("server is running")

	gracefulShutdown(app, db, cancel, log)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB, stopWorker context.CancelFunc, log zerolog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Info().Msg("shutting down server")

	stopWorker()
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Error().Err(err).Msg("failed to shut down server")
	}

	closeDB(db)
	log.Info().Msg("server shutdown complete")
}
