package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"
	"github.com/saeid-a/MentorHubBack/internal/config"
	"github.com/saeid-a/MentorHubBack/internal/database"
	"github.com/saeid-a/MentorHubBack/internal/logger"
	"github.com/saeid-a/MentorHubBack/internal/routes"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	if cfg.DBUrl == "" {
		log.Fatal().Msg("DB_URL is required")
	}
	db, err := database.ConnectDB(ctx, cfg.DBUrl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// 3. Setup Fiber
	app := fiber.New(fiber.Config{DisableStartupMessage: cfg.AppEnv != "development"})

	// Middleware
	app.Use(cors.New())
	app.Use(logger.RequestLogger())
	app.Use(recover.New())

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	if err := routes.RegisterRoutes(ctx, app, cfg, db); err != nil {
		log.Fatal().Err(err).Msg("failed to register routes")
	}

	// 4. Start Server
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}
