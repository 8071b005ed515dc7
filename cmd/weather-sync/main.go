package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/mkravets/weather-sync/internal/api/http"
	"github.com/mkravets/weather-sync/internal/config"
	"github.com/mkravets/weather-sync/internal/favorites"
	"github.com/mkravets/weather-sync/internal/scheduler"
	"github.com/mkravets/weather-sync/internal/snapshot"
	"github.com/mkravets/weather-sync/internal/syncer"
	"github.com/mkravets/weather-sync/internal/weather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable snapshot store for offline fallback.
	var store snapshot.Store
	if cfg.SnapshotDBPath != "memory" {
		sqlStore, err := snapshot.NewSQLiteStore(cfg.SnapshotDBPath)
		if err != nil {
			log.Fatalf("failed to open snapshot store: %v", err)
		}
		defer sqlStore.Close()
		store = sqlStore
	} else {
		store = snapshot.NewMemoryStore()
	}

	// Offer the persisted device identity back to the favorites store.
	var identity string
	if b, err := store.Get(ctx, snapshot.KeyIdentity); err == nil {
		identity = string(b)
	}

	// Favorites sync channel: remote Postgres collection when configured,
	// in-memory otherwise.
	var channel favorites.Channel
	if cfg.DatabaseURI != "" {
		pgChannel, err := favorites.NewPostgresChannel(ctx, cfg.DatabaseURI, identity)
		if err != nil {
			log.Fatalf("failed to connect favorites store: %v", err)
		}
		channel = pgChannel
	} else {
		log.Println("INFO: DATABASE_URI not set; favorites kept in memory only")
		channel = favorites.NewMemoryChannel(identity)
	}
	defer channel.Close()

	// Shared HTTP client for outbound weather calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	client := weather.NewOpenWeatherClient(httpClient, cfg.OpenWeatherAPIKey)

	// Core orchestrator owning the sync state.
	orch := syncer.New(client, store, channel, cfg.DefaultUnit)
	orch.LoadCached(ctx)
	orch.Run(ctx)

	// Periodic favorite-weather refresh.
	sched := scheduler.New(orch, cfg.RefreshInterval)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Presentation adapter.
	app := fiber.New(fiber.Config{
		AppName:               "weather-sync",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-sync",
		})
	})

	httpapi.RegisterRoutes(app, orch)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
