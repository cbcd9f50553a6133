package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/wattwise/backend/internal/anomaly"
	"github.com/wattwise/backend/internal/api/handlers"
	"github.com/wattwise/backend/internal/baseline"
	redisCache "github.com/wattwise/backend/internal/cache/redis"
	"github.com/wattwise/backend/internal/feedback"
	"github.com/wattwise/backend/internal/forecast"
	"github.com/wattwise/backend/internal/history"
	"github.com/wattwise/backend/internal/metrics"
	"github.com/wattwise/backend/internal/middleware/ratelimit"
	"github.com/wattwise/backend/internal/middleware/security"
	"github.com/wattwise/backend/internal/middleware/validation"
	"github.com/wattwise/backend/internal/notify"
	"github.com/wattwise/backend/internal/storage/sqlite"
	"github.com/wattwise/backend/internal/stream"
	"github.com/wattwise/backend/internal/tariff"
	"github.com/wattwise/backend/pkg/config"
	appLogger "github.com/wattwise/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting WattWise Energy API Server")

	metrics.Init()

	db, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer db.Close()

	err = db.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	cache, err := redisCache.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		time.Duration(cfg.Redis.BaselineTTLSec)*time.Second,
	)
	if err != nil {
		appLogger.Warn("Redis unavailable, running without baseline cache", zap.Error(err))
		cache = nil
	}
	defer cache.Close()

	rates := tariff.NewSchedule(
		cfg.Tariff.PeakStartHour,
		cfg.Tariff.PeakEndHour,
		cfg.Tariff.PeakRate,
		cfg.Tariff.OffPeakRate,
		cfg.Tariff.FlatRate,
	)

	hub := stream.NewHub()

	var notifier anomaly.Notifier
	if cfg.Notifier.Enabled && cfg.Notifier.WebhookURL != "" {
		notifier = notify.NewNotifier(cfg.Notifier.WebhookURL, time.Duration(cfg.Notifier.TimeoutSec)*time.Second)
	}

	calculator := baseline.NewCalculator(db, cache)
	detector := anomaly.NewDetector(db, rates, hub, notifier, cfg.Detector.MinDataPoints)
	adapter := feedback.NewAdapter(db, cache)
	historySvc := history.NewService(db, cache)
	forecaster := forecast.NewForecaster(db, rates)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 120,
		Logger:               appLogger.Log,
	})
	defer limiter.Stop()

	anomalyHandler := handlers.NewAnomalyHandler(db, calculator, detector, adapter, historySvc, forecaster)
	streamHandler := handlers.NewStreamHandler(hub)

	api := app.Group("/api/anomaly")
	api.Use(limiter.Middleware())
	api.Use(validation.Middleware(validation.Config{
		MaxBodySize: cfg.Server.BodyLimit,
		Logger:      appLogger.Log,
	}))

	api.Post("/consumption", anomalyHandler.RecordConsumption)
	api.Post("/calculate-baselines", anomalyHandler.CalculateBaselines)
	api.Post("/analyze", anomalyHandler.Analyze)
	api.Get("/history", anomalyHandler.GetHistory)
	api.Post("/report", anomalyHandler.Report)
	api.Get("/baselines", anomalyHandler.GetBaselines)
	api.Get("/forecast", anomalyHandler.GetForecast)

	app.Use("/api/anomaly/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/api/anomaly/stream", websocket.New(streamHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
