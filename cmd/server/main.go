package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openprices/ingest/config"
	"github.com/openprices/ingest/internal/database"
	"github.com/openprices/ingest/internal/handlers"
	"github.com/openprices/ingest/internal/jobs"
	"github.com/openprices/ingest/internal/middleware"
	"github.com/openprices/ingest/internal/sweepers"
	"github.com/openprices/ingest/internal/telemetry"
	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting Price Service...")

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.GetConfigFromEnv())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shut down telemetry")
		}
	}()

	// Connect to database
	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}

	if err := database.Connect(
		ctx,
		dbURL,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		cfg.Database.MaxConnLifetime,
		cfg.Database.MaxConnIdleTime,
	); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	logger.Info().Msg("Database connected")

	cleanup := jobs.NewCleanupManager(database.Pool(), jobs.DefaultMaintenanceConfig(), logger)
	cleanup.Start()
	defer cleanup.Stop()

	taskSweeper := sweepers.NewTaskQueueSweeper(database.Pool(), logger, 1*time.Minute)
	taskSweeper.Start(ctx)
	defer taskSweeper.Stop()

	// Set up Gin router
	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	setupMiddleware(router, logger)

	// Register routes
	router.GET("/health", handlers.HealthCheck)

	// Ingestion routes (internal admin API)
	// Apply auth middleware to all /internal routes, then rate limiting
	// Note: More specific routes must come before generic ones
	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuthMiddleware())
	internal.Use(middleware.ServiceRateLimitMiddleware(50, 100)) // 50 req/s, burst 100
	{
		// Health check endpoint
		internal.GET("/health", handlers.HealthCheck)

		// List known chains
		internal.GET("/chains", handlers.ListChains)

		// Ingestion runs endpoints (read-only: run/file/error records and stats)
		ingestion := internal.Group("/ingestion")
		{
			ingestion.GET("/runs", handlers.ListRuns)
			ingestion.GET("/runs/:runId", handlers.GetRun)
			ingestion.GET("/runs/:runId/files", handlers.ListFiles)
			ingestion.GET("/runs/:runId/errors", handlers.ListErrors)
			ingestion.GET("/stats", handlers.GetStats)
			ingestion.GET("/error-summary", handlers.GetErrorSummary)
		}

		// Prices endpoints
		prices := internal.Group("/prices")
		{
			prices.GET("/:storeId", handlers.GetStorePrices)
		}

		// Items search endpoint
		items := internal.Group("/items")
		{
			items.GET("/search", handlers.SearchItems)
		}
	}

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()

	return &logger
}

func setupMiddleware(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	})
}
