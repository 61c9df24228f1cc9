package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wtthornton/HomeIQ-sub015/internal/feedback"
	"github.com/wtthornton/HomeIQ-sub015/internal/synergy"
	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/store"
	"github.com/wtthornton/HomeIQ-sub015/internal/synergy/version"
	"github.com/wtthornton/HomeIQ-sub015/pkg/config"
	"github.com/wtthornton/HomeIQ-sub015/pkg/health"
	"github.com/wtthornton/HomeIQ-sub015/pkg/mqtt"
	"github.com/wtthornton/HomeIQ-sub015/pkg/postgres"
	"github.com/wtthornton/HomeIQ-sub015/pkg/redis"
)

func main() {
	// Load configuration with hierarchy: defaults -> env -> flags
	cfg := config.NewConfig()
	cfg.ServiceName = "synergy-agent"
	cfg.LoadFromEnv()
	cfg.LoadFromFlags()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logLevel := parseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting Synergy Agent",
		"service_name", cfg.ServiceName,
		"mqtt_broker", cfg.MQTTAddress(),
		"redis_host", cfg.RedisAddress(),
		"postgres", fmt.Sprintf("%s:%d/%s", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB),
		"model_dir", cfg.ModelDir,
		"log_level", cfg.LogLevel)

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize clients
	mqttClient := mqtt.NewClient(cfg, logger)
	redisClient := redis.NewClient(cfg, logger)

	pgClient := postgres.NewClient(cfg, logger)
	if err := pgClient.Connect(ctx); err != nil {
		logger.Error("Failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	db := pgClient.DB()

	// Model version store backs training, incremental updates and rollback
	versions, err := version.NewStore(cfg.ModelDir, logger)
	if err != nil {
		logger.Error("Failed to open model version store", "error", err)
		os.Exit(1)
	}

	engine, err := synergy.NewEngine(
		store.NewEntityStorage(db),
		store.NewSynergyStorage(db),
		store.NewEmbeddingStorage(db),
		versions,
		feedback.NewReader(db, redisClient, logger),
		redisClient,
		cfg,
		logger,
	)
	if err != nil {
		logger.Error("Failed to construct synergy engine", "error", err)
		os.Exit(1)
	}

	agent := synergy.NewAgent(mqttClient, engine, cfg, logger)

	// Start health check server
	healthChecker := health.NewChecker(mqttClient, redisClient, pgClient, logger)
	httpServer := startHealthServer(cfg.HealthPort, healthChecker, logger)

	// Start agent in a goroutine
	agentErr := make(chan error, 1)
	go func() {
		if err := agent.Start(ctx); err != nil {
			logger.Error("Agent error", "error", err)
			agentErr <- err
		}
	}()

	// Wait for shutdown signal or agent error
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received (SIGTERM/SIGINT)")
	case err := <-agentErr:
		logger.Error("Agent failed", "error", err)
	}

	// Graceful shutdown
	logger.Info("Initiating graceful shutdown")
	cancel()

	if err := agent.Stop(); err != nil {
		logger.Error("Error stopping agent", "error", err)
	}

	if err := redisClient.Close(); err != nil {
		logger.Error("Error closing Redis connection", "error", err)
	}

	if err := pgClient.Disconnect(); err != nil {
		logger.Error("Error disconnecting from postgres", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", "error", err)
	}

	logger.Info("Synergy agent shutdown complete")
}

func startHealthServer(port int, checker *health.Checker, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HandlerFunc())
	mux.HandleFunc("/health/detailed", checker.DetailedHandlerFunc())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Starting health check server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	return server
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
