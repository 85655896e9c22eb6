package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/arcade-hub/internal/achievements"
	"github.com/arcade-hub/internal/config"
	"github.com/arcade-hub/internal/handler"
	"github.com/arcade-hub/internal/kafka"
	"github.com/arcade-hub/internal/postgres"
	"github.com/arcade-hub/internal/redis"
	"github.com/arcade-hub/internal/service"
	"github.com/arcade-hub/internal/websocket"
	"github.com/arcade-hub/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL, the authoritative store
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	postgresRepo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer postgresRepo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := postgresRepo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	caps := postgresRepo.Capabilities()
	logger.Info("store capabilities",
		"friend_status", caps.FriendStatus,
		"achievement_reason", caps.AchievementReason,
	)

	// Initialize the Redis board cache. The hub serves everything from
	// PostgreSQL when the cache is unavailable.
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	boardCache, err := redis.NewBoards(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("failed to connect to Redis, running without board cache", "error", err)
		boardCache = nil
	} else {
		defer boardCache.Close()
		logger.Info("connected to Redis")
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize services
	policy := achievements.NewPolicy(cfg.Achievements.ScoreThresholds, cfg.Achievements.PlayThresholds)

	var cache service.Cache
	if boardCache != nil {
		cache = boardCache
	}
	hubService := service.NewHubService(
		postgresRepo,
		cache,
		policy,
		&cfg.Leaderboard,
		logger,
	)

	// Set the WebSocket hub on the service for broadcasting
	hubService.SetNotifier(wsHub)

	// Initialize the cache rebuild worker
	var rebuilder *worker.Rebuilder
	if boardCache != nil {
		rebuilder = worker.NewRebuilder(
			postgresRepo,
			boardCache,
			wsHub,
			&cfg.Sync,
			logger,
		)

		// Warm the cached boards from the ledger on startup
		logger.Info("warming cached boards from the ledger")
		rebuilder.RunOnce(ctx)

		if cfg.Sync.Enabled {
			if err := rebuilder.Start(ctx); err != nil {
				logger.Error("failed to start rebuild worker", "error", err)
				os.Exit(1)
			}
		}
	}

	// Initialize the Kafka score intake
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, hubService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without score intake", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without score intake", "error", err)
			kafkaConsumer = nil
		}
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(hubService, wsHub, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("arcade hub listening", "port", cfg.Server.Port, "websocket", "/ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop rebuild worker
	if rebuilder != nil {
		if err := rebuilder.Stop(); err != nil {
			logger.Error("failed to stop rebuild worker", "error", err)
		}
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("arcade hub stopped")
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
