package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/meshchat-protocol/meshchat/internal/api"
	"github.com/meshchat-protocol/meshchat/internal/bus"
	"github.com/meshchat-protocol/meshchat/internal/config"
	"github.com/meshchat-protocol/meshchat/internal/handlers"
	"github.com/meshchat-protocol/meshchat/internal/hub"
	"github.com/meshchat-protocol/meshchat/internal/objstore"
	"github.com/meshchat-protocol/meshchat/internal/quota"
	"github.com/meshchat-protocol/meshchat/internal/router"
	"github.com/meshchat-protocol/meshchat/internal/session"
	"github.com/meshchat-protocol/meshchat/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Durable store: PostgreSQL in production, SQLite for local development
	var dataStore store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		dataStore = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		path := cfg.SQLitePath
		if path == "" {
			path = "meshchat.db"
		}
		sqlStore, err := store.NewSQLiteStore(ctx, path)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		dataStore = sqlStore
		logger.Info().Str("path", path).Msg("using SQLite store")
	}
	defer dataStore.Close()

	// Redis carries sessions, quota counters, and the fan-out bus
	if cfg.RedisURL == "" {
		logger.Fatal().Msg("REDIS_URL is required")
	}
	redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisStore.Close()
	logger.Info().Msg("connected to Redis")

	// Connection registry and send-side quota gate
	registry := hub.NewRegistry(cfg.MaxConnections)
	gate := quota.NewGate(redisStore, quota.Limits{
		FreeMessages:     cfg.FreeMessageLimit,
		Window:           cfg.QuotaWindow,
		FreeMaxFileBytes: cfg.FreeMaxFileBytes,
	}, logger)

	// Message router plus the Redis pub/sub bus feeding it
	msgRouter := router.New(cfg.NodeID, registry, dataStore, logger)
	msgBus, err := bus.NewRedisBus(ctx, redisStore.Client(), cfg.BusPublishAttempts, msgRouter.HandleBusFrame, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bus subscription failed")
	}
	msgRouter.BindBus(msgBus)

	validator := session.NewValidator(redisStore)

	// Presigned uploads are optional; without a bucket, file frames are refused
	var presigner objstore.Presigner
	if cfg.S3Bucket != "" {
		p, err := objstore.NewS3Presigner(ctx, cfg.S3Bucket, cfg.AWSRegion, cfg.PresignTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("s3 presigner init failed")
		}
		presigner = p
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("file uploads enabled")
	}

	h := &handlers.Handler{
		Cfg:       cfg,
		Store:     dataStore,
		Redis:     redisStore,
		Validator: validator,
		Gate:      gate,
		Router:    msgRouter,
		Registry:  registry,
		Presigner: presigner,
		Logger:    logger,
	}

	// Create server
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     api.NewRouter(cfg, logger, h, validator),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would sever long-lived WebSocket connections.
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("node", cfg.NodeID).
			Msg("starting meshchat node")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down node...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	// Stop accepting new work, then flush in-flight persistence before the
	// sockets and the bus go away.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown incomplete")
	}
	registry.CloseAll()
	if err := msgRouter.Drain(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("persistence drain incomplete")
	}
	if err := msgBus.Close(); err != nil {
		logger.Error().Err(err).Msg("bus close failed")
	}

	logger.Info().Msg("node stopped")
}
