package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/adapter/postgres"
	redis_adapter "github.com/stickerverse/figmacionvert-v3-sub012/internal/adapter/redis"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/delivery/http/handler"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/delivery/http/router"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/usecase"
	"github.com/stickerverse/figmacionvert-v3-sub012/pkg/config"
	"github.com/stickerverse/figmacionvert-v3-sub012/pkg/logger"
	"github.com/stickerverse/figmacionvert-v3-sub012/pkg/metrics"
)

func main() {
	// --- Configuration ---
	cfg := config.Load()

	// --- Logger ---
	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	logger.Init(os.Stdout, logLevel)
	slog.Info("Logger initialized", "level", logLevel.String())

	// --- Metrics ---
	metrics.Init()
	slog.Info("Metrics initialized")

	// --- Database Connections ---
	ctx := context.Background()

	// PostgreSQL
	pgConnString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)
	dbpool, err := pgxpool.New(ctx, pgConnString)
	if err != nil {
		slog.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	slog.Info("PostgreSQL connection pool established")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		slog.Error("Unable to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("Redis connection established")

	// --- Repositories ---
	captureRepo := postgres.NewCaptureRepo(dbpool)
	seenRepo := redis_adapter.NewSeenRepo(rdb)

	// --- Use Cases ---
	ingest := usecase.NewIngest(captureRepo, seenRepo, cfg.SessionMaxAge)

	// --- HTTP Server ---
	apiHandler := handler.NewServerHandler(ingest, cfg.DirectBodyLimitBytes)
	httpRouter := router.NewServer(apiHandler)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httpRouter,
		ReadTimeout:  5 * time.Minute, // chunk bodies are bounded but direct posts are not small
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("Starting handoff server", "port", cfg.ServerPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Could not listen on port", "port", cfg.ServerPort, "error", err)
		os.Exit(1)
	}
}
