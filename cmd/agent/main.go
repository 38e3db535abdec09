package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/stickerverse/figmacionvert-v3-sub012/internal/adapter/httpupload"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/delivery/http/handler"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/delivery/http/router"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/optimizer"
	"github.com/stickerverse/figmacionvert-v3-sub012/internal/queue"
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

	// --- Delivery pipeline ---
	uploader := httpupload.NewUploader(cfg.RemoteEndpoint, cfg.DirectBodyLimitBytes, cfg.MaxChunkBytes)
	deliveryQueue := queue.New(uploader, queue.Options{
		DedupWindow: cfg.DedupWindow,
		MaxAttempts: cfg.QueueMaxAttempts,
	})
	defer deliveryQueue.Close()

	opt := optimizer.New(cfg.OptimizerTargetBytes, cfg.OptimizerHardLimitBytes)
	pipeline := usecase.NewPipeline(opt, deliveryQueue)

	// State transitions are already logged by the queue; keep an
	// observer attached so transitions are drained even without a UI.
	go func() {
		for state := range deliveryQueue.Subscribe() {
			slog.Debug("Handoff state",
				"status", string(state.Status), "pending", state.PendingCount, "error", state.Error)
		}
	}()

	// --- HTTP Server ---
	apiHandler := handler.NewAgentHandler(pipeline)
	httpRouter := router.NewAgent(apiHandler)

	server := &http.Server{
		Addr:         ":" + cfg.AgentPort,
		Handler:      httpRouter,
		ReadTimeout:  5 * time.Minute, // extractor bodies can be very large
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("Starting capture agent", "port", cfg.AgentPort, "remote", cfg.RemoteEndpoint)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Could not listen on port", "port", cfg.AgentPort, "error", err)
		os.Exit(1)
	}
}
