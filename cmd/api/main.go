package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/story-weaver/internal/app"
	"github.com/jwebster45206/story-weaver/internal/config"
	"github.com/jwebster45206/story-weaver/internal/handlers"
	"github.com/jwebster45206/story-weaver/internal/logger"
	"github.com/jwebster45206/story-weaver/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Story Weaver API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"turn_mode", cfg.TurnMode,
		"text_provider", cfg.TextProvider)

	rt, err := app.NewRuntime(context.Background(), cfg, log)
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}

	handlerCfg := handlers.AdventureHandlerConfig{
		Processor:   rt.Processor,
		Storage:     rt.Storage,
		Publisher:   rt.Broadcaster,
		Transcriber: rt.Backends.Transcriber,
	}
	if cfg.TurnMode == config.TurnModeQueue {
		handlerCfg.Queue = rt.Queue
		handlerCfg.Stops = rt.Stops
		log.Info("Turns are queued for workers")
	}
	adventureHandler := handlers.NewAdventureHandler(handlerCfg, log)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(rt.Storage, rt.Backends, handlerCfg.Queue, log)
	mux.Handle("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.Handle("/v1/adventures", adventureHandler)
	mux.Handle("/v1/adventures/", adventureHandler)

	eventsHandler := handlers.NewEventsHandler(rt.Broadcaster, log)
	mux.Handle("/v1/events/adventures/", eventsHandler)

	catalogHandler := handlers.NewCatalogHandler(rt.Catalog, log)
	mux.Handle("/v1/genres", catalogHandler)
	mux.Handle("/v1/voices", catalogHandler)

	handler := middleware.Logger(log, mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: event streams and ?wait=true turns run long.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	// Let in-process turns save their sessions before Redis goes away.
	adventureHandler.Wait()

	if err := rt.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Server exited")
}
