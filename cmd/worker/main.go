package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/story-weaver/internal/app"
	"github.com/jwebster45206/story-weaver/internal/config"
	"github.com/jwebster45206/story-weaver/internal/logger"
	"github.com/jwebster45206/story-weaver/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Story Weaver Worker",
		"environment", cfg.Environment,
		"text_provider", cfg.TextProvider,
		"speech_provider", cfg.SpeechProvider)

	if cfg.TurnMode != config.TurnModeQueue {
		log.Warn("TURN_MODE is not 'queue'; the API will not enqueue turns for this worker")
	}

	rt, err := app.NewRuntime(context.Background(), cfg, log)
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Error("Error closing storage connection", "error", err)
		}
	}()

	w := worker.New(rt.Queue, rt.Stops, rt.Processor, log, cfg.WorkerID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
		}
	}()

	log.Info("Worker started, waiting for requests...", "worker_id", w.ID())

	<-quit
	log.Info("Worker shutdown signal received")
	w.Stop()

	// Give the worker time to finish its current request
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn("Worker did not stop in time")
	}

	log.Info("Worker exited")
}
