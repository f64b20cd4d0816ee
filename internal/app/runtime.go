// Package app wires the components shared by the API server and the worker.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwebster45206/story-weaver/internal/config"
	"github.com/jwebster45206/story-weaver/internal/services"
	"github.com/jwebster45206/story-weaver/internal/services/events"
	"github.com/jwebster45206/story-weaver/internal/services/queue"
	"github.com/jwebster45206/story-weaver/internal/speech"
	"github.com/jwebster45206/story-weaver/internal/storage"
	"github.com/jwebster45206/story-weaver/internal/turn"
	"github.com/jwebster45206/story-weaver/internal/worker"
	"github.com/jwebster45206/story-weaver/pkg/voice"
)

// Runtime holds the long-lived components of a process.
type Runtime struct {
	Config      *config.Config
	Catalog     *voice.Catalog
	Backends    *services.Backends
	Storage     *storage.RedisStorage
	Broadcaster *events.Broadcaster
	Processor   *worker.TurnProcessor

	// Queue and Stops share the storage Redis connection.
	Queue *queue.TurnQueue
	Stops *queue.StopSignal
}

// NewRuntime connects to Redis, builds the generative backends and the turn
// processor.
func NewRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Runtime, error) {
	catalog, err := voice.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load voice catalog: %w", err)
	}

	backends, err := services.NewBackends(ctx, cfg, catalog, log)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewRedisStorage(cfg.RedisURL, cfg.SessionTTL, log)
	if err != nil {
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := store.WaitForConnection(waitCtx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to connect to storage: %w", err)
	}

	broadcaster := events.NewBroadcaster(store.Client(), log)
	speaker := speech.NewSpeaker(backends.Speech, speech.NewMediaPlayer(store, broadcaster), broadcaster, log)
	executor := turn.NewExecutor(turn.Config{
		Text:                  backends.Text,
		Images:                backends.Images,
		Media:                 store,
		Speaker:               speaker,
		Publisher:             broadcaster,
		Catalog:               catalog,
		FamilyFriendly:        cfg.FamilyFriendly,
		MaxCompanionThreshold: cfg.CompanionThresholdMax,
	}, log)

	queueClient := queue.NewClientFromRedis(store.Client(), log)

	return &Runtime{
		Config:      cfg,
		Catalog:     catalog,
		Backends:    backends,
		Storage:     store,
		Broadcaster: broadcaster,
		Processor:   worker.NewTurnProcessor(store, executor, broadcaster, log),
		Queue:       queue.NewTurnQueue(queueClient),
		Stops:       queue.NewStopSignal(queueClient),
	}, nil
}

// Close releases the Redis connection.
func (r *Runtime) Close() error {
	return r.Storage.Close()
}
