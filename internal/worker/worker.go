package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/internal/services/queue"
	queuePkg "github.com/jwebster45206/story-weaver/pkg/queue"
)

const (
	workerTimeout = 5 * time.Second
)

// Worker processes requests from the turn queue
type Worker struct {
	id        string
	queue     *queue.TurnQueue
	stops     *queue.StopSignal
	processor *TurnProcessor
	log       *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a new worker instance. stops may be nil, in which case
// narration can only be stopped from inside this process.
func New(turnQueue *queue.TurnQueue, stops *queue.StopSignal, processor *TurnProcessor, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	return &Worker{
		id:        workerID,
		queue:     turnQueue,
		stops:     stops,
		processor: processor,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ID returns the worker's identifier.
func (w *Worker) ID() string {
	return w.id
}

// Start begins processing requests from the queue
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "worker_id", w.id)

	if w.stops != nil {
		go func() {
			err := w.stops.Listen(w.ctx, func(sessionID uuid.UUID) {
				if w.processor.Stop(sessionID) {
					w.log.Info("Narration stopped by request", "worker_id", w.id, "session_id", sessionID.String())
				}
			})
			if err != nil {
				w.log.Error("Stop signal listener failed", "error", err, "worker_id", w.id)
			}
		}()
	}

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down", "worker_id", w.id)
			return nil
		default:
			if err := w.processNextRequest(); err != nil {
				w.log.Error("Error processing request", "error", err, "worker_id", w.id)
				// Continue processing even on error
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested", "worker_id", w.id)
	w.cancel()
}

// processNextRequest pulls the next request from the queue and processes it.
// The request already owns its session's turn lock.
func (w *Worker) processNextRequest() error {
	req, err := w.queue.BlockingDequeueRequest(w.ctx, workerTimeout)
	if err != nil {
		return fmt.Errorf("failed to dequeue request: %w", err)
	}
	if req == nil {
		// Queue is empty or timeout occurred - this is normal
		return nil
	}

	w.log.Info("Received request from queue",
		"worker_id", w.id,
		"request_id", req.RequestID,
		"type", req.Type,
		"session_id", req.SessionID.String(),
		"queued_ms", time.Since(req.EnqueuedAt).Milliseconds(),
	)

	return w.processRequest(req)
}

func (w *Worker) processRequest(req *queuePkg.Request) error {
	// A turn in progress finishes even when the worker is asked to stop.
	ctx := context.WithoutCancel(w.ctx)
	if _, err := w.processor.Process(ctx, req); err != nil {
		return fmt.Errorf("request %s failed: %w", req.RequestID, err)
	}
	return nil
}
