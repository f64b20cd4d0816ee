package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/story-weaver/internal/services"
	"github.com/jwebster45206/story-weaver/internal/services/queue"
	"github.com/jwebster45206/story-weaver/pkg/storage"
)

type HealthResponse struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Service    string                 `json:"service"`
	Components map[string]interface{} `json:"components"`
}

type HealthHandler struct {
	storage   storage.Storage
	backends  *services.Backends
	turnQueue *queue.TurnQueue
	logger    *slog.Logger
}

// NewHealthHandler creates a health handler. turnQueue may be nil.
func NewHealthHandler(storage storage.Storage, backends *services.Backends, turnQueue *queue.TurnQueue, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		storage:   storage,
		backends:  backends,
		turnQueue: turnQueue,
		logger:    logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	h.logger.Debug("Health check requested",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]interface{})
	overallStatus := "healthy"

	if err := h.storage.Ping(ctx); err != nil {
		h.logger.Warn("Storage health check failed", "error", err)
		components["storage"] = "unhealthy"
		overallStatus = "degraded"
	} else {
		components["storage"] = "healthy"
	}

	if h.turnQueue != nil {
		depth, err := h.turnQueue.RequestQueueDepth(ctx)
		if err != nil {
			h.logger.Warn("Queue health check failed", "error", err)
			components["queue"] = "unhealthy"
			overallStatus = "degraded"
		} else {
			components["queue"] = map[string]interface{}{"status": "healthy", "depth": depth}
		}
	}

	if h.backends != nil {
		components["backends"] = map[string]bool{
			"text":        h.backends.Text != nil,
			"images":      h.backends.Images != nil,
			"speech":      h.backends.Speech != nil,
			"transcriber": h.backends.Transcriber != nil,
		}
	}

	response := HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Service:    "story-weaver",
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Error encoding health response",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path)
	}
}
