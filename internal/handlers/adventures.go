package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/internal/logger"
	"github.com/jwebster45206/story-weaver/internal/services/events"
	"github.com/jwebster45206/story-weaver/internal/services/queue"
	"github.com/jwebster45206/story-weaver/internal/turn"
	"github.com/jwebster45206/story-weaver/internal/worker"
	"github.com/jwebster45206/story-weaver/pkg/chat"
	"github.com/jwebster45206/story-weaver/pkg/genre"
	"github.com/jwebster45206/story-weaver/pkg/llm"
	queuePkg "github.com/jwebster45206/story-weaver/pkg/queue"
	"github.com/jwebster45206/story-weaver/pkg/state"
	"github.com/jwebster45206/story-weaver/pkg/storage"
)

const (
	adventuresPrefix = "/v1/adventures"
	maxAudioBytes    = 10 << 20

	// Turn response statuses.
	StatusQueued     = "queued"
	StatusCompleted  = "completed"
	StatusTerminated = "terminated"
)

// resetLockWait bounds how long a reset waits for a stopped turn to finish.
var resetLockWait = 5 * time.Second

// CreateAdventureRequest starts a new adventure.
type CreateAdventureRequest struct {
	Genre string `json:"genre"`
}

// AdventureResponse carries a session snapshot. RequestID is set on creation
// and identifies the opening narration.
type AdventureResponse struct {
	Adventure *state.Session `json:"adventure"`
	RequestID string         `json:"request_id,omitempty"`
}

// TurnResponse reports an accepted or completed turn.
type TurnResponse struct {
	RequestID  string       `json:"request_id"`
	SessionID  uuid.UUID    `json:"session_id"`
	Status     string       `json:"status"`
	Transcript string       `json:"transcript,omitempty"`
	Result     *turn.Result `json:"result,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// StopResponse reports whether narration was halted in this process.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// AdventureHandlerConfig wires an AdventureHandler. Queue, Stops and
// Transcriber are optional.
type AdventureHandlerConfig struct {
	Processor *worker.TurnProcessor
	Storage   storage.Storage
	Publisher events.Publisher

	// Queue hands admitted requests to cmd/worker. Without it requests run
	// in this process.
	Queue *queue.TurnQueue
	// Stops forwards stop requests to workers.
	Stops       *queue.StopSignal
	Transcriber llm.Transcriber
}

// AdventureHandler serves the adventure lifecycle and turn endpoints.
type AdventureHandler struct {
	processor   *worker.TurnProcessor
	storage     storage.Storage
	publisher   events.Publisher
	turnQueue   *queue.TurnQueue
	stops       *queue.StopSignal
	transcriber llm.Transcriber
	logger      *slog.Logger

	inflight sync.WaitGroup
}

// NewAdventureHandler creates a new adventure handler
func NewAdventureHandler(cfg AdventureHandlerConfig, logger *slog.Logger) *AdventureHandler {
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &AdventureHandler{
		processor:   cfg.Processor,
		storage:     cfg.Storage,
		publisher:   publisher,
		turnQueue:   cfg.Queue,
		stops:       cfg.Stops,
		transcriber: cfg.Transcriber,
		logger:      logger,
	}
}

// ServeHTTP routes adventure requests
// Routes:
// POST   /v1/adventures                      - Start a new adventure
// GET    /v1/adventures/{id}                 - Read the session
// DELETE /v1/adventures/{id}                 - Reset (discard) the session
// POST   /v1/adventures/{id}/turns           - Submit a typed turn
// POST   /v1/adventures/{id}/transcribe      - Submit a spoken turn
// POST   /v1/adventures/{id}/stop            - Stop narration
// GET    /v1/adventures/{id}/media/{mediaID} - Fetch a generated image or clip
func (h *AdventureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, adventuresPrefix)
	if len(parts) == 0 {
		if r.Method != http.MethodPost {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
			return
		}
		h.handleCreate(w, r)
		return
	}

	id, ok := parseSessionID(parts[0])
	if !ok {
		h.logger.Warn("Invalid adventure ID", "id", parts[0])
		writeError(w, h.logger, http.StatusBadRequest, "Invalid adventure ID format")
		return
	}
	log := logger.WithSession(h.logger, id.String())

	route := ""
	if len(parts) > 1 {
		route = parts[1]
	}
	switch {
	case route == "" && len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.handleRead(w, r, id, log)
		case http.MethodDelete:
			h.handleDelete(w, r, id, log)
		default:
			writeError(w, log, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET, DELETE")
		}
	case route == "turns" && len(parts) == 2:
		if !h.requirePost(w, r, log) {
			return
		}
		h.handleTurn(w, r, id, log)
	case route == "transcribe" && len(parts) == 2:
		if !h.requirePost(w, r, log) {
			return
		}
		h.handleTranscribe(w, r, id, log)
	case route == "stop" && len(parts) == 2:
		if !h.requirePost(w, r, log) {
			return
		}
		h.handleStop(w, r, id, log)
	case route == "media" && len(parts) == 3:
		if r.Method != http.MethodGet {
			writeError(w, log, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
			return
		}
		h.handleMedia(w, r, id, parts[2], log)
	default:
		writeError(w, log, http.StatusNotFound, "Not found")
	}
}

// Wait blocks until requests running in this process have finished.
func (h *AdventureHandler) Wait() {
	h.inflight.Wait()
}

func (h *AdventureHandler) requirePost(w http.ResponseWriter, r *http.Request, log *slog.Logger) bool {
	if r.Method != http.MethodPost {
		writeError(w, log, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
		return false
	}
	return true
}

func (h *AdventureHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body CreateAdventureRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with 'genre' field.")
		return
	}
	g, err := genre.Parse(body.Genre)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	sess, req, err := h.processor.StartAdventure(r.Context(), g)
	if err != nil {
		h.logger.Error("Failed to start adventure", "error", err, "genre", g)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to start adventure")
		return
	}
	if err := h.dispatch(r.Context(), req); err != nil {
		h.logger.Error("Failed to dispatch opening narration", "error", err, "session_id", sess.ID.String())
	}

	h.logger.Info("Adventure started", "session_id", sess.ID.String(), "genre", g, "title", sess.Title)
	writeJSON(w, h.logger, http.StatusCreated, AdventureResponse{Adventure: sess, RequestID: req.RequestID})
}

func (h *AdventureHandler) handleRead(w http.ResponseWriter, r *http.Request, id uuid.UUID, log *slog.Logger) {
	sess, err := h.storage.LoadSession(r.Context(), id)
	if err != nil {
		h.writeLoadError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, AdventureResponse{Adventure: sess})
}

// handleDelete stops narration, waits for the running turn to let go of the
// session and discards it.
func (h *AdventureHandler) handleDelete(w http.ResponseWriter, r *http.Request, id uuid.UUID, log *slog.Logger) {
	ctx := r.Context()
	if _, err := h.storage.LoadSession(ctx, id); err != nil {
		h.writeLoadError(w, log, err)
		return
	}

	h.stopNarration(ctx, id, log)

	owner := "reset-" + uuid.New().String()
	locked, err := h.acquireForReset(ctx, id, owner)
	if err != nil {
		log.Error("Failed to lock session for reset", "error", err)
		writeError(w, log, http.StatusInternalServerError, "Failed to reset adventure")
		return
	}
	if !locked {
		writeError(w, log, http.StatusConflict, "A turn is still in progress. Try again shortly.")
		return
	}
	defer func() {
		if err := h.storage.ReleaseTurnLock(context.WithoutCancel(ctx), id, owner); err != nil {
			log.Error("Failed to release reset lock", "error", err)
		}
	}()

	if err := h.storage.DeleteSession(ctx, id); err != nil {
		log.Error("Failed to delete session", "error", err)
		writeError(w, log, http.StatusInternalServerError, "Failed to reset adventure")
		return
	}
	if err := h.publisher.Publish(ctx, id, events.SessionTerminated("reset")); err != nil {
		log.Error("Failed to publish event", "error", err)
	}

	log.Info("Adventure reset")
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdventureHandler) acquireForReset(ctx context.Context, id uuid.UUID, owner string) (bool, error) {
	deadline := time.Now().Add(resetLockWait)
	for {
		locked, err := h.storage.AcquireTurnLock(ctx, id, owner, resetLockWait)
		if err != nil || locked {
			return locked, err
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (h *AdventureHandler) handleTurn(w http.ResponseWriter, r *http.Request, id uuid.UUID, log *slog.Logger) {
	var body chat.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		log.Warn("Invalid request body", "error", err)
		writeError(w, log, http.StatusBadRequest, "Invalid request body. Expected JSON with 'message' field.")
		return
	}
	if err := body.Validate(); err != nil {
		writeError(w, log, http.StatusBadRequest, err.Error())
		return
	}
	h.submitTurn(w, r, id, body.Message, "", log)
}

func (h *AdventureHandler) handleTranscribe(w http.ResponseWriter, r *http.Request, id uuid.UUID, log *slog.Logger) {
	if h.transcriber == nil {
		writeError(w, log, http.StatusNotImplemented, "Speech transcription is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		writeError(w, log, http.StatusBadRequest, "Expected multipart form with an 'audio' file")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, log, http.StatusBadRequest, "Expected multipart form with an 'audio' file")
		return
	}
	defer func() { _ = file.Close() }()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, log, http.StatusBadRequest, "Failed to read audio")
		return
	}

	transcript, err := h.transcriber.Transcribe(r.Context(), audio, header.Filename)
	if err != nil {
		log.Error("Transcription failed", "error", err)
		status := http.StatusBadGateway
		if llm.IsQuotaError(err) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, log, status, "Failed to transcribe audio")
		return
	}
	if strings.TrimSpace(transcript) == "" {
		writeError(w, log, http.StatusBadRequest, "No speech was recognized")
		return
	}
	h.submitTurn(w, r, id, transcript, transcript, log)
}

// submitTurn admits a turn and either runs it now (?wait=true) or hands it
// off and answers 202.
func (h *AdventureHandler) submitTurn(w http.ResponseWriter, r *http.Request, id uuid.UUID, message, transcript string, log *slog.Logger) {
	ctx := r.Context()
	req, err := h.processor.Admit(ctx, queuePkg.RequestTypeTurn, id, message)
	if err != nil {
		switch {
		case errors.Is(err, turn.ErrEmptyInput):
			writeError(w, log, http.StatusBadRequest, "Message cannot be empty.")
		case errors.Is(err, turn.ErrTurnInProgress):
			writeError(w, log, http.StatusConflict, "A turn is already in progress for this adventure.")
		default:
			h.writeLoadError(w, log, err)
		}
		return
	}

	log = logger.WithRequestID(log, req.RequestID)
	resp := TurnResponse{RequestID: req.RequestID, SessionID: id, Transcript: transcript}

	if r.URL.Query().Get("wait") == "true" {
		result, err := h.processor.Process(ctx, req)
		switch {
		case errors.Is(err, llm.ErrQuotaExhausted):
			resp.Status = StatusTerminated
			resp.Result = result
			resp.Error = "Backend quota exhausted. The adventure has ended."
			writeJSON(w, log, http.StatusServiceUnavailable, resp)
		case err != nil:
			writeError(w, log, http.StatusInternalServerError, "Failed to process turn")
		default:
			resp.Status = StatusCompleted
			resp.Result = result
			writeJSON(w, log, http.StatusOK, resp)
		}
		return
	}

	if err := h.dispatch(ctx, req); err != nil {
		log.Error("Failed to dispatch turn", "error", err)
		writeError(w, log, http.StatusInternalServerError, "Failed to queue turn")
		return
	}
	resp.Status = StatusQueued
	writeJSON(w, log, http.StatusAccepted, resp)
}

func (h *AdventureHandler) handleStop(w http.ResponseWriter, r *http.Request, id uuid.UUID, log *slog.Logger) {
	if _, err := h.storage.LoadSession(r.Context(), id); err != nil {
		h.writeLoadError(w, log, err)
		return
	}
	stopped := h.stopNarration(r.Context(), id, log)
	writeJSON(w, log, http.StatusOK, StopResponse{Stopped: stopped})
}

// stopNarration halts speech here and asks workers to do the same.
func (h *AdventureHandler) stopNarration(ctx context.Context, id uuid.UUID, log *slog.Logger) bool {
	stopped := h.processor.Stop(id)
	if h.stops != nil {
		if err := h.stops.Send(ctx, id); err != nil {
			log.Error("Failed to send stop signal", "error", err)
		}
	}
	if stopped {
		log.Info("Narration stopped")
	}
	return stopped
}

func (h *AdventureHandler) handleMedia(w http.ResponseWriter, r *http.Request, id uuid.UUID, mediaID string, log *slog.Logger) {
	media, err := h.storage.LoadMedia(r.Context(), id, mediaID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, log, http.StatusNotFound, "Media not found")
			return
		}
		log.Error("Failed to load media", "error", err, "media_id", mediaID)
		writeError(w, log, http.StatusInternalServerError, "Failed to load media")
		return
	}

	w.Header().Set("Content-Type", media.MIMEType)
	w.Header().Set("Content-Length", fmt.Sprint(len(media.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(media.Data); err != nil {
		log.Error("Failed to write media", "error", err, "media_id", mediaID)
	}
}

// dispatch hands an admitted request to the queue, or runs it in the
// background when no queue is configured.
func (h *AdventureHandler) dispatch(ctx context.Context, req *queuePkg.Request) error {
	if h.turnQueue != nil {
		if err := h.turnQueue.EnqueueRequest(ctx, req); err != nil {
			h.processor.Abandon(ctx, req)
			return err
		}
		return nil
	}

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		if _, err := h.processor.Process(context.WithoutCancel(ctx), req); err != nil {
			h.logger.Warn("Background request ended with error", "error", err, "request_id", req.RequestID)
		}
	}()
	return nil
}

func (h *AdventureHandler) writeLoadError(w http.ResponseWriter, log *slog.Logger, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, log, http.StatusNotFound, "Adventure not found")
		return
	}
	log.Error("Failed to load session", "error", err)
	writeError(w, log, http.StatusInternalServerError, "Failed to load adventure")
}
