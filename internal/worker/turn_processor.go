package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/internal/services/events"
	"github.com/jwebster45206/story-weaver/internal/turn"
	"github.com/jwebster45206/story-weaver/pkg/genre"
	"github.com/jwebster45206/story-weaver/pkg/llm"
	"github.com/jwebster45206/story-weaver/pkg/queue"
	"github.com/jwebster45206/story-weaver/pkg/state"
	"github.com/jwebster45206/story-weaver/pkg/storage"
)

// DefaultLockTTL bounds how long a request may hold a session's turn lock.
// It covers classification, generation and narration of every message.
const DefaultLockTTL = 10 * time.Minute

// TurnProcessor handles the core turn processing logic.
// It's used by both the HTTP handler (synchronously) and the worker (asynchronously).
type TurnProcessor struct {
	storage   storage.Storage
	executor  *turn.Executor
	publisher events.Publisher
	logger    *slog.Logger
	lockTTL   time.Duration
}

// NewTurnProcessor creates a new turn processor
func NewTurnProcessor(
	storage storage.Storage,
	executor *turn.Executor,
	publisher events.Publisher,
	logger *slog.Logger,
) *TurnProcessor {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &TurnProcessor{
		storage:   storage,
		executor:  executor,
		publisher: publisher,
		logger:    logger,
		lockTTL:   DefaultLockTTL,
	}
}

// StartAdventure creates and stores a new session for g. The returned request
// narrates the opening scene; it is admitted already and must be processed or
// abandoned by the caller.
func (p *TurnProcessor) StartAdventure(ctx context.Context, g genre.Genre) (*state.Session, *queue.Request, error) {
	sess, err := p.executor.NewAdventure(ctx, g)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create adventure: %w", err)
	}
	if err := p.storage.SaveSession(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("failed to save session: %w", err)
	}
	req, err := p.Admit(ctx, queue.RequestTypeOpening, sess.ID, "")
	if err != nil {
		return nil, nil, err
	}
	return sess, req, nil
}

// Admit validates a request and takes the session's turn lock on its behalf.
// It fails with turn.ErrEmptyInput, storage.ErrNotFound or
// turn.ErrTurnInProgress without touching the session.
func (p *TurnProcessor) Admit(ctx context.Context, t queue.RequestType, sessionID uuid.UUID, message string) (*queue.Request, error) {
	message = strings.TrimSpace(message)
	if t == queue.RequestTypeTurn && message == "" {
		return nil, turn.ErrEmptyInput
	}
	if _, err := p.storage.LoadSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	req := queue.NewRequest(t, sessionID, message)
	locked, err := p.storage.AcquireTurnLock(ctx, sessionID, req.RequestID, p.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire turn lock: %w", err)
	}
	if !locked {
		return nil, turn.ErrTurnInProgress
	}
	return req, nil
}

// Abandon releases the lock of an admitted request that will not be processed.
func (p *TurnProcessor) Abandon(ctx context.Context, req *queue.Request) {
	p.release(ctx, req)
}

// Process runs an admitted request and releases its lock. For turns the
// result is returned; a quota failure returns the result along with an error
// wrapping llm.ErrQuotaExhausted after the session has been discarded.
func (p *TurnProcessor) Process(ctx context.Context, req *queue.Request) (*turn.Result, error) {
	defer p.release(ctx, req)
	start := time.Now()

	sess, err := p.storage.LoadSession(ctx, req.SessionID)
	if err != nil {
		err = fmt.Errorf("failed to load session: %w", err)
		p.fail(ctx, req, err)
		return nil, err
	}

	var result *turn.Result
	switch req.Type {
	case queue.RequestTypeOpening:
		err = p.executor.NarrateOpening(ctx, sess)
	case queue.RequestTypeTurn:
		p.publish(ctx, req.SessionID, events.TurnStarted(req.RequestID, req.Message))
		result, err = p.executor.ExecuteTurn(ctx, req.RequestID, sess, req.Message)
	default:
		err = fmt.Errorf("unknown request type: %s", req.Type)
	}

	quota := errors.Is(err, llm.ErrQuotaExhausted)
	if err != nil && !quota {
		p.fail(ctx, req, err)
		return nil, err
	}

	saveCtx := context.WithoutCancel(ctx)
	if quota {
		p.logger.Error("Backend quota exhausted, ending session", "session_id", sess.ID.String(), "request_id", req.RequestID)
		if result != nil {
			p.publish(saveCtx, sess.ID, events.TurnCompleted(req.RequestID, summarize(result, start)))
		}
		p.publish(saveCtx, sess.ID, events.SessionTerminated("quota_exhausted"))
		if delErr := p.storage.DeleteSession(saveCtx, sess.ID); delErr != nil {
			p.logger.Error("Failed to delete terminated session", "error", delErr, "session_id", sess.ID.String())
		}
		return result, err
	}

	if err := p.storage.SaveSession(saveCtx, sess); err != nil {
		err = fmt.Errorf("failed to save session: %w", err)
		p.fail(ctx, req, err)
		return nil, err
	}

	if result != nil {
		p.publish(saveCtx, sess.ID, events.TurnCompleted(req.RequestID, summarize(result, start)))
	}
	p.logger.Info("Request processed",
		"request_id", req.RequestID,
		"type", req.Type,
		"session_id", sess.ID.String(),
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// Stop halts narration running in this process for sessionID.
func (p *TurnProcessor) Stop(sessionID uuid.UUID) bool {
	return p.executor.Stop(sessionID)
}

func (p *TurnProcessor) release(ctx context.Context, req *queue.Request) {
	if err := p.storage.ReleaseTurnLock(context.WithoutCancel(ctx), req.SessionID, req.RequestID); err != nil {
		p.logger.Error("Failed to release turn lock", "error", err, "session_id", req.SessionID.String())
	}
}

func (p *TurnProcessor) fail(ctx context.Context, req *queue.Request, err error) {
	p.logger.Error("Request failed",
		"error", err,
		"request_id", req.RequestID,
		"type", req.Type,
		"session_id", req.SessionID.String())
	p.publish(context.WithoutCancel(ctx), req.SessionID, events.TurnFailed(req.RequestID, err.Error()))
}

func (p *TurnProcessor) publish(ctx context.Context, sessionID uuid.UUID, ev events.Event) {
	if err := p.publisher.Publish(ctx, sessionID, ev); err != nil {
		p.logger.Error("Failed to publish event", "error", err, "event_type", ev.Type)
	}
}

func summarize(r *turn.Result, start time.Time) map[string]interface{} {
	ids := make([]int, 0, len(r.Messages))
	for _, m := range r.Messages {
		ids = append(ids, m.ID)
	}
	return map[string]interface{}{
		"response_type":       r.Decision.Kind(),
		"forced_introduction": r.Forced,
		"user_turn_count":     r.TurnCount,
		"message_ids":         ids,
		"terminated":          r.Terminated,
		"duration_ms":         time.Since(start).Milliseconds(),
	}
}
