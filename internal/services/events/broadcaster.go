package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeTurnStarted       EventType = "turn.started"
	EventTypeTurnCompleted     EventType = "turn.completed"
	EventTypeTurnFailed        EventType = "turn.failed"
	EventTypeMessageAppended   EventType = "message.appended"
	EventTypeMessageNarration  EventType = "message.narration"
	EventTypeSpeechStarted     EventType = "speech.started"
	EventTypeSpeechEnded       EventType = "speech.ended"
	EventTypeMicMuted          EventType = "mic.muted"
	EventTypeMicUnmuted        EventType = "mic.unmuted"
	EventTypeSessionTerminated EventType = "session.terminated"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType              `json:"type"`
	SessionID string                 `json:"session_id,omitempty"`
	TurnID    string                 `json:"turn_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Publisher delivers session events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, sessionID uuid.UUID, event Event) error
}

// Channel is the Redis Pub/Sub channel carrying a session's events.
func Channel(sessionID uuid.UUID) string {
	return fmt.Sprintf("session-events:%s", sessionID.String())
}

// Broadcaster publishes events to Redis Pub/Sub for SSE distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

var _ Publisher = (*Broadcaster)(nil)

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Publish publishes an event to the session-specific channel
func (b *Broadcaster) Publish(ctx context.Context, sessionID uuid.UUID, event Event) error {
	channel := Channel(sessionID)
	event.SessionID = sessionID.String()

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"turn_id", event.TurnID,
	)
	return nil
}

// Subscribe opens a subscription to a session's events. The caller closes it.
func (b *Broadcaster) Subscribe(ctx context.Context, sessionID uuid.UUID) *redis.PubSub {
	return b.redisClient.Subscribe(ctx, Channel(sessionID))
}

// Discard is a Publisher that drops every event.
type Discard struct{}

// Publish drops the event.
func (Discard) Publish(context.Context, uuid.UUID, Event) error { return nil }
