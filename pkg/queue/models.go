package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RequestType identifies the type of request in the queue
type RequestType string

const (
	// RequestTypeTurn is a player utterance to resolve
	RequestTypeTurn RequestType = "turn"

	// RequestTypeOpening narrates the opening scene of a new adventure
	RequestTypeOpening RequestType = "opening"
)

// Request is a unit of work for a session. Its RequestID also owns the
// session's turn lock while the request is pending or running.
type Request struct {
	RequestID string      `json:"request_id"`
	Type      RequestType `json:"type"`
	SessionID uuid.UUID   `json:"session_id"`

	// Turn-specific fields
	Message string `json:"message,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewRequest creates a request with a fresh id.
func NewRequest(t RequestType, sessionID uuid.UUID, message string) *Request {
	return &Request{
		RequestID:  uuid.New().String(),
		Type:       t,
		SessionID:  sessionID,
		Message:    message,
		EnqueuedAt: time.Now(),
	}
}

// ToJSON converts the request to JSON bytes for Redis
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a request from JSON bytes
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
