package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/pkg/state"
)

// ErrNotFound is returned when a session or media item does not exist.
var ErrNotFound = errors.New("not found")

// Media is a generated image or audio clip belonging to a session.
type Media struct {
	ID       string `json:"id"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// Storage defines a unified interface for all storage operations
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Session operations
	SaveSession(ctx context.Context, s *state.Session) error
	LoadSession(ctx context.Context, id uuid.UUID) (*state.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error

	// Turn lock: one turn in flight per session across processes.
	// AcquireTurnLock reports false when another owner holds the lock.
	AcquireTurnLock(ctx context.Context, id uuid.UUID, owner string, ttl time.Duration) (bool, error)
	ReleaseTurnLock(ctx context.Context, id uuid.UUID, owner string) error

	// Media operations. SaveMedia assigns the media id.
	SaveMedia(ctx context.Context, sessionID uuid.UUID, mimeType string, data []byte) (string, error)
	LoadMedia(ctx context.Context, sessionID uuid.UUID, mediaID string) (*Media, error)
}

// MediaURL is the API path a client fetches a media item from.
func MediaURL(sessionID uuid.UUID, mediaID string) string {
	return "/v1/adventures/" + sessionID.String() + "/media/" + mediaID
}
