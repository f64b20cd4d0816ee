package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/pkg/state"
)

// MockStorage is a mock implementation of Storage for testing
type MockStorage struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID]*state.Session
	locks     map[uuid.UUID]string
	media     map[uuid.UUID]map[string]*Media
	pingError error
	saveError error

	SaveCalls int
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		sessions: make(map[uuid.UUID]*state.Session),
		locks:    make(map[uuid.UUID]string),
		media:    make(map[uuid.UUID]map[string]*Media),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError configures the mock to fail on SaveSession with the given error
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

// SaveSession stores a deep copy so later mutation of s is not visible
func (m *MockStorage) SaveSession(ctx context.Context, s *state.Session) error {
	if s == nil {
		return errors.New("session cannot be nil")
	}
	cp, err := s.DeepCopy()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if m.saveError != nil {
		return m.saveError
	}
	m.sessions[s.ID] = cp
	return nil
}

// LoadSession returns a deep copy of the stored session
func (m *MockStorage) LoadSession(ctx context.Context, id uuid.UUID) (*state.Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.DeepCopy()
}

// DeleteSession mocks deleting a session and its media
func (m *MockStorage) DeleteSession(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.media, id)
	delete(m.locks, id)
	return nil
}

// AcquireTurnLock mocks the per-session turn lock
func (m *MockStorage) AcquireTurnLock(ctx context.Context, id uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[id]; held {
		return false, nil
	}
	m.locks[id] = owner
	return true, nil
}

// ReleaseTurnLock releases the lock if owner holds it
func (m *MockStorage) ReleaseTurnLock(ctx context.Context, id uuid.UUID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[id] == owner {
		delete(m.locks, id)
	}
	return nil
}

// SaveMedia mocks storing a media blob
func (m *MockStorage) SaveMedia(ctx context.Context, sessionID uuid.UUID, mimeType string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.media[sessionID] == nil {
		m.media[sessionID] = make(map[string]*Media)
	}
	id := uuid.New().String()
	m.media[sessionID][id] = &Media{ID: id, MIMEType: mimeType, Data: append([]byte(nil), data...)}
	return id, nil
}

// LoadMedia mocks loading a media blob
func (m *MockStorage) LoadMedia(ctx context.Context, sessionID uuid.UUID, mediaID string) (*Media, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	md, ok := m.media[sessionID][mediaID]
	if !ok {
		return nil, ErrNotFound
	}
	return md, nil
}

// MediaCount returns how many media items a session has
func (m *MockStorage) MediaCount(sessionID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.media[sessionID])
}
