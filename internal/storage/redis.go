package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/pkg/state"
	"github.com/jwebster45206/story-weaver/pkg/storage"
	"github.com/redis/go-redis/v9"
)

// DefaultSessionTTL is how long an idle adventure is kept.
const DefaultSessionTTL = 24 * time.Hour

// releaseLockScript deletes the lock only if the caller still owns it.
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisStorage implements the Storage interface using Redis for sessions,
// turn locks and media blobs.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// Ensure RedisStorage implements Storage interface
var _ storage.Storage = (*RedisStorage)(nil)

// NewRedisStorage connects to redisURL (redis://host:port/db).
func NewRedisStorage(redisURL string, ttl time.Duration, logger *slog.Logger) (*RedisStorage, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return NewRedisStorageFromClient(redis.NewClient(opt), ttl, logger), nil
}

// NewRedisStorageFromClient wraps an existing client.
func NewRedisStorageFromClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisStorage {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Client returns the underlying Redis client, shared with the event broadcaster.
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

func sessionKey(id uuid.UUID) string {
	return "session:" + id.String()
}

func lockKey(id uuid.UUID) string {
	return "session-lock:" + id.String()
}

func mediaIndexKey(id uuid.UUID) string {
	return "session-media:" + id.String()
}

func mediaKey(id uuid.UUID, mediaID string) string {
	return fmt.Sprintf("media:%s:%s", id.String(), mediaID)
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// Session operations

func (r *RedisStorage) SaveSession(ctx context.Context, s *state.Session) error {
	if s == nil {
		return errors.New("session cannot be nil")
	}
	s.UpdatedAt = time.Now()

	data, err := json.Marshal(s)
	if err != nil {
		r.logger.Error("Failed to marshal session", "session_id", s.ID, "error", err)
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), data, r.ttl)
	pipe.Expire(ctx, mediaIndexKey(s.ID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to save session", "session_id", s.ID, "error", err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadSession(ctx context.Context, id uuid.UUID) (*state.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		r.logger.Error("Failed to load session", "session_id", id, "error", err)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s state.Session
	if err := json.Unmarshal(data, &s); err != nil {
		r.logger.Error("Failed to unmarshal session", "session_id", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// DeleteSession removes the session, its lock and every media item it owns.
func (r *RedisStorage) DeleteSession(ctx context.Context, id uuid.UUID) error {
	mediaIDs, err := r.client.SMembers(ctx, mediaIndexKey(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to list session media: %w", err)
	}

	keys := []string{sessionKey(id), lockKey(id), mediaIndexKey(id)}
	for _, m := range mediaIDs {
		keys = append(keys, mediaKey(id, m))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.Error("Failed to delete session", "session_id", id, "error", err)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Turn lock

func (r *RedisStorage) AcquireTurnLock(ctx context.Context, id uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKey(id), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire turn lock: %w", err)
	}
	return ok, nil
}

func (r *RedisStorage) ReleaseTurnLock(ctx context.Context, id uuid.UUID, owner string) error {
	if err := releaseLockScript.Run(ctx, r.client, []string{lockKey(id)}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Error("Failed to release turn lock", "session_id", id, "error", err)
		return fmt.Errorf("failed to release turn lock: %w", err)
	}
	return nil
}

// Media operations

func (r *RedisStorage) SaveMedia(ctx context.Context, sessionID uuid.UUID, mimeType string, data []byte) (string, error) {
	mediaID := uuid.New().String()
	key := mediaKey(sessionID, mediaID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "mime", mimeType, "data", data)
	pipe.Expire(ctx, key, r.ttl)
	pipe.SAdd(ctx, mediaIndexKey(sessionID), mediaID)
	pipe.Expire(ctx, mediaIndexKey(sessionID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to save media", "session_id", sessionID, "error", err)
		return "", fmt.Errorf("failed to save media: %w", err)
	}
	return mediaID, nil
}

func (r *RedisStorage) LoadMedia(ctx context.Context, sessionID uuid.UUID, mediaID string) (*storage.Media, error) {
	fields, err := r.client.HGetAll(ctx, mediaKey(sessionID, mediaID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load media: %w", err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}
	return &storage.Media{
		ID:       mediaID,
		MIMEType: fields["mime"],
		Data:     []byte(fields["data"]),
	}, nil
}
