package storage

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/pkg/chat"
	"github.com/jwebster45206/story-weaver/pkg/genre"
	"github.com/jwebster45206/story-weaver/pkg/state"
	"github.com/jwebster45206/story-weaver/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	rs, err := NewRedisStorage("redis://"+mr.Addr(), time.Hour, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })

	return rs, mr
}

func testSession() *state.Session {
	s := state.New(genre.Mystery, rand.New(rand.NewSource(5)), state.DefaultMaxCompanionThreshold)
	s.SetWorldSetting("A fog-bound harbor town.")
	s.AppendMessage(chat.SenderNarrator, "The foghorn sounds.", "", false)
	return s
}

func TestNewRedisStorage_BadURL(t *testing.T) {
	_, err := NewRedisStorage("not a url", time.Hour, slog.Default())
	assert.Error(t, err)
}

func TestRedisStorage_Ping(t *testing.T) {
	rs, _ := setupTestRedis(t)
	assert.NoError(t, rs.Ping(context.Background()))
}

func TestRedisStorage_SaveLoadSession(t *testing.T) {
	rs, mr := setupTestRedis(t)
	ctx := context.Background()
	s := testSession()

	require.NoError(t, rs.SaveSession(ctx, s))
	assert.True(t, mr.Exists("session:"+s.ID.String()))
	assert.Equal(t, time.Hour, mr.TTL("session:"+s.ID.String()))

	loaded, err := rs.LoadSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, genre.Mystery, loaded.Genre)
	assert.Equal(t, "A fog-bound harbor town.", loaded.WorldSetting)
	require.Len(t, loaded.ChatLog, 1)
	assert.Equal(t, s.CompanionAppearanceThreshold, loaded.CompanionAppearanceThreshold)
	assert.Equal(t, s.NextMessageID, loaded.NextMessageID)
}

func TestRedisStorage_LoadMissingSession(t *testing.T) {
	rs, _ := setupTestRedis(t)
	_, err := rs.LoadSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRedisStorage_SaveNilSession(t *testing.T) {
	rs, _ := setupTestRedis(t)
	assert.Error(t, rs.SaveSession(context.Background(), nil))
}

func TestRedisStorage_SessionExpires(t *testing.T) {
	rs, mr := setupTestRedis(t)
	ctx := context.Background()
	s := testSession()
	require.NoError(t, rs.SaveSession(ctx, s))

	mr.FastForward(2 * time.Hour)

	_, err := rs.LoadSession(ctx, s.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRedisStorage_TurnLock(t *testing.T) {
	rs, mr := setupTestRedis(t)
	ctx := context.Background()
	id := uuid.New()

	ok, err := rs.AcquireTurnLock(ctx, id, "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rs.AcquireTurnLock(ctx, id, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second owner must not get the lock")

	// A non-owner release is a no-op.
	require.NoError(t, rs.ReleaseTurnLock(ctx, id, "owner-b"))
	assert.True(t, mr.Exists("session-lock:"+id.String()))

	require.NoError(t, rs.ReleaseTurnLock(ctx, id, "owner-a"))
	assert.False(t, mr.Exists("session-lock:"+id.String()))

	ok, err = rs.AcquireTurnLock(ctx, id, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStorage_TurnLockExpires(t *testing.T) {
	rs, mr := setupTestRedis(t)
	ctx := context.Background()
	id := uuid.New()

	ok, err := rs.AcquireTurnLock(ctx, id, "owner-a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = rs.AcquireTurnLock(ctx, id, "owner-b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStorage_Media(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx := context.Background()
	sessionID := uuid.New()
	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}

	mediaID, err := rs.SaveMedia(ctx, sessionID, "image/png", payload)
	require.NoError(t, err)
	require.NotEmpty(t, mediaID)

	m, err := rs.LoadMedia(ctx, sessionID, mediaID)
	require.NoError(t, err)
	assert.Equal(t, "image/png", m.MIMEType)
	assert.Equal(t, payload, m.Data)

	_, err = rs.LoadMedia(ctx, sessionID, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = rs.LoadMedia(ctx, uuid.New(), mediaID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRedisStorage_DeleteSessionRemovesMedia(t *testing.T) {
	rs, mr := setupTestRedis(t)
	ctx := context.Background()
	s := testSession()

	require.NoError(t, rs.SaveSession(ctx, s))
	mediaID, err := rs.SaveMedia(ctx, s.ID, "audio/mpeg", []byte("mp3"))
	require.NoError(t, err)
	ok, err := rs.AcquireTurnLock(ctx, s.ID, "owner", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, rs.DeleteSession(ctx, s.ID))

	_, err = rs.LoadSession(ctx, s.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = rs.LoadMedia(ctx, s.ID, mediaID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, mr.Exists("session-lock:"+s.ID.String()))
}

func TestMockStorage_RoundTrip(t *testing.T) {
	m := storage.NewMockStorage()
	ctx := context.Background()
	s := testSession()

	require.NoError(t, m.SaveSession(ctx, s))
	s.AppendMessage(chat.SenderUser, "after save", "", false)

	loaded, err := m.LoadSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.ChatLog, 1, "mock must store a copy")

	require.NoError(t, m.DeleteSession(ctx, s.ID))
	_, err = m.LoadSession(ctx, s.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
