package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/internal/services/events"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroadcaster(t *testing.T) *events.Broadcaster {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return events.NewBroadcaster(rdb, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// readEvent reads one SSE frame and returns its event name and data line.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestEventsHandler_Stream(t *testing.T) {
	broadcaster := newTestBroadcaster(t)
	handler := NewEventsHandler(broadcaster, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(handler)
	defer srv.Close()

	sessionID := uuid.New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events/adventures/"+sessionID.String(), nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	name, _ := readEvent(t, reader)
	assert.Equal(t, "connected", name)

	require.NoError(t, broadcaster.Publish(ctx, sessionID, events.MicMuted()))
	name, data := readEvent(t, reader)
	assert.Equal(t, string(events.EventTypeMicMuted), name)

	var ev events.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, events.EventTypeMicMuted, ev.Type)
	assert.Equal(t, sessionID.String(), ev.SessionID)
}

func TestEventsHandler_BadRequests(t *testing.T) {
	handler := NewEventsHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"wrong method", http.MethodPost, "/v1/events/adventures/" + uuid.New().String(), http.StatusMethodNotAllowed},
		{"missing id", http.MethodGet, "/v1/events/adventures", http.StatusBadRequest},
		{"bad id", http.MethodGet, "/v1/events/adventures/xyz", http.StatusBadRequest},
		{"extra segment", http.MethodGet, "/v1/events/adventures/" + uuid.New().String() + "/more", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
