package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/internal/services/queue"
	pkgqueue "github.com/jwebster45206/story-weaver/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	mr := miniredis.RunT(t)
	url := "redis://" + mr.Addr()

	var out bytes.Buffer
	require.NoError(t, run(url, []string{"depth"}, &out))
	assert.Equal(t, "0 request(s) queued\n", out.String())

	out.Reset()
	require.NoError(t, run(url, []string{"peek"}, &out))
	assert.Equal(t, "queue is empty\n", out.String())

	out.Reset()
	id := uuid.New()
	require.NoError(t, run(url, []string{"stop", id.String()}, &out))
	assert.Contains(t, out.String(), id.String())
}

func TestRun_PeekShowsPending(t *testing.T) {
	mr := miniredis.RunT(t)
	url := "redis://" + mr.Addr()

	ctx := context.Background()
	client, err := queue.NewClient(ctx, url, discardLogger())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	req := pkgqueue.NewRequest(pkgqueue.RequestTypeTurn, uuid.New(), "I light the lantern")
	require.NoError(t, queue.NewTurnQueue(client).EnqueueRequest(ctx, req))

	var out bytes.Buffer
	require.NoError(t, run(url, []string{"depth"}, &out))
	assert.Equal(t, "1 request(s) queued\n", out.String())

	out.Reset()
	require.NoError(t, run(url, []string{"peek"}, &out))
	assert.Contains(t, out.String(), "I light the lantern")
	assert.Contains(t, out.String(), req.RequestID)
}

func TestRun_Errors(t *testing.T) {
	mr := miniredis.RunT(t)
	url := "redis://" + mr.Addr()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "missing command"},
		{"unknown command", []string{"flush"}, "unknown command"},
		{"stop without id", []string{"stop"}, "usage"},
		{"stop with bad id", []string{"stop", "not-a-uuid"}, "invalid session id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(url, tt.args, &out)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
