package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwebster45206/story-weaver/pkg/queue"
	"github.com/redis/go-redis/v9"
)

const requestsKey = "turn-requests"

// TurnQueue is the global FIFO of pending session requests shared by the API
// and the workers.
type TurnQueue struct {
	client *Client
}

func NewTurnQueue(client *Client) *TurnQueue {
	return &TurnQueue{
		client: client,
	}
}

// EnqueueRequest adds a request to the end of the queue
func (q *TurnQueue) EnqueueRequest(ctx context.Context, req *queue.Request) error {
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}

	if err := q.client.rdb.RPush(ctx, requestsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue request: %w", err)
	}
	return nil
}

// DequeueRequest removes and returns the next request.
// Returns nil if the queue is empty
func (q *TurnQueue) DequeueRequest(ctx context.Context) (*queue.Request, error) {
	result, err := q.client.rdb.LPop(ctx, requestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	req, err := queue.FromJSON([]byte(result))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}

// BlockingDequeueRequest waits up to timeout for a request. It returns nil
// without error when the timeout passes or ctx ends first.
func (q *TurnQueue) BlockingDequeueRequest(ctx context.Context, timeout time.Duration) (*queue.Request, error) {
	result, err := q.client.rdb.BLPop(ctx, timeout, requestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}

	req, err := queue.FromJSON([]byte(result[1]))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}

// RequestQueueDepth returns the number of pending requests
func (q *TurnQueue) RequestQueueDepth(ctx context.Context) (int, error) {
	count, err := q.client.rdb.LLen(ctx, requestsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get request queue depth: %w", err)
	}
	return int(count), nil
}

// PeekRequests returns up to n pending requests without removing them.
func (q *TurnQueue) PeekRequests(ctx context.Context, n int) ([]*queue.Request, error) {
	if n <= 0 {
		return nil, nil
	}
	items, err := q.client.rdb.LRange(ctx, requestsKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read request queue: %w", err)
	}

	reqs := make([]*queue.Request, 0, len(items))
	for _, item := range items {
		req, err := queue.FromJSON([]byte(item))
		if err != nil {
			return nil, fmt.Errorf("failed to parse request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
