package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const stopChannelPrefix = "session-stop:"

// StopSignal carries "stop narrating" requests from the API to whichever
// process is speaking for a session.
type StopSignal struct {
	client *Client
}

func NewStopSignal(client *Client) *StopSignal {
	return &StopSignal{client: client}
}

// Send asks every listener to stop narration for sessionID.
func (s *StopSignal) Send(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.client.rdb.Publish(ctx, stopChannelPrefix+sessionID.String(), "stop").Err(); err != nil {
		return fmt.Errorf("failed to send stop signal: %w", err)
	}
	return nil
}

// Listen calls fn with the session id of every stop signal until ctx ends.
func (s *StopSignal) Listen(ctx context.Context, fn func(uuid.UUID)) error {
	sub := s.client.rdb.PSubscribe(ctx, stopChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to stop signals: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			id, err := parseStopChannel(msg.Channel)
			if err != nil {
				s.client.logger.Warn("Ignoring malformed stop signal", "channel", msg.Channel, "error", err)
				continue
			}
			fn(id)
		}
	}
}

func parseStopChannel(channel string) (uuid.UUID, error) {
	if !strings.HasPrefix(channel, stopChannelPrefix) {
		return uuid.Nil, fmt.Errorf("unexpected channel %q", channel)
	}
	return uuid.Parse(strings.TrimPrefix(channel, stopChannelPrefix))
}

