// Command queuectl inspects the turn queue and sends stop signals to workers.
//
// Usage:
//
//	queuectl depth
//	queuectl peek
//	queuectl stop <session-id>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/internal/services/queue"
)

func main() {
	redisURL := flag.String("redis", envOr("REDIS_URL", "redis://localhost:6379/0"), "Redis URL")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: queuectl [-redis url] depth|peek|stop <session-id>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(*redisURL, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(redisURL string, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command (depth, peek or stop)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := queue.NewClient(ctx, redisURL, discardLogger())
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	return execute(ctx, client, args, out)
}

func execute(ctx context.Context, client *queue.Client, args []string, out io.Writer) error {
	turnQueue := queue.NewTurnQueue(client)

	switch args[0] {
	case "depth":
		depth, err := turnQueue.RequestQueueDepth(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d request(s) queued\n", depth)
	case "peek":
		reqs, err := turnQueue.PeekRequests(ctx, 10)
		if err != nil {
			return err
		}
		if len(reqs) == 0 {
			fmt.Fprintln(out, "queue is empty")
			return nil
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		for _, req := range reqs {
			if err := enc.Encode(req); err != nil {
				return err
			}
		}
	case "stop":
		if len(args) != 2 {
			return fmt.Errorf("usage: queuectl stop <session-id>")
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}
		if err := queue.NewStopSignal(client).Send(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(out, "stop signal sent for %s\n", id)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
