package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const eventStreamKey = "shopbot:events"

// EventStream publishes run lifecycle events to a Redis stream for
// external monitors. Optional; publishing is best-effort.
type EventStream struct {
	client *redis.Client
	runID  string
	logger *slog.Logger
}

// NewEventStream connects and pings the Redis instance.
func NewEventStream(ctx context.Context, addr, runID string) (*EventStream, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &EventStream{
		client: client,
		runID:  runID,
		logger: slog.Default().With("component", "event_stream"),
	}, nil
}

// Publish appends one event to the stream.
func (e *EventStream) Publish(kind string, fields map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	values := map[string]any{
		"run_id":    e.runID,
		"kind":      kind,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	for k, v := range fields {
		values[k] = fmt.Sprint(v)
	}

	err := e.client.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStreamKey,
		Values: values,
	}).Err()
	if err != nil {
		e.logger.Warn("failed to publish event", "kind", kind, "error", err)
	}
}

func (e *EventStream) Close() {
	e.client.Close()
}
