package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), &RedisConfig{
		URL:          "redis://" + mr.Addr(),
		PoolSize:     5,
		MinIdleConns: 1,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestClientHealth(t *testing.T) {
	client, _ := newTestClient(t)

	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestClientStreamRoundTrip(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	const stream = "task-events"
	const group = "recurring-task-service"

	if err := client.EnsureGroup(ctx, stream, group); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	// Creating the same group twice must not be an error (BUSYGROUP).
	if err := client.EnsureGroup(ctx, stream, group); err != nil {
		t.Fatalf("EnsureGroup (repeat): %v", err)
	}

	id, err := client.XAdd(ctx, stream, map[string]any{
		"event_id":       "11111111-1111-1111-1111-111111111111",
		"event_type":     "task.completed.v1",
		"schema_version": "1",
		"timestamp":      "2026-07-30T00:00:00Z",
		"data":           `{"task_id":"22222222-2222-2222-2222-222222222222"}`,
	})
	if err != nil {
		t.Fatalf("XAdd: %v", err)
	}
	if id == "" {
		t.Fatal("XAdd returned empty id")
	}

	msgs, err := client.ReadGroup(ctx, stream, group, "consumer-1", 10, 0)
	if err != nil {
		t.Fatalf("ReadGroup: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Values["event_type"] != "task.completed.v1" {
		t.Fatalf("unexpected event_type: %v", msgs[0].Values["event_type"])
	}

	if err := client.Ack(ctx, stream, group, msgs[0].ID); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	// A second read with no new entries should come back empty, not an error.
	msgs, err = client.ReadGroup(ctx, stream, group, "consumer-1", 10, 0)
	if err != nil {
		t.Fatalf("ReadGroup (second): %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no pending messages after ack, got %d", len(msgs))
	}
}

func TestClientAckEmptyIDsNoop(t *testing.T) {
	client, _ := newTestClient(t)
	if err := client.Ack(context.Background(), "task-events", "recurring-task-service"); err != nil {
		t.Fatalf("Ack with no ids should be a no-op, got: %v", err)
	}
}
