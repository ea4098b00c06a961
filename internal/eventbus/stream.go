package eventbus

import (
	"context"
	"time"
)

// StreamClient is the minimal broker surface the publisher and its
// consumers need. Backed by Redis Streams in production (XADD/
// XREADGROUP/XACK/XPENDING map directly onto the spec's topic/consumer-
// group/ACK vocabulary); a fake satisfying this interface is used in
// tests so publisher behavior can be exercised without a live broker.
type StreamClient interface {
	// XAdd appends an entry to stream, returning the broker-assigned id.
	XAdd(ctx context.Context, stream string, values map[string]any) (string, error)

	// EnsureGroup creates the consumer group for stream if it does not
	// already exist, starting from the beginning of the stream.
	EnsureGroup(ctx context.Context, stream, group string) error

	// ReadGroup reads up to count undelivered entries for consumer
	// within group, blocking for at most block.
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error)

	// Ack acknowledges one or more entries within group.
	Ack(ctx context.Context, stream, group string, ids ...string) error
}

// StreamMessage is one entry read back from a stream.
type StreamMessage struct {
	ID     string
	Values map[string]any
}
