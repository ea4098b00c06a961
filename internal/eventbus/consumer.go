package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskfabric/backbone/internal/event"
)

// HandlerFunc processes one decoded envelope. Returning nil ACKs the
// stream entry; a non-nil error leaves it pending for redelivery.
type HandlerFunc func(ctx context.Context, env event.Envelope) error

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Stream       string
	Group        string
	ConsumerName string

	// BatchSize caps entries read per ReadGroup call.
	BatchSize int
	// BlockFor is how long ReadGroup blocks waiting for new entries.
	BlockFor time.Duration
	// HandlerTimeout bounds a single envelope's handling, mirroring
	// job.Worker's per-job timeout context.
	HandlerTimeout time.Duration

	Logger *slog.Logger
}

// Consumer reads a stream via a consumer group and dispatches each
// entry to a Handler, generalizing job.Worker's dequeue-process-
// recover loop from "pop a job row" to "read a stream entry."
type Consumer struct {
	stream  StreamClient
	handler HandlerFunc

	streamName   string
	group        string
	consumerName string
	batchSize    int64
	blockFor     time.Duration
	handlerTO    time.Duration

	logger *slog.Logger
}

// NewConsumer builds a Consumer. Defaults: batch size 10, block 5s,
// handler timeout 30s.
func NewConsumer(stream StreamClient, handler HandlerFunc, cfg ConsumerConfig) *Consumer {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	blockFor := cfg.BlockFor
	if blockFor <= 0 {
		blockFor = 5 * time.Second
	}
	handlerTO := cfg.HandlerTimeout
	if handlerTO <= 0 {
		handlerTO = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	consumerName := cfg.ConsumerName
	if consumerName == "" {
		consumerName = cfg.Group
	}

	return &Consumer{
		stream:       stream,
		handler:      handler,
		streamName:   cfg.Stream,
		group:        cfg.Group,
		consumerName: consumerName,
		batchSize:    int64(batchSize),
		blockFor:     blockFor,
		handlerTO:    handlerTO,
		logger:       logger,
	}
}

// Run ensures the consumer group exists, then reads and dispatches
// entries until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.stream.EnsureGroup(ctx, c.streamName, c.group); err != nil {
		return fmt.Errorf("eventbus: ensure group %s/%s: %w", c.streamName, c.group, err)
	}

	c.logger.Info("consumer starting", "stream", c.streamName, "group", c.group, "consumer", c.consumerName)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "stream", c.streamName, "group", c.group)
			return ctx.Err()
		default:
		}

		messages, err := c.stream.ReadGroup(ctx, c.streamName, c.group, c.consumerName, c.batchSize, c.blockFor)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("consumer read failed", "stream", c.streamName, "group", c.group, "error", err)
			continue
		}

		for _, msg := range messages {
			c.process(ctx, msg)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg StreamMessage) {
	logger := c.logger.With("stream", c.streamName, "group", c.group, "message_id", msg.ID)

	env, err := decodeEnvelope(msg.Values)
	if err != nil {
		logger.Error("discarding malformed stream entry", "error", err)
		if ackErr := c.stream.Ack(ctx, c.streamName, c.group, msg.ID); ackErr != nil {
			logger.Error("failed to ack malformed entry", "error", ackErr)
		}
		return
	}

	handlerCtx, cancel := context.WithTimeout(ctx, c.handlerTO)
	defer cancel()

	var handleErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				handleErr = fmt.Errorf("handler panicked: %v", r)
				logger.Error("handler panicked", "panic", r, "event_id", env.EventID)
			}
		}()
		handleErr = c.handler(handlerCtx, env)
	}()

	if handleErr != nil {
		logger.Error("handler failed, leaving entry pending", "event_id", env.EventID, "event_type", env.EventType, "error", handleErr)
		return
	}

	if err := c.stream.Ack(ctx, c.streamName, c.group, msg.ID); err != nil {
		logger.Error("failed to ack entry", "event_id", env.EventID, "error", err)
	}
}

// decodeEnvelope rebuilds an event.Envelope from the flat field map a
// Redis Streams entry carries, mirroring publishOnce's encoding.
func decodeEnvelope(values map[string]any) (event.Envelope, error) {
	get := func(key string) string {
		v, _ := values[key].(string)
		return v
	}

	var env event.Envelope
	err := env.UnmarshalValues(get("event_id"), get("event_type"), get("schema_version"), get("timestamp"), get("data"))
	return env, err
}
