// Package eventbus implements the Event Publisher (C8): it enqueues
// envelopes onto a topic with bounded retry, exponential backoff, and
// an optional in-memory buffer for when the broker is unreachable.
//
// Grounded on internal/job/queue.go's retry/backoff shape and on the
// original publisher's kafka_service.py (same retry count, same buffer
// cap, same flush semantics), ported from Dapr/Kafka pub-sub onto Redis
// Streams.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskfabric/backbone/internal/clock"
	"github.com/taskfabric/backbone/internal/event"
)

const (
	DefaultMaxRetries    = 3
	DefaultMaxBufferSize = 1000
)

// Config configures a Publisher. Zero values fall back to spec defaults.
type Config struct {
	MaxRetries    int
	EnableBuffer  bool
	MaxBufferSize int
	Clock         clock.Clock
	Logger        *slog.Logger
}

// Publisher is the Event Publisher (C8).
type Publisher struct {
	stream     StreamClient
	maxRetries int
	buffering  bool
	buf        *buffer
	clock      clock.Clock
	logger     *slog.Logger
}

// New builds a Publisher over a StreamClient.
func New(stream StreamClient, cfg Config) *Publisher {
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	bufSize := cfg.MaxBufferSize
	if bufSize == 0 {
		bufSize = DefaultMaxBufferSize
	}
	c := cfg.Clock
	if c == nil {
		c = clock.Real{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		stream:     stream,
		maxRetries: maxRetries,
		buffering:  cfg.EnableBuffer,
		buf:        newBuffer(bufSize),
		clock:      c,
		logger:     logger,
	}
}

// Publish builds an envelope around payload and attempts delivery to
// topic, retrying on failure with exponential backoff (2^attempt
// seconds) up to MaxRetries times after the initial attempt, so
// MaxRetries+1 attempts in all. If every attempt fails and buffering is enabled,
// the event is appended to the fallback buffer instead of returning an
// error; ErrBufferFull surfaces if the buffer is already at capacity.
func (p *Publisher) Publish(ctx context.Context, topic, eventType string, payload any, eventID uuid.UUID) (uuid.UUID, error) {
	env, err := event.New(eventID, eventType, p.clock.Now(), payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("eventbus: marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := p.publishOnce(ctx, topic, env); err == nil {
			return env.EventID, nil
		} else {
			lastErr = err
			p.logger.Warn("eventbus: publish attempt failed",
				"event_id", env.EventID,
				"event_type", eventType,
				"attempt", attempt+1,
				"error", err)
		}

		if attempt < p.maxRetries {
			delay := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return uuid.Nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	p.logger.Error("eventbus: publish exhausted retries",
		"event_id", env.EventID, "event_type", eventType, "error", lastErr)

	if !p.buffering {
		return uuid.Nil, lastErr
	}

	if err := p.buf.enqueue(&bufferedEvent{
		eventID:    env.EventID,
		topic:      topic,
		eventType:  eventType,
		payload:    payload,
		bufferedAt: p.clock.Now(),
	}); err != nil {
		return uuid.Nil, err
	}

	p.logger.Info("eventbus: event buffered", "event_id", env.EventID, "buffer_size", p.buf.size())
	return env.EventID, nil
}

func (p *Publisher) publishOnce(ctx context.Context, topic string, env event.Envelope) error {
	values := map[string]any{
		"event_id":       env.EventID.String(),
		"event_type":     env.EventType,
		"schema_version": env.SchemaVersion,
		"timestamp":      env.MarshalTimestamp(),
		"data":           string(env.Data),
	}
	_, err := p.stream.XAdd(ctx, topic, values)
	return err
}

// Flush replays every buffered event, removing ones that succeed and
// incrementing the retry counter of ones that don't.
func (p *Publisher) Flush(ctx context.Context) FlushResult {
	return p.buf.drain(func(ev *bufferedEvent) error {
		env, err := event.New(ev.eventID, ev.eventType, p.clock.Now(), ev.payload)
		if err != nil {
			return err
		}
		return p.publishOnce(ctx, ev.topic, env)
	})
}

// BufferSize reports how many events currently await a flush.
func (p *Publisher) BufferSize() int { return p.buf.size() }

// ClearBuffer drops every buffered event and returns how many were
// discarded. Intended for tests and manual operator intervention.
func (p *Publisher) ClearBuffer() int { return p.buf.clear() }
