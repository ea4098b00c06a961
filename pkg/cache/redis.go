package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskfabric/backbone/internal/eventbus"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns sensible defaults for Redis connection
func DefaultRedisConfig(url string) *RedisConfig {
	return &RedisConfig{
		URL:          url,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Client wraps redis.Client with additional functionality
type Client struct {
	*redis.Client
}

// NewClient creates a new Redis client
func NewClient(ctx context.Context, cfg *RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	// Apply pool settings
	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opt)

	// Verify connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Client{Client: client}, nil
}

// Close closes the Redis client
func (c *Client) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// Health checks if the Redis connection is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Stream operations. Client implements eventbus.StreamClient so the
// event publisher and its consumers (recurrence engine, notification
// dispatcher) can run directly against Redis Streams.

// XAdd appends an entry to stream with auto-generated id, returning
// the broker-assigned id.
func (c *Client) XAdd(ctx context.Context, stream string, values map[string]any) (string, error) {
	id, err := c.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("cache: xadd %s: %w", stream, err)
	}
	return id, nil
}

// EnsureGroup creates the consumer group for stream starting from the
// beginning (id "0"), creating the stream itself if it doesn't exist.
// BUSYGROUP (group already exists) is not an error.
func (c *Client) EnsureGroup(ctx context.Context, stream, group string) error {
	err := c.Client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("cache: create group %s/%s: %w", stream, group, err)
	}
	return nil
}

// ReadGroup reads up to count undelivered entries for consumer within
// group, blocking for at most block. A block of zero or less returns
// immediately.
func (c *Client) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]eventbus.StreamMessage, error) {
	if block <= 0 {
		// go-redis sends BLOCK 0 (wait forever) for zero; negative omits BLOCK.
		block = -1
	}
	res, err := c.Client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: read group %s/%s: %w", stream, group, err)
	}

	var messages []eventbus.StreamMessage
	for _, s := range res {
		for _, entry := range s.Messages {
			messages = append(messages, eventbus.StreamMessage{ID: entry.ID, Values: entry.Values})
		}
	}
	return messages, nil
}

// Ack acknowledges one or more entries within group.
func (c *Client) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.Client.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("cache: ack %s/%s: %w", stream, group, err)
	}
	return nil
}
