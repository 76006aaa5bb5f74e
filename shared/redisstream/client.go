// Package redisstream wraps a Redis Stream consumed through a consumer
// group: entries stay pending until acknowledged with XACK, which gives
// at-least-once delivery to the group.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultField is the entry field holding the message value.
const DefaultField = "value"

// Config holds Redis Streams configuration
type Config struct {
	URL           string
	Password      string
	Stream        string
	ConsumerGroup string
	Consumer      string
	Block         time.Duration
	Field         string

	// ClaimMinIdle is how long an entry must have sat unacked with another
	// consumer before ClaimIdle takes it over. Zero takes over everything.
	ClaimMinIdle time.Duration
}

// Message is one stream entry read by this consumer.
type Message struct {
	ID    string
	Value string
	// Pending is true when the entry was delivered before and never acked.
	Pending bool
}

// Client represents a Redis Streams client bound to one stream and group.
type Client struct {
	rdb    *redis.Client
	config Config
	logger *slog.Logger
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, config Config, logger *slog.Logger) (*Client, error) {
	if config.Stream == "" {
		return nil, fmt.Errorf("redis stream name is required")
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "inference-workers"
	}
	if config.Consumer == "" {
		config.Consumer = "worker-1"
	}
	if config.Block <= 0 {
		config.Block = 5 * time.Second
	}
	if config.Field == "" {
		config.Field = DefaultField
	}

	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.Password != "" {
		opts.Password = config.Password
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Successfully connected to Redis",
		slog.String("addr", opts.Addr),
		slog.String("stream", config.Stream),
		slog.String("consumer_group", config.ConsumerGroup),
	)

	return &Client{rdb: rdb, config: config, logger: logger}, nil
}

// EnsureConsumerGroup creates the stream and consumer group if missing.
func (c *Client) EnsureConsumerGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.config.Stream, c.config.ConsumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Add appends value to the stream. It returns once Redis has replied
// with the new entry id.
func (c *Client) Add(ctx context.Context, value string) (string, error) {
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.config.Stream,
		Values: map[string]interface{}{c.config.Field: value},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add to stream: %w", err)
	}
	return id, nil
}

// ReadPending returns entries delivered to this consumer but never acked,
// e.g. after a crash between delivery and ack.
func (c *Client) ReadPending(ctx context.Context, count int64) ([]Message, error) {
	return c.ReadPendingAfter(ctx, "0", count)
}

// ReadPendingAfter is ReadPending for entries with ids strictly greater
// than after, used to page through the pending list.
func (c *Client) ReadPendingAfter(ctx context.Context, after string, count int64) ([]Message, error) {
	return c.read(ctx, after, count, -1, true)
}

// ClaimIdle moves entries another consumer of the group received but has
// not acked for ClaimMinIdle onto this consumer, so ReadPending returns
// them. Consumers that died before acking leave such entries behind.
// It returns the number of entries claimed.
func (c *Client) ClaimIdle(ctx context.Context, count int64) (int, error) {
	start := "0-0"
	claimed := 0
	for {
		messages, next, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.config.Stream,
			Group:    c.config.ConsumerGroup,
			Consumer: c.config.Consumer,
			MinIdle:  c.config.ClaimMinIdle,
			Start:    start,
			Count:    count,
		}).Result()
		if err != nil {
			return claimed, fmt.Errorf("failed to claim idle entries: %w", err)
		}
		claimed += len(messages)

		if next == "" || next == "0-0" || next == start {
			return claimed, nil
		}
		start = next
	}
}

// ReadNew blocks up to the configured block duration for a new entry.
// It returns an empty slice when nothing arrived.
func (c *Client) ReadNew(ctx context.Context) ([]Message, error) {
	return c.read(ctx, ">", 1, c.config.Block, false)
}

func (c *Client) read(ctx context.Context, start string, count int64, block time.Duration, pending bool) ([]Message, error) {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.config.ConsumerGroup,
		Consumer: c.config.Consumer,
		Streams:  []string{c.config.Stream, start},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var messages []Message
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			value, _ := msg.Values[c.config.Field].(string)
			messages = append(messages, Message{ID: msg.ID, Value: value, Pending: pending})
		}
	}
	return messages, nil
}

// Ack acknowledges an entry for the consumer group.
func (c *Client) Ack(ctx context.Context, id string) error {
	if err := c.rdb.XAck(ctx, c.config.Stream, c.config.ConsumerGroup, id).Err(); err != nil {
		return fmt.Errorf("failed to ack %s: %w", id, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Consumer returns the consumer name within the group.
func (c *Client) Consumer() string {
	return c.config.Consumer
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	c.logger.Info("Closing Redis connection")
	return c.rdb.Close()
}
