package queue

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/inference-hitl/internal/domain"
	"github.com/cuongbtq/inference-hitl/shared/redisstream"
)

// pendingBatch is the page size for claiming and replaying unacked
// entries. Replay pages until the pending list is exhausted.
const pendingBatch = 100

// Redis is the Redis Streams Broker. On every Subscribe, entries left
// unacked by dead consumers of the group are claimed, then everything
// pending for this consumer is replayed before new entries are read.
type Redis struct {
	client *redisstream.Client
	logger *slog.Logger
}

// NewRedis wraps a connected stream client.
func NewRedis(client *redisstream.Client, logger *slog.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

// Publish appends jobID to the stream.
func (r *Redis) Publish(ctx context.Context, jobID string) error {
	if _, err := r.client.Add(ctx, jobID); err != nil {
		return domain.NewBrokerError("publish", err)
	}
	return nil
}

// Subscribe hands out one entry at a time; the next entry is read only
// after the previous one was acked or nacked.
func (r *Redis) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	if err := r.client.EnsureConsumerGroup(ctx); err != nil {
		return nil, domain.NewBrokerError("subscribe", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)

		if !r.replayPending(ctx, out) {
			return
		}

		for {
			messages, err := r.client.ReadNew(ctx)
			if err != nil {
				r.readFailed(ctx, err)
				return
			}
			for _, msg := range messages {
				if !r.forward(ctx, out, msg) {
					return
				}
			}
		}
	}()
	return out, nil
}

// replayPending claims idle entries of other consumers and forwards every
// entry pending for this one, oldest first. It returns false when the
// subscription should end.
func (r *Redis) replayPending(ctx context.Context, out chan<- Delivery) bool {
	claimed, err := r.client.ClaimIdle(ctx, pendingBatch)
	if err != nil {
		r.readFailed(ctx, err)
		return false
	}
	if claimed > 0 {
		r.logger.Info("Claimed unacked entries from other consumers",
			slog.String("consumer", r.client.Consumer()),
			slog.Int("claimed", claimed),
		)
	}

	after := "0"
	for {
		pending, err := r.client.ReadPendingAfter(ctx, after, pendingBatch)
		if err != nil {
			r.readFailed(ctx, err)
			return false
		}
		if len(pending) == 0 {
			return true
		}
		for _, msg := range pending {
			if !r.forward(ctx, out, msg) {
				return false
			}
			after = msg.ID
		}
	}
}

// forward sends msg and waits until it is settled. It returns false when
// ctx ended first.
func (r *Redis) forward(ctx context.Context, out chan<- Delivery, msg redisstream.Message) bool {
	delivery, settled := r.toDelivery(msg).withSettled()
	select {
	case out <- delivery:
	case <-ctx.Done():
		return false
	}
	select {
	case <-settled:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Redis) toDelivery(msg redisstream.Message) Delivery {
	return NewDelivery(msg.Value, msg.Pending,
		func(ctx context.Context) error {
			if err := r.client.Ack(ctx, msg.ID); err != nil {
				return domain.NewBrokerError("ack", err)
			}
			return nil
		},
		func(ctx context.Context, requeue bool) error {
			if requeue {
				// streams have no requeue: append a fresh entry first so
				// the id is never lost, then drop the old one
				if _, err := r.client.Add(ctx, msg.Value); err != nil {
					return domain.NewBrokerError("nack", err)
				}
			}
			if err := r.client.Ack(ctx, msg.ID); err != nil {
				return domain.NewBrokerError("nack", err)
			}
			return nil
		},
	)
}

func (r *Redis) readFailed(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	r.logger.Error("Redis stream read failed",
		slog.String("consumer", r.client.Consumer()),
		slog.Any("error", err),
	)
}

// HealthCheck pings Redis.
func (r *Redis) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx); err != nil {
		return domain.NewBrokerError("health", err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
