package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuongbtq/inference-hitl/shared/logger"
	"github.com/cuongbtq/inference-hitl/shared/redisstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return mr, newRedisBroker(t, mr, "test-consumer")
}

func newRedisBroker(t *testing.T, mr *miniredis.Miniredis, consumer string) *Redis {
	t.Helper()

	client, err := redisstream.NewClient(context.Background(), redisstream.Config{
		URL:           "redis://" + mr.Addr(),
		Stream:        "inference-jobs",
		ConsumerGroup: "test-workers",
		Consumer:      consumer,
		Block:         20 * time.Millisecond,
	}, logger.Discard())
	require.NoError(t, err)

	broker := NewRedis(client, logger.Discard())
	t.Cleanup(func() { broker.Close() })
	return broker
}

// crash subscribes, takes one delivery without settling it and stops.
func crash(t *testing.T, broker *Redis) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	deliveries, err := broker.Subscribe(ctx)
	require.NoError(t, err)

	d := receive(t, deliveries)
	cancel()
	for range deliveries {
	}
	require.NoError(t, broker.Close())
	return d.JobID
}

func receive(t *testing.T, deliveries <-chan Delivery) Delivery {
	t.Helper()
	select {
	case d, ok := <-deliveries:
		require.True(t, ok, "delivery channel closed")
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	return Delivery{}
}

func TestRedis_PublishSubscribeAck(t *testing.T) {
	mr, broker := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := broker.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, "job-1"))
	require.NoError(t, broker.Publish(ctx, "job-2"))

	first := receive(t, deliveries)
	assert.Equal(t, "job-1", first.JobID)
	assert.False(t, first.Redelivered)

	// the second entry is held back until the first is settled
	select {
	case d := <-deliveries:
		t.Fatalf("unexpected delivery %q before ack", d.JobID)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, first.Ack(ctx))
	second := receive(t, deliveries)
	assert.Equal(t, "job-2", second.JobID)
	require.NoError(t, second.Ack(ctx))

	stream, err := mr.Stream("inference-jobs")
	require.NoError(t, err)
	assert.Len(t, stream, 2)
}

func TestRedis_UnackedIsRedelivered(t *testing.T) {
	_, broker := setupRedis(t)

	ctx, cancel := context.WithCancel(context.Background())
	deliveries, err := broker.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, broker.Publish(context.Background(), "job-1"))
	d := receive(t, deliveries)
	assert.Equal(t, "job-1", d.JobID)

	// consumer dies without acking
	cancel()
	for range deliveries {
	}

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	deliveries, err = broker.Subscribe(ctx2)
	require.NoError(t, err)

	again := receive(t, deliveries)
	assert.Equal(t, "job-1", again.JobID)
	assert.True(t, again.Redelivered)
	require.NoError(t, again.Ack(ctx2))
}

func TestRedis_NackRequeue(t *testing.T) {
	_, broker := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := broker.Subscribe(ctx)
	require.NoError(t, err)
	require.NoError(t, broker.Publish(ctx, "job-1"))

	d := receive(t, deliveries)
	require.NoError(t, d.Nack(ctx, true))

	again := receive(t, deliveries)
	assert.Equal(t, "job-1", again.JobID)
	require.NoError(t, again.Nack(ctx, false))

	select {
	case d := <-deliveries:
		t.Fatalf("unexpected delivery %q after nack without requeue", d.JobID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedis_HealthCheck(t *testing.T) {
	mr, broker := setupRedis(t)
	require.NoError(t, broker.HealthCheck(context.Background()))

	mr.SetError("LOADING server is loading")
	assert.Error(t, broker.HealthCheck(context.Background()))
	mr.SetError("")
}

func TestRedis_UnackedIsRedeliveredAfterRestartUnderNewName(t *testing.T) {
	mr, first := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, first.Publish(ctx, "job-1"))
	require.NoError(t, first.Publish(ctx, "job-2"))
	assert.Equal(t, "job-1", crash(t, first))

	restarted := newRedisBroker(t, mr, "restarted-consumer")
	ctx2, cancel := context.WithCancel(ctx)
	defer cancel()
	deliveries, err := restarted.Subscribe(ctx2)
	require.NoError(t, err)

	again := receive(t, deliveries)
	assert.Equal(t, "job-1", again.JobID)
	assert.True(t, again.Redelivered)
	require.NoError(t, again.Ack(ctx2))

	next := receive(t, deliveries)
	assert.Equal(t, "job-2", next.JobID)
	assert.False(t, next.Redelivered)
	require.NoError(t, next.Ack(ctx2))
}

func TestRedis_ReplaysEveryPendingEntry(t *testing.T) {
	mr, broker := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, broker.Publish(ctx, "job-1"))
	require.NoError(t, broker.Publish(ctx, "job-2"))

	// two consumers died holding one entry each
	for i, name := range []string{"dead-a", "dead-b"} {
		dead, err := redisstream.NewClient(ctx, redisstream.Config{
			URL:           "redis://" + mr.Addr(),
			Stream:        "inference-jobs",
			ConsumerGroup: "test-workers",
			Consumer:      name,
			Block:         20 * time.Millisecond,
		}, logger.Discard())
		require.NoError(t, err)
		require.NoError(t, dead.EnsureConsumerGroup(ctx))
		messages, err := dead.ReadNew(ctx)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, fmt.Sprintf("job-%d", i+1), messages[0].Value)
		require.NoError(t, dead.Close())
	}

	ctx2, cancel := context.WithCancel(ctx)
	defer cancel()
	deliveries, err := broker.Subscribe(ctx2)
	require.NoError(t, err)

	for _, want := range []string{"job-1", "job-2"} {
		d := receive(t, deliveries)
		assert.Equal(t, want, d.JobID)
		assert.True(t, d.Redelivered)
		require.NoError(t, d.Ack(ctx2))
	}

	select {
	case d := <-deliveries:
		t.Fatalf("unexpected delivery %q after replay", d.JobID)
	case <-time.After(100 * time.Millisecond):
	}
}
