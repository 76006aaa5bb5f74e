package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/inference-hitl/internal/domain"
	"github.com/cuongbtq/inference-hitl/shared/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPClient is the part of *rabbitmq.Client the broker uses.
type AMQPClient interface {
	Publish(ctx context.Context, body []byte, contentType string) error
	Consume(consumerTag string, prefetchCount int) (<-chan amqp.Delivery, func() error, error)
	IsConnected() bool
	Close() error
}

// RabbitMQ is the AMQP Broker: persistent messages, publisher confirms,
// prefetch 1 and manual acks.
type RabbitMQ struct {
	client      AMQPClient
	consumerTag string
	logger      *slog.Logger
}

// NewRabbitMQ wraps a connected client.
func NewRabbitMQ(client AMQPClient, consumerTag string, logger *slog.Logger) *RabbitMQ {
	return &RabbitMQ{
		client:      client,
		consumerTag: consumerTag,
		logger:      logger,
	}
}

// Publish publishes jobID and waits for the broker confirm.
func (r *RabbitMQ) Publish(ctx context.Context, jobID string) error {
	if err := r.client.Publish(ctx, []byte(jobID), ContentType); err != nil {
		return domain.NewBrokerError("publish", err)
	}
	return nil
}

// Subscribe starts the consumer. Prefetch 1 keeps at most one unacked
// message in flight. When ctx ends or the delivery channel closes, the
// consumer is cancelled and its channel closed once the message in flight
// has been settled.
func (r *RabbitMQ) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	messages, release, err := r.client.Consume(r.consumerTag, 1)
	if err != nil {
		return nil, domain.NewBrokerError("subscribe", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		var inflight <-chan struct{}
		defer func() {
			go r.releaseAfter(inflight, release)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					r.logger.Warn("RabbitMQ delivery channel closed",
						slog.String("consumer_tag", r.consumerTag),
					)
					return
				}
				delivery, settled := fromAMQP(msg).withSettled()
				select {
				case out <- delivery:
					inflight = settled
				case <-ctx.Done():
					// never handed out: the broker requeues it on release
					return
				}
			}
		}
	}()
	return out, nil
}

// releaseAfter waits for the delivery in flight, if any, since an ack on a
// closed channel is lost, then cancels the consumer.
func (r *RabbitMQ) releaseAfter(inflight <-chan struct{}, release func() error) {
	if inflight != nil {
		<-inflight
	}
	if err := release(); err != nil {
		r.logger.Warn("Failed to release RabbitMQ consumer",
			slog.String("consumer_tag", r.consumerTag),
			slog.Any("error", err),
		)
	}
}

func fromAMQP(msg amqp.Delivery) Delivery {
	return NewDelivery(string(msg.Body), msg.Redelivered,
		func(context.Context) error {
			if err := msg.Ack(false); err != nil {
				return domain.NewBrokerError("ack", fmt.Errorf("delivery %d: %w", msg.DeliveryTag, err))
			}
			return nil
		},
		func(_ context.Context, requeue bool) error {
			if err := msg.Nack(false, requeue); err != nil {
				return domain.NewBrokerError("nack", fmt.Errorf("delivery %d: %w", msg.DeliveryTag, err))
			}
			return nil
		},
	)
}

// HealthCheck reports whether the AMQP connection is up.
func (r *RabbitMQ) HealthCheck(context.Context) error {
	if !r.client.IsConnected() {
		return domain.NewBrokerError("health", rabbitmq.ErrNotConnected)
	}
	return nil
}

// Close closes the AMQP connection.
func (r *RabbitMQ) Close() error {
	return r.client.Close()
}
