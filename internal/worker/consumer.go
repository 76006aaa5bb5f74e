package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/inference-hitl/internal/domain"
	"github.com/cuongbtq/inference-hitl/internal/queue"
)

// ErrSubscriptionClosed is wrapped in the BrokerError returned by Start when
// the broker closes the delivery channel.
var ErrSubscriptionClosed = errors.New("delivery channel closed")

// consume is the Idle -> Processing -> Idle loop.
func (w *Worker) consume(ctx context.Context, deliveries <-chan queue.Delivery) error {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("Delivery channel closed",
					slog.String("worker_id", w.workerID),
				)
				return domain.NewBrokerError("consume", ErrSubscriptionClosed)
			}

			// The in-flight message is finished even when a stop arrives.
			w.handle(context.WithoutCancel(ctx), delivery)
		}
	}
}

// handle processes one delivery and settles it. Ack happens only after
// the status change (or the decision to change nothing) is durable.
func (w *Worker) handle(ctx context.Context, delivery queue.Delivery) {
	start := time.Now()
	err := w.processJob(ctx, delivery.JobID)

	if err != nil && domain.IsStoreError(err) {
		w.logger.Error("Job processing failed, requeueing",
			slog.String("job_id", delivery.JobID),
			slog.Duration("requeue_delay", w.requeueDelay),
			slog.Any("error", err),
		)
		w.waitRequeueDelay()
		if nackErr := delivery.Nack(ctx, true); nackErr != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("job_id", delivery.JobID),
				slog.Any("error", nackErr),
			)
		}
		return
	}

	if err != nil {
		// Anything else cannot succeed on redelivery: drop the message.
		w.logger.Error("Job processing failed, dropping message",
			slog.String("job_id", delivery.JobID),
			slog.Any("error", err),
		)
	}

	if ackErr := delivery.Ack(ctx); ackErr != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("job_id", delivery.JobID),
			slog.Any("error", ackErr),
		)
		return
	}

	w.logger.Debug("Job acknowledged",
		slog.String("job_id", delivery.JobID),
		slog.Bool("redelivered", delivery.Redelivered),
		slog.Duration("elapsed", time.Since(start)),
	)
}

// waitRequeueDelay sleeps for requeueDelay, cut short by Stop.
func (w *Worker) waitRequeueDelay() {
	timer := time.NewTimer(w.requeueDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-w.stopChan:
	}
}
