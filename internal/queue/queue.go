// Package queue relays job ids from producers to the dispatcher over a
// message broker. Messages carry only the job id; the job store stays the
// single source of truth.
package queue

import (
	"context"
	"strings"
	"sync"
)

// ContentType of every published message: the job id as UTF-8 text.
const ContentType = "text/plain; charset=utf-8"

// Publisher publishes job ids. Publish returns only after the broker has
// durably accepted the message.
type Publisher interface {
	Publish(ctx context.Context, jobID string) error
}

// Subscriber produces deliveries one at a time with manual
// acknowledgement. The channel is closed when ctx is done or when the
// subscription is lost.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Delivery, error)
}

// Broker is a process-wide broker handle.
type Broker interface {
	Publisher
	Subscriber
	HealthCheck(ctx context.Context) error
	Close() error
}

// Delivery is one received message together with its ack handle.
type Delivery struct {
	JobID       string
	Redelivered bool

	ack     func(ctx context.Context) error
	nack    func(ctx context.Context, requeue bool) error
	settled func()
}

// NewDelivery builds a Delivery around broker-specific ack/nack calls.
func NewDelivery(jobID string, redelivered bool, ack func(context.Context) error, nack func(context.Context, bool) error) Delivery {
	return Delivery{
		JobID:       strings.TrimSpace(jobID),
		Redelivered: redelivered,
		ack:         ack,
		nack:        nack,
		settled:     func() {},
	}
}

// Ack acknowledges the message. Call it only after the work it triggered
// has been durably applied.
func (d Delivery) Ack(ctx context.Context) error {
	defer d.settle()
	return d.ack(ctx)
}

// Nack rejects the message, optionally returning it to the queue.
func (d Delivery) Nack(ctx context.Context, requeue bool) error {
	defer d.settle()
	return d.nack(ctx, requeue)
}

func (d Delivery) settle() {
	if d.settled != nil {
		d.settled()
	}
}

// withSettled returns a copy of d that closes done on its first Ack or Nack.
func (d Delivery) withSettled() (Delivery, <-chan struct{}) {
	done := make(chan struct{})
	var once sync.Once
	d.settled = func() { once.Do(func() { close(done) }) }
	return d, done
}
