// Package worker runs the dispatcher: it pulls job ids from the broker,
// invokes inference for jobs still awaiting it, records the result and
// acknowledges the message.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/inference-hitl/internal/domain"
	"github.com/cuongbtq/inference-hitl/internal/queue"
	"github.com/google/uuid"
)

// UpstreamPolicy decides what happens to a job whose inference call failed.
type UpstreamPolicy string

const (
	// PolicyLeave keeps the job in bot and logs a warning.
	PolicyLeave UpstreamPolicy = "leave"
	// PolicyFail moves the job to fail with the error text as response.
	PolicyFail UpstreamPolicy = "fail"
)

// DefaultRequeueDelay is how long a message waits before it is handed back
// to the broker after a store failure.
const DefaultRequeueDelay = 5 * time.Second

// JobStore reads jobs.
type JobStore interface {
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
}

// Transitioner applies guarded status changes.
type Transitioner interface {
	Apply(ctx context.Context, jobID string, from, to domain.Status, changes domain.Changes) error
}

// Invoker calls the inference endpoint.
type Invoker interface {
	Invoke(ctx context.Context, job *domain.Job) ([]byte, error)
}

// Config holds worker configuration
type Config struct {
	Logger          *slog.Logger
	Store           JobStore
	Transitioner    Transitioner
	Invoker         Invoker
	Subscriber      queue.Subscriber
	OnUpstreamError UpstreamPolicy
	RequeueDelay    time.Duration
	WorkerID        string
}

// Worker is the single-consumer dispatcher. Messages are handled strictly
// one at a time.
type Worker struct {
	logger          *slog.Logger
	store           JobStore
	transitioner    Transitioner
	invoker         Invoker
	subscriber      queue.Subscriber
	onUpstreamError UpstreamPolicy
	requeueDelay    time.Duration
	workerID        string

	mu       sync.Mutex // guards stopped and wg.Add
	stopped  bool
	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:          cfg.Logger,
		store:           cfg.Store,
		transitioner:    cfg.Transitioner,
		invoker:         cfg.Invoker,
		subscriber:      cfg.Subscriber,
		onUpstreamError: cfg.OnUpstreamError,
		requeueDelay:    cfg.RequeueDelay,
		workerID:        cfg.WorkerID,
		stopChan:        make(chan struct{}),
	}
	if w.onUpstreamError == "" {
		w.onUpstreamError = PolicyLeave
	}
	if w.requeueDelay <= 0 {
		w.requeueDelay = DefaultRequeueDelay
	}
	if w.workerID == "" {
		w.workerID = "worker-" + uuid.NewString()
	}
	return w
}

// ID returns the worker id, also used as the consumer tag.
func (w *Worker) ID() string {
	return w.workerID
}

// Start subscribes and processes deliveries until ctx is canceled or Stop
// is called, in which case it returns nil. A lost subscription is fatal and
// returned as *domain.BrokerError.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-runCtx.Done():
		}
	}()

	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.String("on_upstream_error", string(w.onUpstreamError)),
		slog.Duration("requeue_delay", w.requeueDelay),
	)

	deliveries, err := w.subscriber.Subscribe(runCtx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return w.consume(runCtx, deliveries)
}

// Stop stops pulling new messages and waits for the in-flight one.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopChan)
	}
	w.mu.Unlock()
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
