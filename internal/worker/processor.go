package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/inference-hitl/internal/domain"
)

// processJob runs one job through inference. A nil return means the
// message can be acked; a *domain.StoreError means it should be retried.
//
// Every step is guarded by the bot precondition, so running it again for
// the same id after a crash is safe.
func (w *Worker) processJob(ctx context.Context, jobID string) error {
	if !domain.ValidJobID(jobID) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidJobID, jobID)
	}

	w.logger.Info("Processing job",
		slog.String("job_id", jobID),
		slog.String("worker_id", w.workerID),
	)

	job, err := w.store.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.logger.Warn("Job not found, dropping message",
				slog.String("job_id", jobID),
			)
			return nil
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if job.Status != domain.StatusBot {
		w.logger.Info("Job not awaiting inference, skipping",
			slog.String("job_id", jobID),
			slog.String("status", job.Status.String()),
		)
		return nil
	}

	result, err := w.invoker.Invoke(ctx, job)
	if err != nil {
		return w.handleUpstreamError(ctx, job, err)
	}

	err = w.transitioner.Apply(ctx, jobID, domain.StatusBot, domain.StatusHuman, domain.Changes{Response: result})
	if err != nil {
		return w.handleTransitionError(jobID, domain.StatusHuman, err)
	}

	w.logger.Info("Job awaiting human review",
		slog.String("job_id", jobID),
		slog.Int("response_size", len(result)),
	)
	return nil
}

func (w *Worker) handleUpstreamError(ctx context.Context, job *domain.Job, upstreamErr error) error {
	if w.onUpstreamError != PolicyFail {
		w.logger.Warn("Inference call failed, job left in bot",
			slog.String("job_id", job.ID),
			slog.Any("error", upstreamErr),
		)
		return nil
	}

	w.logger.Warn("Inference call failed, failing job",
		slog.String("job_id", job.ID),
		slog.Any("error", upstreamErr),
	)
	err := w.transitioner.Apply(ctx, job.ID, domain.StatusBot, domain.StatusFail, domain.Changes{
		Response: []byte(upstreamErr.Error()),
	})
	if err != nil {
		return w.handleTransitionError(job.ID, domain.StatusFail, err)
	}
	return nil
}

// handleTransitionError swallows lost races: someone else already moved
// the job, so this delivery has nothing left to do.
func (w *Worker) handleTransitionError(jobID string, target domain.Status, err error) error {
	if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
		w.logger.Warn("Job changed during processing, result discarded",
			slog.String("job_id", jobID),
			slog.String("target", target.String()),
			slog.Any("error", err),
		)
		return nil
	}
	return fmt.Errorf("failed to update job: %w", err)
}
