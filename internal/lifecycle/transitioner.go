// Package lifecycle applies job status transitions through guarded updates.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/inference-hitl/internal/domain"
)

// Store is the part of the job store the transitioner needs.
type Store interface {
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	UpdateIf(ctx context.Context, jobID string, expected, next domain.Status, changes domain.Changes) (int64, error)
}

// Transitioner enforces the transition table. A guarded update that
// changes no row is always reported, never ignored.
type Transitioner struct {
	store  Store
	logger *slog.Logger
}

// NewTransitioner creates a Transitioner over store.
func NewTransitioner(store Store, logger *slog.Logger) *Transitioner {
	return &Transitioner{store: store, logger: logger}
}

// Apply moves job jobID from `from` to `to`, writing changes in the same
// update. Errors:
//   - domain.ErrInvalidTransition when from -> to is not in the table
//   - domain.ErrNotFound when the job does not exist
//   - domain.ErrConflict when the job exists but is no longer in `from`
//   - *domain.StoreError on persistence failure
func (t *Transitioner) Apply(ctx context.Context, jobID string, from, to domain.Status, changes domain.Changes) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	rows, err := t.store.UpdateIf(ctx, jobID, from, to, changes)
	if err != nil {
		return err
	}
	if rows == 1 {
		t.logger.Info("Job status changed",
			slog.String("job_id", jobID),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		return nil
	}

	// Zero rows: tell a missing job from a stale precondition.
	current, err := t.store.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	t.logger.Warn("Job status precondition failed",
		slog.String("job_id", jobID),
		slog.String("expected", from.String()),
		slog.String("actual", current.Status.String()),
		slog.String("target", to.String()),
	)
	return fmt.Errorf("%w: job %s is %s, expected %s", domain.ErrConflict, jobID, current.Status, from)
}
