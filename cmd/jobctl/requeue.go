package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/inference-hitl/internal/bootstrap"
	"github.com/cuongbtq/inference-hitl/internal/domain"
	"github.com/cuongbtq/inference-hitl/internal/queue"
	"github.com/spf13/cobra"
)

const defaultRequeueLimit = 100

// staleLister is the part of the job store requeue reads from.
type staleLister interface {
	ListStale(ctx context.Context, status domain.Status, before time.Time, limit int) ([]domain.Job, error)
}

// requeueStale re-publishes the ids of bot jobs not updated since
// now-olderThan and returns the ids it published. It stops at the first
// publish failure.
func requeueStale(ctx context.Context, store staleLister, publisher queue.Publisher, logger *slog.Logger, olderThan time.Duration, limit int, now time.Time) ([]string, error) {
	if olderThan <= 0 {
		return nil, fmt.Errorf("older-than must be positive, got %s", olderThan)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	jobs, err := store.ListStale(ctx, domain.StatusBot, now.Add(-olderThan), limit)
	if err != nil {
		return nil, err
	}

	published := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if err := publisher.Publish(ctx, job.ID); err != nil {
			return published, fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
		}
		logger.Info("Job requeued",
			slog.String("job_id", job.ID),
			slog.Time("updated_at", job.UpdatedAt),
		)
		published = append(published, job.ID)
	}
	return published, nil
}

func newRequeueCmd(a *app) *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Re-publish bot jobs that have not moved for a while",
		Long: "Lists jobs still in status bot whose updated_at is older than --older-than\n" +
			"and publishes their ids again. Re-publishing a job that still has a\n" +
			"pending message is harmless: the worker skips jobs that left bot.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, conn, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			broker, err := bootstrap.InitBroker(ctx, a.cfg, "jobctl", a.logger.Logger)
			if err != nil {
				return fmt.Errorf("failed to initialize broker: %w", err)
			}
			defer broker.Close()

			ids, err := requeueStale(ctx, store, broker, a.logger.Logger, olderThan, limit, time.Now())
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 10*time.Minute, "Minimum time since the job was last updated")
	cmd.Flags().IntVar(&limit, "limit", defaultRequeueLimit, "Maximum number of jobs to requeue")
	return cmd
}
