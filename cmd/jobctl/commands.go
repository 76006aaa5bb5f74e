package main

import (
	"fmt"
	"log/slog"

	"github.com/cuongbtq/inference-hitl/internal/api/service"
	"github.com/cuongbtq/inference-hitl/internal/domain"
	"github.com/cuongbtq/inference-hitl/internal/storage"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the inference_jobs schema if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, conn, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := storage.Migrate(ctx, conn.GetDB(), conn.Dialect()); err != nil {
				return err
			}

			a.logger.Info("Schema migrated", slog.String("dialect", conn.Dialect()))
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Print a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]
			if !domain.ValidJobID(jobID) {
				return fmt.Errorf("%w: %q", domain.ErrInvalidJobID, jobID)
			}

			ctx := cmd.Context()
			store, conn, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			job, err := store.GetJobByID(ctx, jobID)
			if err != nil {
				return err
			}
			return printJob(cmd.OutOrStdout(), job)
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var (
		status string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print a page of jobs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.ListFilter{Limit: limit, Offset: offset}
			if status != "" {
				s, err := domain.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = &s
			}
			if filter.Limit <= 0 || filter.Limit > service.MaxListLimit {
				return fmt.Errorf("limit must be between 1 and %d", service.MaxListLimit)
			}
			if filter.Offset < 0 {
				return fmt.Errorf("offset must not be negative")
			}

			ctx := cmd.Context()
			store, conn, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			jobs, err := store.ListJobs(ctx, filter)
			if err != nil {
				return err
			}
			return printJobList(cmd.OutOrStdout(), jobs)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only jobs in this status (bot, human, success, fail)")
	cmd.Flags().IntVar(&limit, "limit", service.DefaultListLimit, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}
