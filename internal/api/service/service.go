// Package service holds the API use cases: enqueue, get, list and review.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/inference-hitl/internal/domain"
	"github.com/cuongbtq/inference-hitl/internal/queue"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ErrInvalidInput marks request validation failures.
var ErrInvalidInput = errors.New("invalid input")

// Store is the job store as seen by the API.
type Store interface {
	CreateJob(ctx context.Context, payload []byte) (string, error)
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter domain.ListFilter) ([]domain.Job, error)
}

// Transitioner applies guarded status changes.
type Transitioner interface {
	Apply(ctx context.Context, jobID string, from, to domain.Status, changes domain.Changes) error
}

// JobService implements the HTTP-facing job operations.
type JobService struct {
	store        Store
	transitioner Transitioner
	publisher    queue.Publisher
	logger       *slog.Logger
}

// NewJobService creates a JobService.
func NewJobService(store Store, transitioner Transitioner, publisher queue.Publisher, logger *slog.Logger) *JobService {
	return &JobService{
		store:        store,
		transitioner: transitioner,
		publisher:    publisher,
		logger:       logger,
	}
}

// Enqueue persists payload as a new bot job and publishes its id.
//
// When the publish fails the row stays in bot without a message and the
// error is returned; `jobctl requeue` picks such jobs up.
func (s *JobService) Enqueue(ctx context.Context, payload []byte) (string, error) {
	jobID, err := s.store.CreateJob(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.publisher.Publish(ctx, jobID); err != nil {
		s.logger.Error("Job persisted but not published",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return jobID, fmt.Errorf("failed to publish job: %w", err)
	}

	s.logger.Info("Job enqueued",
		slog.String("job_id", jobID),
		slog.Int("payload_size", len(payload)),
	)
	return jobID, nil
}

// Get returns the job with the given id.
func (s *JobService) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	if !domain.ValidJobID(jobID) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidJobID, jobID)
	}
	return s.store.GetJobByID(ctx, jobID)
}

// ListParams are the raw list query parameters. A zero Limit means
// DefaultListLimit; larger limits are capped at MaxListLimit.
type ListParams struct {
	Status string
	Limit  int
	Offset int
	After  *domain.Cursor
}

// List returns one page of jobs ordered by created_at, job_id.
func (s *JobService) List(ctx context.Context, params ListParams) ([]domain.Job, int, error) {
	if params.Offset < 0 {
		return nil, 0, fmt.Errorf("%w: offset must not be negative", ErrInvalidInput)
	}
	if params.Limit < 0 {
		return nil, 0, fmt.Errorf("%w: limit must not be negative", ErrInvalidInput)
	}

	limit := params.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	filter := domain.ListFilter{
		Limit:  limit,
		Offset: params.Offset,
		After:  params.After,
	}
	if params.Status != "" {
		status, err := domain.ParseStatus(params.Status)
		if err != nil {
			return nil, 0, err
		}
		filter.Status = &status
	}

	jobs, err := s.store.ListJobs(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, limit, nil
}

// Review is a reviewer decision on a job waiting in human.
type Review struct {
	JobID    string
	Status   string
	Payload  []byte // nil keeps the stored payload
	Response []byte // nil keeps the stored response
}

// Review applies a human -> status transition. Sending the job back to bot
// re-publishes its id so the worker runs inference again.
//
// A job that is not currently in human yields domain.ErrConflict, or
// domain.ErrNotFound when it does not exist.
func (s *JobService) Review(ctx context.Context, review Review) (*domain.Job, error) {
	if !domain.ValidJobID(review.JobID) {
		return nil, fmt.Errorf("%w: %q", domain.ErrNotFound, review.JobID)
	}

	target, err := domain.ParseStatus(review.Status)
	if err != nil {
		return nil, err
	}

	err = s.transitioner.Apply(ctx, review.JobID, domain.StatusHuman, target, domain.Changes{
		Payload:  review.Payload,
		Response: review.Response,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Job reviewed",
		slog.String("job_id", review.JobID),
		slog.String("status", target.String()),
	)

	if target == domain.StatusBot {
		if err := s.publisher.Publish(ctx, review.JobID); err != nil {
			s.logger.Error("Job sent back to bot but not published",
				slog.String("job_id", review.JobID),
				slog.Any("error", err),
			)
			return nil, fmt.Errorf("failed to publish job: %w", err)
		}
	}

	return s.store.GetJobByID(ctx, review.JobID)
}
