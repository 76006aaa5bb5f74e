package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/inference-hitl/internal/api/service"
	"github.com/cuongbtq/inference-hitl/internal/domain"
)

// DefaultMaxBodyBytes caps the /enqueue request body.
const DefaultMaxBodyBytes = 1 << 20

// JobService is the use-case layer the handlers call.
type JobService interface {
	Enqueue(ctx context.Context, payload []byte) (string, error)
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	List(ctx context.Context, params service.ListParams) ([]domain.Job, int, error)
	Review(ctx context.Context, review service.Review) (*domain.Job, error)
}

// HealthChecker is anything /health should check.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Jobs         JobService
	Checks       map[string]HealthChecker
	ServiceName  string
	MaxBodyBytes int64
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger       *slog.Logger
	jobs         JobService
	maxBodyBytes int64
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &JobHandler{
		logger:       deps.Logger,
		jobs:         deps.Jobs,
		maxBodyBytes: maxBody,
	}
}
