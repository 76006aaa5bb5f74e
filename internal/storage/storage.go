package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/inference-hitl/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/segmentio/ksuid"
)

const (
	// DefaultIDAttempts bounds how many fresh ids Create tries before giving up.
	DefaultIDAttempts = 5

	jobColumns = "job_id, status, payload, response, created_at, updated_at"
)

// Storage is the JobStore: every read and write of inference_jobs goes
// through it.
type Storage struct {
	db         *sqlx.DB
	logger     *slog.Logger
	newID      func() string
	now        func() time.Time
	idAttempts int
}

// Option customises a Storage.
type Option func(*Storage)

// WithIDGenerator replaces the ksuid-based id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Storage) {
		s.newID = fn
	}
}

// WithClock replaces time.Now for created_at / updated_at.
func WithClock(fn func() time.Time) Option {
	return func(s *Storage) {
		s.now = fn
	}
}

// WithIDAttempts sets how many ids Create tries on collision.
func WithIDAttempts(n int) Option {
	return func(s *Storage) {
		if n > 0 {
			s.idAttempts = n
		}
	}
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger, opts ...Option) *Storage {
	s := &Storage{
		db:         db,
		logger:     logger,
		newID:      NewJobID,
		now:        time.Now,
		idAttempts: DefaultIDAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewJobID returns a fresh 27 character base62 job id.
func NewJobID() string {
	return ksuid.New().String()
}

func (s *Storage) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// CreateJob inserts a new job in status bot and returns its id.
//
// The insert relies on the job_id primary key: a colliding id inserts
// nothing, and a new id is drawn up to idAttempts times.
func (s *Storage) CreateJob(ctx context.Context, payload []byte) (string, error) {
	if payload == nil {
		payload = []byte{}
	}

	query := s.db.Rebind(`
		INSERT INTO inference_jobs (job_id, status, payload, response, created_at, updated_at)
		VALUES (?, ?, ?, NULL, ?, ?)
		ON CONFLICT (job_id) DO NOTHING
	`)

	for attempt := 1; attempt <= s.idAttempts; attempt++ {
		jobID := s.newID()
		now := s.timestamp()

		result, err := s.db.ExecContext(ctx, query, jobID, domain.StatusBot, payload, now, now)
		if err != nil {
			return "", domain.NewStoreError("create", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return "", domain.NewStoreError("create", fmt.Errorf("failed to get rows affected: %w", err))
		}
		if rowsAffected == 1 {
			s.logger.Debug("Job created",
				slog.String("job_id", jobID),
				slog.Int("payload_size", len(payload)),
			)
			return jobID, nil
		}

		s.logger.Warn("Job id collision, regenerating",
			slog.String("job_id", jobID),
			slog.Int("attempt", attempt),
		)
	}

	return "", domain.NewStoreError("create", fmt.Errorf("no unique job id after %d attempts", s.idAttempts))
}

// GetJobByID retrieves a job by its id.
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM inference_jobs WHERE job_id = ?`)

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, jobID)
		}
		return nil, domain.NewStoreError("fetch", err)
	}
	return &job, nil
}

// UpdateIf moves job jobID from expected to next, applying changes, only
// when the stored status still equals expected. It returns the number of
// rows changed: 0 means the precondition failed or the job does not exist.
func (s *Storage) UpdateIf(ctx context.Context, jobID string, expected, next domain.Status, changes domain.Changes) (int64, error) {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{next, s.timestamp()}

	if changes.Payload != nil {
		sets = append(sets, "payload = ?")
		args = append(args, changes.Payload)
	}
	if changes.Response != nil {
		sets = append(sets, "response = ?")
		args = append(args, changes.Response)
	}
	args = append(args, jobID, expected)

	query := s.db.Rebind(fmt.Sprintf(
		`UPDATE inference_jobs SET %s WHERE job_id = ? AND status = ?`,
		strings.Join(sets, ", "),
	))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, domain.NewStoreError("update", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, domain.NewStoreError("update", fmt.Errorf("failed to get rows affected: %w", err))
	}

	if rowsAffected == 0 {
		s.logger.Debug("Guarded update matched no rows",
			slog.String("job_id", jobID),
			slog.String("expected_status", expected.String()),
			slog.String("next_status", next.String()),
		)
	}
	return rowsAffected, nil
}

// ListJobs returns a page of jobs ordered by created_at, job_id ascending.
func (s *Storage) ListJobs(ctx context.Context, filter domain.ListFilter) ([]domain.Job, error) {
	if filter.Limit <= 0 {
		return nil, fmt.Errorf("list limit must be positive, got %d", filter.Limit)
	}

	query := `SELECT ` + jobColumns + ` FROM inference_jobs WHERE 1=1`
	args := []interface{}{}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}

	if filter.After != nil {
		query += " AND (created_at, job_id) > (?, ?)"
		args = append(args, filter.After.CreatedAt.UTC(), filter.After.JobID)
	}

	query += " ORDER BY created_at ASC, job_id ASC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	jobs := []domain.Job{}
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...); err != nil {
		return nil, domain.NewStoreError("list", err)
	}
	return jobs, nil
}

// ListStale returns jobs in status whose updated_at is older than before,
// oldest first.
func (s *Storage) ListStale(ctx context.Context, status domain.Status, before time.Time, limit int) ([]domain.Job, error) {
	query := s.db.Rebind(`
		SELECT ` + jobColumns + `
		FROM inference_jobs
		WHERE status = ? AND updated_at < ?
		ORDER BY updated_at ASC, job_id ASC
		LIMIT ?
	`)

	jobs := []domain.Job{}
	if err := s.db.SelectContext(ctx, &jobs, query, status, before.UTC(), limit); err != nil {
		return nil, domain.NewStoreError("list stale", err)
	}
	return jobs, nil
}
