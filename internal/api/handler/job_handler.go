package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/inference-hitl/internal/api/dto"
	"github.com/cuongbtq/inference-hitl/internal/api/service"
	"github.com/cuongbtq/inference-hitl/internal/domain"
	"github.com/gin-gonic/gin"
)

// Enqueue handles POST /enqueue
// The request body is stored verbatim as the job payload.
func (h *JobHandler) Enqueue(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	payload, err := c.GetRawData()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: "Payload too large"})
			return
		}
		h.logger.Error("Failed to read request body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	jobID, err := h.jobs.Enqueue(c.Request.Context(), payload)
	if err != nil {
		h.respondError(c, err, "Failed to enqueue job")
		return
	}

	c.JSON(http.StatusOK, dto.EnqueueResponse{
		Status: "success",
		JobID:  jobID,
	})
}

// GetJob handles GET /job?id=<job_id>
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Query("id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "id is required"})
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		h.respondError(c, err, "Failed to get job")
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// ListJobs handles GET /jobs?status=&limit=&offset=&cursor=
// Jobs are ordered by created_at ascending. next_cursor is set when the
// page is full.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Debug("Invalid query parameters", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Debug("Invalid cursor", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}

	jobs, limit, err := h.jobs.List(c.Request.Context(), service.ListParams{
		Status: req.Status,
		Limit:  req.Limit,
		Offset: req.Offset,
		After:  cursor,
	})
	if err != nil {
		h.respondError(c, err, "Failed to list jobs")
		return
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = dto.NewJobDTO(&jobs[i])
	}

	var nextCursor string
	if len(jobs) == limit {
		nextCursor = EncodeJobCursor(&jobs[len(jobs)-1])
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		Limit:      limit,
		Offset:     req.Offset,
		NextCursor: nextCursor,
	})
}

// ReviewJob handles POST /reviewJob
// Only jobs currently in human can be reviewed; anything else is a 404.
func (h *JobHandler) ReviewJob(c *gin.Context) {
	var req dto.ReviewJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	job, err := h.jobs.Review(c.Request.Context(), service.Review{
		JobID:    req.ID,
		Status:   req.Status,
		Payload:  dto.Bytes(req.Payload),
		Response: dto.Bytes(req.Response),
	})
	if err != nil {
		h.respondError(c, err, "Failed to review job")
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// respondError maps err to a status code. Only client errors echo a
// message; everything else is logged and answered with fallback.
func (h *JobHandler) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict):
		h.logger.Debug("Job not found or not in expected status",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Job not found"})

	case errors.Is(err, domain.ErrInvalidJobID):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid job id"})

	case errors.Is(err, domain.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid status"})

	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid status transition"})

	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})

	default:
		h.logger.Error(fallback,
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: fallback})
	}
}
