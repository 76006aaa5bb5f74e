package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/inference-hitl/internal/domain"
)

type EnqueueResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

type ListJobsRequest struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
	Cursor string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	Limit      int      `json:"limit"`
	Offset     int      `json:"offset"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type ReviewJobRequest struct {
	ID       string          `json:"id" binding:"required"`
	Status   string          `json:"status" binding:"required"`
	Payload  json.RawMessage `json:"payload"`
	Response json.RawMessage `json:"response"`
}

type JobDTO struct {
	JobID     string          `json:"job_id"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	Response  json.RawMessage `json:"response"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewJobDTO renders a job. Payload and response are embedded as JSON when
// they hold valid JSON and as a string otherwise; a missing response is null.
func NewJobDTO(job *domain.Job) JobDTO {
	return JobDTO{
		JobID:     job.ID,
		Status:    job.Status.String(),
		Payload:   rawOrString(job.Payload),
		Response:  rawOrString(job.Response),
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func rawOrString(b []byte) json.RawMessage {
	if b == nil {
		return json.RawMessage("null")
	}
	if len(b) > 0 && json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}

// Bytes returns the raw bytes of an optional JSON field; absent and null
// both mean "leave unchanged".
func Bytes(raw json.RawMessage) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return []byte(raw)
}
