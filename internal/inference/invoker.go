// Package inference calls the external inference endpoint for a job.
package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/inference-hitl/internal/domain"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultContentType     = "application/json"
	DefaultMaxResponseSize = 1 << 20 // 1 MiB
)

// ErrResponseTooLarge is returned when the endpoint answers with more than
// MaxResponseSize bytes.
var ErrResponseTooLarge = errors.New("inference response exceeds size limit")

// Config holds the inference endpoint settings.
type Config struct {
	URL             string
	APIKey          string
	Timeout         time.Duration
	ContentType     string
	MaxResponseSize int64
}

// Invoker issues exactly one POST per job. It never retries.
type Invoker struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// NewInvoker creates an Invoker. Zero config fields take their defaults.
func NewInvoker(config Config, logger *slog.Logger) *Invoker {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.ContentType == "" {
		config.ContentType = DefaultContentType
	}
	if config.MaxResponseSize <= 0 {
		config.MaxResponseSize = DefaultMaxResponseSize
	}
	return &Invoker{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

// Invoke posts job.Payload to the endpoint and returns the response body.
// Transport failures and non-2xx answers are returned as *domain.UpstreamError.
func (i *Invoker) Invoke(ctx context.Context, job *domain.Job) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.config.URL, bytes.NewReader(job.Payload))
	if err != nil {
		return nil, &domain.UpstreamError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", i.config.ContentType)
	req.Header.Set("Accept", "application/json")
	if i.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+i.config.APIKey)
	}

	start := time.Now()
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	// one extra byte tells a body of exactly the limit from a larger one
	body, err := io.ReadAll(io.LimitReader(resp.Body, i.config.MaxResponseSize+1))
	if err != nil {
		return nil, &domain.UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	i.logger.Debug("Inference call finished",
		slog.String("job_id", job.ID),
		slog.Int("status_code", resp.StatusCode),
		slog.Int("response_size", len(body)),
		slog.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.UpstreamError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("non-2xx status: %s", snippet(body)),
		}
	}
	if int64(len(body)) > i.config.MaxResponseSize {
		return nil, &domain.UpstreamError{StatusCode: resp.StatusCode, Err: ErrResponseTooLarge}
	}
	return body, nil
}

func snippet(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
