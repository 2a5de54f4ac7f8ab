// Package client talks to the search backend: it starts search executions,
// fetches job status documents and feeds their results into the lineage.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lk2023060901/searchview-backend/internal/pkg/logger"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

const maxErrorBody = 4 << 10

// JobStatus is one status document of a search job.
type JobStatus struct {
	ID        string
	SearchID  string
	Done      bool
	Cancelled bool
	Failed    bool
	// Raw is the {"results", "errors"} document of the job so far.
	Raw []byte
}

// Client REST client for the search backend
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new backend client
func NewClient(cfg *Config, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: log.Named("backend"),
	}, nil
}

// Execute starts an execution of searchID. params 为参数绑定, 可以为空
func (c *Client) Execute(ctx context.Context, searchID string, params map[string]interface{}) (*JobStatus, error) {
	if searchID == "" {
		return nil, ErrSearchIDRequired
	}

	body := []byte(`{}`)
	if len(params) > 0 {
		encoded, err := json.Marshal(map[string]interface{}{"parameter_bindings": params})
		if err != nil {
			return nil, fmt.Errorf("failed to encode execution parameters: %w", err)
		}
		body = encoded
	}

	data, err := c.do(ctx, http.MethodPost, "/api/views/search/"+url.PathEscape(searchID)+"/execute", body)
	if err != nil {
		return nil, err
	}
	return parseJobStatus(data)
}

// Status fetches the current status of a job
func (c *Client) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	if jobID == "" {
		return nil, ErrJobIDRequired
	}

	data, err := c.do(ctx, http.MethodGet, "/api/views/search/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	return parseJobStatus(data)
}

// do executes a request with retry logic. 传输错误, 5xx 和 429 会重试
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path

	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := c.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			c.logger.Debug("retrying backend request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		data, err := c.once(ctx, method, endpoint, path, body)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var be *BackendError
		if errors.As(err, &be) && !be.Temporary() {
			return nil, be
		}
	}

	c.logger.Warn("backend request failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("attempts", c.config.MaxRetries),
		zap.Error(lastErr))
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.config.MaxRetries, lastErr)
}

func (c *Client) once(ctx context.Context, method, endpoint, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID := logger.GetRequestID(ctx); requestID != "" {
		req.Header.Set(logger.RequestIDHeader, requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &BackendError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    errorMessage(msg),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}

// errorMessage 优先取 JSON 中的 message 字段
func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "message"); msg.Exists() {
			return msg.String()
		}
	}
	return strings.TrimSpace(string(body))
}

func parseJobStatus(data []byte) (*JobStatus, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidStatus)
	}
	doc := gjson.ParseBytes(data)

	status := &JobStatus{
		ID:        doc.Get("id").String(),
		SearchID:  doc.Get("search_id").String(),
		Done:      doc.Get("execution.done").Bool(),
		Cancelled: doc.Get("execution.cancelled").Bool(),
		Failed:    doc.Get("execution.completed_exceptionally").Bool(),
	}
	if status.ID == "" {
		return nil, fmt.Errorf("%w: missing job id", ErrInvalidStatus)
	}

	raw := []byte(`{}`)
	for _, member := range []string{"results", "errors"} {
		v := doc.Get(member)
		if !v.Exists() {
			continue
		}
		next, err := sjson.SetRawBytes(raw, member, []byte(v.Raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStatus, err)
		}
		raw = next
	}
	status.Raw = raw
	return status, nil
}
