package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSearchIDRequired 搜索ID必填
	ErrSearchIDRequired = errors.New("search id is required")

	// ErrJobIDRequired 任务ID必填
	ErrJobIDRequired = errors.New("job id is required")

	// ErrInvalidStatus 后端返回的任务状态无法解析
	ErrInvalidStatus = errors.New("invalid job status from backend")
)

// BackendError is a non-2xx answer of the search backend.
type BackendError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend %s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
}

// Temporary reports whether the request may succeed when retried.
func (e *BackendError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// IsNotFound 判断是否 404
func IsNotFound(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.StatusCode == http.StatusNotFound
}
