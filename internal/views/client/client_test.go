package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lk2023060901/searchview-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) *Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.RetryBackoff = time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.PollBurst = 1
	cfg.PollTimeout = 5 * time.Second
	return cfg
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(testConfig(server.URL), logger.NewNop())
	require.NoError(t, err)
	return c
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "default", mutate: func(c *Config) {}},
		{name: "empty base url", mutate: func(c *Config) { c.BaseURL = "" }, wantErr: true},
		{name: "relative base url", mutate: func(c *Config) { c.BaseURL = "/api" }, wantErr: true},
		{name: "no attempts", mutate: func(c *Config) { c.MaxRetries = 0 }, wantErr: true},
		{name: "no poll interval", mutate: func(c *Config) { c.PollInterval = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClient_Execute(t *testing.T) {
	var body map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/views/search/s1/execute", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "req-1", r.Header.Get(logger.RequestIDHeader))

		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)

		_, _ = w.Write([]byte(`{
			"id": "job-1",
			"search_id": "s1",
			"owner": "admin",
			"execution": {"done": false, "cancelled": false, "completed_exceptionally": false},
			"results": {"q1": {"search_types": {"st1": {"id": "st1"}}}},
			"errors": []
		}`))
	})

	ctx := logger.WithRequestID(context.Background(), "req-1")
	status, err := c.Execute(ctx, "s1", map[string]interface{}{"source": "web"})
	require.NoError(t, err)

	assert.Equal(t, "job-1", status.ID)
	assert.Equal(t, "s1", status.SearchID)
	assert.False(t, status.Done)
	assert.JSONEq(t, `{"results":{"q1":{"search_types":{"st1":{"id":"st1"}}}},"errors":[]}`, string(status.Raw))
	assert.Equal(t, map[string]interface{}{"parameter_bindings": map[string]interface{}{"source": "web"}}, body)

	_, err = c.Execute(ctx, "", nil)
	assert.ErrorIs(t, err, ErrSearchIDRequired)
}

func TestClient_Status(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/views/search/status/job-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"job-1","execution":{"done":true,"completed_exceptionally":true}}`))
	})

	status, err := c.Status(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, status.Done)
	assert.True(t, status.Failed)
	assert.False(t, status.Cancelled)
	assert.JSONEq(t, `{}`, string(status.Raw))

	_, err = c.Status(context.Background(), "")
	assert.ErrorIs(t, err, ErrJobIDRequired)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"job-1","execution":{"done":true}}`))
	})

	status, err := c.Status(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", status.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUp(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"type":"ApiError","message":"elasticsearch unreachable"}`))
	})

	_, err := c.Status(context.Background(), "job-1")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusBadGateway, be.StatusCode)
	assert.Equal(t, "elasticsearch unreachable", be.Message)
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "search not found", http.StatusNotFound)
	})

	_, err := c.Execute(context.Background(), "s1", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "search not found")
}

func TestClient_InvalidStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"execution":{"done":true}}`))
	})

	_, err := c.Status(context.Background(), "job-1")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestBackendError_Temporary(t *testing.T) {
	assert.True(t, (&BackendError{StatusCode: 500}).Temporary())
	assert.True(t, (&BackendError{StatusCode: 429}).Temporary())
	assert.False(t, (&BackendError{StatusCode: 400}).Temporary())
	assert.False(t, IsNotFound(nil))
}
