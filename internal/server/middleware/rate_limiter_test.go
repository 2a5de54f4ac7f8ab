package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/searchview-backend/internal/pkg/errors"
	"github.com/lk2023060901/searchview-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRunner 用计数模拟滑动窗口脚本
type countingRunner struct {
	mu     sync.Mutex
	counts map[string]int64
	keys   []string
	err    error
}

func (r *countingRunner) Eval(_ context.Context, _ string, keys []string, args ...interface{}) (interface{}, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keys[0]
	r.keys = append(r.keys, key)
	now := args[0].(int64)
	window := int64(args[1].(int))
	limit := int64(args[2].(int))

	if r.counts[key] < limit {
		r.counts[key]++
		return []interface{}{int64(1), limit - r.counts[key], now + window}, nil
	}
	return []interface{}{int64(0), int64(0), now + window}, nil
}

func newRouter(runner ScriptRunner, cfg RateLimiterConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api", RateLimiter(runner, cfg, logger.NewNop()))
	api.GET("/searches/:id/result", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRateLimiter_LimitsPerIP(t *testing.T) {
	runner := &countingRunner{counts: map[string]int64{}}
	r := newRouter(runner, RateLimiterConfig{MaxRequests: 2, WindowSeconds: 30})

	w := get(r, "/api/searches/s1/result")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, get(r, "/api/searches/s2/result").Code)

	w = get(r, "/api/searches/s3/result")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"code":`+strconv.Itoa(apperrors.ErrTooManyRequests))
}

func TestRateLimiter_SearchStrategy(t *testing.T) {
	runner := &countingRunner{counts: map[string]int64{}}
	r := newRouter(runner, RateLimiterConfig{MaxRequests: 1, WindowSeconds: 60, Strategy: "search"})

	assert.Equal(t, http.StatusOK, get(r, "/api/searches/s1/result").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/searches/s2/result").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/api/searches/s1/result").Code)

	require.Len(t, runner.keys, 3)
	assert.Equal(t, "rate_limit:search:s1", runner.keys[0])
	assert.Equal(t, "rate_limit:search:s2", runner.keys[1])
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	runner := &countingRunner{err: errors.New("redis down")}
	r := newRouter(runner, RateLimiterConfig{MaxRequests: 1})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(r, "/api/searches/s1/result").Code)
	}
}

func TestBuildRateLimitKey_Endpoint(t *testing.T) {
	runner := &countingRunner{counts: map[string]int64{}}
	r := newRouter(runner, RateLimiterConfig{Strategy: "endpoint"})

	get(r, "/api/searches/s1/result")
	require.Len(t, runner.keys, 1)
	assert.Equal(t, "rate_limit:endpoint:/api/searches/:id/result:192.0.2.1", runner.keys[0])
}
