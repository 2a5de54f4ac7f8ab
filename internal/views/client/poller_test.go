package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/lk2023060901/searchview-backend/internal/pkg/logger"
	"github.com/lk2023060901/searchview-backend/internal/views/biz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// scriptedBackend 按顺序返回预设的状态
type scriptedBackend struct {
	mu       sync.Mutex
	statuses []*JobStatus
	polls    int
	err      error
}

func (b *scriptedBackend) Execute(_ context.Context, searchID string, _ map[string]interface{}) (*JobStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return b.statuses[0], nil
}

func (b *scriptedBackend) Status(_ context.Context, jobID string) (*JobStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if b.polls >= len(b.statuses) {
		return nil, errors.New("no more statuses")
	}
	return b.statuses[b.polls], nil
}

type call struct {
	kind       string
	generation int64
	raw        string
	payloads   []string
}

type recordingSink struct {
	mu          sync.Mutex
	generations map[string]int64
	calls       map[string][]call
	applyErr    error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{generations: make(map[string]int64), calls: make(map[string][]call)}
}

func (s *recordingSink) StartSearch(_ context.Context, searchID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[searchID]++
	return s.generations[searchID], nil
}

func (s *recordingSink) ApplyResponse(_ context.Context, searchID string, generation int64, raw []byte) (*biz.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	s.calls[searchID] = append(s.calls[searchID], call{kind: "response", generation: generation, raw: string(raw)})
	return &biz.Snapshot{SearchID: searchID, Generation: generation}, nil
}

func (s *recordingSink) ApplySearchTypes(_ context.Context, searchID string, generation int64, payloads []json.RawMessage) (*biz.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ps []string
	for _, p := range payloads {
		ps = append(ps, string(p))
	}
	s.calls[searchID] = append(s.calls[searchID], call{kind: "search_types", generation: generation, payloads: ps})
	return &biz.Snapshot{SearchID: searchID, Generation: generation}, nil
}

func (s *recordingSink) callsFor(searchID string) []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[searchID]
}

func status(done bool, raw string) *JobStatus {
	return &JobStatus{ID: "job-1", SearchID: "s1", Done: done, Raw: []byte(raw)}
}

func newTestPoller(backend Backend, sink ResultSink) *Poller {
	return NewPoller(backend, sink, testConfig("http://backend.test"), logger.NewNop())
}

func TestPoller_Run(t *testing.T) {
	backend := &scriptedBackend{statuses: []*JobStatus{
		status(false, `{"results":{"q1":{"search_types":{"st1":{"id":"st1","v":0},"st2":{"id":"st2","v":0}}}}}`),
		// 没有变化
		status(false, `{"results":{"q1":{"search_types":{"st1":{"id":"st1","v":0},"st2":{"id":"st2","v":0}}}}}`),
		status(false, `{"results":{"q1":{"search_types":{"st1":{"id":"st1","v":1},"st2":{"id":"st2","v":0}}}}}`),
		// payload 缺少 id 时补上
		status(true, `{"results":{"q1":{"search_types":{"st1":{"id":"st1","v":1},"st2":{"v":2}}}}}`),
	}}
	sink := newRecordingSink()

	snap, err := newTestPoller(backend, sink).Run(context.Background(), "s1", nil)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(1), snap.Generation)

	calls := sink.callsFor("s1")
	require.Len(t, calls, 3)

	assert.Equal(t, "response", calls[0].kind)
	assert.Equal(t, int64(1), calls[0].generation)

	assert.Equal(t, "search_types", calls[1].kind)
	require.Len(t, calls[1].payloads, 1)
	assert.JSONEq(t, `{"id":"st1","v":1}`, calls[1].payloads[0])

	assert.Equal(t, "search_types", calls[2].kind)
	require.Len(t, calls[2].payloads, 1)
	assert.JSONEq(t, `{"id":"st2","v":2}`, calls[2].payloads[0])

	assert.Equal(t, 3, backend.polls)
}

func TestPoller_ReshapeReplacesSnapshot(t *testing.T) {
	backend := &scriptedBackend{statuses: []*JobStatus{
		status(false, `{"results":{"q1":{"search_types":{"st1":{"id":"st1"}}}}}`),
		// 新的查询
		status(false, `{"results":{"q1":{"search_types":{"st1":{"id":"st1"}}},"q2":{"search_types":{"st2":{"id":"st2"}}}}}`),
		// 新的 search type
		status(false, `{"results":{"q1":{"search_types":{"st1":{"id":"st1"},"st3":{"id":"st3"}}},"q2":{"search_types":{"st2":{"id":"st2"}}}}}`),
		// 新的错误
		status(true, `{"results":{"q1":{"search_types":{"st1":{"id":"st1"},"st3":{"id":"st3"}}},"q2":{"search_types":{"st2":{"id":"st2"}}}},"errors":[{"description":"boom","query_id":"q2"}]}`),
	}}
	sink := newRecordingSink()

	_, err := newTestPoller(backend, sink).Run(context.Background(), "s1", nil)
	require.NoError(t, err)

	calls := sink.callsFor("s1")
	require.Len(t, calls, 4)
	for _, c := range calls {
		assert.Equal(t, "response", c.kind)
	}
	assert.Contains(t, calls[3].raw, "boom")
}

func TestPoller_NullSearchTypeBecomesResult(t *testing.T) {
	backend := &scriptedBackend{statuses: []*JobStatus{
		status(false, `{"results":{"q1":{"search_types":{"st1":{"id":"st1"},"st2":null}}}}`),
		// null 变为结果, 需要整体替换
		status(false, `{"results":{"q1":{"search_types":{"st1":{"id":"st1"},"st2":{"id":"st2","v":1}}}}}`),
		status(true, `{"results":{"q1":{"search_types":{"st1":{"id":"st1"},"st2":{"id":"st2","v":2}}}}}`),
	}}
	sink := newRecordingSink()

	_, err := newTestPoller(backend, sink).Run(context.Background(), "s1", nil)
	require.NoError(t, err)

	calls := sink.callsFor("s1")
	require.Len(t, calls, 3)
	assert.Equal(t, "response", calls[0].kind)
	assert.Equal(t, "response", calls[1].kind)
	assert.Equal(t, "search_types", calls[2].kind)
	require.Len(t, calls[2].payloads, 1)
	assert.JSONEq(t, `{"id":"st2","v":2}`, calls[2].payloads[0])
}

func TestPoller_LogsWithJobContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	backend := &scriptedBackend{statuses: []*JobStatus{
		status(false, `{"results":{}}`),
		{ID: "job-1", SearchID: "s1", Done: true, Failed: true, Raw: []byte(`{"results":{}}`)},
	}}

	p := NewPoller(backend, newRecordingSink(), testConfig("http://backend.test"), &logger.Logger{Logger: zap.New(core)})
	_, err := p.Run(context.Background(), "s1", nil)
	require.NoError(t, err)

	started := logs.FilterMessage("search job started").All()
	require.Len(t, started, 1)
	fields := started[0].ContextMap()
	assert.Equal(t, "s1", fields["search_id"])
	assert.Equal(t, "job-1", fields["job_id"])
	assert.Equal(t, int64(1), fields["generation"])

	failed := logs.FilterMessage("search job failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
	assert.Equal(t, "job-1", failed[0].ContextMap()["job_id"])
	assert.Empty(t, logs.FilterMessage("search job finished").All())
}

func TestPoller_StopsWhenSuperseded(t *testing.T) {
	backend := &scriptedBackend{statuses: []*JobStatus{
		status(false, `{"results":{}}`),
		status(true, `{"results":{}}`),
	}}
	sink := newRecordingSink()
	sink.applyErr = fmt.Errorf("%w: 1 (current 2)", biz.ErrStaleGeneration)

	_, err := newTestPoller(backend, sink).Run(context.Background(), "s1", nil)
	assert.ErrorIs(t, err, biz.ErrStaleGeneration)
	assert.Equal(t, 0, backend.polls)
}

func TestPoller_ExecuteError(t *testing.T) {
	boom := errors.New("connection refused")
	backend := &scriptedBackend{err: boom}

	_, err := newTestPoller(backend, newRecordingSink()).Run(context.Background(), "s1", nil)
	assert.ErrorIs(t, err, boom)
}

func TestPoller_PollError(t *testing.T) {
	backend := &scriptedBackend{statuses: []*JobStatus{
		status(false, `{"results":{}}`),
	}}

	snap, err := newTestPoller(backend, newRecordingSink()).Run(context.Background(), "s1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job-1")
	assert.NotNil(t, snap)
}

func TestPoller_ContextCancelled(t *testing.T) {
	backend := &scriptedBackend{statuses: []*JobStatus{
		status(false, `{"results":{}}`),
		status(false, `{"results":{}}`),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPoller(backend, newRecordingSink()).Follow(ctx, "s1", 1, nil)
	assert.Error(t, err)
}

// backendServer 每个搜索第一次轮询即完成
func backendServer(t *testing.T, failing string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		switch {
		case strings.HasSuffix(r.URL.Path, "/execute"):
			searchID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/views/search/"), "/execute")
			if searchID == failing {
				http.Error(w, "bad search", http.StatusBadRequest)
				return
			}
			fmt.Fprintf(w, `{"id":"job-%s","search_id":%q,"execution":{"done":false},"results":{"q1":{"search_types":{}}}}`, searchID, searchID)
		case strings.HasPrefix(r.URL.Path, "/api/views/search/status/"):
			jobID := strings.TrimPrefix(r.URL.Path, "/api/views/search/status/")
			fmt.Fprintf(w, `{"id":%q,"execution":{"done":true},"results":{"q1":{"search_types":{"st1":{"id":"st1","v":1}}}}}`, jobID)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestPoller_RunMany(t *testing.T) {
	server, requests := backendServer(t, "")

	c, err := NewClient(testConfig(server.URL), logger.NewNop())
	require.NoError(t, err)
	sink := newRecordingSink()
	poller := NewPoller(c, sink, testConfig(server.URL), logger.NewNop())

	snapshots, err := poller.RunMany(context.Background(), []Request{
		{SearchID: "s1"},
		{SearchID: "s2"},
		{SearchID: "s3"},
	})
	require.NoError(t, err)
	assert.Len(t, snapshots, 3)
	assert.Equal(t, int32(6), requests.Load())

	for _, id := range []string{"s1", "s2", "s3"} {
		calls := sink.callsFor(id)
		require.Len(t, calls, 2, id)
		assert.Equal(t, "response", calls[0].kind)
		// 新增的 search type 需要整体替换
		assert.Equal(t, "response", calls[1].kind)
	}
}

func TestPoller_RunManyFailure(t *testing.T) {
	server, _ := backendServer(t, "s2")

	c, err := NewClient(testConfig(server.URL), logger.NewNop())
	require.NoError(t, err)
	poller := NewPoller(c, newRecordingSink(), testConfig(server.URL), logger.NewNop())

	_, err = poller.RunMany(context.Background(), []Request{{SearchID: "s1"}, {SearchID: "s2"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search s2")
}
