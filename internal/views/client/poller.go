package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/lk2023060901/searchview-backend/internal/pkg/logger"
	"github.com/lk2023060901/searchview-backend/internal/views/biz"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Backend is the part of *Client the poller drives.
type Backend interface {
	Execute(ctx context.Context, searchID string, params map[string]interface{}) (*JobStatus, error)
	Status(ctx context.Context, jobID string) (*JobStatus, error)
}

// ResultSink receives the results of a polled search; *biz.SearchUseCase.
type ResultSink interface {
	StartSearch(ctx context.Context, searchID string) (int64, error)
	ApplyResponse(ctx context.Context, searchID string, generation int64, raw []byte) (*biz.Snapshot, error)
	ApplySearchTypes(ctx context.Context, searchID string, generation int64, payloads []json.RawMessage) (*biz.Snapshot, error)
}

// Request is one search to execute in RunMany.
type Request struct {
	SearchID string
	Params   map[string]interface{}
}

// Poller executes searches on the backend and follows their jobs until done.
// All searches share one rate limiter, which bounds the status polls sent to
// the backend.
type Poller struct {
	backend Backend
	sink    ResultSink
	limiter *rate.Limiter
	config  *Config
	logger  *logger.Logger
}

// NewPoller creates a new poller
func NewPoller(backend Backend, sink ResultSink, cfg *Config, log *logger.Logger) *Poller {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	burst := cfg.PollBurst
	if burst < 1 {
		burst = 1
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Poller{
		backend: backend,
		sink:    sink,
		limiter: rate.NewLimiter(rate.Every(cfg.PollInterval), burst),
		config:  cfg,
		logger:  log.Named("poller"),
	}
}

// Start begins a new generation of searchID.
func (p *Poller) Start(ctx context.Context, searchID string) (int64, error) {
	return p.sink.StartSearch(ctx, searchID)
}

// Run starts a new generation and follows it to completion.
func (p *Poller) Run(ctx context.Context, searchID string, params map[string]interface{}) (*biz.Snapshot, error) {
	generation, err := p.Start(ctx, searchID)
	if err != nil {
		return nil, err
	}
	return p.Follow(ctx, searchID, generation, params)
}

// Follow executes searchID on the backend and applies every status of the job
// to the given generation. The first status replaces the snapshot; later ones
// only send the search types whose payload changed. A status that adds
// queries or changes the error list replaces the snapshot again. Following
// stops when the job is done, ctx ends, or the generation is superseded.
func (p *Poller) Follow(ctx context.Context, searchID string, generation int64, params map[string]interface{}) (*biz.Snapshot, error) {
	if p.config.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.PollTimeout)
		defer cancel()
	}

	ctx = logger.WithSearchID(ctx, searchID)
	ctx = logger.ToContext(ctx, p.logger.With(zap.Int64("generation", generation)))

	status, err := p.backend.Execute(ctx, searchID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	jobID := status.ID
	ctx = logger.WithJobID(ctx, jobID)
	logger.InfoContext(ctx, "search job started")

	var (
		snap  *biz.Snapshot
		state *jobState
		polls int
	)
	for {
		next := newJobState(status.Raw)
		switch {
		case state == nil || !state.sameShape(next):
			snap, err = p.sink.ApplyResponse(ctx, searchID, generation, status.Raw)
		default:
			if changed := state.changed(next); len(changed) > 0 {
				snap, err = p.sink.ApplySearchTypes(ctx, searchID, generation, changed)
			}
		}
		if err != nil {
			if errors.Is(err, biz.ErrStaleGeneration) {
				logger.InfoContext(ctx, "search superseded, stop polling")
			}
			return snap, err
		}
		state = next

		if status.Done {
			if status.Failed {
				logger.WarnContext(ctx, "search job failed", zap.Int("polls", polls))
			} else {
				logger.InfoContext(ctx, "search job finished",
					zap.Int("polls", polls),
					zap.Bool("cancelled", status.Cancelled))
			}
			return snap, nil
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return snap, err
		}
		polls++

		status, err = p.backend.Status(ctx, jobID)
		if err != nil {
			return snap, fmt.Errorf("failed to poll job %s: %w", jobID, err)
		}
	}
}

// RunMany runs several searches concurrently. A superseded search is not an
// error; any other failure cancels the remaining searches.
func (p *Poller) RunMany(ctx context.Context, requests []Request) (map[string]*biz.Snapshot, error) {
	var mu sync.Mutex
	snapshots := make(map[string]*biz.Snapshot, len(requests))

	g, ctx := errgroup.WithContext(ctx)
	if p.config.Concurrency > 0 {
		g.SetLimit(p.config.Concurrency)
	}

	for _, req := range requests {
		g.Go(func() error {
			snap, err := p.Run(ctx, req.SearchID, req.Params)
			if errors.Is(err, biz.ErrStaleGeneration) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("search %s: %w", req.SearchID, err)
			}

			mu.Lock()
			snapshots[req.SearchID] = snap
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return snapshots, err
	}
	return snapshots, nil
}

// jobState 记录上一次状态中每个 search type 的原始数据
type jobState struct {
	queries     []string
	errors      string
	searchTypes map[string]string
	order       []string
}

func newJobState(raw []byte) *jobState {
	s := &jobState{searchTypes: make(map[string]string)}

	gjson.GetBytes(raw, "results").ForEach(func(queryID, query gjson.Result) bool {
		s.queries = append(s.queries, queryID.String())
		query.Get("search_types").ForEach(func(id, payload gjson.Result) bool {
			if payload.Type == gjson.Null {
				return true
			}
			key := id.String()
			if _, ok := s.searchTypes[key]; !ok {
				s.order = append(s.order, key)
			}
			s.searchTypes[key] = payload.Raw
			return true
		})
		return true
	})
	sort.Strings(s.queries)

	if errs := gjson.GetBytes(raw, "errors"); errs.Exists() {
		s.errors = errs.Raw
	}
	return s
}

// sameShape reports whether other can be applied as a search type update:
// same queries, same errors, and the same set of non-null search types.
func (s *jobState) sameShape(other *jobState) bool {
	if s.errors != other.errors || len(s.queries) != len(other.queries) {
		return false
	}
	if len(s.searchTypes) != len(other.searchTypes) {
		return false
	}
	for i := range s.queries {
		if s.queries[i] != other.queries[i] {
			return false
		}
	}
	for id := range other.searchTypes {
		if _, ok := s.searchTypes[id]; !ok {
			return false
		}
	}
	return true
}

// changed returns the payloads of other that differ from s, each carrying its
// search type id.
func (s *jobState) changed(other *jobState) []json.RawMessage {
	var out []json.RawMessage
	for _, id := range other.order {
		payload := other.searchTypes[id]
		if prev, ok := s.searchTypes[id]; ok && prev == payload {
			continue
		}

		data := []byte(payload)
		if gjson.Get(payload, "id").String() != id {
			next, err := sjson.SetBytes(data, "id", id)
			if err != nil {
				// 非对象 payload 无法携带 id
				continue
			}
			data = next
		}
		out = append(out, data)
	}
	return out
}
