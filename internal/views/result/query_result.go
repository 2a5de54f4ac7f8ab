package result

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lk2023060901/searchview-backend/internal/views/timerange"
	"github.com/tidwall/gjson"
)

// QueryResult is a read-only accessor over one query's result envelope.
// Instances are created by SearchResult only.
type QueryResult struct {
	id  string
	raw []byte

	query         []byte
	searchTypeIDs []string
	searchTypes   map[string][]byte

	duration           time.Duration
	timestamp          time.Time
	effectiveTimerange timerange.TimeRange
	state              string
	errors             []SearchError
}

func newQueryResult(id string, env gjson.Result) (*QueryResult, error) {
	if !env.IsObject() {
		return nil, fmt.Errorf("%w: result for query %q must be an object, got %s", ErrMalformedResult, id, env.Type)
	}

	qr := &QueryResult{
		id:          id,
		raw:         []byte(env.Raw),
		searchTypes: make(map[string][]byte),
		state:       env.Get("state").String(),
	}

	if q := env.Get("query"); q.Exists() {
		qr.query = []byte(q.Raw)
	}

	searchTypes := env.Get("search_types")
	if present(searchTypes) {
		if !searchTypes.IsObject() {
			return nil, fmt.Errorf("%w: search_types of query %q must be an object", ErrMalformedResult, id)
		}
		searchTypes.ForEach(func(key, value gjson.Result) bool {
			// null 视为没有结果
			if value.Type == gjson.Null {
				return true
			}
			stID := key.String()
			if _, seen := qr.searchTypes[stID]; !seen {
				qr.searchTypeIDs = append(qr.searchTypeIDs, stID)
			}
			qr.searchTypes[stID] = []byte(value.Raw)
			return true
		})
	}

	if stats := env.Get("execution_stats"); stats.IsObject() {
		qr.duration = time.Duration(stats.Get("duration").Int()) * time.Millisecond
		if ts := stats.Get("timestamp"); ts.Type == gjson.String {
			if parsed, err := time.Parse(time.RFC3339Nano, ts.Str); err == nil {
				qr.timestamp = parsed
			}
		}
		if tr := stats.Get("effective_timerange"); present(tr) {
			if !tr.IsObject() {
				return nil, fmt.Errorf("%w: effective_timerange of query %q must be an object", ErrMalformedResult, id)
			}
			qr.effectiveTimerange = timerange.FromResult(tr)
		}
	}

	if errs := env.Get("errors"); present(errs) {
		if !errs.IsArray() {
			return nil, fmt.Errorf("%w: errors of query %q must be an array", ErrMalformedResult, id)
		}
		for _, raw := range errs.Array() {
			e, err := newSearchError(raw)
			if err != nil {
				return nil, err
			}
			if e.QueryID == "" {
				e.QueryID = id
			}
			qr.errors = append(qr.errors, e)
		}
	}

	return qr, nil
}

// ID returns the query id the envelope was keyed by.
func (q *QueryResult) ID() string {
	return q.id
}

// Raw returns a copy of the envelope as received.
func (q *QueryResult) Raw() json.RawMessage {
	return cloneBytes(q.raw)
}

// Query returns a copy of the executed query definition, nil when absent.
func (q *QueryResult) Query() json.RawMessage {
	return cloneBytes(q.query)
}

// SearchTypeIDs returns the ids of non-null search types in document order.
func (q *QueryResult) SearchTypeIDs() []string {
	return append([]string(nil), q.searchTypeIDs...)
}

// HasSearchType reports whether the envelope carries a result for id. A
// null payload counts as no result.
func (q *QueryResult) HasSearchType(id string) bool {
	_, ok := q.searchTypes[id]
	return ok
}

// SearchType returns a copy of one search type payload, nil when absent.
func (q *QueryResult) SearchType(id string) json.RawMessage {
	payload, ok := q.searchTypes[id]
	if !ok {
		return nil
	}
	return cloneBytes(payload)
}

// SearchTypes returns a copy of the search type id -> payload mapping.
func (q *QueryResult) SearchTypes() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(q.searchTypes))
	for id, payload := range q.searchTypes {
		out[id] = cloneBytes(payload)
	}
	return out
}

// Duration 查询执行耗时
func (q *QueryResult) Duration() time.Duration {
	return q.duration
}

// Timestamp 查询执行时间
func (q *QueryResult) Timestamp() time.Time {
	return q.timestamp
}

// EffectiveTimerange is the time range the backend actually searched.
func (q *QueryResult) EffectiveTimerange() timerange.TimeRange {
	return q.effectiveTimerange
}

// State is the backend execution state, e.g. COMPLETED or FAILED.
func (q *QueryResult) State() string {
	return q.state
}

// Errors returns the query-level errors.
func (q *QueryResult) Errors() []SearchError {
	return cloneErrors(q.errors)
}
