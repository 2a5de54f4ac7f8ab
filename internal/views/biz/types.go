package biz

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lk2023060901/searchview-backend/internal/views/result"
	"github.com/lk2023060901/searchview-backend/internal/views/timerange"
	"github.com/lk2023060901/searchview-backend/internal/views/widget"
)

// 事件类型
const (
	EventSearchStarted     = "search.started"
	EventSearchResult      = "search.result"
	EventSearchSearchTypes = "search.search_types"
	EventSearchExported    = "search.exported"
)

// EventTopic 搜索事件的订阅资源名
func EventTopic(searchID string) string {
	return "search:" + searchID
}

// ResultRepo stores the generation counter and the latest snapshot of each
// search.
type ResultRepo interface {
	// NextGeneration atomically bumps and returns the generation of searchID.
	NextGeneration(ctx context.Context, searchID string) (int64, error)
	// Generation returns the current generation, 0 when none was started.
	Generation(ctx context.Context, searchID string) (int64, error)
	SaveSnapshot(ctx context.Context, searchID string, generation int64, raw []byte) error
	// LoadSnapshot returns ErrSnapshotNotFound when nothing is stored.
	LoadSnapshot(ctx context.Context, searchID string) (int64, []byte, error)
	DeleteSnapshot(ctx context.Context, searchID string) error
}

// WidgetRepo persists widget definitions.
type WidgetRepo interface {
	Save(ctx context.Context, w *widget.Widget) error
	ListByView(ctx context.Context, viewID string) ([]*widget.Widget, error)
	ListByQueries(ctx context.Context, queryIDs []string) ([]*widget.Widget, error)
}

// ExportStore writes snapshot exports and returns the object key.
type ExportStore interface {
	PutSnapshot(ctx context.Context, searchID string, generation int64, raw []byte) (string, error)
}

// Publisher fans lineage events out to subscribers of a search.
type Publisher interface {
	Publish(ctx context.Context, event *Event)
}

// Event is a lineage change notification.
type Event struct {
	Type       string      `json:"type"`
	SearchID   string      `json:"search_id"`
	Generation int64       `json:"generation"`
	Data       interface{} `json:"data,omitempty"`
}

// Snapshot is the current result of one search generation.
type Snapshot struct {
	SearchID   string
	Generation int64
	Result     *result.SearchResult
	UpdatedAt  time.Time
}

// ResultEvent is the payload of search.result.
type ResultEvent struct {
	QueryIDs   []string `json:"query_ids"`
	ErrorCount int      `json:"error_count"`
}

// SearchTypesEvent is the payload of search.search_types.
type SearchTypesEvent struct {
	SearchTypeIDs []string `json:"search_type_ids"`
	WidgetIDs     []string `json:"widget_ids"`
}

// ExportEvent is the payload of search.exported.
type ExportEvent struct {
	Key string `json:"key"`
}

// QuerySummary 单个查询的结果摘要
type QuerySummary struct {
	ID                 string                     `json:"id"`
	State              string                     `json:"state,omitempty"`
	DurationMs         int64                      `json:"duration_ms"`
	Timestamp          *time.Time                 `json:"timestamp,omitempty"`
	EffectiveTimerange *timerange.TimeRange       `json:"effective_timerange,omitempty"`
	TimerangeLabel     string                     `json:"timerange_label,omitempty"`
	Query              json.RawMessage            `json:"query,omitempty"`
	SearchTypeIDs      []string                   `json:"search_type_ids"`
	SearchTypes        map[string]json.RawMessage `json:"search_types"`
	Errors             []result.SearchError       `json:"errors,omitempty"`
}

func newQuerySummary(qr *result.QueryResult) *QuerySummary {
	s := &QuerySummary{
		ID:            qr.ID(),
		State:         qr.State(),
		DurationMs:    qr.Duration().Milliseconds(),
		Query:         qr.Query(),
		SearchTypeIDs: qr.SearchTypeIDs(),
		SearchTypes:   qr.SearchTypes(),
		Errors:        qr.Errors(),
	}
	if ts := qr.Timestamp(); !ts.IsZero() {
		s.Timestamp = &ts
	}
	if tr := qr.EffectiveTimerange(); !tr.IsZero() {
		s.EffectiveTimerange = &tr
		s.TimerangeLabel = tr.String()
	}
	return s
}
