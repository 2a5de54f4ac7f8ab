// Package widget maps the widgets of a view onto the search types that back
// them and pulls their data out of a search result snapshot.
package widget

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/lk2023060901/searchview-backend/internal/views/result"
)

var (
	// ErrWidgetIDRequired 组件ID必填
	ErrWidgetIDRequired = errors.New("widget id is required")

	// ErrQueryIDRequired 查询ID必填
	ErrQueryIDRequired = errors.New("widget query id is required")

	// ErrSearchTypesRequired 至少需要一个 search type
	ErrSearchTypesRequired = errors.New("widget must be backed by at least one search type")
)

// Position is the grid placement of a widget inside its view.
type Position struct {
	Col    int `json:"col"`
	Row    int `json:"row"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Widget is one visualization of a view. It renders the results of the
// search types listed in SearchTypeIDs, all of which belong to QueryID.
type Widget struct {
	ID            string    `json:"id"`
	ViewID        string    `json:"view_id"`
	QueryID       string    `json:"query_id"`
	Type          string    `json:"type"`
	SearchTypeIDs []string  `json:"search_type_ids"`
	Position      Position  `json:"position"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// Validate 校验组件定义
func (w *Widget) Validate() error {
	if w.ID == "" {
		return ErrWidgetIDRequired
	}
	if w.QueryID == "" {
		return ErrQueryIDRequired
	}
	for _, id := range w.SearchTypeIDs {
		if id != "" {
			return nil
		}
	}
	return ErrSearchTypesRequired
}

// Result is the data a widget renders from one snapshot.
type Result struct {
	WidgetID    string                     `json:"widget_id"`
	QueryID     string                     `json:"query_id"`
	SearchTypes map[string]json.RawMessage `json:"search_types"`
	// Missing lists backing search types the snapshot has no data for yet.
	Missing []string             `json:"missing,omitempty"`
	Errors  []result.SearchError `json:"errors,omitempty"`
}

// Complete reports whether every backing search type has data.
func (r *Result) Complete() bool {
	return len(r.Missing) == 0
}

// Resolve looks up the widget's query in sr and collects the payload of each
// backing search type. Ids without data are reported in Missing; a query the
// snapshot does not know yet leaves every id missing.
func Resolve(sr *result.SearchResult, w *Widget) *Result {
	res := &Result{
		WidgetID:    w.ID,
		QueryID:     w.QueryID,
		SearchTypes: make(map[string]json.RawMessage, len(w.SearchTypeIDs)),
	}

	var qr *result.QueryResult
	if sr != nil {
		qr = sr.ForQuery(w.QueryID)
	}

	for _, id := range w.SearchTypeIDs {
		if id == "" {
			continue
		}
		if _, dup := res.SearchTypes[id]; dup {
			continue
		}
		if qr == nil {
			res.Missing = appendUnique(res.Missing, id)
			continue
		}
		payload := qr.SearchType(id)
		if payload == nil {
			res.Missing = appendUnique(res.Missing, id)
			continue
		}
		res.SearchTypes[id] = payload
	}

	if sr != nil {
		res.Errors = errorsFor(sr, qr, w)
	}

	return res
}

// ResolveMany resolves every widget against the same snapshot, keeping the
// input order.
func ResolveMany(sr *result.SearchResult, widgets []*Widget) []*Result {
	out := make([]*Result, 0, len(widgets))
	for _, w := range widgets {
		out = append(out, Resolve(sr, w))
	}
	return out
}

// BackingSearchTypes returns the deduplicated search type ids of widgets in
// first-seen order.
func BackingSearchTypes(widgets []*Widget) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, w := range widgets {
		for _, id := range w.SearchTypeIDs {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// Affected returns the widgets backed by at least one of updatedIDs.
func Affected(widgets []*Widget, updatedIDs []string) []*Widget {
	if len(updatedIDs) == 0 {
		return nil
	}

	updated := make(map[string]struct{}, len(updatedIDs))
	for _, id := range updatedIDs {
		updated[id] = struct{}{}
	}

	var out []*Widget
	for _, w := range widgets {
		for _, id := range w.SearchTypeIDs {
			if _, ok := updated[id]; ok {
				out = append(out, w)
				break
			}
		}
	}
	return out
}

// errorsFor picks the search and query errors addressed to the widget's query
// or to one of its search types.
func errorsFor(sr *result.SearchResult, qr *result.QueryResult, w *Widget) []result.SearchError {
	backing := make(map[string]struct{}, len(w.SearchTypeIDs))
	for _, id := range w.SearchTypeIDs {
		backing[id] = struct{}{}
	}

	matches := func(e result.SearchError) bool {
		if e.SearchTypeID != "" {
			_, ok := backing[e.SearchTypeID]
			return ok
		}
		return e.QueryID == w.QueryID
	}

	var out []result.SearchError
	for _, e := range sr.Errors() {
		if matches(e) {
			out = append(out, e)
		}
	}
	if qr != nil {
		for _, e := range qr.Errors() {
			if matches(e) {
				out = append(out, e)
			}
		}
	}
	return out
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
