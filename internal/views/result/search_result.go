// Package result holds the immutable snapshot of one search execution: the
// per-query result envelopes, the search errors, and the copy-on-write merge
// of search type results that arrive after the initial response.
package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrMalformedResult is returned when a response document does not have the
// expected structure. It is a programming error on the producer side.
var ErrMalformedResult = errors.New("malformed search result")

// SearchResult is an immutable view over one search response. Every update
// produces a new SearchResult; existing instances are never modified, so
// readers holding one always see a consistent snapshot.
type SearchResult struct {
	raw []byte

	queryIDs     []string
	queryResults map[string]*QueryResult
	errors       []SearchError
}

// New builds a SearchResult from a response document of the shape
//
//	{"results": {"<query id>": {"search_types": {...}, ...}}, "errors": [...]}
//
// Both members are optional. Structural violations are returned as errors
// wrapping ErrMalformedResult.
func New(raw []byte) (*SearchResult, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrMalformedResult)
	}

	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: expected an object, got %s", ErrMalformedResult, doc.Type)
	}

	sr := &SearchResult{
		raw:          cloneBytes(raw),
		queryResults: make(map[string]*QueryResult),
	}

	results := doc.Get("results")
	if present(results) {
		if !results.IsObject() {
			return nil, fmt.Errorf("%w: results must be an object", ErrMalformedResult)
		}

		var err error
		results.ForEach(func(key, value gjson.Result) bool {
			queryID := key.String()
			qr, qerr := newQueryResult(queryID, value)
			if qerr != nil {
				err = qerr
				return false
			}
			if _, seen := sr.queryResults[queryID]; !seen {
				sr.queryIDs = append(sr.queryIDs, queryID)
			}
			sr.queryResults[queryID] = qr
			return true
		})
		if err != nil {
			return nil, err
		}
	}

	errs := doc.Get("errors")
	if present(errs) {
		if !errs.IsArray() {
			return nil, fmt.Errorf("%w: errors must be an array", ErrMalformedResult)
		}
		for _, raw := range errs.Array() {
			e, err := newSearchError(raw)
			if err != nil {
				return nil, err
			}
			sr.errors = append(sr.errors, e)
		}
	}

	return sr, nil
}

// Result returns a copy of the complete response document.
func (r *SearchResult) Result() json.RawMessage {
	return cloneBytes(r.raw)
}

// Results returns a fresh copy of every query envelope, keyed by query id.
// Callers may modify the returned value freely.
func (r *SearchResult) Results() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(r.queryResults))
	for id, qr := range r.queryResults {
		out[id] = qr.Raw()
	}
	return out
}

// Errors returns a copy of the search errors in response order.
func (r *SearchResult) Errors() []SearchError {
	return cloneErrors(r.errors)
}

// QueryIDs returns the query ids in document order.
func (r *SearchResult) QueryIDs() []string {
	return append([]string(nil), r.queryIDs...)
}

// ForQuery returns the result of one query, nil when the search has none.
func (r *SearchResult) ForQuery(queryID string) *QueryResult {
	return r.queryResults[queryID]
}

// ForID is an alias of ForQuery.
func (r *SearchResult) ForID(queryID string) *QueryResult {
	return r.ForQuery(queryID)
}

// SearchType returns the current payload of a search type from whichever
// query owns it, nil when no query does.
func (r *SearchResult) SearchType(searchTypeID string) json.RawMessage {
	queryID, ok := r.queryForSearchType(searchTypeID)
	if !ok {
		return nil
	}
	return r.queryResults[queryID].SearchType(searchTypeID)
}

// UpdateSearchTypes merges late-arriving search type results and returns a
// new SearchResult. Each payload must carry the search type "id"; payloads
// whose id is unknown to every query, or that have no id, are dropped. When
// several payloads address the same id the last one wins. The receiver is
// left untouched and a new instance is returned even when nothing changed.
func (r *SearchResult) UpdateSearchTypes(updates []json.RawMessage) (*SearchResult, error) {
	updated := cloneBytes(r.raw)

	for _, payload := range updates {
		if !gjson.ValidBytes(payload) {
			return nil, fmt.Errorf("%w: search type payload is not valid JSON", ErrMalformedResult)
		}

		id := gjson.GetBytes(payload, "id").String()
		if id == "" {
			continue
		}

		queryID, ok := r.queryForSearchType(id)
		if !ok {
			continue
		}

		path := "results." + escapePath(queryID) + ".search_types." + escapePath(id)
		next, err := sjson.SetRawBytes(updated, path, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to replace search type %q of query %q: %w", id, queryID, err)
		}
		updated = next
	}

	return New(updated)
}

// SearchTypesFromResponse returns the current payloads of the given search
// types in input order. Ids that no query owns are left out.
func (r *SearchResult) SearchTypesFromResponse(searchTypeIDs []string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(searchTypeIDs))
	for _, id := range searchTypeIDs {
		if payload := r.SearchType(id); payload != nil {
			out = append(out, payload)
		}
	}
	return out
}

// queryForSearchType scans the queries in document order for the first one
// carrying searchTypeID. Searches hold few queries, so no index is kept.
func (r *SearchResult) queryForSearchType(searchTypeID string) (string, bool) {
	for _, queryID := range r.queryIDs {
		if r.queryResults[queryID].HasSearchType(searchTypeID) {
			return queryID, true
		}
	}
	return "", false
}

func present(v gjson.Result) bool {
	return v.Exists() && v.Type != gjson.Null
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// escapePath escapes a single key for use in a gjson/sjson path. Keys are
// handled byte by byte so ids that are not valid UTF-8 still address the
// original key; only ASCII punctuation is escaped.
func escapePath(key string) string {
	var sb strings.Builder
	sb.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= utf8.RuneSelf, c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
