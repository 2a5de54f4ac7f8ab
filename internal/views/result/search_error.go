package result

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrorTypeResultWindowLimit marks an error raised because a search type asked
// for more documents than the backend's result window allows.
const ErrorTypeResultWindowLimit = "result_window_limit"

// SearchError is a backend error normalized for error-banner rendering.
type SearchError struct {
	Description       string   `json:"description"`
	QueryID           string   `json:"query_id,omitempty"`
	SearchTypeID      string   `json:"search_type_id,omitempty"`
	Type              string   `json:"type,omitempty"`
	Backtrace         []string `json:"backtrace,omitempty"`
	ResultWindowLimit int64    `json:"result_window_limit,omitempty"`
}

// IsResultWindowLimit reports whether the error was caused by the result
// window limit.
func (e SearchError) IsResultWindowLimit() bool {
	return e.Type == ErrorTypeResultWindowLimit
}

func (e SearchError) String() string {
	if e.QueryID == "" {
		return e.Description
	}
	return fmt.Sprintf("%s (query %s)", e.Description, e.QueryID)
}

func (e SearchError) clone() SearchError {
	if e.Backtrace != nil {
		e.Backtrace = append([]string(nil), e.Backtrace...)
	}
	return e
}

func newSearchError(v gjson.Result) (SearchError, error) {
	if !v.IsObject() {
		return SearchError{}, fmt.Errorf("%w: error entry must be an object, got %s", ErrMalformedResult, v.Type)
	}

	e := SearchError{
		Description:       firstString(v, "description", "message"),
		QueryID:           firstString(v, "query_id", "queryId"),
		SearchTypeID:      firstString(v, "search_type_id", "searchTypeId"),
		Type:              v.Get("type").String(),
		ResultWindowLimit: v.Get("result_window_limit").Int(),
	}

	switch bt := v.Get("backtrace"); {
	case bt.IsArray():
		for _, line := range bt.Array() {
			e.Backtrace = append(e.Backtrace, line.String())
		}
	case bt.Type == gjson.String && bt.Str != "":
		e.Backtrace = []string{bt.Str}
	}

	return e, nil
}

func firstString(v gjson.Result, keys ...string) string {
	for _, key := range keys {
		if s := v.Get(key); s.Exists() && s.Type != gjson.Null {
			return s.String()
		}
	}
	return ""
}

func cloneErrors(errs []SearchError) []SearchError {
	out := make([]SearchError, len(errs))
	for i, e := range errs {
		out[i] = e.clone()
	}
	return out
}
