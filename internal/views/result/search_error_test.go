package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchError_Normalization(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want SearchError
	}{
		{
			name: "backend shape",
			raw:  `{"errors":[{"description":"timeout","query_id":"q1","search_type_id":"st1","type":"search_type","backtrace":"at Foo.bar"}]}`,
			want: SearchError{Description: "timeout", QueryID: "q1", SearchTypeID: "st1", Type: "search_type", Backtrace: []string{"at Foo.bar"}},
		},
		{
			name: "camel case shape",
			raw:  `{"errors":[{"message":"bad query","queryId":"q2","searchTypeId":"st2"}]}`,
			want: SearchError{Description: "bad query", QueryID: "q2", SearchTypeID: "st2"},
		},
		{
			name: "description only",
			raw:  `{"errors":[{"description":"timeout"}]}`,
			want: SearchError{Description: "timeout"},
		},
		{
			name: "result window limit",
			raw:  `{"errors":[{"description":"too many","type":"result_window_limit","result_window_limit":10000,"backtrace":["a","b"]}]}`,
			want: SearchError{Description: "too many", Type: ErrorTypeResultWindowLimit, ResultWindowLimit: 10000, Backtrace: []string{"a", "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr, err := New([]byte(tt.raw))
			require.NoError(t, err)

			errs := sr.Errors()
			require.Len(t, errs, 1)
			assert.Equal(t, tt.want, errs[0])
		})
	}
}

func TestSearchError_Helpers(t *testing.T) {
	e := SearchError{Description: "too many", Type: ErrorTypeResultWindowLimit}
	assert.True(t, e.IsResultWindowLimit())
	assert.Equal(t, "too many", e.String())

	e = SearchError{Description: "timeout", QueryID: "q1"}
	assert.False(t, e.IsResultWindowLimit())
	assert.Equal(t, "timeout (query q1)", e.String())
}

func TestSearchError_OrderPreserved(t *testing.T) {
	sr, err := New([]byte(`{"errors":[{"description":"first"},{"description":"second"},{"description":"third"}]}`))
	require.NoError(t, err)

	errs := sr.Errors()
	require.Len(t, errs, 3)
	assert.Equal(t, "first", errs[0].Description)
	assert.Equal(t, "second", errs[1].Description)
	assert.Equal(t, "third", errs[2].Description)
}
