package timerange

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Type 时间范围类型
type Type string

const (
	Relative Type = "relative"
	Absolute Type = "absolute"
	Keyword  Type = "keyword"
)

var ErrInvalidTimeRange = errors.New("invalid time range")

// TimeRange is the effective time range a query was executed with.
//
// Relative ranges are expressed in seconds before "now", either as a single
// Range or as a From/To pair. Absolute ranges keep the backend timestamps as
// received.
type TimeRange struct {
	Type         Type   `json:"type,omitempty"`
	Range        *int64 `json:"range,omitempty"`
	From         *int64 `json:"from,omitempty"`
	To           *int64 `json:"to,omitempty"`
	AbsoluteFrom string `json:"absolute_from,omitempty"`
	AbsoluteTo   string `json:"absolute_to,omitempty"`
	Keyword      string `json:"keyword,omitempty"`
}

// Parse decodes a time range from its wire shape.
func Parse(raw []byte) (TimeRange, error) {
	if !gjson.ValidBytes(raw) {
		return TimeRange{}, fmt.Errorf("%w: not valid JSON", ErrInvalidTimeRange)
	}
	v := gjson.ParseBytes(raw)
	if !v.IsObject() {
		return TimeRange{}, fmt.Errorf("%w: expected an object", ErrInvalidTimeRange)
	}
	return FromResult(v), nil
}

// FromResult builds a TimeRange from an already parsed object. Unknown types
// are kept as-is and render as an empty string.
func FromResult(v gjson.Result) TimeRange {
	tr := TimeRange{Type: Type(strings.ToLower(v.Get("type").String()))}

	switch tr.Type {
	case Relative:
		tr.Range = optionalInt(v.Get("range"))
		tr.From = optionalInt(v.Get("from"))
		tr.To = optionalInt(v.Get("to"))
	case Absolute:
		tr.AbsoluteFrom = v.Get("from").String()
		tr.AbsoluteTo = v.Get("to").String()
	case Keyword:
		tr.Keyword = v.Get("keyword").String()
	}

	return tr
}

func optionalInt(v gjson.Result) *int64 {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	n := v.Int()
	return &n
}

// IsZero reports whether no time range was present.
func (t TimeRange) IsZero() bool {
	return t.Type == ""
}

// IsRelativeWithStartOnly reports whether t is a relative range given as a
// single "range" value instead of a from/to pair.
func (t TimeRange) IsRelativeWithStartOnly() bool {
	return t.Type == Relative && t.Range != nil
}

// String renders the range for display, e.g. "5 minutes ago - Now".
func (t TimeRange) String() string {
	switch t.Type {
	case Relative:
		if t.IsRelativeWithStartOnly() {
			if *t.Range == 0 {
				return "All Time"
			}
			return readableRange(t.Range, "All Time") + " - Now"
		}
		return readableRange(t.From, "All Time") + " - " + readableRange(t.To, "Now")
	case Absolute:
		return t.AbsoluteFrom + " - " + t.AbsoluteTo
	case Keyword:
		return t.Keyword
	default:
		return ""
	}
}

func readableRange(seconds *int64, placeholder string) string {
	if seconds == nil || *seconds == 0 {
		return placeholder
	}
	return HumanizeSeconds(*seconds) + " ago"
}

var units = []struct {
	name    string
	seconds int64
}{
	{"day", 86400},
	{"hour", 3600},
	{"minute", 60},
	{"second", 1},
}

// HumanizeSeconds formats a number of seconds using every non-zero unit from
// days down to seconds, e.g. 3905 -> "1 hour 5 minutes 5 seconds".
func HumanizeSeconds(seconds int64) string {
	if seconds < 0 {
		seconds = -seconds
	}
	if seconds == 0 {
		return "0 seconds"
	}

	parts := make([]string, 0, len(units))
	for _, u := range units {
		n := seconds / u.seconds
		if n == 0 {
			continue
		}
		seconds -= n * u.seconds
		if n == 1 {
			parts = append(parts, fmt.Sprintf("1 %s", u.name))
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}
	return strings.Join(parts, " ")
}
