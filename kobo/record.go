package kobo

import (
	"encoding/json"
	"strconv"
)

// Record is a single form submission. Kobo flattens group paths into keys and
// leaves unanswered questions out entirely, so every lookup can miss.
type Record map[string]any

// Value returns the raw value for key
func (r Record) Value(key string) (any, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// String returns the value for key rendered as text
func (r Record) String(key string) (string, bool) {
	v, ok := r.Value(key)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
