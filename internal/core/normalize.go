package core

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// Normalize flattens a raw record into string fields. Nested arrays and
// objects become their JSON text, nulls become "". It never fails.
func Normalize(raw *RawRecord) *Record {
	out := NewRecord()
	if raw == nil {
		return out
	}
	for _, k := range raw.keys {
		out.Set(k, normalizeValue(raw.values[k]))
	}
	return out
}

// NormalizeAll normalizes records in order.
func NormalizeAll(raws []*RawRecord) []*Record {
	out := make([]*Record, 0, len(raws))
	for _, r := range raws {
		out = append(out, Normalize(r))
	}
	return out
}

func normalizeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.RawMessage:
		return normalizeRawJSON(val)
	case []any, map[string]any, []string, map[string]string:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}

	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

func normalizeRawJSON(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	case '[', '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err == nil {
			return buf.String()
		}
	}
	return string(trimmed)
}
