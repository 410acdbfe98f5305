package dimension

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var listDelimiter = regexp.MustCompile(`[,|]`)

// CoerceToStringList normalizes a model-supplied value into a string list.
// Precedence: a native array passes through element-wise with null elements
// dropped; a string holding a JSON array is decoded; any other string is split
// on commas and pipes with blanks dropped; any other scalar is wrapped as a
// single element. Nil stays nil.
func CoerceToStringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if e != nil {
				out = append(out, stringify(e))
			}
		}
		return out
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(t), &decoded); err == nil {
			if arr, ok := decoded.([]any); ok {
				return CoerceToStringList(arr)
			}
			return []string{t}
		}
		parts := listDelimiter.Split(t, -1)
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return []string{stringify(t)}
	}
}

// CoerceString returns nil for nil, the string itself for strings and the
// JSON text of anything else.
func CoerceString(v any) *string {
	if v == nil {
		return nil
	}
	s := stringify(v)
	return &s
}

// CoerceFloat accepts JSON numbers and numeric strings.
func CoerceFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return &f
		}
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(t), "%g", &f); err == nil {
			return &f
		}
	}
	return nil
}

// CoerceBool accepts booleans and the usual yes/no spellings.
func CoerceBool(v any) *bool {
	switch t := v.(type) {
	case bool:
		return &t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "y", "yes", "1":
			return Ptr(true)
		case "false", "n", "no", "0":
			return Ptr(false)
		}
	case float64:
		return Ptr(t != 0)
	}
	return nil
}

// CoerceJSON keeps structured values as JSON. A string is kept verbatim when
// it is itself valid JSON, otherwise it is encoded as a JSON string.
func CoerceJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
