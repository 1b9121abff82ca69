package extract

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// str renders any scalar as a string. Large float ids are printed in full
// rather than in exponent form.
func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatFloat(t, 'f', 0, 64)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return str(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// num reads a non-negative integer. Anything unparsable is 0.
func num(v any) int64 {
	var n int64
	switch t := v.(type) {
	case float64:
		n = int64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			n = i
		} else if f, err := t.Float64(); err == nil {
			n = int64(f)
		}
	case int:
		n = int64(t)
	case int64:
		n = t
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			n = i
		} else if f, err := strconv.ParseFloat(s, 64); err == nil {
			n = int64(f)
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

// isNumeric reports whether v carries a number, including numeric strings.
func isNumeric(v any) bool {
	switch t := v.(type) {
	case float64, json.Number, int, int64:
		return true
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return err == nil
	}
	return false
}

// obj returns raw[key] as an object, or an empty one.
func obj(raw map[string]any, key string) map[string]any {
	if m, ok := raw[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// idOrEmpty treats a zero id as absent.
func idOrEmpty(v any) string {
	s := str(v)
	if s == "0" {
		return ""
	}
	return s
}
