package resultset

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// toFloat reports the numeric value of v for every Go number type.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// textOf renders a value the way a JSON-native client would print it.
func textOf(v any) string {
	if v == nil {
		return "null"
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case map[string]any, []any:
		b, err := json.Marshal(s)
		if err != nil {
			return fmt.Sprint(s)
		}
		return string(b)
	default:
		return fmt.Sprint(s)
	}
}

// lookupText is textOf for a row lookup, distinguishing absent from null.
func lookupText(row Row, key string) string {
	v, ok := row[key]
	if !ok {
		return "undefined"
	}
	return textOf(v)
}

// scalarEqual is strict equality across numeric representations.
func scalarEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

// less orders two non-nil values: numbers numerically, strings lexically,
// false before true, and mixed types by their text.
func less(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa < fb
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as < bs
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return !ab && bb
		}
	}
	return textOf(a) < textOf(b)
}

// joinKey normalizes a join column value into a comparable map key. Nil keys
// never match.
func joinKey(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	if f, ok := toFloat(v); ok {
		return f, true
	}
	switch v.(type) {
	case string, bool:
		return v, true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "go:" + fmt.Sprint(v), true
	}
	return "json:" + string(b), true
}
