package resultset

import (
	"regexp"
	"strconv"
	"strings"

	"restql/internal/cond"
)

const (
	arrow     = "->"
	arrowText = "->>"
)

var (
	jsonStepPattern  = regexp.MustCompile(`(->>|->)\s*(?:'([^']*)'|"([^"]*)"|(\w+))`)
	trailingQuoteKey = regexp.MustCompile(`(?:'([^']+)'|"([^"]+)")\s*$`)
	arrayIndex       = regexp.MustCompile(`^\d+$`)
)

type jsonStep struct {
	text bool
	key  string
}

type jsonPath struct {
	base  string
	steps []jsonStep
}

// IsJSONAccessor reports whether field uses -> or ->> navigation.
func IsJSONAccessor(field string) bool {
	return strings.Contains(field, arrow)
}

func parseJSONPath(expr string) jsonPath {
	idx := strings.Index(expr, arrow)
	if idx < 0 {
		return jsonPath{base: strings.TrimSpace(expr)}
	}
	p := jsonPath{base: strings.TrimSpace(expr[:idx])}
	for _, m := range jsonStepPattern.FindAllStringSubmatch(expr[idx:], -1) {
		key := m[2]
		if key == "" {
			key = m[3]
		}
		if key == "" {
			key = m[4]
		}
		p.steps = append(p.steps, jsonStep{text: m[1] == arrowText, key: key})
	}
	return p
}

type descent struct {
	val any
	key string
}

var descend = cond.New(
	cond.WhenThen(
		func(d descent) bool { _, ok := d.val.([]any); return ok && arrayIndex.MatchString(d.key) },
		func(d descent) any {
			arr := d.val.([]any)
			i, err := strconv.Atoi(d.key)
			if err != nil || i >= len(arr) {
				return nil
			}
			return arr[i]
		},
	),
	cond.WhenThen(
		func(d descent) bool { _, ok := d.val.(Row); return ok },
		func(d descent) any { return d.val.(Row)[d.key] },
	),
).Else(nil)

// eval walks the path through row. Any missing step yields nil.
func (p jsonPath) eval(row Row) any {
	if row == nil {
		return nil
	}
	val := row[p.base]
	for _, s := range p.steps {
		if val == nil {
			return nil
		}
		next := descend.Value(descent{val: val, key: s.key})
		if s.text && next != nil {
			next = textOf(next)
		}
		val = next
	}
	return val
}

// EvalJSONAccessor evaluates a -> / ->> expression against a row.
func EvalJSONAccessor(row Row, expr string) any {
	return parseJSONPath(expr).eval(row)
}

// inferJSONAlias names an unaliased accessor after its last quoted key, or
// after its base column when no key is quoted.
func inferJSONAlias(expr string) string {
	if m := trailingQuoteKey.FindStringSubmatch(expr); m != nil {
		if m[1] != "" {
			return m[1]
		}
		return m[2]
	}
	if idx := strings.Index(expr, arrow); idx > 0 {
		return strings.TrimSpace(expr[:idx])
	}
	return expr
}
