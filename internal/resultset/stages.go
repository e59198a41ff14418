package resultset

import (
	"log/slog"
	"sort"
	"strings"

	"restql/internal/cond"
	"restql/internal/query"
)

const groupKeyDelimiter = "|#|"

// scopedTo reports the property a field refers to within entity. The empty
// entity stands for a joined result, where every scope is stripped.
func scopedTo(field, entity string) (string, bool) {
	scope, prop := query.SplitScope(field)
	if scope == "" || entity == "" {
		return prop, true
	}
	return prop, scope == entity
}

// groupBy keeps the first row seen for each distinct composite key.
func groupBy(columns []string) Filter {
	return func(r Result) Result {
		return r.Map(func(entity string, rows []Row) []Row {
			var keys []string
			for _, c := range columns {
				if prop, ok := scopedTo(c, entity); ok {
					keys = append(keys, prop)
				}
			}
			if len(keys) == 0 {
				return rows
			}
			seen := make(map[string]struct{}, len(rows))
			out := make([]Row, 0, len(rows))
			for _, row := range rows {
				parts := make([]string, len(keys))
				for i, k := range keys {
					parts[i] = lookupText(row, k)
				}
				key := strings.Join(parts, groupKeyDelimiter)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, row)
			}
			return out
		})
	}
}

// having filters rows by a single parsed predicate. A string that does not
// parse leaves the result untouched.
func having(raw string, logger *slog.Logger) Filter {
	return func(r Result) Result {
		pred, err := query.ParseHaving(raw)
		if err != nil {
			if logger != nil {
				logger.Debug("ignoring unparseable having clause", slog.String("having", raw), slog.String("error", err.Error()))
			}
			return r
		}
		match := predicateMatcher(*pred)
		return r.Map(func(entity string, rows []Row) []Row {
			prop, ok := scopedTo(pred.Field, entity)
			if !ok {
				return rows
			}
			out := make([]Row, 0, len(rows))
			for _, row := range rows {
				if match(row, prop) {
					out = append(out, row)
				}
			}
			return out
		})
	}
}

func predicateMatcher(p query.Predicate) func(Row, string) bool {
	if p.Operator == query.OpIn {
		return func(row Row, prop string) bool {
			v := row[prop]
			for _, candidate := range p.Values {
				if scalarEqual(v, candidate) {
					return true
				}
			}
			return false
		}
	}
	want := textOf(p.Value)
	return func(row Row, prop string) bool {
		return lookupText(row, prop) == want
	}
}

// MatchPredicate reports whether row satisfies p. The predicate field is
// looked up without its entity scope.
func MatchPredicate(p query.Predicate, row Row) bool {
	return predicateMatcher(p)(row, p.Property())
}

type sortPair struct {
	a, b any
}

// comparator orders two values of one sort key. Nulls go last whatever the
// direction.
func comparator(dir query.Direction) *cond.Expr[sortPair, int] {
	sign := 1
	if dir == query.Desc {
		sign = -1
	}
	return cond.New(
		cond.When(func(p sortPair) bool { return p.a == nil && p.b == nil }, 0),
		cond.When(func(p sortPair) bool { return p.a == nil }, 1),
		cond.When(func(p sortPair) bool { return p.b == nil }, -1),
		cond.When(func(p sortPair) bool { return less(p.a, p.b) }, -sign),
		cond.When(func(p sortPair) bool { return less(p.b, p.a) }, sign),
	).Else(0)
}

type sortKey struct {
	prop    string
	compare *cond.Expr[sortPair, int]
}

// orderBy stable-sorts rows by every key that applies to the sequence. Ties
// fall through to the next key.
func orderBy(keys []query.OrderBy) Filter {
	return func(r Result) Result {
		return r.Map(func(entity string, rows []Row) []Row {
			var active []sortKey
			for _, k := range keys {
				if prop, ok := scopedTo(k.Field, entity); ok {
					active = append(active, sortKey{prop: prop, compare: comparator(k.Direction)})
				}
			}
			if len(active) == 0 {
				return rows
			}
			out := append([]Row(nil), rows...)
			sort.SliceStable(out, func(i, j int) bool {
				for _, k := range active {
					if c := k.compare.Value(sortPair{a: out[i][k.prop], b: out[j][k.prop]}); c != 0 {
						return c < 0
					}
				}
				return false
			})
			return out
		})
	}
}

// Restrict normalizes an entity payload and keeps the rows that satisfy p.
// The result can be passed back to Build as that entity's payload.
func Restrict(payload any, entity string, p query.Predicate) []Row {
	_, rows := normalize(payload, entity)
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if MatchPredicate(p, row) {
			out = append(out, row)
		}
	}
	return out
}
