package query

import (
	"regexp"
	"strings"
)

type clauseKind int

const (
	clauseSelect clauseKind = iota
	clauseFrom
	clauseWhere
	clauseGroupBy
	clauseHaving
	clauseOrderBy
)

var (
	clausePattern  = regexp.MustCompile(`(?i)\b(SELECT|FROM|WHERE|GROUP\s+BY|HAVING|ORDER\s+BY)\b`)
	joinPattern    = regexp.MustCompile(`(?i)\s+(?:(INNER|LEFT|FULL)\s+(?:OUTER\s+)?)?JOIN\s+`)
	onPattern      = regexp.MustCompile(`(?is)^(\S+)\s+ON\s+(.+)$`)
	inPattern      = regexp.MustCompile(`(?is)^(.+?)\s+IN\s*\((.*)\)$`)
	directionToken = regexp.MustCompile(`(?i)\s+(ASC|DESC)$`)
)

type clause struct {
	kind  clauseKind
	start int // offset of the keyword
	body  int // offset just past the keyword
}

// Parse compiles a SELECT statement into an Intent.
func Parse(q string) (Intent, error) {
	q = strings.TrimSpace(q)
	bodies, err := splitClauses(q)
	if err != nil {
		return Intent{}, err
	}

	fields := splitList(bodies[clauseSelect])
	for _, f := range fields {
		if f == "" {
			return Intent{}, malformedf(selectGrammar, "empty field in SELECT list")
		}
	}

	intent := Intent{Fields: fields}
	conds := &Conditions{}
	used := false

	entities, join, joinCond, err := parseFrom(bodies[clauseFrom])
	if err != nil {
		return Intent{}, err
	}
	intent.Entities = entities
	if len(join) > 0 {
		conds.Join = join
		conds.JoinCond = joinCond
		used = true
	}

	if body, ok := bodies[clauseWhere]; ok {
		pred, err := parsePredicate(body, false)
		if err != nil {
			return Intent{}, err
		}
		conds.Where = pred
		used = true
	}

	if body, ok := bodies[clauseGroupBy]; ok {
		groupBy := splitList(body)
		for _, g := range groupBy {
			if g == "" {
				return Intent{}, malformedf(selectGrammar, "empty GROUP BY column")
			}
		}
		conds.GroupBy = groupBy
		used = true
	}

	if body, ok := bodies[clauseHaving]; ok {
		if body == "" {
			return Intent{}, malformedf(selectGrammar, "empty HAVING clause")
		}
		conds.Having = body
		used = true
	}

	if body, ok := bodies[clauseOrderBy]; ok {
		orderBy, err := parseOrderBy(body)
		if err != nil {
			return Intent{}, err
		}
		conds.OrderBy = orderBy
		used = true
	}

	if used {
		intent.Conditions = conds
	}
	return intent, nil
}

// splitClauses locates the clause keywords outside quoted literals, checks
// their order and returns each clause body keyed by kind.
func splitClauses(q string) (map[clauseKind]string, error) {
	mask := quotedMask(q)
	var clauses []clause
	for _, loc := range clausePattern.FindAllStringIndex(q, -1) {
		if mask[loc[0]] {
			continue
		}
		clauses = append(clauses, clause{kind: kindOf(q[loc[0]:loc[1]]), start: loc[0], body: loc[1]})
	}

	if len(clauses) == 0 || clauses[0].kind != clauseSelect || clauses[0].start != 0 {
		return nil, malformed(selectGrammar)
	}
	if len(clauses) < 2 || clauses[1].kind != clauseFrom {
		return nil, malformedf(selectGrammar, "missing FROM clause")
	}

	bodies := make(map[clauseKind]string, len(clauses))
	for i, c := range clauses {
		if i > 0 && c.kind <= clauses[i-1].kind {
			return nil, malformedf(selectGrammar, "clause %q out of order", strings.ToUpper(q[c.start:c.body]))
		}
		end := len(q)
		if i+1 < len(clauses) {
			end = clauses[i+1].start
		}
		bodies[c.kind] = strings.TrimSpace(q[c.body:end])
	}
	if bodies[clauseSelect] == "" {
		return nil, malformedf(selectGrammar, "empty SELECT list")
	}
	if bodies[clauseFrom] == "" {
		return nil, malformedf(selectGrammar, "empty FROM clause")
	}
	return bodies, nil
}

func kindOf(keyword string) clauseKind {
	switch strings.ToUpper(strings.Fields(keyword)[0]) {
	case "SELECT":
		return clauseSelect
	case "FROM":
		return clauseFrom
	case "WHERE":
		return clauseWhere
	case "GROUP":
		return clauseGroupBy
	case "HAVING":
		return clauseHaving
	default:
		return clauseOrderBy
	}
}

// parseFrom reads either a plain entity list or a chain of joins.
func parseFrom(segment string) (entities []string, join []string, joinCond [][2]string, err error) {
	matches := joinPattern.FindAllStringSubmatchIndex(segment, -1)
	if len(matches) == 0 {
		for _, e := range splitList(segment) {
			if e == "" || strings.ContainsAny(e, " \t\n") {
				return nil, nil, nil, malformedf(fromGrammar, "invalid entity %q", e)
			}
			entities = append(entities, e)
		}
		return entities, nil, nil, nil
	}

	root := strings.TrimSpace(segment[:matches[0][0]])
	if root == "" || strings.ContainsAny(root, " \t\n,") {
		return nil, nil, nil, malformedf(fromGrammar, "invalid join root %q", root)
	}
	entities = append(entities, root)

	for i, m := range matches {
		end := len(segment)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		parts := onPattern.FindStringSubmatch(strings.TrimSpace(segment[m[1]:end]))
		if parts == nil {
			return nil, nil, nil, malformedf(fromGrammar, "join %d is missing an ON clause", i+1)
		}
		left, right, ok := strings.Cut(parts[2], "=")
		if !ok {
			return nil, nil, nil, malformedf(fromGrammar, "join %d ON clause must be an equality", i+1)
		}
		_, leftKey := SplitScope(strings.TrimSpace(left))
		_, rightKey := SplitScope(strings.TrimSpace(right))
		if leftKey == "" || rightKey == "" {
			return nil, nil, nil, malformedf(fromGrammar, "join %d ON clause has an empty key", i+1)
		}

		entities = append(entities, parts[1])
		join = append(join, joinToken(segment, m))
		joinCond = append(joinCond, [2]string{leftKey, rightKey})
	}
	return entities, join, joinCond, nil
}

func joinToken(segment string, m []int) string {
	if m[2] < 0 {
		return JoinInner
	}
	switch strings.ToUpper(segment[m[2]:m[3]]) {
	case "LEFT":
		return JoinLeft
	case "FULL":
		return JoinFull
	default:
		return JoinInner
	}
}

// parsePredicate reads "<field> = <value>" or "<field> IN (...)". When
// coerce is false an equality value stays a string (quotes removed).
func parsePredicate(text string, coerce bool) (*Predicate, error) {
	text = strings.TrimSpace(text)
	if m := inPattern.FindStringSubmatch(text); m != nil {
		field := strings.TrimSpace(m[1])
		if field == "" {
			return nil, malformed(predicateGrammar)
		}
		var values []any
		if list := strings.TrimSpace(m[2]); list != "" {
			for _, item := range splitList(list) {
				values = append(values, ParseScalar(item))
			}
		}
		return &Predicate{Field: field, Operator: OpIn, Values: values}, nil
	}

	field, raw, ok := strings.Cut(text, "=")
	field = strings.TrimSpace(field)
	raw = strings.TrimSpace(raw)
	if !ok || field == "" || strings.ContainsAny(field, " \t\n") {
		return nil, malformedf(predicateGrammar, "invalid predicate %q", text)
	}
	var value any = Unquote(raw)
	if coerce {
		value = ParseScalar(raw)
	}
	return &Predicate{Field: field, Operator: OpEquals, Value: value}, nil
}

// ParseHaving parses a raw HAVING string. Equality values follow the scalar
// literal rule.
func ParseHaving(text string) (*Predicate, error) {
	return parsePredicate(text, true)
}

func parseOrderBy(body string) ([]OrderBy, error) {
	items := splitList(body)
	out := make([]OrderBy, 0, len(items))
	for _, item := range items {
		dir := Asc
		if m := directionToken.FindStringSubmatchIndex(item); m != nil {
			dir = Direction(strings.ToUpper(item[m[2]:m[3]]))
			item = strings.TrimSpace(item[:m[0]])
		}
		if item == "" {
			return nil, malformedf(selectGrammar, "empty ORDER BY field")
		}
		out = append(out, OrderBy{Field: item, Direction: dir})
	}
	return out, nil
}
