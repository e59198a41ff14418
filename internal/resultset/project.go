package resultset

import (
	"regexp"
	"strings"

	"restql/internal/query"
)

const wildcard = "*"

var aliasPattern = regexp.MustCompile(`(?i)\s+AS\s+`)

// splitAlias splits "expr AS alias". The alias is empty when absent.
func splitAlias(field string) (expr, alias string) {
	loc := aliasPattern.FindStringIndex(field)
	if loc == nil {
		return field, ""
	}
	return strings.TrimSpace(field[:loc[0]]), strings.TrimSpace(field[loc[1]:])
}

func stripAlias(field string) string {
	expr, _ := splitAlias(field)
	return expr
}

// descope removes the "entity." prefix from fields scoped to entity. Fields
// scoped to other entities are left untouched.
func descope(fields []string, entity string) []string {
	prefix := entity + "."
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimPrefix(f, prefix)
	}
	return out
}

// aliasMap maps each aliased expression to its output property name.
func aliasMap(fields []string) map[string]string {
	aliases := make(map[string]string)
	for _, f := range fields {
		if expr, alias := splitAlias(f); alias != "" {
			aliases[expr] = alias
		}
	}
	return aliases
}

// project narrows rows of one entity to the requested fields. Single-entity
// queries keep every requested field; multi-entity queries keep only fields
// that exist on at least one row, plus JSON accessors. Join keys are always
// kept so the join stage can match rows.
func project(entity string, rows []Row, fields []string, joinCond [][2]string, single bool) []Row {
	if len(rows) == 0 {
		return []Row{}
	}
	scoped := descope(fields, entity)
	for _, f := range scoped {
		if stripAlias(f) == wildcard {
			return append([]Row(nil), rows...)
		}
	}

	var keys map[string]struct{}
	if !single {
		keys = unionKeys(rows)
	}

	seen := make(map[string]struct{})
	var wanted []string
	add := func(f string) {
		if _, dup := seen[f]; dup {
			return
		}
		seen[f] = struct{}{}
		wanted = append(wanted, f)
	}

	for _, f := range scoped {
		expr := stripAlias(f)
		if scope, _ := query.SplitScope(expr); scope != "" {
			continue
		}
		if !single && !IsJSONAccessor(expr) {
			if _, ok := keys[expr]; !ok {
				continue
			}
		}
		add(expr)
	}
	for _, pair := range joinCond {
		add(pair[0])
		add(pair[1])
	}

	aliases := aliasMap(scoped)
	out := make([]Row, len(rows))
	for i, row := range rows {
		out[i] = extract(row, wanted, aliases)
	}
	return out
}

func extract(row Row, fields []string, aliases map[string]string) Row {
	partial := make(Row, len(fields))
	for _, f := range fields {
		if IsJSONAccessor(f) {
			name := aliases[f]
			if name == "" {
				name = inferJSONAlias(f)
			}
			partial[name] = EvalJSONAccessor(row, f)
			continue
		}
		name := aliases[f]
		if name == "" {
			name = f
		}
		if v, ok := row[f]; ok {
			partial[name] = v
		} else {
			partial[name] = nil
		}
	}
	return partial
}

func unionKeys(rows []Row) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			keys[k] = struct{}{}
		}
	}
	return keys
}
