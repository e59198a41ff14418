package query

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Builder renders the intent as a SQL SELECT. The result is only used for
// explain output and debug logging; restql never sends SQL anywhere.
func (i Intent) Builder() sq.SelectBuilder {
	b := sq.Select(i.Fields...)
	c := i.Conditions

	if c.HasJoin() && len(i.Entities) > 0 {
		b = b.From(i.Entities[0])
		for idx, token := range c.Join {
			if idx+1 >= len(i.Entities) || idx >= len(c.JoinCond) {
				break
			}
			left, right := i.Entities[idx], i.Entities[idx+1]
			keys := c.JoinCond[idx]
			b = b.JoinClause(fmt.Sprintf("%s %s ON %s.%s = %s.%s", token, right, left, keys[0], right, keys[1]))
		}
	} else {
		b = b.From(strings.Join(i.Entities, ", "))
	}

	if c == nil {
		return b
	}
	if w := c.Where; w != nil {
		if w.Operator == OpIn {
			b = b.Where(sq.Eq{w.Field: w.Values})
		} else {
			b = b.Where(sq.Eq{w.Field: w.Value})
		}
	}
	if len(c.GroupBy) > 0 {
		b = b.GroupBy(c.GroupBy...)
	}
	if c.Having != "" {
		b = b.Having(c.Having)
	}
	for _, o := range c.OrderBy {
		b = b.OrderBy(o.Field + " " + string(o.Direction))
	}
	return b
}

// SQL returns the rendered statement and its placeholder arguments.
func (i Intent) SQL() (string, []any, error) {
	return i.Builder().ToSql()
}

// DebugSQL returns the statement with arguments inlined, for logs.
func (i Intent) DebugSQL() string {
	return sq.DebugSqlizer(i.Builder())
}
