// Package query parses the restql query DSL into structured intents.
//
// SELECT statements compile into an Intent that names the entities to fetch,
// the fields to project and the relational conditions (join, group, having,
// order) applied to the fetched records. INSERT, UPDATE and DELETE have their
// own small statement types.
package query

import "strings"

// Command is the leading verb of a query.
type Command string

const (
	CommandSelect Command = "select"
	CommandInsert Command = "insert"
	CommandUpdate Command = "update"
	CommandDelete Command = "delete"
)

// Direction is an ORDER BY direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Operator is the comparison used by a WHERE or HAVING predicate.
type Operator string

const (
	OpEquals Operator = "="
	OpIn     Operator = "IN"
)

// Join type tokens as they appear in Conditions.Join.
const (
	JoinInner = "JOIN"
	JoinLeft  = "LEFT JOIN"
	JoinFull  = "FULL JOIN"
)

// Predicate is a single equality or IN comparison.
type Predicate struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
	Values   []any    `json:"values,omitempty"`
}

// Entity returns the entity scope of the predicate field, if any.
func (p Predicate) Entity() string {
	scope, _ := SplitScope(p.Field)
	return scope
}

// Property returns the predicate field without its entity scope.
func (p Predicate) Property() string {
	_, prop := SplitScope(p.Field)
	return prop
}

// OrderBy is one ORDER BY key.
type OrderBy struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// Conditions holds every optional clause of a SELECT.
type Conditions struct {
	Where    *Predicate  `json:"where,omitempty"`
	Join     []string    `json:"join,omitempty"`
	JoinCond [][2]string `json:"joinCond,omitempty"`
	GroupBy  []string    `json:"groupBy,omitempty"`
	Having   string      `json:"having,omitempty"`
	OrderBy  []OrderBy   `json:"orderBy,omitempty"`
}

// HasJoin reports whether the conditions request at least one join.
func (c *Conditions) HasJoin() bool {
	return c != nil && len(c.Join) > 0
}

// Intent is the structured form of a SELECT.
type Intent struct {
	Entities   []string    `json:"entities"`
	Fields     []string    `json:"fields"`
	Conditions *Conditions `json:"conditions,omitempty"`
}

// Insert is a parsed INSERT statement. Columns preserves the declared field order.
type Insert struct {
	Entity  string         `json:"entity"`
	Columns []string       `json:"columns,omitempty"`
	Data    map[string]any `json:"data"`
}

// Update is a parsed UPDATE statement.
type Update struct {
	Entity string         `json:"entity"`
	Data   map[string]any `json:"data,omitempty"`
	ID     string         `json:"id"`
}

// Delete is a parsed DELETE statement.
type Delete struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
}

// SplitScope splits "entity.field" into its scope and property. Fields
// without a scope return an empty scope. Dots inside a JSON accessor path
// are not treated as scope separators.
func SplitScope(field string) (scope, prop string) {
	head := field
	if idx := strings.Index(field, "->"); idx >= 0 {
		head = field[:idx]
	}
	dot := strings.Index(head, ".")
	if dot < 0 {
		return "", field
	}
	return field[:dot], field[dot+1:]
}
