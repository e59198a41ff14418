// Package resultset assembles fetched entity payloads into the shape of a
// relational query result: projection, joins, grouping, HAVING filtering and
// ordering, applied in that order.
package resultset

import "encoding/json"

// Row is a single record.
type Row = map[string]any

// Filter transforms a result. The addon result filter and every pipeline
// stage share this signature.
type Filter func(Result) Result

// Result is either one sequence per entity or, after a join, a single merged
// sequence. Stages preserve whichever shape they receive.
type Result struct {
	joined   bool
	rows     []Row
	entities []string
	sets     map[string][]Row
}

// NewJoined wraps a single merged sequence.
func NewJoined(rows []Row) Result {
	if rows == nil {
		rows = []Row{}
	}
	return Result{joined: true, rows: rows}
}

// NewPerEntity wraps per-entity sequences. entities fixes the output order.
func NewPerEntity(entities []string, sets map[string][]Row) Result {
	copied := make(map[string][]Row, len(entities))
	for _, e := range entities {
		rows := sets[e]
		if rows == nil {
			rows = []Row{}
		}
		copied[e] = rows
	}
	return Result{entities: append([]string(nil), entities...), sets: copied}
}

// Joined reports whether the result is a single merged sequence.
func (r Result) Joined() bool { return r.joined }

// Rows returns the merged sequence of a joined result.
func (r Result) Rows() []Row { return r.rows }

// Entities returns the entity names of a per-entity result in query order.
func (r Result) Entities() []string { return r.entities }

// Entity returns the rows of one entity of a per-entity result.
func (r Result) Entity(name string) []Row { return r.sets[name] }

// Each calls fn for every sequence. Joined results report an empty entity name.
func (r Result) Each(fn func(entity string, rows []Row)) {
	if r.joined {
		fn("", r.rows)
		return
	}
	for _, e := range r.entities {
		fn(e, r.sets[e])
	}
}

// Map returns a result of the same shape with every sequence replaced by fn's
// output. Joined results call fn with an empty entity name.
func (r Result) Map(fn func(entity string, rows []Row) []Row) Result {
	if r.joined {
		return NewJoined(fn("", r.rows))
	}
	sets := make(map[string][]Row, len(r.entities))
	for _, e := range r.entities {
		sets[e] = fn(e, r.sets[e])
	}
	return NewPerEntity(r.entities, sets)
}

// Len returns the total number of rows across sequences.
func (r Result) Len() int {
	n := 0
	r.Each(func(_ string, rows []Row) { n += len(rows) })
	return n
}

// Value returns the plain representation: a slice for joined results and a
// map of entity to rows otherwise.
func (r Result) Value() any {
	if r.joined {
		return r.rows
	}
	out := make(map[string][]Row, len(r.entities))
	for _, e := range r.entities {
		out[e] = r.sets[e]
	}
	return out
}

// MarshalJSON encodes the plain representation.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Value())
}
