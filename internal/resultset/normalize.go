package resultset

import "github.com/jinzhu/inflection"

// payloadShape tags how an entity payload was laid out on the wire.
type payloadShape int

const (
	shapeEmpty payloadShape = iota
	shapeArray
	shapeKeyed
	shapeSingleton
)

func (s payloadShape) String() string {
	switch s {
	case shapeArray:
		return "array"
	case shapeKeyed:
		return "keyed"
	case shapeSingleton:
		return "singleton"
	default:
		return "empty"
	}
}

// normalize turns an entity payload into rows. A payload may be an array of
// records, an object keyed by the entity name (singular or plural), or a bare
// record. An object only counts as keyed when the entity key holds records;
// a scalar under that key is an ordinary field of a bare record. Elements
// that are not objects are dropped.
func normalize(payload any, entity string) (payloadShape, []Row) {
	switch p := payload.(type) {
	case nil:
		return shapeEmpty, nil
	case []Row:
		return shapeArray, p
	case []any:
		return shapeArray, rowsOf(p)
	case Row:
		if inner, ok := keyedPayload(p, entity); ok {
			switch v := inner.(type) {
			case []any:
				return shapeKeyed, rowsOf(v)
			case []Row:
				return shapeKeyed, v
			case Row:
				return shapeKeyed, []Row{v}
			}
		}
		return shapeSingleton, []Row{p}
	default:
		return shapeEmpty, nil
	}
}

func keyedPayload(p Row, entity string) (any, bool) {
	for _, key := range []string{entity, inflection.Plural(entity), inflection.Singular(entity)} {
		if v, ok := p[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func rowsOf(items []any) []Row {
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		if row, ok := item.(Row); ok {
			rows = append(rows, row)
		}
	}
	return rows
}
