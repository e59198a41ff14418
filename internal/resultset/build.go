package resultset

import (
	"log/slog"

	"restql/internal/query"
)

// Builder assembles raw entity payloads into a Result.
type Builder struct {
	Logger *slog.Logger
}

// Build runs the pipeline with a default Builder.
func Build(payloads []any, entities, fields []string, conds *query.Conditions, filter Filter) Result {
	return Builder{}.Build(payloads, entities, fields, conds, filter)
}

// Build projects each entity's payload, then joins, groups, applies HAVING
// and orders, in that order. payloads[i] belongs to entities[i]. filter runs
// last and may be nil.
func (b Builder) Build(payloads []any, entities, fields []string, conds *query.Conditions, filter Filter) Result {
	var joinCond [][2]string
	if conds.HasJoin() {
		joinCond = conds.JoinCond
	}

	single := len(entities) == 1
	sets := make(map[string][]Row, len(entities))
	ordered := make([][]Row, len(entities))
	for i, entity := range entities {
		var payload any
		if i < len(payloads) {
			payload = payloads[i]
		}
		shape, rows := normalize(payload, entity)
		b.debug("normalized payload", slog.String("entity", entity), slog.String("shape", shape.String()), slog.Int("rows", len(rows)))
		projected := project(entity, rows, fields, joinCond, single)
		sets[entity] = projected
		ordered[i] = projected
	}

	var result Result
	if conds.HasJoin() {
		result = NewJoined(joinAll(ordered, conds.Join, conds.JoinCond))
	} else {
		result = NewPerEntity(entities, sets)
	}

	for _, stage := range b.stages(conds) {
		result = stage(result)
	}
	if filter != nil {
		result = filter(result)
	}
	return result
}

func (b Builder) stages(conds *query.Conditions) []Filter {
	if conds == nil {
		return nil
	}
	var stages []Filter
	if len(conds.GroupBy) > 0 {
		stages = append(stages, groupBy(conds.GroupBy))
	}
	if conds.Having != "" {
		stages = append(stages, having(conds.Having, b.Logger))
	}
	if len(conds.OrderBy) > 0 {
		stages = append(stages, orderBy(conds.OrderBy))
	}
	return stages
}

func (b Builder) debug(msg string, attrs ...any) {
	if b.Logger != nil {
		b.Logger.Debug(msg, attrs...)
	}
}
