package resultset

import "restql/internal/query"

const idKey = "id"

type joinKind int

const (
	innerJoin joinKind = iota
	leftJoin
	fullJoin
)

func joinKindOf(token string) joinKind {
	switch token {
	case query.JoinLeft:
		return leftJoin
	case query.JoinFull:
		return fullJoin
	default:
		return innerJoin
	}
}

// joinAll reduces the entity sequences left to right. Pair i joins the
// accumulated rows with sequence i+1 on joinCond[i].
func joinAll(sets [][]Row, tokens []string, joinCond [][2]string) []Row {
	if len(sets) == 0 {
		return []Row{}
	}
	acc := sets[0]
	for i, right := range sets[1:] {
		if i >= len(tokens) || i >= len(joinCond) {
			break
		}
		acc = joinPair(joinKindOf(tokens[i]), acc, right, joinCond[i][0], joinCond[i][1])
	}
	return acc
}

// joinPair is an equi-join of left.leftKey with right.rightKey. Output keeps
// left order, then right order among matches; a full join appends the
// unmatched right rows at the end.
func joinPair(kind joinKind, left, right []Row, leftKey, rightKey string) []Row {
	index := make(map[any][]int, len(right))
	for i, r := range right {
		if k, ok := joinKey(r[rightKey]); ok {
			index[k] = append(index[k], i)
		}
	}

	matched := make([]bool, len(right))
	out := make([]Row, 0, len(left))
	for _, l := range left {
		var hits []int
		if k, ok := joinKey(l[leftKey]); ok {
			hits = index[k]
		}
		if len(hits) == 0 {
			if kind != innerJoin {
				out = append(out, mergeRows(l, nil))
			}
			continue
		}
		for _, ri := range hits {
			matched[ri] = true
			out = append(out, mergeRows(l, right[ri]))
		}
	}

	if kind == fullJoin {
		for i, r := range right {
			if !matched[i] {
				out = append(out, mergeRows(nil, r))
			}
		}
	}
	return out
}

// mergeRows overlays right on left. The left row's id wins when it has one.
func mergeRows(left, right Row) Row {
	merged := make(Row, len(left)+len(right))
	for k, v := range left {
		merged[k] = v
	}
	for k, v := range right {
		merged[k] = v
	}
	if id, ok := left[idKey]; ok && id != nil {
		merged[idKey] = id
	}
	return merged
}
