package resultset

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restql/internal/query"
)

func usersAndPosts() []any {
	users := []any{
		map[string]any{"id": 1, "name": "Ann"},
		map[string]any{"id": 2, "name": "Bob"},
	}
	posts := []any{
		map[string]any{"id": 10, "userId": 1, "title": "Hi"},
		map[string]any{"id": 11, "userId": 1, "title": "Yo"},
		map[string]any{"id": 12, "userId": 3, "title": "Orphan"},
	}
	return []any{users, posts}
}

func joinConds(token string) *query.Conditions {
	return &query.Conditions{Join: []string{token}, JoinCond: [][2]string{{"id", "userId"}}}
}

func TestBuild_InnerJoin(t *testing.T) {
	res := Build(usersAndPosts(), []string{"users", "posts"}, []string{"users.name", "title"}, joinConds(query.JoinInner), nil)

	require.True(t, res.Joined())
	assert.Equal(t, []Row{
		{"id": 1, "name": "Ann", "userId": 1, "title": "Hi"},
		{"id": 1, "name": "Ann", "userId": 1, "title": "Yo"},
	}, res.Rows())
}

func TestBuild_LeftJoinKeepsUnmatchedLeft(t *testing.T) {
	res := Build(usersAndPosts(), []string{"users", "posts"}, []string{"users.name", "title"}, joinConds(query.JoinLeft), nil)

	rows := res.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, "Bob", rows[2]["name"])
	assert.Equal(t, 2, rows[2]["id"])
	assert.Nil(t, rows[2]["title"])
}

func TestBuild_FullJoinAppendsUnmatchedRight(t *testing.T) {
	res := Build(usersAndPosts(), []string{"users", "posts"}, []string{"users.name", "title"}, joinConds(query.JoinFull), nil)

	rows := res.Rows()
	require.Len(t, rows, 4)
	assert.Equal(t, Row{"id": 12, "userId": 3, "title": "Orphan"}, rows[3])
}

func TestJoinPair_NilKeysNeverMatch(t *testing.T) {
	left := []Row{{"id": 1, "ref": nil}}
	right := []Row{{"ref": nil, "v": 1}}

	assert.Empty(t, joinPair(innerJoin, left, right, "ref", "ref"))
}

func TestMergeRows_PreservesLeftID(t *testing.T) {
	merged := mergeRows(Row{"id": 1, "a": "l"}, Row{"id": 9, "a": "r", "b": 2})
	assert.Equal(t, Row{"id": 1, "a": "r", "b": 2}, merged)

	merged = mergeRows(Row{"a": "l"}, Row{"id": 9})
	assert.Equal(t, 9, merged["id"])
}

func TestJoinAll_ChainsLeftToRight(t *testing.T) {
	a := []Row{{"id": 1, "bId": 5}}
	b := []Row{{"bKey": 5, "cId": 7, "id": 50}}
	c := []Row{{"cKey": 7, "label": "c"}}

	rows := joinAll([][]Row{a, b, c}, []string{query.JoinInner, query.JoinFull}, [][2]string{{"bId", "bKey"}, {"cId", "cKey"}})
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0]["id"])
	assert.Equal(t, "c", rows[0]["label"])
}

func TestBuild_GroupByFirstSeenWins(t *testing.T) {
	payload := []any{
		map[string]any{"k": "a", "v": 1},
		map[string]any{"k": "a", "v": 2},
		map[string]any{"k": "b", "v": 3},
	}
	res := Build([]any{payload}, []string{"items"}, []string{"*"}, &query.Conditions{GroupBy: []string{"k"}}, nil)

	assert.Equal(t, []Row{{"k": "a", "v": 1}, {"k": "b", "v": 3}}, res.Entity("items"))
}

func TestBuild_GroupByCompositeKey(t *testing.T) {
	payload := []any{
		map[string]any{"a": 1, "b": "x"},
		map[string]any{"a": 1, "b": "y"},
		map[string]any{"a": 1, "b": "x"},
	}
	res := Build([]any{payload}, []string{"items"}, []string{"*"}, &query.Conditions{GroupBy: []string{"a", "b"}}, nil)

	assert.Len(t, res.Entity("items"), 2)
}

func TestBuild_HavingEquality(t *testing.T) {
	payload := []any{
		map[string]any{"id": 1, "name": "A"},
		map[string]any{"id": 2, "name": "B"},
		map[string]any{"id": 3, "name": "A"},
	}
	res := Build([]any{payload}, []string{"users"}, []string{"*"}, &query.Conditions{Having: "name = 'A'"}, nil)

	assert.Equal(t, []Row{{"id": 1, "name": "A"}, {"id": 3, "name": "A"}}, res.Entity("users"))
}

func TestBuild_HavingIn(t *testing.T) {
	payload := []any{
		map[string]any{"id": 1},
		map[string]any{"id": 2},
		map[string]any{"id": 3},
	}
	res := Build([]any{payload}, []string{"users"}, []string{"*"}, &query.Conditions{Having: "id IN (1, 3)"}, nil)

	assert.Equal(t, []Row{{"id": 1}, {"id": 3}}, res.Entity("users"))
}

func TestBuild_HavingScopedToEntity(t *testing.T) {
	users := []any{map[string]any{"name": "A"}, map[string]any{"name": "B"}}
	posts := []any{map[string]any{"name": "B"}}
	res := Build([]any{users, posts}, []string{"users", "posts"}, []string{"*"}, &query.Conditions{Having: "users.name = 'A'"}, nil)

	assert.Equal(t, []Row{{"name": "A"}}, res.Entity("users"))
	assert.Equal(t, []Row{{"name": "B"}}, res.Entity("posts"))
}

func TestBuild_HavingUnparseablePassesThrough(t *testing.T) {
	payload := []any{map[string]any{"name": "A"}}
	res := Build([]any{payload}, []string{"users"}, []string{"*"}, &query.Conditions{Having: "name"}, nil)

	assert.Len(t, res.Entity("users"), 1)
}

func TestBuild_OrderByNullsLast(t *testing.T) {
	payload := []any{
		map[string]any{"name": "B"},
		map[string]any{"name": nil},
		map[string]any{"name": "A"},
	}
	desc := &query.Conditions{OrderBy: []query.OrderBy{{Field: "name", Direction: query.Desc}}}
	res := Build([]any{payload}, []string{"users"}, []string{"*"}, desc, nil)
	assert.Equal(t, []Row{{"name": "B"}, {"name": "A"}, {"name": nil}}, res.Entity("users"))

	asc := &query.Conditions{OrderBy: []query.OrderBy{{Field: "name", Direction: query.Asc}}}
	res = Build([]any{payload}, []string{"users"}, []string{"*"}, asc, nil)
	assert.Equal(t, []Row{{"name": "A"}, {"name": "B"}, {"name": nil}}, res.Entity("users"))
}

func TestBuild_OrderByTiesFallThrough(t *testing.T) {
	payload := []any{
		map[string]any{"g": 1, "n": 2},
		map[string]any{"g": 0, "n": 5},
		map[string]any{"g": 1, "n": 1},
	}
	conds := &query.Conditions{OrderBy: []query.OrderBy{
		{Field: "g", Direction: query.Desc},
		{Field: "n", Direction: query.Asc},
	}}
	res := Build([]any{payload}, []string{"t"}, []string{"*"}, conds, nil)

	assert.Equal(t, []Row{{"g": 1, "n": 1}, {"g": 1, "n": 2}, {"g": 0, "n": 5}}, res.Entity("t"))
}

func TestEvalJSONAccessor(t *testing.T) {
	row := Row{"json": map[string]any{"a": []any{10, 20, 30}}}
	assert.Equal(t, "20", EvalJSONAccessor(row, "json->'a'->>'1'"))
	assert.Equal(t, 20, EvalJSONAccessor(row, "json->'a'->'1'"))
	assert.Nil(t, EvalJSONAccessor(Row{"json": map[string]any{}}, "json->'a'->>'1'"))
	assert.Nil(t, EvalJSONAccessor(Row{}, "json->'a'"))
	assert.Nil(t, EvalJSONAccessor(row, "json->'a'->>'7'"))
}

func TestInferJSONAlias(t *testing.T) {
	assert.Equal(t, "city", inferJSONAlias("profile->'address'->>'city'"))
	assert.Equal(t, "profile", inferJSONAlias("profile->0"))
}

func TestBuild_ProjectionAliasesAndAccessors(t *testing.T) {
	payload := []any{map[string]any{"name": "Ann", "meta": map[string]any{"x": 3}, "secret": "s"}}
	res := Build([]any{payload}, []string{"users"}, []string{"users.name AS n", "meta->>'x'", "missing"}, nil, nil)

	assert.Equal(t, []Row{{"n": "Ann", "x": "3", "missing": nil}}, res.Entity("users"))
}

func TestBuild_ProjectionMultiEntityIntersection(t *testing.T) {
	users := []any{map[string]any{"id": 1, "name": "Ann"}}
	posts := []any{map[string]any{"id": 2, "title": "Hi"}}
	res := Build([]any{users, posts}, []string{"users", "posts"}, []string{"name", "title"}, nil, nil)

	assert.False(t, res.Joined())
	assert.Equal(t, []Row{{"name": "Ann"}}, res.Entity("users"))
	assert.Equal(t, []Row{{"title": "Hi"}}, res.Entity("posts"))
}

func TestBuild_MissingPayloadYieldsEmptySequence(t *testing.T) {
	res := Build([]any{nil}, []string{"users"}, []string{"name"}, nil, nil)

	rows := res.Entity("users")
	require.NotNil(t, rows)
	assert.Empty(t, rows)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"users":[]}`, string(b))
}

func TestNormalize_PayloadShapes(t *testing.T) {
	shape, rows := normalize(map[string]any{"users": []any{map[string]any{"id": 1}, "junk"}}, "users")
	assert.Equal(t, shapeKeyed, shape)
	assert.Equal(t, []Row{{"id": 1}}, rows)

	shape, rows = normalize(map[string]any{"user": map[string]any{"id": 2}}, "users")
	assert.Equal(t, shapeKeyed, shape)
	assert.Equal(t, []Row{{"id": 2}}, rows)

	shape, rows = normalize(map[string]any{"id": 3}, "users")
	assert.Equal(t, shapeSingleton, shape)
	assert.Equal(t, []Row{{"id": 3}}, rows)

	shape, rows = normalize(map[string]any{"id": 1, "comment": "nice"}, "comments")
	assert.Equal(t, shapeSingleton, shape)
	assert.Equal(t, []Row{{"id": 1, "comment": "nice"}}, rows)

	shape, rows = normalize(map[string]any{"id": 1, "comments": 3}, "comments")
	assert.Equal(t, shapeSingleton, shape)
	assert.Equal(t, []Row{{"id": 1, "comments": 3}}, rows)
}

func TestBuild_SingleRecordWithEntityNamedField(t *testing.T) {
	payload := map[string]any{"id": 1, "comment": "nice"}
	res := Build([]any{payload}, []string{"comments"}, []string{"*"}, &query.Conditions{}, nil)
	assert.Equal(t, []Row{{"id": 1, "comment": "nice"}}, res.Entity("comments"))
}

func TestBuild_ResultFilterRunsLast(t *testing.T) {
	payload := []any{map[string]any{"n": 2}, map[string]any{"n": 1}}
	conds := &query.Conditions{OrderBy: []query.OrderBy{{Field: "n", Direction: query.Asc}}}
	var seen []Row
	filter := func(r Result) Result {
		seen = r.Entity("t")
		return r.Map(func(_ string, rows []Row) []Row { return rows[:1] })
	}

	res := Build([]any{payload}, []string{"t"}, []string{"*"}, conds, filter)
	assert.Equal(t, []Row{{"n": 1}, {"n": 2}}, seen)
	assert.Equal(t, []Row{{"n": 1}}, res.Entity("t"))
}

func TestMatchPredicate(t *testing.T) {
	in := query.Predicate{Field: "users.id", Operator: query.OpIn, Values: []any{1.0, "x"}}
	assert.True(t, MatchPredicate(in, Row{"id": 1}))
	assert.True(t, MatchPredicate(in, Row{"id": "x"}))
	assert.False(t, MatchPredicate(in, Row{"id": 2}))

	eq := query.Predicate{Field: "id", Operator: query.OpEquals, Value: "1"}
	assert.True(t, MatchPredicate(eq, Row{"id": 1}))
}

func TestRestrict(t *testing.T) {
	payload := map[string]any{"users": []any{
		map[string]any{"id": 1.0},
		map[string]any{"id": 2.0},
		map[string]any{"id": 3.0},
	}}
	in := query.Predicate{Field: "users.id", Operator: query.OpIn, Values: []any{1.0, 3.0}}

	assert.Equal(t, []Row{{"id": 1.0}, {"id": 3.0}}, Restrict(payload, "users", in))
}
