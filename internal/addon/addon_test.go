package addon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restql/internal/query"
	"restql/internal/resultset"
)

func TestPipeline_EmptyIsIdentity(t *testing.T) {
	intent := query.Intent{Entities: []string{"users"}, Fields: []string{"name"}}
	got, call := Compose().ParseQuery(intent)
	assert.Equal(t, intent, got)

	res := resultset.NewJoined([]resultset.Row{{"a": 1}})
	assert.Equal(t, res, call.Filter(res))
}

func TestPipeline_RightComposition(t *testing.T) {
	var order []string
	mk := func(name string) Addon {
		return Funcs{
			Parse: func(i query.Intent) query.Intent {
				order = append(order, "parse:"+name)
				return i
			},
			Filter: func(r resultset.Result) resultset.Result {
				order = append(order, "filter:"+name)
				return r
			},
		}
	}
	p := Compose(mk("a"), mk("b"))

	_, call := p.ParseQuery(query.Intent{})
	call.Filter(resultset.NewJoined(nil))

	assert.Equal(t, []string{"parse:b", "parse:a", "filter:b", "filter:a"}, order)
}

func TestTagger_StripsKeywordAndTagsRows(t *testing.T) {
	intent, err := query.Parse("SELECT TRIVIAL users.name, title FROM users LEFT JOIN posts ON users.id = posts.userId")
	require.NoError(t, err)

	p := Compose(NewTagger("trivial", ""))
	rewritten, call := p.ParseQuery(intent)
	assert.Equal(t, []string{"users.name", "title"}, rewritten.Fields)

	res := call.Filter(resultset.NewJoined([]resultset.Row{{"name": "Ann"}, {"name": "Bob"}}))
	for _, row := range res.Rows() {
		assert.Equal(t, true, row["trivial"])
	}
}

func TestTagger_StateIsPerCall(t *testing.T) {
	p := Compose(NewTagger("trivial", "flag"))

	_, tagged := p.ParseQuery(query.Intent{Fields: []string{"trivial name"}})
	_, plain := p.ParseQuery(query.Intent{Fields: []string{"name"}})

	rows := []resultset.Row{{"name": "Ann"}}
	assert.Equal(t, true, tagged.Filter(resultset.NewPerEntity([]string{"users"}, map[string][]resultset.Row{"users": rows})).Entity("users")[0]["flag"])
	_, present := plain.Filter(resultset.NewJoined(rows)).Rows()[0]["flag"]
	assert.False(t, present)
}

func TestTagger_DoesNotMatchInsideWords(t *testing.T) {
	_, state := NewTagger("trivial", "").ParseQuery(query.Intent{Fields: []string{"nontrivial"}})
	assert.Equal(t, tagState{}, state)
}
