package addon

import (
	"regexp"
	"strings"

	"restql/internal/query"
	"restql/internal/resultset"
)

// Tagger recognizes a keyword in the field list, removes it from the query
// and marks every result row with Property set to true.
type Tagger struct {
	keyword  *regexp.Regexp
	property string
}

// NewTagger builds a tagger for keyword. property defaults to the keyword in
// lower case.
func NewTagger(keyword, property string) *Tagger {
	if property == "" {
		property = strings.ToLower(keyword)
	}
	return &Tagger{
		keyword:  regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`),
		property: property,
	}
}

type tagState struct {
	tagged bool
}

func (t *Tagger) ParseQuery(intent query.Intent) (query.Intent, any) {
	state := tagState{}
	for _, f := range intent.Fields {
		if t.keyword.MatchString(f) {
			state.tagged = true
			break
		}
	}
	if !state.tagged {
		return intent, state
	}

	fields := make([]string, 0, len(intent.Fields))
	for _, f := range intent.Fields {
		if stripped := strings.TrimSpace(t.keyword.ReplaceAllString(f, "")); stripped != "" {
			fields = append(fields, stripped)
		}
	}
	intent.Fields = fields
	return intent, state
}

func (t *Tagger) FilterResult(result resultset.Result, state any) resultset.Result {
	if s, ok := state.(tagState); !ok || !s.tagged {
		return result
	}
	return result.Map(func(_ string, rows []resultset.Row) []resultset.Row {
		out := make([]resultset.Row, len(rows))
		for i, row := range rows {
			tagged := make(resultset.Row, len(row)+1)
			for k, v := range row {
				tagged[k] = v
			}
			tagged[t.property] = true
			out[i] = tagged
		}
		return out
	})
}
