// Package addon lets callers rewrite a parsed query before it runs and
// post-process its result afterwards. State an addon needs between the two
// phases is returned from ParseQuery and handed back to FilterResult, so
// concurrent queries never share it.
package addon

import (
	"restql/internal/query"
	"restql/internal/resultset"
)

// Addon is a query rewrite paired with a result filter.
type Addon interface {
	// ParseQuery rewrites the intent and returns per-call state.
	ParseQuery(intent query.Intent) (query.Intent, any)

	// FilterResult post-processes the result using the state returned by
	// ParseQuery for the same query.
	FilterResult(result resultset.Result, state any) resultset.Result
}

// Funcs adapts a stateless pair of functions. Nil functions are identities.
type Funcs struct {
	Parse  func(query.Intent) query.Intent
	Filter func(resultset.Result) resultset.Result
}

func (f Funcs) ParseQuery(intent query.Intent) (query.Intent, any) {
	if f.Parse == nil {
		return intent, nil
	}
	return f.Parse(intent), nil
}

func (f Funcs) FilterResult(result resultset.Result, _ any) resultset.Result {
	if f.Filter == nil {
		return result
	}
	return f.Filter(result)
}

// Pipeline right-composes addons: the last addon runs first in both phases.
type Pipeline struct {
	addons []Addon
}

// Compose builds a pipeline. With no addons both phases are identities.
func Compose(addons ...Addon) *Pipeline {
	return &Pipeline{addons: append([]Addon(nil), addons...)}
}

// Call holds the state of one query execution through the pipeline.
type Call struct {
	addons []Addon
	states []any
}

// ParseQuery runs every addon's query rewrite and returns the call whose
// Filter must be applied to the same query's result.
func (p *Pipeline) ParseQuery(intent query.Intent) (query.Intent, *Call) {
	call := &Call{}
	if p == nil {
		return intent, call
	}
	call.addons = p.addons
	call.states = make([]any, len(p.addons))
	for i := len(p.addons) - 1; i >= 0; i-- {
		intent, call.states[i] = p.addons[i].ParseQuery(intent)
	}
	return intent, call
}

// Filter runs every addon's result filter.
func (c *Call) Filter(result resultset.Result) resultset.Result {
	if c == nil {
		return result
	}
	for i := len(c.addons) - 1; i >= 0; i-- {
		result = c.addons[i].FilterResult(result, c.states[i])
	}
	return result
}

// ResultFilter adapts the call to the builder's filter hook.
func (c *Call) ResultFilter() resultset.Filter {
	return c.Filter
}
