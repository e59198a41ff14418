package engine

import (
	"fmt"
	"net/url"

	"restql/internal/query"
)

// Plan describes how a statement would be executed without sending it.
type Plan struct {
	Command  query.Command    `json:"command" yaml:"command"`
	Intent   *query.Intent    `json:"intent,omitempty" yaml:"intent,omitempty"`
	SQL      string           `json:"sql,omitempty" yaml:"sql,omitempty"`
	Args     []any            `json:"args,omitempty" yaml:"args,omitempty"`
	Requests []PlannedRequest `json:"requests" yaml:"requests"`
}

// PlannedRequest is one REST call a statement issues.
type PlannedRequest struct {
	Method string `json:"method" yaml:"method"`
	Path   string `json:"path" yaml:"path"`
	Body   any    `json:"body,omitempty" yaml:"body,omitempty"`
}

// Explain compiles q and lists the calls it would make. data is the payload
// Exec would receive.
func (e *Engine) Explain(q string, data any) (*Plan, error) {
	cmd, err := query.DetectCommand(q)
	if err != nil {
		return nil, err
	}
	s := e.snapshot()
	plan := &Plan{Command: cmd}

	switch cmd {
	case query.CommandSelect:
		intent, err := query.Parse(q)
		if err != nil {
			return nil, err
		}
		intent, _ = s.pipeline.ParseQuery(intent)
		sqlText, args, err := intent.SQL()
		if err != nil {
			return nil, err
		}
		paths, err := requestPaths(intent, s.pathMap)
		if err != nil {
			return nil, err
		}
		plan.Intent, plan.SQL, plan.Args = &intent, sqlText, args
		for _, p := range paths {
			plan.Requests = append(plan.Requests, PlannedRequest{Method: "GET", Path: p})
		}

	case query.CommandInsert:
		ins := query.ParseInsert(q)
		if ins.Entity == "" {
			return nil, fmt.Errorf("%w: INSERT INTO <entity> [(<fields>) VALUES (<values>)]", query.ErrMalformedQuery)
		}
		body := data
		if body == nil {
			body = ins.Data
		}
		plan.Requests = []PlannedRequest{{Method: "POST", Path: ins.Entity, Body: body}}

	case query.CommandUpdate:
		entity, id, err := query.ParseUpdateTarget(q)
		if err != nil {
			return nil, err
		}
		body := data
		if body == nil {
			upd, err := query.ParseUpdate(q)
			if err != nil {
				return nil, err
			}
			body = upd.Data
		}
		plan.Requests = []PlannedRequest{{Method: "PUT", Path: entity + "/" + url.PathEscape(id), Body: body}}

	case query.CommandDelete:
		del, err := query.ParseDelete(q)
		if err != nil {
			return nil, err
		}
		plan.Requests = []PlannedRequest{{Method: "DELETE", Path: del.Entity + "/" + url.PathEscape(del.ID)}}
	}
	return plan, nil
}
