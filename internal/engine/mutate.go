package engine

import (
	"context"
	"fmt"
	"net/url"

	"restql/internal/query"
)

// Insert posts a new record. Without data the record comes from the
// statement's VALUES list; with data the statement only names the entity.
func (e *Engine) Insert(ctx context.Context, q string, data any) (map[string][]any, error) {
	s := e.snapshot()
	ins := query.ParseInsert(q)
	if ins.Entity == "" {
		return nil, fmt.Errorf("%w: INSERT INTO <entity> [(<fields>) VALUES (<values>)]", query.ErrMalformedQuery)
	}
	payload := data
	if payload == nil {
		payload = ins.Data
	}

	res, err := s.client.Post(ctx, ins.Entity, payload)
	if err != nil {
		return nil, err
	}
	return map[string][]any{ins.Entity: {res.Data}}, nil
}

// Update puts new values to entity/id. With data the SET list may be omitted.
func (e *Engine) Update(ctx context.Context, q string, data any) (map[string]any, error) {
	s := e.snapshot()
	var entity, id string
	var payload any
	if data != nil {
		var err error
		entity, id, err = query.ParseUpdateTarget(q)
		if err != nil {
			return nil, err
		}
		payload = data
	} else {
		upd, err := query.ParseUpdate(q)
		if err != nil {
			return nil, err
		}
		entity, id, payload = upd.Entity, upd.ID, upd.Data
	}

	res, err := s.client.Put(ctx, entity+"/"+url.PathEscape(id), payload)
	if err != nil {
		return nil, err
	}
	return map[string]any{entity: res.Data}, nil
}

// Delete removes entity/id and reports the id.
func (e *Engine) Delete(ctx context.Context, q string) (map[string]any, error) {
	s := e.snapshot()
	del, err := query.ParseDelete(q)
	if err != nil {
		return nil, err
	}
	if _, err := s.client.Delete(ctx, del.Entity+"/"+url.PathEscape(del.ID)); err != nil {
		return nil, err
	}
	return map[string]any{"id": del.ID}, nil
}
