package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"restql/internal/query"
	"restql/internal/resultset"
)

// Select parses and runs a SELECT. Entities are fetched concurrently; if any
// fetch fails the whole query fails.
func (e *Engine) Select(ctx context.Context, q string, data any) (resultset.Result, error) {
	s := e.snapshot()
	intent, err := query.Parse(q)
	if err != nil {
		return resultset.Result{}, err
	}
	intent, call := s.pipeline.ParseQuery(intent)
	if s.debug {
		s.logger.Debug("select compiled",
			slog.String("sql", intent.DebugSQL()),
			slog.Any("entities", intent.Entities),
		)
	}

	paths, err := requestPaths(intent, s.pathMap)
	if err != nil {
		return resultset.Result{}, err
	}
	e.metrics.RecordEntities(ctx, len(intent.Entities))

	payloads := make([]any, len(intent.Entities))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			res, err := s.client.DispatchFor(gctx, intent.Entities[i], path, http.MethodGet, data)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", intent.Entities[i], err)
			}
			payloads[i] = res.Data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resultset.Result{}, err
	}

	if where := whereIn(intent); where != nil {
		for i, entity := range intent.Entities {
			if predicateApplies(*where, entity) {
				payloads[i] = resultset.Restrict(payloads[i], entity, *where)
			}
		}
	}

	return s.builder.Build(payloads, intent.Entities, intent.Fields, intent.Conditions, call.ResultFilter()), nil
}

func whereIn(intent query.Intent) *query.Predicate {
	if intent.Conditions == nil || intent.Conditions.Where == nil {
		return nil
	}
	if intent.Conditions.Where.Operator != query.OpIn {
		return nil
	}
	return intent.Conditions.Where
}

// predicateApplies reports whether p targets entity: unscoped predicates
// apply to every entity.
func predicateApplies(p query.Predicate, entity string) bool {
	scope := p.Entity()
	return scope == "" || scope == entity
}

// requestPaths resolves the GET path of every entity: its nested route when
// one is mapped, entity/value for a WHERE equality, else the entity itself.
func requestPaths(intent query.Intent, pathMap map[string]string) ([]string, error) {
	var where *query.Predicate
	if intent.Conditions != nil {
		where = intent.Conditions.Where
	}
	paths := make([]string, len(intent.Entities))
	for i, entity := range intent.Entities {
		if template, ok := pathMap[entity]; ok && template != "" {
			p, err := nestedRoute(template, where)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", entity, err)
			}
			paths[i] = p
			continue
		}
		if where != nil && where.Operator == query.OpEquals && predicateApplies(*where, entity) {
			if v := fmt.Sprint(where.Value); v != "" {
				paths[i] = entity + "/" + url.PathEscape(v)
				continue
			}
		}
		paths[i] = entity
	}
	return paths, nil
}

var routeParam = regexp.MustCompile(`\{([^{}]*)\}`)

// nestedRoute fills {field} placeholders from the WHERE equality.
func nestedRoute(template string, where *query.Predicate) (string, error) {
	if where == nil {
		return "", ErrNestedRouteWithoutCondition
	}
	var unresolved []string
	out := routeParam.ReplaceAllStringFunc(template, func(m string) string {
		name := strings.TrimSpace(m[1 : len(m)-1])
		if where.Operator == query.OpEquals && (name == where.Field || name == where.Property()) {
			return url.PathEscape(fmt.Sprint(where.Value))
		}
		unresolved = append(unresolved, name)
		return m
	})
	if len(unresolved) > 0 {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedRouteParam, strings.Join(unresolved, ", "))
	}
	return out, nil
}
