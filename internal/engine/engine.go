// Package engine executes query strings: it maps the statement verb to a
// handler, fans SELECTs out to one request per entity, and assembles the
// fetched payloads into a single result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"restql/internal/addon"
	"restql/internal/client"
	"restql/internal/observability"
	"restql/internal/query"
	"restql/internal/resultset"
)

var (
	// ErrUnsupportedCommand is returned for statements other than
	// SELECT, INSERT, UPDATE and DELETE.
	ErrUnsupportedCommand = errors.New("unsupported command")

	// ErrNestedRouteWithoutCondition is returned when an entity mapped to a
	// nested route is queried without a WHERE clause.
	ErrNestedRouteWithoutCondition = errors.New("cannot query a nested route without a conditional clause (e.g. WHERE clause)")

	// ErrUnresolvedRouteParam is returned when a nested route placeholder
	// is not bound by the WHERE clause.
	ErrUnresolvedRouteParam = errors.New("nested route placeholder not bound by WHERE clause")
)

// Config is the active configuration of an engine.
type Config struct {
	Client client.Options

	// PathMap maps an entity to a nested route template such as
	// "users/{users.id}/posts".
	PathMap map[string]string

	Addons []addon.Addon
}

type handler func(ctx context.Context, q string, data any) (any, error)

// Engine runs queries against the configured REST API. It is safe for
// concurrent use; SetConfig swaps the configuration atomically.
type Engine struct {
	mu       sync.RWMutex
	client   *client.Client
	pathMap  map[string]string
	pipeline *addon.Pipeline
	builder  resultset.Builder

	logger   *slog.Logger
	debug    bool
	metrics  *observability.QueryMetrics
	handlers map[query.Command]handler
}

// New builds an engine with cfg as its active configuration.
func New(cfg Config) *Engine {
	e := &Engine{}
	e.apply(cfg)
	e.handlers = map[query.Command]handler{
		query.CommandSelect: func(ctx context.Context, q string, data any) (any, error) { return e.Select(ctx, q, data) },
		query.CommandInsert: func(ctx context.Context, q string, data any) (any, error) { return e.Insert(ctx, q, data) },
		query.CommandUpdate: func(ctx context.Context, q string, data any) (any, error) { return e.Update(ctx, q, data) },
		query.CommandDelete: func(ctx context.Context, q string, _ any) (any, error) { return e.Delete(ctx, q) },
	}
	return e
}

func (e *Engine) apply(cfg Config) {
	logger := cfg.Client.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e.client = client.New(cfg.Client)
	e.pathMap = cfg.PathMap
	e.pipeline = addon.Compose(cfg.Addons...)
	e.builder = resultset.Builder{Logger: logger}
	e.logger = logger
	e.debug = cfg.Client.Debug
	e.metrics = cfg.Client.Metrics
}

// SetConfig replaces the active configuration and clears all pagination
// state held by its store.
func (e *Engine) SetConfig(ctx context.Context, cfg Config) error {
	e.mu.Lock()
	e.apply(cfg)
	c := e.client
	e.mu.Unlock()
	if err := c.ResetPagination(ctx); err != nil {
		return fmt.Errorf("reset pagination state: %w", err)
	}
	return nil
}

// Cancel aborts the most recent in-flight request when cancellation is
// enabled.
func (e *Engine) Cancel() {
	e.snapshot().client.Cancel()
}

type snapshot struct {
	client   *client.Client
	pathMap  map[string]string
	pipeline *addon.Pipeline
	builder  resultset.Builder
	logger   *slog.Logger
	debug    bool
}

func (e *Engine) snapshot() snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return snapshot{
		client:   e.client,
		pathMap:  e.pathMap,
		pipeline: e.pipeline,
		builder:  e.builder,
		logger:   e.logger,
		debug:    e.debug,
	}
}

// Exec runs q. SELECT returns a resultset.Result; INSERT returns
// {entity: [created]}, UPDATE {entity: updated} and DELETE {"id": id}.
func (e *Engine) Exec(ctx context.Context, q string, data any) (any, error) {
	cmd, err := query.DetectCommand(q)
	if err != nil {
		if errors.Is(err, query.ErrMalformedQuery) {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedCommand, err)
		}
		return nil, err
	}
	h, ok := e.handlers[cmd]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCommand, cmd)
	}

	ctx, span := startQuerySpan(ctx, cmd)
	defer span.End()
	e.metrics.IncrementActiveQueries(ctx)
	defer e.metrics.DecrementActiveQueries(ctx)

	start := time.Now()
	out, err := h(ctx, q, data)
	e.metrics.RecordQuery(ctx, time.Since(start), err != nil, string(cmd))
	if r, ok := out.(resultset.Result); ok && err == nil {
		e.metrics.RecordResultsCount(ctx, r.Len(), string(cmd))
	}
	finishQuerySpan(span, err)
	if err != nil {
		e.logger.Debug("query failed", slog.String("command", string(cmd)), slog.String("error", err.Error()))
	}
	return out, err
}
