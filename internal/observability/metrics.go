package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QueryMetrics holds metrics for executed DSL queries.
type QueryMetrics struct {
	queryDuration  metric.Float64Histogram
	queryCounter   metric.Int64Counter
	errorCounter   metric.Int64Counter
	activeQueries  metric.Int64UpDownCounter
	entitiesCount  metric.Int64Histogram
	resultsCount   metric.Int64Histogram
	upstreamTime   metric.Float64Histogram
	upstreamCount  metric.Int64Counter
	refreshCounter metric.Int64Counter
	fallbackCount  metric.Int64Counter
	pageEvents     metric.Int64Counter
}

// InitQueryMetrics creates the query and upstream request instruments on
// the global meter provider.
func InitQueryMetrics() (*QueryMetrics, error) {
	return newQueryMetrics(otel.Meter("restql"))
}

func newQueryMetrics(meter metric.Meter) (*QueryMetrics, error) {
	queryDuration, err := meter.Float64Histogram(
		"restql.query.duration",
		metric.WithDescription("Duration of query executions in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query duration histogram: %w", err)
	}

	queryCounter, err := meter.Int64Counter(
		"restql.queries.total",
		metric.WithDescription("Total number of executed queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"restql.errors.total",
		metric.WithDescription("Total number of failed queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeQueries, err := meter.Int64UpDownCounter(
		"restql.queries.active",
		metric.WithDescription("Number of queries in flight"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active queries counter: %w", err)
	}

	entitiesCount, err := meter.Int64Histogram(
		"restql.query.entities",
		metric.WithDescription("Number of entities fetched per query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create entities histogram: %w", err)
	}

	resultsCount, err := meter.Int64Histogram(
		"restql.results.count",
		metric.WithDescription("Number of rows returned by queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create results count histogram: %w", err)
	}

	upstreamTime, err := meter.Float64Histogram(
		"restql.upstream.duration",
		metric.WithDescription("Duration of upstream REST calls in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream duration histogram: %w", err)
	}

	upstreamCount, err := meter.Int64Counter(
		"restql.upstream.requests.total",
		metric.WithDescription("Total number of upstream REST calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream counter: %w", err)
	}

	refreshCounter, err := meter.Int64Counter(
		"restql.upstream.refresh.total",
		metric.WithDescription("Number of credential refreshes triggered by 401 responses"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh counter: %w", err)
	}

	fallbackCount, err := meter.Int64Counter(
		"restql.upstream.fallback.total",
		metric.WithDescription("Number of calls retried on the default transport"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback counter: %w", err)
	}

	pageEvents, err := meter.Int64Counter(
		"restql.pagination.events.total",
		metric.WithDescription("Pagination state transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pagination counter: %w", err)
	}

	return &QueryMetrics{
		queryDuration:  queryDuration,
		queryCounter:   queryCounter,
		errorCounter:   errorCounter,
		activeQueries:  activeQueries,
		entitiesCount:  entitiesCount,
		resultsCount:   resultsCount,
		upstreamTime:   upstreamTime,
		upstreamCount:  upstreamCount,
		refreshCounter: refreshCounter,
		fallbackCount:  fallbackCount,
		pageEvents:     pageEvents,
	}, nil
}

// RecordQuery records a query execution with its duration and outcome.
func (m *QueryMetrics) RecordQuery(ctx context.Context, duration time.Duration, failed bool, command string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("command", command),
		attribute.Bool("has_errors", failed),
	}
	m.queryDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.queryCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if failed {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
	}
}

// RecordEntities records how many entities a SELECT fanned out to.
func (m *QueryMetrics) RecordEntities(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.entitiesCount.Record(ctx, int64(count))
}

// RecordResultsCount records the number of rows returned.
func (m *QueryMetrics) RecordResultsCount(ctx context.Context, count int, command string) {
	if m == nil {
		return
	}
	m.resultsCount.Record(ctx, int64(count), metric.WithAttributes(attribute.String("command", command)))
}

// RecordUpstream records one upstream call. status is 0 when no response
// was received.
func (m *QueryMetrics) RecordUpstream(ctx context.Context, duration time.Duration, method, entity string, status int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("entity", entity),
		attribute.Int("status", status),
	)
	m.upstreamTime.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.upstreamCount.Add(ctx, 1, attrs)
}

func (m *QueryMetrics) RecordRefresh(ctx context.Context, entity string) {
	if m == nil {
		return
	}
	m.refreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
}

func (m *QueryMetrics) RecordFallback(ctx context.Context, entity string) {
	if m == nil {
		return
	}
	m.fallbackCount.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
}

// RecordPagination records a pagination transition ("advance" or "exhausted").
func (m *QueryMetrics) RecordPagination(ctx context.Context, entity, event string) {
	if m == nil {
		return
	}
	m.pageEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("event", event),
	))
}

// IncrementActiveQueries increments the in-flight query gauge.
func (m *QueryMetrics) IncrementActiveQueries(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeQueries.Add(ctx, 1)
}

// DecrementActiveQueries decrements the in-flight query gauge.
func (m *QueryMetrics) DecrementActiveQueries(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeQueries.Add(ctx, -1)
}

// InitMetrics initializes all custom metrics.
func InitMetrics(logger *slog.Logger) (*QueryMetrics, error) {
	metrics, err := InitQueryMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize query metrics: %w", err)
	}

	logger.Info("custom query metrics initialized")
	return metrics, nil
}
