package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"restql/internal/query"
)

func startQuerySpan(ctx context.Context, cmd query.Command) (context.Context, trace.Span) {
	tracer := otel.Tracer("restql/engine")
	ctx, span := tracer.Start(ctx, "restql.query")
	span.SetAttributes(attribute.String("restql.command", string(cmd)))
	return ctx, span
}

func finishQuerySpan(span trace.Span, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("restql.outcome", outcome))
}
