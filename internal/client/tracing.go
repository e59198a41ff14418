package client

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func startDispatchSpan(ctx context.Context, method, entity string) (context.Context, trace.Span) {
	tracer := otel.Tracer("restql/client")
	ctx, span := tracer.Start(ctx, "restql.dispatch")
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("restql.entity", entity),
	)
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("restql.outcome", outcome))
}
