package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
)

const instrumentationName = "github.com/fekuna/omnipos-inventory-service"

func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on the span and ends it. Expected business outcomes are
// tagged with their kind but do not mark the span as failed.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		kind := apperr.KindOf(err)
		span.SetAttributes(attribute.String("error.kind", string(kind)))
		if kind == apperr.InternalError || kind == apperr.ConcurrencyConflict {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
