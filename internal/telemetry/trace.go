package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan opens a span on the named tracer. Callers must End it.
//
//	ctx, span := telemetry.StartSpan(ctx, "sso/directory", "directory.Update",
//	    attribute.String(telemetry.AttrUserID, id),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError marks the span as failed. A nil error is ignored.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent adds a named event to the span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Attribute keys shared by the directory and provider spans.
const (
	AttrUserID       = "user.id"
	AttrUsername     = "user.username"
	AttrRolesAdded   = "roles.added"
	AttrRolesRemoved = "roles.removed"
	AttrRolesDesired = "roles.desired"
	AttrPageFirst    = "page.first"
	AttrPageMax      = "page.max"
)
