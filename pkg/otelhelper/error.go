package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks span as failed and records err with attrs on the exception event.
// A nil err leaves the span untouched.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}
