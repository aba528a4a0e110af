// Package otelhelper provides distributed tracing helpers for the ordering core.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentScope names the tracer used across the module.
const InstrumentScope = "github.com/dukex/labflow"

const (
	// Common attribute keys.
	WorkflowIDKey    = "labflow.workflow.id"
	BundleIDKey      = "labflow.bundle.id"
	JobIDKey         = "labflow.job.id"
	SOWIDKey         = "labflow.sow.id"
	ServiceIDKey     = "labflow.service.id"
	SignatureRoleKey = "labflow.signature.role"
	NodeCountKey     = "labflow.graph.nodes"
	EdgeCountKey     = "labflow.graph.edges"
	BuildModeKey     = "labflow.graph.build_mode"
	JobWorkflowsKey  = "labflow.job.workflows"
)

// Tracer returns the tracer of the globally installed provider. It is a no-op until
// NewTracerProvider runs.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentScope)
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// NewTracerProvider installs an OTLP/HTTP exporting provider as the global provider.
// The exporter reads the standard OTEL_EXPORTER_OTLP_* variables. Callers must
// Shutdown the provider to flush spans.
func NewTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}
