// Package tracing wraps the real OpenTelemetry SDK around Coordinator
// phases, grounded on monitoring.go's OpenTelemetryTracer (the teacher's
// NewOpenTelemetryTracer/StartBusinessOperation/RecordError/
// FinishBusinessOperation quartet), generalized from business-rule spans
// to simulation-phase spans (Init/Step/Terminate, per model path).
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer starts spans around simulation phases.
type Tracer struct {
	tracer      oteltrace.Tracer
	serviceName string
	environment string
}

// NewTracer sets the global TracerProvider (no exporter or SpanProcessor is
// wired, and the provider itself is not returned) and returns a Tracer bound
// to serviceName.
func NewTracer(serviceName, environment string) (*Tracer, error) {
	if serviceName == "" {
		serviceName = "vle"
	}
	tp := trace.NewTracerProvider(
		trace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.DeploymentEnvironmentKey.String(environment),
		)),
	)
	otel.SetTracerProvider(tp)
	return &Tracer{tracer: otel.Tracer(serviceName), serviceName: serviceName, environment: environment}, nil
}

// StartPhase opens a span named after a Coordinator phase (e.g. "init",
// "step", "terminate") tagged with the model path it applies to.
func (t *Tracer) StartPhase(ctx context.Context, phase, modelPath string) (context.Context, oteltrace.Span) {
	return t.tracer.Start(ctx, phase, oteltrace.WithAttributes(
		attribute.String("vle.model_path", modelPath),
	))
}

// RecordError attaches err to the span active in ctx, tagging it with
// phase and modelPath so a trace backend can group failures by both.
func RecordError(ctx context.Context, phase, modelPath string, err error) {
	span := oteltrace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetAttributes(
		attribute.String("vle.phase", phase),
		attribute.String("vle.model_path", modelPath),
		attribute.String("error.message", err.Error()),
	)
	span.SetStatus(codes.Error, fmt.Sprintf("%s failed", phase))
}

// FinishPhase closes a span opened by StartPhase, marking success/failure.
func FinishPhase(span oteltrace.Span, success bool) {
	if span.IsRecording() {
		span.SetAttributes(attribute.Bool("vle.success", success))
		if success {
			span.SetStatus(codes.Ok, "phase completed")
		} else {
			span.SetStatus(codes.Error, "phase failed")
		}
	}
	span.End()
}

// ExtractIDs returns the hex trace and span IDs of the span active in ctx,
// or two empty strings if ctx carries no recording span. Used by
// telemetry/logging and telemetry/events to correlate log lines and bus
// events with a trace.
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
