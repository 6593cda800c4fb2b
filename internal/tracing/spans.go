package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const runtimeTracerName = "swerex-runtime"

func runtimeTracer() trace.Tracer {
	return Tracer(runtimeTracerName)
}

// TraceSessionCreate creates a span for bash session startup.
func TraceSessionCreate(ctx context.Context, session string, startupSources int) (context.Context, trace.Span) {
	ctx, span := runtimeTracer().Start(ctx, "session.create",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("session", session),
		attribute.Int("startup_sources", startupSources),
	)
	return ctx, span
}

// TraceSessionRun creates a span for a command dispatched to a session.
func TraceSessionRun(ctx context.Context, session string, interactive bool, timeout float64) (context.Context, trace.Span) {
	ctx, span := runtimeTracer().Start(ctx, "session.run",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("session", session),
		attribute.Bool("interactive", interactive),
		attribute.Float64("timeout_s", timeout),
	)
	return ctx, span
}

// TraceSessionClose creates a span for session teardown.
func TraceSessionClose(ctx context.Context, session string) (context.Context, trace.Span) {
	ctx, span := runtimeTracer().Start(ctx, "session.close",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(attribute.String("session", session))
	return ctx, span
}

// TraceExecute creates a span for a one-shot command execution.
func TraceExecute(ctx context.Context, shell bool, timeout float64) (context.Context, trace.Span) {
	ctx, span := runtimeTracer().Start(ctx, "runtime.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.Bool("shell", shell),
		attribute.Float64("timeout_s", timeout),
	)
	return ctx, span
}

// TraceFileOp creates a span for a file read, write or upload.
func TraceFileOp(ctx context.Context, op, path string) (context.Context, trace.Span) {
	ctx, span := runtimeTracer().Start(ctx, "runtime."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(attribute.String("path", path))
	return ctx, span
}

// RecordResult records an operation outcome on its span.
func RecordResult(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
