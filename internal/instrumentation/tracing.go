package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer used for agent spans.
const TracerName = "github.com/teemow/inboxagent"

// Span attribute keys.
const (
	SpanAttrTurnID     = "agent.turn_id"
	SpanAttrIterations = "agent.iterations"
	SpanAttrOutcome    = "agent.outcome"
	SpanAttrProvider   = "llm.provider"
	SpanAttrModel      = "llm.model"
	SpanAttrMode       = "llm.mode"
	SpanAttrStopReason = "llm.stop_reason"
	SpanAttrTool       = "tool.name"
	SpanAttrToolUseID  = "tool.use_id"
	SpanAttrBackend    = "tool.backend"
)

func tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan starts a span on the global tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartTurnSpan starts the agent.turn span.
func StartTurnSpan(ctx context.Context, turnID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "agent.turn", attribute.String(SpanAttrTurnID, turnID))
}

// StartModelSpan starts the llm.converse span as a client span.
func StartModelSpan(ctx context.Context, provider, model, mode string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "llm.converse",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(SpanAttrProvider, provider),
			attribute.String(SpanAttrModel, model),
			attribute.String(SpanAttrMode, mode),
		))
}

// StartToolSpan starts a tool.<name> span.
func StartToolSpan(ctx context.Context, tool, backend, toolUseID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String(SpanAttrTool, tool),
		attribute.String(SpanAttrBackend, backend),
	}
	if toolUseID != "" {
		attrs = append(attrs, attribute.String(SpanAttrToolUseID, toolUseID))
	}
	return StartSpan(ctx, "tool."+tool, attrs...)
}

// SetSpanError records err on span and marks it failed.
func SetSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanSuccess marks span as successful.
func SetSpanSuccess(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// EndSpan sets the status from err and ends span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		SetSpanError(span, err)
	} else {
		SetSpanSuccess(span)
	}
	span.End()
}

// GetTraceID returns the trace id of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// GetSpanID returns the span id of the span in ctx, or "".
func GetSpanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasSpanID() {
		return ""
	}
	return sc.SpanID().String()
}
