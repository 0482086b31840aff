package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/logging"
)

// record runs fn inside a tool span and reports its outcome to metrics and
// the audit log. Unregistered names are recorded under the unknown label.
func (r *Registry) record(ctx context.Context, name, backend string, args map[string]any, fn func(context.Context) (any, error)) (any, error) {
	label := instrumentation.ToolLabel(name, backend != "")
	toolUseID := instrumentation.ToolUseIDFromContext(ctx)

	ctx, span := instrumentation.StartToolSpan(ctx, label, backend, toolUseID)
	start := time.Now()

	invocation := instrumentation.NewToolInvocation(label, backend).
		WithToolUse(toolUseID, instrumentation.TurnIDFromContext(ctx)).
		WithSpanContext(ctx)
	if raw, err := json.Marshal(args); err == nil {
		invocation.WithArguments(raw)
	}

	result, err := fn(ctx)

	invocation.Complete(err)
	instrumentation.EndSpan(span, err)
	r.metrics.RecordToolDispatch(ctx, label, backend, invocation.Status(), time.Since(start))
	r.audit.LogToolInvocation(ctx, invocation)

	if err != nil {
		r.logger.Debug("tool dispatch failed",
			logging.Tool(name),
			logging.Backend(backend),
			logging.ToolUseID(toolUseID),
			logging.Err(err))
	}
	return result, err
}
