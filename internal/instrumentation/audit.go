package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/inboxagent/internal/logging"
)

// ToolInvocation is one audit record for a tool dispatch.
type ToolInvocation struct {
	Tool      string
	Backend   string
	ToolUseID string
	TurnID    string

	// Arguments is the raw tool input. Only logged when the audit logger
	// includes arguments.
	Arguments []byte

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation starts timing a dispatch of tool.
func NewToolInvocation(tool, backend string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		Backend:   backend,
		StartTime: time.Now(),
	}
}

// WithToolUse records the model-assigned tool_use id and the owning turn.
func (ti *ToolInvocation) WithToolUse(toolUseID, turnID string) *ToolInvocation {
	ti.ToolUseID = toolUseID
	ti.TurnID = turnID
	return ti
}

// WithArguments attaches the raw tool input.
func (ti *ToolInvocation) WithArguments(args []byte) *ToolInvocation {
	ti.Arguments = args
	return ti
}

// WithSpanContext copies trace and span ids from ctx.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	ti.TraceID = GetTraceID(ctx)
	ti.SpanID = GetSpanID(ctx)
	return ti
}

// Complete stops the timer and records the outcome.
func (ti *ToolInvocation) Complete(err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = err == nil
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Status returns StatusSuccess or StatusError.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns the structured fields of the record.
func (ti *ToolInvocation) LogAttrs(includeArguments bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String(logging.KeyTool, ti.Tool),
		slog.String(logging.KeyBackend, ti.Backend),
		slog.Duration(logging.KeyDuration, ti.Duration),
		slog.String(logging.KeyStatus, ti.Status()),
	}
	if ti.ToolUseID != "" {
		attrs = append(attrs, slog.String(logging.KeyToolUseID, ti.ToolUseID))
	}
	if ti.TurnID != "" {
		attrs = append(attrs, slog.String(logging.KeyTurnID, ti.TurnID))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	if includeArguments && len(ti.Arguments) > 0 {
		attrs = append(attrs, slog.String("arguments", string(ti.Arguments)))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, ti.Error))
	}
	return attrs
}

// AuditLogger writes one record per tool dispatch.
type AuditLogger struct {
	logger           *slog.Logger
	enabled          bool
	includeArguments bool
}

// NewAuditLogger creates an AuditLogger. A nil logger uses slog.Default.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:           logger,
		enabled:          config.Enabled,
		includeArguments: config.IncludeArguments,
	}
}

// LogToolInvocation logs tool_executed at info level or tool_failed at warn.
func (al *AuditLogger) LogToolInvocation(ctx context.Context, ti *ToolInvocation) {
	if al == nil || !al.enabled || ti == nil {
		return
	}
	level, msg := slog.LevelInfo, "tool_executed"
	if !ti.Success {
		level, msg = slog.LevelWarn, "tool_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, ti.LogAttrs(al.includeArguments)...)
}
