package instrumentation

import "context"

type turnIDKey struct{}

// WithTurnID returns a context carrying the id of the agent turn it belongs
// to. Tool dispatch reads it for audit records.
func WithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnIDKey{}, turnID)
}

// TurnIDFromContext returns the turn id stored by WithTurnID, or "".
func TurnIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(turnIDKey{}).(string)
	return id
}

type toolUseIDKey struct{}

// WithToolUseID returns a context carrying the model-assigned id of the tool
// use being dispatched.
func WithToolUseID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, toolUseIDKey{}, id)
}

// ToolUseIDFromContext returns the id stored by WithToolUseID, or "".
func ToolUseIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(toolUseIDKey{}).(string)
	return id
}
