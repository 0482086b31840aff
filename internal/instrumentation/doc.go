// Package instrumentation provides OpenTelemetry metrics, tracing and tool
// audit logging for the agent.
//
// # Metrics
//
//   - model_requests_total{provider,mode,status} and model_request_duration_seconds
//   - tool_dispatch_total{tool,backend,status} and tool_dispatch_duration_seconds
//   - agent_turns_total{outcome} and active_turns
//   - http_requests_total and http_request_duration_seconds
//   - dom_bridge_connected
//
// Tool labels are bounded with ToolLabel so names invented by the model
// collapse into "unknown".
//
// # Tracing
//
// Each turn produces an agent.turn span with llm.converse and tool.<name>
// children.
//
// # Configuration
//
// Environment variables:
//   - INSTRUMENTATION_ENABLED (default true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT
//   - OTEL_TRACES_SAMPLER_ARG (default 0.1)
//   - OTEL_SERVICE_NAME (default inboxagent)
package instrumentation
