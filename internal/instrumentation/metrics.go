package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod   = "method"
	attrPath     = "path"
	attrStatus   = "status"
	attrProvider = "provider"
	attrMode     = "mode"
	attrTool     = "tool"
	attrBackend  = "backend"
	attrOutcome  = "outcome"
)

var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0}

// Metrics records the agent's counters and histograms. The zero value is a
// valid no-op recorder.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	modelRequestsTotal   metric.Int64Counter
	modelRequestDuration metric.Float64Histogram

	toolDispatchTotal    metric.Int64Counter
	toolDispatchDuration metric.Float64Histogram

	agentTurnsTotal metric.Int64Counter
	activeTurns     metric.Int64UpDownCounter

	domBridgeConnected metric.Int64UpDownCounter
}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.httpRequestsTotal, "http_requests_total", "Total number of HTTP requests", "{request}"},
		{&m.modelRequestsTotal, "model_requests_total", "Total number of model gateway requests", "{request}"},
		{&m.toolDispatchTotal, "tool_dispatch_total", "Total number of tool dispatches", "{dispatch}"},
		{&m.agentTurnsTotal, "agent_turns_total", "Total number of finished agent turns", "{turn}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	histograms := []struct {
		dst     *metric.Float64Histogram
		name    string
		desc    string
		buckets []float64
	}{
		{&m.httpRequestDuration, "http_request_duration_seconds", "HTTP request duration in seconds",
			[]float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0}},
		{&m.modelRequestDuration, "model_request_duration_seconds", "Model gateway request duration in seconds", latencyBuckets},
		{&m.toolDispatchDuration, "tool_dispatch_duration_seconds", "Tool dispatch duration in seconds", latencyBuckets},
	}
	for _, h := range histograms {
		*h.dst, err = meter.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(h.buckets...),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s histogram: %w", h.name, err)
		}
	}

	m.activeTurns, err = meter.Int64UpDownCounter("active_turns",
		metric.WithDescription("Number of agent turns currently executing"),
		metric.WithUnit("{turn}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create active_turns gauge: %w", err)
	}

	m.domBridgeConnected, err = meter.Int64UpDownCounter("dom_bridge_connected",
		metric.WithDescription("Whether a webmail page is attached to the DOM bridge"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create dom_bridge_connected gauge: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordModelRequest records one gateway exchange.
//
// Parameters:
//   - provider: "anthropic" or "vertex"
//   - mode: ModeSingleShot or ModeStreaming
//   - status: StatusSuccess, StatusError or StatusCancelled
func (m *Metrics) RecordModelRequest(ctx context.Context, provider, mode, status string, duration time.Duration) {
	if m == nil || m.modelRequestsTotal == nil {
		return
	}
	m.modelRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrProvider, provider),
		attribute.String(attrMode, mode),
		attribute.String(attrStatus, status),
	))
	m.modelRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrProvider, provider),
		attribute.String(attrMode, mode),
	))
}

// RecordToolDispatch records one tool execution. tool must already be
// cardinality-bounded, see ToolLabel.
func (m *Metrics) RecordToolDispatch(ctx context.Context, tool, backend, status string, duration time.Duration) {
	if m == nil || m.toolDispatchTotal == nil {
		return
	}
	m.toolDispatchTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrBackend, backend),
		attribute.String(attrStatus, status),
	))
	m.toolDispatchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrBackend, backend),
	))
}

// RecordTurn records a finished turn with its outcome.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	if m == nil || m.agentTurnsTotal == nil {
		return
	}
	m.agentTurnsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOutcome, outcome)))
}

// IncrementActiveTurns increments the active turn gauge.
func (m *Metrics) IncrementActiveTurns(ctx context.Context) {
	if m == nil || m.activeTurns == nil {
		return
	}
	m.activeTurns.Add(ctx, 1)
}

// DecrementActiveTurns decrements the active turn gauge.
func (m *Metrics) DecrementActiveTurns(ctx context.Context) {
	if m == nil || m.activeTurns == nil {
		return
	}
	m.activeTurns.Add(ctx, -1)
}

// SetBridgeConnected moves the bridge gauge by +1 on attach and -1 on detach.
func (m *Metrics) SetBridgeConnected(ctx context.Context, connected bool) {
	if m == nil || m.domBridgeConnected == nil {
		return
	}
	if connected {
		m.domBridgeConnected.Add(ctx, 1)
		return
	}
	m.domBridgeConnected.Add(ctx, -1)
}
