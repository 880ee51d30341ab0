// Package observe provides application-wide observability primitives for
// Squadnet: OpenTelemetry metrics and the provider setup that bridges them to
// Prometheus.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Squadnet metrics.
const meterName = "github.com/squadnet-ai/squadnet"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// TurnDuration tracks full agent response turns, including tool use.
	TurnDuration metric.Float64Histogram

	// LLMDuration tracks single LLM inference calls.
	LLMDuration metric.Float64Histogram

	// ToolExecutionDuration tracks MCP tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("server", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// AgentResponses counts agent transmissions. Use with attribute:
	//   attribute.String("agent_id", ...)
	AgentResponses metric.Int64Counter

	// RetryAttempts counts retried operations. Use with attribute:
	//   attribute.String("operation", ...)
	RetryAttempts metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("breaker", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// ActiveAgents tracks the number of registered agents.
	ActiveAgents metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// everything from sub-second tool calls to multi-minute agent turns.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("squadnet.agent.turn.duration",
		metric.WithDescription("Latency of a full agent response turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("squadnet.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("squadnet.tool_execution.duration",
		metric.WithDescription("Latency of MCP tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ToolCalls, err = m.Int64Counter("squadnet.tool.calls",
		metric.WithDescription("Total tool invocations by tool, server, and status."),
	); err != nil {
		return nil, err
	}
	if met.AgentResponses, err = m.Int64Counter("squadnet.agent.responses",
		metric.WithDescription("Total agent transmissions by agent ID."),
	); err != nil {
		return nil, err
	}
	if met.RetryAttempts, err = m.Int64Counter("squadnet.retry.attempts",
		metric.WithDescription("Total retried operations by operation name."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("squadnet.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}

	if met.ActiveAgents, err = m.Int64UpDownCounter("squadnet.active_agents",
		metric.WithDescription("Number of registered agents."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall records one tool invocation with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, server, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("server", server),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolExecutionDuration.Record(ctx, seconds, attrs)
}

// RecordRetry counts one re-attempted operation.
func (m *Metrics) RecordRetry(ctx context.Context, operation string) {
	m.RetryAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordBreakerTransition records one circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("to", to),
		),
	)
}
