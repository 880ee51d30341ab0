package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewMetricsCreatesAllInstruments(t *testing.T) {
	t.Parallel()
	mp := sdkmetric.NewMeterProvider()
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m.TurnDuration == nil || m.LLMDuration == nil || m.ToolExecutionDuration == nil ||
		m.ToolCalls == nil || m.AgentResponses == nil || m.RetryAttempts == nil ||
		m.BreakerTransitions == nil || m.ActiveAgents == nil {
		t.Error("NewMetrics left an instrument nil")
	}
}

func TestRecordToolCallExports(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ctx := context.Background()
	m.RecordToolCall(ctx, "get_weather", "weather", "ok", 0.42)
	m.RecordBreakerTransition(ctx, "weather", "open")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, metr := range sm.Metrics {
			names[metr.Name] = true
		}
	}
	for _, want := range []string{"squadnet.tool.calls", "squadnet.tool_execution.duration", "squadnet.breaker.transitions"} {
		if !names[want] {
			t.Errorf("metric %q not exported; got %v", want, names)
		}
	}
}

func TestDefaultMetricsSingleton(t *testing.T) {
	t.Parallel()
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics should return the same instance")
	}
}
