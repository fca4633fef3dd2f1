package tools

import (
	"context"
	"time"

	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/metrics"
)

// InstrumentedExecutor wraps an Executor with Prometheus instrumentation:
// per-tool invocation counters keyed by outcome and a duration histogram.
// In-band failure payloads count as failures even though the Go error is nil.
type InstrumentedExecutor struct {
	inner Executor
}

// NewInstrumentedExecutor wraps an executor with metrics recording.
func NewInstrumentedExecutor(inner Executor) *InstrumentedExecutor {
	return &InstrumentedExecutor{inner: inner}
}

// Execute runs the underlying executor and records outcome and duration.
func (e *InstrumentedExecutor) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	start := time.Now()
	payload, err := e.inner.Execute(ctx, call)
	metrics.ObserveToolDuration(call.Name, time.Since(start).Seconds())

	outcome := metrics.OutcomeSuccess
	if err != nil || !PayloadSuccessful(payload) {
		outcome = metrics.OutcomeFailure
	}
	metrics.RecordInvocation(call.Name, outcome)

	return payload, err
}

// ListTools delegates to the inner executor.
func (e *InstrumentedExecutor) ListTools() []llm.ToolDefinition {
	return e.inner.ListTools()
}

var _ Executor = (*InstrumentedExecutor)(nil)
