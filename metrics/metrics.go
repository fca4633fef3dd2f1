// Package metrics exposes the Prometheus collectors for the production
// pipeline. Collectors register into the default registry at init; serve
// mode mounts Handler() under /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Invocation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeCached  = "cached"
)

var (
	toolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studio_tool_invocations_total",
		Help: "Tool invocations by tool name and outcome.",
	}, []string{"tool", "outcome"})

	toolRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studio_tool_retries_total",
		Help: "Retry attempts by tool name.",
	}, []string{"tool"})

	fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studio_fallbacks_total",
		Help: "Applied fallbacks by tool name and fallback action.",
	}, []string{"tool", "action"})

	toolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "studio_tool_duration_seconds",
		Help:    "Wall-clock tool execution time by tool name.",
		Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 180, 600},
	}, []string{"tool"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "studio_active_sessions",
		Help: "Number of live production sessions in the store.",
	})
)

// RecordInvocation counts one tool invocation with its outcome.
func RecordInvocation(tool, outcome string) {
	toolInvocations.WithLabelValues(tool, outcome).Inc()
}

// RecordRetry counts one retry attempt for a tool.
func RecordRetry(tool string) {
	toolRetries.WithLabelValues(tool).Inc()
}

// RecordFallback counts one applied fallback action.
func RecordFallback(tool, action string) {
	fallbacks.WithLabelValues(tool, action).Inc()
}

// ObserveToolDuration records one tool execution duration in seconds.
func ObserveToolDuration(tool string, seconds float64) {
	toolDuration.WithLabelValues(tool).Observe(seconds)
}

// SetActiveSessions sets the live-session gauge.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
