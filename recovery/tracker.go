package recovery

import (
	"sync"

	"github.com/lordpython/aisoulstudio/production"
)

// ErrorTracker aggregates a run's tool outcomes into the partial-success
// report. One tracker lives for one orchestrator run.
type ErrorTracker struct {
	mu        sync.Mutex
	successes int
	failures  int
	fallbacks int
	errors    []production.ToolError
}

// NewErrorTracker returns an empty tracker.
func NewErrorTracker() *ErrorTracker {
	return &ErrorTracker{}
}

// RecordSuccess counts a successful tool call.
func (t *ErrorTracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successes++
}

// RecordFailure counts an unrecovered failure and keeps its record.
func (t *ErrorTracker) RecordFailure(e production.ToolError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures++
	t.errors = append(t.errors, e)
}

// RecordFallback counts a failure recovered by a fallback. The record keeps
// the originating error with the applied action; the call itself does not
// count as a failure since the pipeline got a usable result.
func (t *ErrorTracker) RecordFallback(e production.ToolError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fallbacks++
	t.errors = append(t.errors, e)
}

// Counts returns the current (success, failure, fallback) counters.
func (t *ErrorTracker) Counts() (successes, failures, fallbacks int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.successes, t.failures, t.fallbacks
}

// Errors returns a copy of the recorded errors in order.
func (t *ErrorTracker) Errors() []production.ToolError {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]production.ToolError(nil), t.errors...)
}

// HasFatal reports whether any recorded error is pipeline-fatal.
func (t *ErrorTracker) HasFatal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.errors {
		if e.Category == production.CategoryAuthentication {
			return true
		}
	}
	return false
}

// Report builds the partial-success report with its human summary. The
// extra string is appended to the summary sentence; pass "" for none.
func (t *ErrorTracker) Report(extra string) *production.Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := &production.Report{
		SuccessCount:  t.successes,
		FailureCount:  t.failures,
		FallbackCount: t.fallbacks,
		Errors:        append([]production.ToolError(nil), t.errors...),
	}
	r.BuildSummary(extra)
	return r
}
