package production

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCategory classifies a tool failure for retry and fallback decisions.
type ErrorCategory string

// Error categories. Transient errors are retried with backoff; permanent,
// validation, and authentication errors are not.
const (
	CategoryTransient      ErrorCategory = "transient"
	CategoryRecoverable    ErrorCategory = "recoverable"
	CategoryPermanent      ErrorCategory = "permanent"
	CategoryValidation     ErrorCategory = "validation"
	CategoryAuthentication ErrorCategory = "authentication"
)

// Retryable reports whether the category is retried by the recovery harness.
func (c ErrorCategory) Retryable() bool {
	return c == CategoryTransient
}

// ToolError is one entry of the append-only session error log.
type ToolError struct {
	Tool            string        `json:"tool"`
	Message         string        `json:"error"`
	Category        ErrorCategory `json:"category"`
	Timestamp       time.Time     `json:"timestamp"`
	RetryCount      int           `json:"retryCount"`
	Recoverable     bool          `json:"recoverable"`
	FallbackApplied string        `json:"fallbackApplied,omitempty"`
}

// Report is the partial-success aggregation written into session state when
// a run terminates, whatever the exit path.
type Report struct {
	SuccessCount  int         `json:"successCount"`
	FailureCount  int         `json:"failureCount"`
	FallbackCount int         `json:"fallbackCount"`
	Summary       string      `json:"summary"`
	Errors        []ToolError `json:"errors,omitempty"`
}

// BuildSummary renders a one-paragraph human summary of the run outcome.
func (r *Report) BuildSummary(extra string) string {
	var sb strings.Builder
	switch {
	case r.FailureCount == 0 && r.FallbackCount == 0:
		fmt.Fprintf(&sb, "All %d tool calls succeeded.", r.SuccessCount)
	case r.FailureCount == 0:
		fmt.Fprintf(&sb, "%d tool calls succeeded; %d used fallbacks.", r.SuccessCount, r.FallbackCount)
	default:
		fmt.Fprintf(&sb, "%d tool calls succeeded, %d failed (%d recovered by fallback).",
			r.SuccessCount, r.FailureCount, r.FallbackCount)
	}
	if len(r.Errors) > 0 {
		tools := make([]string, 0, len(r.Errors))
		seen := make(map[string]bool, len(r.Errors))
		for _, e := range r.Errors {
			if !seen[e.Tool] {
				seen[e.Tool] = true
				tools = append(tools, e.Tool)
			}
		}
		fmt.Fprintf(&sb, " Affected tools: %s.", strings.Join(tools, ", "))
	}
	if extra != "" {
		sb.WriteString(" ")
		sb.WriteString(extra)
	}
	r.Summary = sb.String()
	return r.Summary
}

// HasPermanentError reports whether the error list contains at least one
// permanent, validation, or authentication failure.
func (r *Report) HasPermanentError() bool {
	for _, e := range r.Errors {
		switch e.Category {
		case CategoryPermanent, CategoryValidation, CategoryAuthentication:
			return true
		}
	}
	return false
}
