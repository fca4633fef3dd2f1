package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordpython/aisoulstudio/production"
)

func TestErrorTrackerCounts(t *testing.T) {
	tr := NewErrorTracker()

	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordFallback(production.ToolError{
		Tool:            "generate_visuals",
		Message:         "400 Bad Request",
		Category:        production.CategoryPermanent,
		FallbackApplied: string(ActionPlaceholderVisual),
	})
	tr.RecordFailure(production.ToolError{
		Tool:     "generate_music",
		Message:  "task never completed",
		Category: production.CategoryRecoverable,
	})

	successes, failures, fallbacks := tr.Counts()
	assert.Equal(t, 3, successes)
	assert.Equal(t, 1, failures)
	assert.Equal(t, 1, fallbacks)

	errs := tr.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, "generate_visuals", errs[0].Tool)
	assert.Equal(t, string(ActionPlaceholderVisual), errs[0].FallbackApplied)
	assert.Equal(t, "generate_music", errs[1].Tool)
}

func TestErrorTrackerReport(t *testing.T) {
	tr := NewErrorTracker()
	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordFallback(production.ToolError{
		Tool:            "generate_visuals",
		Category:        production.CategoryPermanent,
		FallbackApplied: string(ActionPlaceholderVisual),
	})

	report := tr.Report("")
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 0, report.FailureCount)
	assert.Equal(t, 1, report.FallbackCount)
	assert.Contains(t, report.Summary, "2 tool calls succeeded")
	assert.Contains(t, report.Summary, "1 used fallbacks")
	assert.Contains(t, report.Summary, "generate_visuals")
	require.Len(t, report.Errors, 1)

	// The report is a snapshot; later records do not mutate it.
	tr.RecordFailure(production.ToolError{Tool: "export_final_video", Category: production.CategoryRecoverable})
	assert.Len(t, report.Errors, 1)
}

func TestErrorTrackerCleanRun(t *testing.T) {
	tr := NewErrorTracker()
	tr.RecordSuccess()
	tr.RecordSuccess()

	report := tr.Report("")
	assert.Equal(t, "All 2 tool calls succeeded.", report.Summary)
	assert.Empty(t, report.Errors)
	assert.False(t, report.HasPermanentError())
}

func TestErrorTrackerHasFatal(t *testing.T) {
	tr := NewErrorTracker()
	assert.False(t, tr.HasFatal())

	tr.RecordFailure(production.ToolError{Tool: "plan_video", Category: production.CategoryTransient})
	assert.False(t, tr.HasFatal())

	tr.RecordFailure(production.ToolError{Tool: "narrate_scenes", Category: production.CategoryAuthentication})
	assert.True(t, tr.HasFatal())
}
