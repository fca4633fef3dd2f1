package production

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState(t *testing.T) {
	s := NewState("prod_1714212345678_a1b2c3d4")
	assert.Equal(t, "prod_1714212345678_a1b2c3d4", s.SessionID)
	assert.False(t, s.CreatedAt.IsZero())
	assert.Zero(t, s.QualityScore)
	assert.Zero(t, s.QualityIterations)
	assert.False(t, s.IsComplete)
	assert.Nil(t, s.ContentPlan)
}

func TestRecordQualityScore_BestIsMonotone(t *testing.T) {
	s := NewState("prod_1714212345678_a1b2c3d4")

	s.RecordQualityScore(65)
	assert.Equal(t, 65, s.QualityScore)
	assert.Equal(t, 65, s.BestQualityScore)

	s.RecordQualityScore(85)
	assert.Equal(t, 85, s.BestQualityScore)

	// Regression keeps the best score.
	s.RecordQualityScore(70)
	assert.Equal(t, 70, s.QualityScore)
	assert.Equal(t, 85, s.BestQualityScore)
}

func TestAppendError_SetsTimestamp(t *testing.T) {
	s := NewState("prod_1714212345678_a1b2c3d4")
	s.AppendError(ToolError{Tool: "generate_visuals", Message: "boom", Category: CategoryPermanent})

	require.Len(t, s.Errors, 1)
	assert.False(t, s.Errors[0].Timestamp.IsZero())

	// Explicit timestamps are preserved.
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.AppendError(ToolError{Tool: "plan_sfx", Message: "skip", Category: CategoryRecoverable, Timestamp: ts})
	require.Len(t, s.Errors, 2)
	assert.Equal(t, ts, s.Errors[1].Timestamp)
}

func TestSceneAccessors(t *testing.T) {
	s := NewState("prod_1714212345678_a1b2c3d4")
	assert.Zero(t, s.SceneCount())
	assert.Nil(t, s.VisualForScene(0))
	assert.Nil(t, s.NarrationForScene(0))

	s.ContentPlan = &ContentPlan{
		Scenes: []Scene{
			{ID: "scene-1", Duration: 10},
			{ID: "scene-2", Duration: 12},
		},
	}
	s.Visuals = []Visual{{SceneID: "scene-1", URL: "https://img/1.png", Type: VisualTypeImage}}
	s.NarrationSegments = []NarrationSegment{{SceneID: "scene-1", AudioDuration: 9.5}}

	assert.Equal(t, 2, s.SceneCount())
	require.NotNil(t, s.VisualForScene(0))
	assert.Equal(t, "scene-1", s.VisualForScene(0).SceneID)
	assert.Nil(t, s.VisualForScene(1))
	assert.Nil(t, s.VisualForScene(-1))
	require.NotNil(t, s.NarrationForScene(0))
	assert.InDelta(t, 9.5, s.NarrationForScene(0).AudioDuration, 0.001)
}

func TestReportSummary(t *testing.T) {
	tests := []struct {
		name   string
		report Report
		want   string
	}{
		{
			name:   "all success",
			report: Report{SuccessCount: 8},
			want:   "All 8 tool calls succeeded.",
		},
		{
			name:   "fallbacks only",
			report: Report{SuccessCount: 7, FallbackCount: 1},
			want:   "7 tool calls succeeded; 1 used fallbacks.",
		},
		{
			name: "failures",
			report: Report{
				SuccessCount: 5, FailureCount: 2, FallbackCount: 1,
				Errors: []ToolError{
					{Tool: "generate_visuals", Category: CategoryPermanent},
					{Tool: "plan_sfx", Category: CategoryRecoverable},
				},
			},
			want: "5 tool calls succeeded, 2 failed (1 recovered by fallback). Affected tools: generate_visuals, plan_sfx.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.report.BuildSummary("")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, tt.report.Summary)
		})
	}
}

func TestReportSummary_ExtraText(t *testing.T) {
	r := Report{SuccessCount: 3}
	got := r.BuildSummary("Stopped at the iteration limit (20).")
	assert.Contains(t, got, "iteration limit")
}

func TestReportHasPermanentError(t *testing.T) {
	r := Report{Errors: []ToolError{{Tool: "a", Category: CategoryTransient}}}
	assert.False(t, r.HasPermanentError())

	r.Errors = append(r.Errors, ToolError{Tool: "b", Category: CategoryAuthentication})
	assert.True(t, r.HasPermanentError())
}

func TestCategoryRetryable(t *testing.T) {
	assert.True(t, CategoryTransient.Retryable())
	assert.False(t, CategoryRecoverable.Retryable())
	assert.False(t, CategoryPermanent.Retryable())
	assert.False(t, CategoryValidation.Retryable())
	assert.False(t, CategoryAuthentication.Retryable())
}
