package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordpython/aisoulstudio/production"
)

// wellFormedState builds a three-scene plan whose durations exactly match
// the measured narration and whose pacing sits inside the accepted band.
func wellFormedState() *production.State {
	state := production.NewState("prod_1700000000000_abc123")
	state.ContentPlan = &production.ContentPlan{
		Topic:         "ocean currents",
		Language:      "en",
		TotalDuration: 30,
		Scenes: []production.Scene{
			{ID: "scene-1", Name: "Intro", Duration: 10, NarrationScript: "The ocean moves in vast rivers of water that circle the globe endlessly.", VisualDesc: "Aerial shot of open ocean"},
			{ID: "scene-2", Name: "Currents", Duration: 10, NarrationScript: "Warm currents carry heat from the equator toward the frozen poles.", VisualDesc: "Animated current map"},
			{ID: "scene-3", Name: "Outro", Duration: 10, NarrationScript: "These flows shape the climate of every continent on our planet.", VisualDesc: "Sunset over coastline"},
		},
	}
	state.NarrationSegments = []production.NarrationSegment{
		{SceneID: "scene-1", Text: "...", Audio: []byte("a"), AudioDuration: 10},
		{SceneID: "scene-2", Text: "...", Audio: []byte("b"), AudioDuration: 10},
		{SceneID: "scene-3", Text: "...", Audio: []byte("c"), AudioDuration: 10},
	}
	return state
}

func TestEvaluate_WellFormedPlanApproved(t *testing.T) {
	eval := Evaluate(wellFormedState())

	assert.Equal(t, 100, eval.Score)
	assert.True(t, eval.Approved)
	assert.False(t, eval.NeedsImprovement)
	assert.Empty(t, eval.Issues)
}

func TestEvaluate_NoPlanScoresZero(t *testing.T) {
	state := production.NewState("prod_1700000000000_abc123")

	eval := Evaluate(state)

	assert.Equal(t, 0, eval.Score)
	assert.False(t, eval.Approved)
	assert.True(t, eval.NeedsImprovement)
	require.Len(t, eval.Suggestions, 1)
	assert.Contains(t, eval.Suggestions[0], "plan_video")
}

func TestEvaluate_TimingDriftPenalized(t *testing.T) {
	state := wellFormedState()
	// 9 seconds of drift over 30 seconds of audio: a 30-point penalty.
	// Durations stay inside the pacing band for their scripts.
	state.ContentPlan.Scenes[0].Duration = 12
	state.ContentPlan.Scenes[1].Duration = 8
	state.ContentPlan.Scenes[2].Duration = 5
	state.ContentPlan.TotalDuration = 25

	eval := Evaluate(state)

	assert.Equal(t, 70, eval.Score)
	assert.False(t, eval.Approved)
	assert.True(t, eval.NeedsImprovement)
	assert.Contains(t, eval.Issues[0], "drift 30%")
	assert.Contains(t, eval.Suggestions[0], "adjust_timing")
}

func TestEvaluate_DriftCappedAtForty(t *testing.T) {
	state := wellFormedState()
	state.ContentPlan.Scenes[0].Duration = 4
	state.ContentPlan.Scenes[1].Duration = 4
	state.ContentPlan.Scenes[2].Duration = 4
	state.ContentPlan.TotalDuration = 12

	eval := Evaluate(state)

	// Drift alone cannot push the score below 60.
	assert.Equal(t, 60, eval.Score)
}

func TestEvaluate_MissingNarrationNeedsImprovement(t *testing.T) {
	state := wellFormedState()
	state.NarrationSegments = nil

	eval := Evaluate(state)

	assert.Equal(t, 75, eval.Score)
	assert.False(t, eval.Approved)
	assert.True(t, eval.NeedsImprovement)
	assert.Contains(t, eval.Suggestions[0], "narrate_scenes")
}

func TestEvaluate_PartialNarrationCoverage(t *testing.T) {
	state := wellFormedState()
	state.NarrationSegments = state.NarrationSegments[:2]

	eval := Evaluate(state)

	assert.Equal(t, 90, eval.Score)
	assert.Contains(t, eval.Issues[0], "only 2 of 3 scenes")
}

func TestEvaluate_StructuralGaps(t *testing.T) {
	state := wellFormedState()
	state.ContentPlan.Scenes[1].NarrationScript = ""
	state.ContentPlan.Scenes[2].VisualDesc = "  "

	eval := Evaluate(state)

	// 15 for the missing script, 10 for the missing visual description.
	assert.Equal(t, 75, eval.Score)
	assert.Len(t, eval.Issues, 2)
}

func TestEvaluate_TotalDurationMismatch(t *testing.T) {
	state := wellFormedState()
	state.ContentPlan.TotalDuration = 45

	eval := Evaluate(state)

	assert.Equal(t, 90, eval.Score)
	assert.Contains(t, eval.Issues[0], "does not match the scene sum")
}

func TestEvaluate_PacingOutOfBand(t *testing.T) {
	state := wellFormedState()
	// Two words over ten seconds: 0.2 words/sec, far too slow.
	state.ContentPlan.Scenes[0].NarrationScript = "The ocean."

	eval := Evaluate(state)

	assert.Equal(t, 95, eval.Score)
	assert.Contains(t, eval.Issues[0], "pacing")
}

func TestEvaluate_Deterministic(t *testing.T) {
	state := wellFormedState()
	state.ContentPlan.Scenes[0].Duration = 14
	state.ContentPlan.TotalDuration = 34

	first := Evaluate(state)
	second := Evaluate(state)

	assert.Equal(t, first, second)
}
