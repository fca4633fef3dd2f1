package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lordpython/aisoulstudio/llm"
)

func toolCall(name string, args map[string]any) llm.ToolCall {
	return llm.ToolCall{ID: "call_1", Name: name, Arguments: args}
}

func TestStepKey(t *testing.T) {
	a := toolCall("narrate_scenes", map[string]any{"contentPlanId": "prod_1_aaaaaaaa"})
	b := toolCall("narrate_scenes", map[string]any{"contentPlanId": "prod_2_bbbbbbbb"})
	c := toolCall("animate_image", map[string]any{"contentPlanId": "prod_1_aaaaaaaa", "sceneIndex": float64(2)})
	d := toolCall("animate_image", map[string]any{"contentPlanId": "prod_1_aaaaaaaa", "sceneIndex": float64(3)})

	assert.NotEqual(t, stepKey(a), stepKey(b), "different sessions are different steps")
	assert.NotEqual(t, stepKey(c), stepKey(d), "different scenes are different steps")
	assert.Equal(t, stepKey(a), stepKey(toolCall("narrate_scenes", map[string]any{"contentPlanId": "prod_1_aaaaaaaa"})))
}

func TestStepKeyFallsBackToSessionIdArg(t *testing.T) {
	a := toolCall("create_screenplay", map[string]any{"sessionId": "story_7"})
	b := toolCall("create_screenplay", map[string]any{"sessionId": "story_8"})
	assert.NotEqual(t, stepKey(a), stepKey(b))
}

func TestStepTrackerSuppressesRepeat(t *testing.T) {
	tracker := newStepTracker()
	call := toolCall("generate_visuals", map[string]any{"contentPlanId": "prod_1_aaaaaaaa"})

	assert.False(t, tracker.executed(call))
	tracker.markExecuted(call)
	assert.True(t, tracker.executed(call))

	other := toolCall("generate_visuals", map[string]any{"contentPlanId": "prod_2_bbbbbbbb"})
	assert.False(t, tracker.executed(other), "a different session is a fresh step")
}

func TestStepTrackerNeverSuppressesQualityLoop(t *testing.T) {
	tracker := newStepTracker()
	for _, name := range []string{"validate_plan", "adjust_timing", "get_production_status"} {
		call := toolCall(name, map[string]any{"contentPlanId": "prod_1_aaaaaaaa"})
		tracker.markExecuted(call)
		assert.False(t, tracker.executed(call), "%s must stay repeatable", name)
	}
}
