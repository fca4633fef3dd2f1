package agent

import (
	"fmt"

	"github.com/lordpython/aisoulstudio/llm"
)

// repeatableTools may legitimately run more than once per session: the
// quality loop alternates validate_plan and adjust_timing, and the
// read-only tools answer questions rather than produce assets.
var repeatableTools = map[string]bool{
	"validate_plan":         true,
	"adjust_timing":         true,
	"validate_export":       true,
	"list_export_presets":   true,
	"get_production_status": true,
}

// stepTracker remembers which pipeline steps already ran inside one
// production run, so a model that re-issues a call it has already seen
// succeed gets a synthetic acknowledgement instead of a second execution.
// Failed calls are never recorded: the model may retry them freely.
type stepTracker struct {
	done map[string]bool
}

func newStepTracker() *stepTracker {
	return &stepTracker{done: make(map[string]bool)}
}

// stepKey identifies an execution by tool name, target session, and scene.
// Tools without a sceneIndex argument collapse to one key per session, so
// e.g. a second narrate_scenes on the same plan is a duplicate while the
// same tool on a different session is not.
func stepKey(call llm.ToolCall) string {
	id, _ := call.StringArg("contentPlanId")
	if id == "" {
		id, _ = call.StringArg("sessionId")
	}
	scene := -1
	if n, ok := call.IntArg("sceneIndex"); ok {
		scene = n
	}
	return fmt.Sprintf("%s|%s|%d", call.Name, id, scene)
}

func (t *stepTracker) executed(call llm.ToolCall) bool {
	if repeatableTools[call.Name] {
		return false
	}
	return t.done[stepKey(call)]
}

func (t *stepTracker) markExecuted(call llm.ToolCall) {
	t.done[stepKey(call)] = true
}
