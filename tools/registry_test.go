package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordpython/aisoulstudio/llm"
)

// stubExecutor serves a fixed set of tool names with canned payloads.
type stubExecutor struct {
	names   []string
	payload string
}

func (s *stubExecutor) Execute(_ context.Context, call llm.ToolCall) (string, error) {
	return s.payload, nil
}

func (s *stubExecutor) ListTools() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(s.names))
	for _, name := range s.names {
		defs = append(defs, llm.ToolDefinition{
			Name:       name,
			Parameters: map[string]any{"type": "object"},
		})
	}
	return defs
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	exec := &stubExecutor{names: []string{"plan_video", "narrate_scenes"}, payload: `{"success":true}`}

	require.NoError(t, r.RegisterExecutor(exec))

	reg, ok := r.Lookup("plan_video")
	require.True(t, ok)
	assert.Equal(t, GroupContent, reg.Group)
	assert.Empty(t, reg.Dependencies)

	reg, ok = r.Lookup("narrate_scenes")
	require.True(t, ok)
	assert.Equal(t, []string{"plan_video"}, reg.Dependencies)
}

func TestRegistry_RejectsUncataloguedTool(t *testing.T) {
	r := NewRegistry()
	exec := &stubExecutor{names: []string{"summon_unicorn"}}

	err := r.RegisterExecutor(exec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the catalog")
}

func TestRegistry_RejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	exec := &stubExecutor{names: []string{"plan_video"}}

	require.NoError(t, r.RegisterExecutor(exec))
	err := r.RegisterExecutor(exec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_ByGroupAndSummary(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterExecutor(&stubExecutor{
		names: []string{"plan_video", "narrate_scenes", "generate_visuals", "mark_complete"},
	}))

	content := r.ByGroup(GroupContent)
	require.Len(t, content, 2)
	assert.Equal(t, "plan_video", content[0].Definition.Name)
	assert.Equal(t, "narrate_scenes", content[1].Definition.Name)

	summary := r.Summary()
	assert.Equal(t, 2, summary[GroupContent])
	assert.Equal(t, 1, summary[GroupMedia])
	assert.Equal(t, 1, summary[GroupUtility])
	assert.Zero(t, summary[GroupExport])
}

func TestRegistry_ExecuteDispatches(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterExecutor(&stubExecutor{
		names:   []string{"plan_video"},
		payload: `{"success":true,"sessionId":"prod_1_abcde"}`,
	}))

	payload, err := r.Execute(context.Background(), llm.ToolCall{Name: "plan_video"})
	require.NoError(t, err)
	assert.Contains(t, payload, "prod_1_abcde")
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()

	payload, err := r.Execute(context.Background(), llm.ToolCall{Name: "no_such_tool"})
	require.Error(t, err)
	assert.False(t, PayloadSuccessful(payload))
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterExecutor(&stubExecutor{names: []string{"plan_video"}}))

	r.Clear()

	assert.Empty(t, r.Names())
	_, ok := r.Lookup("plan_video")
	assert.False(t, ok)
}

func TestGroupCatalogCoversEveryTool(t *testing.T) {
	// Every tool with declared dependencies must itself be catalogued, and
	// every dependency must name a catalogued tool.
	for name, deps := range toolDependencies {
		_, ok := toolGroups[name]
		require.True(t, ok, "tool %s has dependencies but no group", name)
		for _, dep := range deps {
			_, ok := toolGroups[dep]
			require.True(t, ok, "tool %s depends on uncatalogued %s", name, dep)
		}
	}
}

func TestMissingDependencies(t *testing.T) {
	missing := MissingDependencies("export_final_video", map[string]bool{"narrate_scenes": true})
	assert.Equal(t, []string{"generate_visuals"}, missing)

	missing = MissingDependencies("export_final_video", map[string]bool{
		"narrate_scenes": true, "generate_visuals": true,
	})
	assert.Empty(t, missing)

	assert.Empty(t, MissingDependencies("plan_video", nil))
}
