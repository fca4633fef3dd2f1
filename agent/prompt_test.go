package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordpython/aisoulstudio/tools"
)

func TestBuildSystemPromptCoversPipeline(t *testing.T) {
	f := newAgentFixture(t, nil)
	prompt := BuildSystemPrompt(f.registry, PromptOptions{MaxIterations: 20})

	for _, want := range []string{
		"plan_video",
		"narrate_scenes",
		"export_final_video",
		"contentPlanId",
		"while score < 80",
		"narrate_scenes requires plan_video to have succeeded first",
		"animate_image requires generate_visuals to have succeeded first",
		"at most 20 responses",
	} {
		assert.Contains(t, prompt, want)
	}
	assert.NotContains(t, prompt, "Attached Audio")
}

func TestBuildSystemPromptAttachedAudio(t *testing.T) {
	f := newAgentFixture(t, nil)
	prompt := BuildSystemPrompt(f.registry, PromptOptions{
		ImportSessionID: "import_1700000000000_ab12cd",
	})

	require.Contains(t, prompt, "## Attached Audio")
	assert.Contains(t, prompt, "import_1700000000000_ab12cd")
	assert.Contains(t, prompt, "transcribe_audio_file")
	assert.Contains(t, prompt, "sourceSessionId")
}

func TestBuildSystemPromptMusicFlag(t *testing.T) {
	f := newAgentFixture(t, nil)

	without := BuildSystemPrompt(f.registry, PromptOptions{})
	assert.NotContains(t, without, "generate_music:")

	with := BuildSystemPrompt(f.registry, PromptOptions{MusicEnabled: true})
	assert.Contains(t, with, "generate_music: background music")
}

func TestRenderDependencyRulesEmptyRegistry(t *testing.T) {
	rules := renderDependencyRules(tools.NewRegistry())
	assert.True(t, strings.Contains(rules, "no ordering constraints"))
}
