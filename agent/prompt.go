package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lordpython/aisoulstudio/tools"
)

// PromptOptions tune the production system prompt for one run.
type PromptOptions struct {
	// ImportSessionID is set when audio was attached to the request and a
	// session holding it already exists.
	ImportSessionID string
	// MusicEnabled exposes generate_music in the workflow guidance.
	MusicEnabled bool
	// MaxIterations is quoted so the model can budget its calls.
	MaxIterations int
}

// BuildSystemPrompt renders the production agent's system prompt: the
// pipeline narrative, the quality loop, session-id discipline, and the
// ordering constraints derived from the registry's dependency graph.
func BuildSystemPrompt(reg *tools.Registry, opts PromptOptions) string {
	var b strings.Builder

	b.WriteString(`You are a video production agent. You drive a production pipeline by
calling tools; every asset you create is stored in a session keyed by a
session id.

## Session Discipline

CRITICAL: plan_video (and the import tools) return a "sessionId" field.
Pass that exact value as "contentPlanId" to every later tool. Never invent
a session id, never abbreviate one, never reuse one from a previous
conversation.

## Pipeline

For a standard production, call tools in this order:

1. plan_video - create the content plan (scenes, durations, narration scripts)
2. narrate_scenes - synthesize narration audio for every scene
3. validate_plan - score the plan against the narration (see Quality Loop)
4. generate_visuals - one visual per scene
5. plan_sfx - pick ambient tracks per scene
6. mix_audio_tracks - combine narration, music, and sfx into one track
7. generate_subtitles - subtitles from the narration timings
8. export_final_video - render the final video
9. mark_complete - close the session

When the request contains a YouTube URL, start with import_youtube_content
and pass its sessionId as "sourceSessionId" to plan_video so the plan is
built from the transcript. For a web article, use import_web_article the
same way.

## Quality Loop

After narration exists, run:

    call validate_plan
    while score < 80 and iterations < 2:
        call adjust_timing
        call validate_plan

adjust_timing rewrites scene durations to match the measured narration and
refuses a third call. Accept the best score you reached and move on; never
loop beyond two adjustments.

## Optional Tools

Only call these when the user asked for what they do:
`)

	optional := []string{
		"- animate_image: turn a scene's image into a short video clip",
		"- generate_video: generate a scene's visual directly as video",
		"- remove_background / restyle_image: image post-processing",
		"- generate_subtitles: always part of the standard pipeline, but honor a requested language or format",
		"- upload_production_to_cloud: only on an explicit upload/share request",
	}
	if opts.MusicEnabled {
		optional = append(optional, "- generate_music: background music (the user asked for it)")
	}
	b.WriteString(strings.Join(optional, "\n"))
	b.WriteString("\n")

	if opts.ImportSessionID != "" {
		fmt.Fprintf(&b, `
## Attached Audio

The user attached an audio file. It is already stored in session %s.
Call transcribe_audio_file with contentPlanId %q first, then pass that same
id as "sourceSessionId" to plan_video.
`, opts.ImportSessionID, opts.ImportSessionID)
	}

	b.WriteString(`
## Failure Handling

Tool results carry a "success" field. On "success": false, read the
"suggestion" field, fix your call, and retry the tool. Infrastructure
failures are retried for you; a result prefixed with a warning marker means
a fallback asset was substituted and you should continue the pipeline.

## Ordering Constraints

`)
	b.WriteString(renderDependencyRules(reg))

	if opts.MaxIterations > 0 {
		fmt.Fprintf(&b, `
You have at most %d responses in this run. Batch independent tool calls
into one response where the ordering constraints allow it.
`, opts.MaxIterations)
	}

	return b.String()
}

// renderDependencyRules flattens the registry's dependency graph into one
// line per constrained tool.
func renderDependencyRules(reg *tools.Registry) string {
	return DependencyRules(reg.Names())
}

// DependencyRules renders the ordering constraints of the named tools, one
// line per constrained tool, for embedding in a system prompt. The stage
// supervisor uses it to scope the rules to a subagent's surface.
func DependencyRules(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	var b strings.Builder
	for _, name := range sorted {
		deps := tools.DependenciesFor(name)
		if len(deps) == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s requires %s to have succeeded first\n", name, strings.Join(deps, " and "))
	}
	if b.Len() == 0 {
		return "- no ordering constraints registered\n"
	}
	return b.String()
}
