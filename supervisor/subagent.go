package supervisor

import (
	"fmt"
	"strings"

	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/tools"
)

// Subagent is one stage of the decomposed pipeline: a slice of the tool
// catalog with its own system prompt and entry gate.
type Subagent struct {
	// Name identifies the stage in progress events and error records.
	Name string
	// Groups are the tool groups this stage exposes to the model.
	Groups []tools.Group
	// Extras are tools outside those groups the stage may still call.
	Extras []string
	// Entry are the tools the stage leads with. The supervisor opens the
	// stage once at least one entry tool has its dependencies satisfied.
	Entry []string
	// ImportOnly stages run only when the request carries source material.
	ImportOnly bool

	prompt func(sc stageContext) string
}

// stageContext carries the run-specific values a stage prompt embeds.
type stageContext struct {
	ImportSessionID string
	MusicEnabled    bool
	Budget          int
	Rules           string
}

// pipelineStages returns the four stages in execution order. The import
// stage carries plan_video so it can hand its transcript straight to the
// planner; the post-production stage carries mark_complete so a finished
// run closes its session the way a monolithic run does.
func pipelineStages() []Subagent {
	return []Subagent{
		{
			Name:       "import",
			Groups:     []tools.Group{tools.GroupImport},
			Extras:     []string{"plan_video"},
			Entry:      []string{"import_youtube_content", "import_web_article", "transcribe_audio_file"},
			ImportOnly: true,
			prompt:     importPrompt,
		},
		{
			Name:   "content",
			Groups: []tools.Group{tools.GroupContent},
			Entry:  []string{"plan_video"},
			prompt: contentPrompt,
		},
		{
			Name:   "media",
			Groups: []tools.Group{tools.GroupMedia},
			Entry:  []string{"generate_visuals"},
			prompt: mediaPrompt,
		},
		{
			Name:   "post_production",
			Groups: []tools.Group{tools.GroupEnhancement, tools.GroupExport},
			Extras: []string{"mark_complete"},
			Entry:  []string{"mix_audio_tracks", "export_final_video"},
			prompt: postProductionPrompt,
		},
	}
}

// recordName is the pseudo-tool failures of this stage are recorded under.
func (sa Subagent) recordName() string { return sa.Name + "_subagent" }

// ready reports whether the stage's gate is open given the tools already
// completed, and names what is missing when it is not.
func (sa Subagent) ready(completed map[string]bool) (bool, string) {
	var missing []string
	for _, name := range sa.Entry {
		deps := tools.MissingDependencies(name, completed)
		if len(deps) == 0 {
			return true, ""
		}
		missing = append(missing, fmt.Sprintf("%s is missing %s", name, strings.Join(deps, " and ")))
	}
	return false, strings.Join(missing, "; ")
}

// surface collects the tool definitions this stage binds. generate_music
// stays out unless the run asked for music, matching the monolithic
// orchestrator's surface.
func (sa Subagent) surface(reg *tools.Registry, musicEnabled bool) []llm.ToolDefinition {
	var defs []llm.ToolDefinition
	for _, g := range sa.Groups {
		for _, r := range reg.ByGroup(g) {
			if r.Definition.Name == "generate_music" && !musicEnabled {
				continue
			}
			defs = append(defs, r.Definition)
		}
	}
	for _, name := range sa.Extras {
		if r, ok := reg.Lookup(name); ok {
			defs = append(defs, r.Definition)
		}
	}
	return defs
}

// toolNames lists the stage surface, for rendering its ordering rules.
func (sa Subagent) toolNames(reg *tools.Registry, musicEnabled bool) []string {
	defs := sa.surface(reg, musicEnabled)
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// Prompt blocks shared by every stage.
const (
	sessionDiscipline = `## Session Discipline

CRITICAL: every tool that works on a production session takes the session
id as "contentPlanId". Use the exact id named in the task or returned by a
tool; never invent one, never abbreviate one.
`

	failureGuidance = `## Failure Handling

Tool results carry a "success" field. On "success": false, read the
"suggestion" field, fix your call, and retry the tool. Infrastructure
failures are retried for you; a result prefixed with a warning marker means
a fallback asset was substituted and you should continue. A result with
"skipped": true means the step was already done in an earlier stage; move
on without repeating it.
`
)

// promptTail appends the ordering constraints and the response budget.
func promptTail(b *strings.Builder, sc stageContext) {
	b.WriteString("\n## Ordering Constraints\n\n")
	b.WriteString(sc.Rules)
	if sc.Budget > 0 {
		fmt.Fprintf(b, `
You have at most %d responses in this stage. Batch independent tool calls
into one response where the ordering constraints allow it.
`, sc.Budget)
	}
}

func importPrompt(sc stageContext) string {
	var b strings.Builder
	b.WriteString(`You are the import stage of a video production pipeline. Your only job
is to bring the request's source material into a session and hand it to
the planner.

`)
	b.WriteString(sessionDiscipline)
	b.WriteString(`
## Workflow

1. Import the source: import_youtube_content for a YouTube URL,
   import_web_article for an article URL.
2. Call plan_video with "sourceSessionId" set to the import session id so
   the plan is built from the imported transcript. Derive the topic from
   the material unless the request names one.

Stop once plan_video succeeds. Later stages narrate and render the plan;
do not call anything else.
`)
	if sc.ImportSessionID != "" {
		fmt.Fprintf(&b, `
## Attached Audio

The user attached an audio file. It is already stored in session %s.
Call transcribe_audio_file with contentPlanId %q instead of importing,
then pass that same id as "sourceSessionId" to plan_video.
`, sc.ImportSessionID, sc.ImportSessionID)
	}
	b.WriteString("\n")
	b.WriteString(failureGuidance)
	promptTail(&b, sc)
	return b.String()
}

func contentPrompt(sc stageContext) string {
	var b strings.Builder
	b.WriteString(`You are the content stage of a video production pipeline. You turn the
request into a scene plan with narration, validated against the measured
audio.

`)
	b.WriteString(sessionDiscipline)
	b.WriteString(`
## Workflow

1. plan_video - create the content plan, unless the task shows the
   session already holds one.
2. narrate_scenes - synthesize narration audio for every scene.
3. validate_plan - score the plan against the narration (see Quality Loop).

The screenplay tools (generate_breakdown, create_screenplay,
generate_characters, generate_shotlist) serve explicit screenplay
requests only; a standard production never needs them.

## Quality Loop

After narration exists, run:

    call validate_plan
    while score < 80 and iterations < 2:
        call adjust_timing
        call validate_plan

adjust_timing rewrites scene durations to match the measured narration and
refuses a third call. Accept the best score you reached and move on; never
loop beyond two adjustments.

Stop once narration exists and the plan is validated.
`)
	b.WriteString("\n")
	b.WriteString(failureGuidance)
	promptTail(&b, sc)
	return b.String()
}

func mediaPrompt(sc stageContext) string {
	var b strings.Builder
	b.WriteString(`You are the media stage of a video production pipeline. The session
already holds a scene plan; you produce its imagery and sound design,
scene by scene.

`)
	b.WriteString(sessionDiscipline)
	b.WriteString(`
## Workflow

1. generate_visuals - one visual per scene.
2. plan_sfx - pick ambient tracks per scene.

Only on an explicit request: generate_video renders a scene's visual
directly as video, and animate_image turns a generated image into a short
clip.
`)
	if sc.MusicEnabled {
		b.WriteString(`
The user asked for music: call generate_music after the visuals.
`)
	}
	b.WriteString(`
Stop once every scene has a visual and the sfx plan exists.

`)
	b.WriteString(failureGuidance)
	promptTail(&b, sc)
	return b.String()
}

func postProductionPrompt(sc stageContext) string {
	var b strings.Builder
	b.WriteString(`You are the post-production stage of a video production pipeline. The
session holds narrated, visualized scenes; you mix, subtitle, export, and
close it.

`)
	b.WriteString(sessionDiscipline)
	b.WriteString(`
## Workflow

1. mix_audio_tracks - combine narration, music, and sfx into one track.
2. generate_subtitles - subtitles from the narration timings; honor a
   requested language or format.
3. export_final_video - render the final video, honoring any requested
   format, aspect ratio, or quality. list_export_presets and
   validate_export help when the request names a platform.
4. mark_complete - close the session. Always last.

The image cleanup tools (verify_character_consistency, remove_background,
restyle_image) and upload_production_to_cloud serve explicit requests
only.
`)
	b.WriteString("\n")
	b.WriteString(failureGuidance)
	promptTail(&b, sc)
	return b.String()
}

// stageTask builds the user message for one stage: the original request,
// the session to operate on, and a digest of what that session holds.
func stageTask(prompt, sessionID string, state *production.State) string {
	var b strings.Builder
	b.WriteString("## Request\n\n")
	b.WriteString(prompt)
	b.WriteString("\n")
	if sessionID != "" {
		fmt.Fprintf(&b, "\nOperate on session %s.\n", sessionID)
	}
	if state != nil {
		b.WriteString("\n## Current Production State\n\n")
		b.WriteString(stateDigest(state))
	}
	return b.String()
}

// stateDigest summarizes a session for a stage task, including the scene
// list the media stage works from.
func stateDigest(s *production.State) string {
	var b strings.Builder
	if s.ImportedContent != nil {
		fmt.Fprintf(&b, "- imported %s source: %q\n", s.ImportedContent.SourceKind, s.ImportedContent.Title)
		if s.ImportedContent.Transcript != "" {
			b.WriteString("- transcript available\n")
		}
	}
	if s.ContentPlan == nil {
		b.WriteString("- no content plan yet\n")
		return b.String()
	}
	fmt.Fprintf(&b, "- content plan: %d scenes, %.1fs total, topic %q\n",
		len(s.ContentPlan.Scenes), s.ContentPlan.TotalDuration, s.ContentPlan.Topic)
	for i, scene := range s.ContentPlan.Scenes {
		fmt.Fprintf(&b, "  %d. %s (%.1fs): %s\n", i+1, scene.Name, scene.Duration, scene.VisualDesc)
	}
	fmt.Fprintf(&b, "- narration: %d of %d scenes\n", len(s.NarrationSegments), len(s.ContentPlan.Scenes))
	if s.QualityScore > 0 {
		fmt.Fprintf(&b, "- quality score: %d (best %d)\n", s.QualityScore, s.BestQualityScore)
	}
	fmt.Fprintf(&b, "- visuals: %d of %d scenes\n", len(s.Visuals), len(s.ContentPlan.Scenes))
	if s.SfxPlan != nil {
		b.WriteString("- sfx plan ready\n")
	}
	if s.MusicTrack != nil || s.MusicURL != "" {
		b.WriteString("- music track ready\n")
	}
	if s.MixedAudio != nil {
		b.WriteString("- mixed audio ready\n")
	}
	if s.Subtitles != nil {
		fmt.Fprintf(&b, "- subtitles ready (%s)\n", s.Subtitles.Format)
	}
	if s.ExportResult != nil {
		b.WriteString("- export ready\n")
	}
	if s.IsComplete {
		b.WriteString("- session marked complete\n")
	}
	return b.String()
}

// completedTools derives which pipeline tools have already produced their
// state, which is what the stage gates check dependencies against. Reading
// session state instead of the run's step tracker keeps resumed sessions
// gated correctly.
func completedTools(s *production.State) map[string]bool {
	done := make(map[string]bool)
	if s == nil {
		return done
	}
	if s.ContentPlan != nil {
		done["plan_video"] = true
	}
	if len(s.NarrationSegments) > 0 {
		done["narrate_scenes"] = true
	}
	if len(s.Visuals) > 0 {
		done["generate_visuals"] = true
	}
	if s.Screenplay != nil {
		done["create_screenplay"] = true
	}
	if s.SfxPlan != nil {
		done["plan_sfx"] = true
	}
	if s.MixedAudio != nil {
		done["mix_audio_tracks"] = true
	}
	if s.Subtitles != nil {
		done["generate_subtitles"] = true
	}
	if s.ExportResult != nil {
		done["export_final_video"] = true
	}
	return done
}
