package supervisor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordpython/aisoulstudio/agent"
	"github.com/lordpython/aisoulstudio/assets"
	"github.com/lordpython/aisoulstudio/assets/assetstest"
	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/llm/testutil"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/progress"
	"github.com/lordpython/aisoulstudio/recovery"
	"github.com/lordpython/aisoulstudio/session"
	"github.com/lordpython/aisoulstudio/tools"
	"github.com/lordpython/aisoulstudio/tools/content"
	"github.com/lordpython/aisoulstudio/tools/enhance"
	"github.com/lordpython/aisoulstudio/tools/exporter"
	"github.com/lordpython/aisoulstudio/tools/importer"
	"github.com/lordpython/aisoulstudio/tools/media"
	"github.com/lordpython/aisoulstudio/tools/utility"
)

// pipelineDeps is the real tool surface over deterministic fakes, shared
// by the supervisor fixture and the monolithic comparison runs.
type pipelineDeps struct {
	store       *session.Store
	registry    *tools.Registry
	planner     *assetstest.FakePlanner
	speech      *assetstest.FakeSynthesizer
	images      *assetstest.FakeImageProvider
	videos      *assetstest.FakeVideoGenerator
	music       *assetstest.FakeMusicGenerator
	mixer       *assetstest.FakeMixer
	renderer    *assetstest.FakeExporter
	transcriber *assetstest.FakeTranscriber
}

func newPipelineDeps(t *testing.T) *pipelineDeps {
	t.Helper()
	d := &pipelineDeps{
		store:       session.NewStore(),
		planner:     &assetstest.FakePlanner{},
		speech:      &assetstest.FakeSynthesizer{},
		images:      &assetstest.FakeImageProvider{},
		videos:      &assetstest.FakeVideoGenerator{},
		music:       &assetstest.FakeMusicGenerator{},
		mixer:       &assetstest.FakeMixer{},
		renderer:    &assetstest.FakeExporter{},
		transcriber: &assetstest.FakeTranscriber{},
	}

	d.registry = tools.NewRegistry()
	require.NoError(t, d.registry.RegisterExecutor(
		content.NewExecutor(d.store, d.planner, &assetstest.FakeScreenwriter{}, d.speech)))
	require.NoError(t, d.registry.RegisterExecutor(
		media.NewExecutor(d.store, d.images, d.videos, assets.NewCatalogSfxLibrary(), d.music)))
	require.NoError(t, d.registry.RegisterExecutor(
		enhance.NewExecutor(d.store, d.images, d.images, d.mixer)))
	require.NoError(t, d.registry.RegisterExecutor(
		exporter.NewExecutor(d.store, d.renderer, assets.NewCloudUploader(&assetstest.FakeBucket{}, nil))))
	require.NoError(t, d.registry.RegisterExecutor(
		importer.NewExecutor(d.store, nil, nil, d.transcriber)))
	require.NoError(t, d.registry.RegisterExecutor(utility.NewExecutor(d.store)))
	return d
}

// supervisorFixture adds a scripted chat client and a supervisor whose
// backoff sleeps are skipped.
type supervisorFixture struct {
	*pipelineDeps
	client *testutil.MockClient
	sup    *Supervisor
	events []progress.Event
}

func newSupervisorFixture(t *testing.T, opts ...Option) *supervisorFixture {
	t.Helper()
	f := &supervisorFixture{
		pipelineDeps: newPipelineDeps(t),
		client:       &testutil.MockClient{},
	}
	harness := recovery.NewHarness(recovery.NewTable(), recovery.WithSleep(noSleep))
	fallback := recovery.NewFallback(f.store, f.images, f.videos, nil)

	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSleep(noSleep),
	}, opts...)
	f.sup = New(f.client, f.registry, f.store, harness, fallback, opts...)
	return f
}

func noSleep(context.Context, time.Duration) error { return nil }

func (f *supervisorFixture) run(t *testing.T, prompt string) (*RunResult, error) {
	t.Helper()
	return f.runOpts(t, agent.RunOptions{Prompt: prompt})
}

func (f *supervisorFixture) runOpts(t *testing.T, opts agent.RunOptions) (*RunResult, error) {
	t.Helper()
	opts.Progress = func(e progress.Event) { f.events = append(f.events, e) }
	return f.sup.Run(context.Background(), opts)
}

func (f *supervisorFixture) eventsOfType(typ progress.EventType) []progress.Event {
	var out []progress.Event
	for _, e := range f.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// step produces one scripted model response from the visible history.
type step func(req llm.Request) *llm.Response

// script installs a step sequence on a chat client; once the steps run out
// the model stops calling tools.
func script(client *testutil.MockClient, steps ...step) {
	i := 0
	client.ChatFunc = func(_ context.Context, req llm.Request) (*llm.Response, error) {
		if i >= len(steps) {
			return &llm.Response{Content: "Production finished.", FinishReason: "stop"}, nil
		}
		s := steps[i]
		i++
		return s(req), nil
	}
}

// callStep issues a fixed tool call.
func callStep(name string, args map[string]any) step {
	return func(llm.Request) *llm.Response {
		return &llm.Response{ToolCalls: []llm.ToolCall{
			{ID: "call_" + name, Name: name, Arguments: args},
		}}
	}
}

// sessionStep issues a tool call against the session the conversation can
// see, the way a real model reads the id out of the task or a tool result.
func sessionStep(name string, args map[string]any) step {
	return func(req llm.Request) *llm.Response {
		merged := map[string]any{"contentPlanId": visibleSession(req)}
		for k, v := range args {
			merged[k] = v
		}
		return &llm.Response{ToolCalls: []llm.ToolCall{
			{ID: "call_" + name, Name: name, Arguments: merged},
		}}
	}
}

// textStep ends a stage: a plain response with no tool calls.
func textStep(message string) step {
	return func(llm.Request) *llm.Response {
		return &llm.Response{Content: message, FinishReason: "stop"}
	}
}

var taskSessionPattern = regexp.MustCompile(`Operate on session ([a-z0-9_]+)`)

// visibleSession returns the session id a stage conversation can see: the
// one named in its task, superseded by the newest one minted in a tool
// result.
func visibleSession(req llm.Request) string {
	id := ""
	for _, msg := range req.Messages {
		switch msg.Role {
		case "user":
			if m := taskSessionPattern.FindStringSubmatch(msg.Content); m != nil {
				id = m[1]
			}
		case "tool":
			var probe struct {
				SessionID string `json:"sessionId"`
			}
			if err := json.Unmarshal([]byte(msg.Content), &probe); err == nil && probe.SessionID != "" {
				id = probe.SessionID
			}
		}
	}
	return id
}

func TestRunDecomposedHappyPath(t *testing.T) {
	f := newSupervisorFixture(t)
	script(f.client,
		// content stage
		callStep("plan_video", map[string]any{
			"topic":          "the glacier caves of iceland",
			"style":          "Documentary",
			"targetDuration": float64(30),
		}),
		sessionStep("narrate_scenes", nil),
		sessionStep("validate_plan", nil),
		textStep("Content stage done."),
		// media stage
		sessionStep("generate_visuals", nil),
		sessionStep("plan_sfx", nil),
		textStep("Media stage done."),
		// post-production stage
		sessionStep("mix_audio_tracks", nil),
		sessionStep("generate_subtitles", nil),
		sessionStep("export_final_video", nil),
		sessionStep("mark_complete", nil),
	)

	result, err := f.run(t, "Make a documentary about the glacier caves of iceland")
	require.NoError(t, err)

	assert.Equal(t, agent.StatusComplete, result.Status)
	assert.Equal(t, "Production finished.", result.FinalMessage)
	assert.Regexp(t, `^prod_[0-9]+_[a-z0-9]{5,12}$`, result.SessionID)

	require.Len(t, result.Stages, 4)
	assert.Equal(t, StageSkipped, result.Stages[0].Status)
	assert.Equal(t, "import", result.Stages[0].Name)
	assert.Equal(t, StageComplete, result.Stages[1].Status)
	assert.Equal(t, 4, result.Stages[1].Iterations)
	assert.Equal(t, StageComplete, result.Stages[2].Status)
	assert.Equal(t, 3, result.Stages[2].Iterations)
	assert.Equal(t, StageComplete, result.Stages[3].Status)
	assert.Equal(t, 5, result.Stages[3].Iterations)

	require.NotNil(t, result.Report)
	assert.Equal(t, 9, result.Report.SuccessCount)
	assert.Equal(t, 0, result.Report.FailureCount)
	assert.Equal(t, "All 9 tool calls succeeded.", result.Report.Summary)

	state, err := f.store.Get(result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, state.SceneCount())
	assert.Len(t, state.NarrationSegments, 3)
	assert.Len(t, state.Visuals, 3)
	assert.NotNil(t, state.SfxPlan)
	assert.NotNil(t, state.MixedAudio)
	assert.NotNil(t, state.Subtitles)
	assert.NotNil(t, state.ExportResult)
	assert.Positive(t, state.QualityScore)
	assert.True(t, state.IsComplete)
	assert.Empty(t, state.Errors)
	require.NotNil(t, state.PartialSuccessReport)
	assert.Equal(t, result.Report.Summary, state.PartialSuccessReport.Summary)

	// Stage events: one skip, three running.
	stageEvents := f.eventsOfType(progress.EventStage)
	require.Len(t, stageEvents, 4)
	assert.Contains(t, stageEvents[0].Message, "import subagent skipped: no source material to import")
	assert.Contains(t, stageEvents[1].Message, "Running content subagent (stage 2 of 4)")
	assert.Len(t, f.eventsOfType(progress.EventToolCall), 9)
	assert.Empty(t, f.eventsOfType(progress.EventRetry))

	last := f.events[len(f.events)-1]
	assert.Equal(t, progress.EventComplete, last.Type)
	require.NotNil(t, last.AssetSummary)
	assert.True(t, last.AssetSummary.IsComplete)

	// The media stage saw only its own tools, a scoped prompt, and the
	// session handed over by the content stage.
	mediaReq := f.client.CapturedRequests()[4]
	require.Len(t, mediaReq.Tools, 4)
	for _, def := range mediaReq.Tools {
		assert.NotEqual(t, "generate_music", def.Name)
	}
	assert.Contains(t, mediaReq.Messages[0].Content, "media stage")
	assert.NotContains(t, mediaReq.Messages[0].Content, "mix_audio_tracks")
	assert.Contains(t, mediaReq.Messages[1].Content, "Operate on session "+result.SessionID)
	assert.Contains(t, mediaReq.Messages[1].Content, "narration: 3 of 3 scenes")
}

func TestRunMatchesMonolithicState(t *testing.T) {
	pipeline := []step{
		callStep("plan_video", map[string]any{
			"topic":          "how lighthouses work",
			"targetDuration": float64(30),
		}),
		sessionStep("narrate_scenes", nil),
		sessionStep("validate_plan", nil),
		sessionStep("generate_visuals", nil),
		sessionStep("plan_sfx", nil),
		sessionStep("mix_audio_tracks", nil),
		sessionStep("generate_subtitles", nil),
		sessionStep("export_final_video", nil),
		sessionStep("mark_complete", nil),
	}

	// Monolithic run: one conversation over the full surface.
	mono := newPipelineDeps(t)
	monoClient := &testutil.MockClient{}
	script(monoClient, pipeline...)
	orch := agent.New(monoClient, mono.registry, mono.store,
		recovery.NewHarness(recovery.NewTable(), recovery.WithSleep(noSleep)),
		recovery.NewFallback(mono.store, mono.images, mono.videos, nil),
		agent.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	monoResult, err := orch.Run(context.Background(), agent.RunOptions{Prompt: "Make a video about how lighthouses work"})
	require.NoError(t, err)

	// Decomposed run: the same calls split across stage conversations.
	f := newSupervisorFixture(t)
	decomposed := append([]step{}, pipeline[:3]...)
	decomposed = append(decomposed, textStep("Content stage done."))
	decomposed = append(decomposed, pipeline[3:5]...)
	decomposed = append(decomposed, textStep("Media stage done."))
	decomposed = append(decomposed, pipeline[5:]...)
	script(f.client, decomposed...)
	decompResult, err := f.run(t, "Make a video about how lighthouses work")
	require.NoError(t, err)

	monoState, err := mono.store.Get(monoResult.SessionID)
	require.NoError(t, err)
	decompState, err := f.store.Get(decompResult.SessionID)
	require.NoError(t, err)

	assert.Equal(t, agent.SummarizeAssets(monoState), agent.SummarizeAssets(decompState))
	assert.Equal(t, monoState.QualityScore, decompState.QualityScore)
	assert.Equal(t, monoState.QualityIterations, decompState.QualityIterations)
	assert.Equal(t, monoState.ContentPlan.TotalDuration, decompState.ContentPlan.TotalDuration)
	assert.Equal(t, monoState.ExportResult.Format, decompState.ExportResult.Format)
	assert.Equal(t, monoState.MixedAudio.Tracks, decompState.MixedAudio.Tracks)
	assert.Equal(t, monoState.Subtitles.Format, decompState.Subtitles.Format)
	assert.Empty(t, monoState.Errors)
	assert.Empty(t, decompState.Errors)
	assert.Equal(t, monoResult.Report.Summary, decompResult.Report.Summary)
	assert.Equal(t, monoResult.Status, decompResult.Status)
}

func TestRunImportHandoffAndCrossStageDedup(t *testing.T) {
	f := newSupervisorFixture(t)
	script(f.client,
		// import stage: transcribe the attached audio, hand off to the planner
		sessionStep("transcribe_audio_file", nil),
		func(req llm.Request) *llm.Response {
			return &llm.Response{ToolCalls: []llm.ToolCall{{
				ID:   "call_plan_video",
				Name: "plan_video",
				Arguments: map[string]any{
					"topic":           "conference talk highlights",
					"sourceSessionId": visibleSession(req),
				},
			}}}
		},
		textStep("Imported and planned."),
		// content stage continues on the production session
		sessionStep("narrate_scenes", nil),
		textStep("Content stage done."),
		// media stage
		sessionStep("generate_visuals", nil),
		sessionStep("plan_sfx", nil),
		textStep("Media stage done."),
		// post-production; the stray generate_visuals repeat is suppressed
		sessionStep("mix_audio_tracks", nil),
		sessionStep("generate_subtitles", nil),
		sessionStep("export_final_video", nil),
		sessionStep("generate_visuals", nil),
		sessionStep("mark_complete", nil),
	)

	result, err := f.runOpts(t, agent.RunOptions{
		Prompt:        "Produce a highlight video from my conference talk recording",
		AttachedAudio: []byte("RIFF fake wav bytes"),
		AudioMimeType: "audio/wav",
		AudioFileName: "talk.wav",
	})
	require.NoError(t, err)

	assert.Equal(t, agent.StatusComplete, result.Status)
	assert.Regexp(t, `^prod_`, result.SessionID)
	require.Len(t, result.Stages, 4)
	assert.Equal(t, StageComplete, result.Stages[0].Status)

	// The run started on the import session and settled on the minted
	// production session.
	importID := f.events[0].SessionID
	assert.Regexp(t, `^import_[0-9]+_[a-z0-9]{5,12}$`, importID)
	assert.Equal(t, result.SessionID, f.events[len(f.events)-1].SessionID)

	importState, err := f.store.Get(importID)
	require.NoError(t, err)
	assert.Equal(t, "audio", importState.ImportedContent.SourceKind)
	assert.Equal(t, "talk.wav", importState.ImportedContent.Metadata["filename"])
	assert.NotEmpty(t, importState.ImportedContent.Transcript)
	assert.Equal(t, importState.ImportedContent.Transcript, f.planner.LastRequest.SourceTranscript)

	// Nine distinct tools ran; the repeated generate_visuals was answered
	// from the step tracker without executing.
	assert.Equal(t, 9, result.Report.SuccessCount)
	assert.Equal(t, 3, f.images.GenerateCalls())
	skipped := false
	for _, req := range f.client.CapturedRequests() {
		for _, msg := range req.Messages {
			if msg.Role == "tool" &&
				strings.Contains(msg.Content, `"skipped":true`) &&
				strings.Contains(msg.Content, "generate_visuals already completed") {
				skipped = true
			}
		}
	}
	assert.True(t, skipped, "expected a suppressed duplicate generate_visuals result")

	state, err := f.store.Get(result.SessionID)
	require.NoError(t, err)
	assert.True(t, state.IsComplete)
	assert.Empty(t, state.Errors)
}

func TestRunGatesSkipStagesWithoutPrerequisites(t *testing.T) {
	f := newSupervisorFixture(t)
	script(f.client, textStep("I could not find anything to plan."))

	result, err := f.run(t, "hello")
	require.NoError(t, err)

	assert.Equal(t, agent.StatusComplete, result.Status)
	assert.Empty(t, result.SessionID)
	assert.Equal(t, 1, f.client.CallCount())

	require.Len(t, result.Stages, 4)
	assert.Equal(t, StageSkipped, result.Stages[0].Status)
	assert.Equal(t, StageComplete, result.Stages[1].Status)
	assert.Equal(t, StageSkipped, result.Stages[2].Status)
	assert.Equal(t, StageSkipped, result.Stages[3].Status)
	assert.Contains(t, result.Stages[2].Message, "generate_visuals is missing plan_video")
	assert.Contains(t, result.Stages[3].Message, "mix_audio_tracks is missing narrate_scenes")

	assert.Equal(t, "All 0 tool calls succeeded.", result.Report.Summary)
	assert.Len(t, f.eventsOfType(progress.EventStage), 4)
	assert.Empty(t, f.eventsOfType(progress.EventToolCall))
}

func TestRunTransientChatErrorRestartsStage(t *testing.T) {
	f := newSupervisorFixture(t)
	steps := []step{
		callStep("plan_video", map[string]any{"topic": "undersea volcanoes"}),
		sessionStep("narrate_scenes", nil),
		textStep("Content stage done."),
		sessionStep("generate_visuals", nil),
		sessionStep("plan_sfx", nil),
		textStep("Media stage done."),
		sessionStep("mix_audio_tracks", nil),
		sessionStep("generate_subtitles", nil),
		sessionStep("export_final_video", nil),
		sessionStep("mark_complete", nil),
	}
	idx, calls := 0, 0
	f.client.ChatFunc = func(_ context.Context, req llm.Request) (*llm.Response, error) {
		calls++
		if calls == 2 {
			return nil, &recovery.HTTPError{StatusCode: 503, Status: "503 Service Unavailable", Body: "overloaded"}
		}
		if idx >= len(steps) {
			return &llm.Response{Content: "Production finished.", FinishReason: "stop"}, nil
		}
		s := steps[idx]
		idx++
		return s(req), nil
	}

	result, err := f.run(t, "Make a video about undersea volcanoes")
	require.NoError(t, err)

	assert.Equal(t, agent.StatusComplete, result.Status)
	assert.Equal(t, 1, result.Stages[1].Restarts)
	assert.Equal(t, StageComplete, result.Stages[1].Status)

	retries := f.eventsOfType(progress.EventRetry)
	require.Len(t, retries, 1)
	assert.Equal(t, "content_subagent", retries[0].Tool)
	assert.Equal(t, 1, retries[0].Attempt)
	assert.Equal(t, int64(1000), retries[0].DelayMs)

	// The restarted stage resumed from committed state instead of
	// replanning.
	assert.Equal(t, 1, f.planner.Calls())
	assert.Equal(t, "All 8 tool calls succeeded.", result.Report.Summary)

	state, err := f.store.Get(result.SessionID)
	require.NoError(t, err)
	assert.True(t, state.IsComplete)
	assert.Empty(t, state.Errors)
}

func TestRunPermanentChatErrorStopsPipeline(t *testing.T) {
	f := newSupervisorFixture(t)
	f.client.ChatFunc = func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, &recovery.HTTPError{StatusCode: 400, Status: "400 Bad Request", Body: "model rejected the request"}
	}

	result, err := f.run(t, "Make a video about anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "production pipeline stopped")

	assert.Equal(t, agent.StatusError, result.Status)
	require.Len(t, result.Stages, 2)
	assert.Equal(t, StageError, result.Stages[1].Status)
	assert.Equal(t, 0, result.Stages[1].Restarts)

	require.Len(t, result.Report.Errors, 1)
	assert.Equal(t, "content_subagent", result.Report.Errors[0].Tool)
	assert.Equal(t, production.CategoryPermanent, result.Report.Errors[0].Category)

	assert.Empty(t, f.eventsOfType(progress.EventToolCall))
	assert.Empty(t, f.eventsOfType(progress.EventRetry))
	assert.Len(t, f.eventsOfType(progress.EventError), 1)
}

func TestRunExhaustedRestartsRecordAndAdvance(t *testing.T) {
	f := newSupervisorFixture(t)
	f.client.ChatFunc = func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, &recovery.HTTPError{StatusCode: 503, Status: "503 Service Unavailable", Body: "overloaded"}
	}

	result, err := f.run(t, "Make a video about anything")
	require.NoError(t, err)

	// The content stage burned its restarts; with nothing planned, the
	// later gates stayed closed and the run settled with the failure on
	// record.
	assert.Equal(t, agent.StatusComplete, result.Status)
	require.Len(t, result.Stages, 4)
	assert.Equal(t, StageError, result.Stages[1].Status)
	assert.Equal(t, 2, result.Stages[1].Restarts)
	assert.Equal(t, StageSkipped, result.Stages[2].Status)
	assert.Equal(t, StageSkipped, result.Stages[3].Status)

	retries := f.eventsOfType(progress.EventRetry)
	require.Len(t, retries, 2)
	assert.Equal(t, int64(1000), retries[0].DelayMs)
	assert.Equal(t, int64(2000), retries[1].DelayMs)

	require.Len(t, result.Report.Errors, 1)
	assert.Equal(t, production.CategoryTransient, result.Report.Errors[0].Category)
	assert.Equal(t, 2, result.Report.Errors[0].RetryCount)
	assert.Equal(t,
		"0 tool calls succeeded, 1 failed (0 recovered by fallback). Affected tools: content_subagent.",
		result.Report.Summary)
}

func TestRunAuthFailureInsideStageStopsPipeline(t *testing.T) {
	f := newSupervisorFixture(t)
	f.speech.Err = &recovery.HTTPError{StatusCode: 401, Status: "401 Unauthorized", Body: "key expired"}
	script(f.client,
		callStep("plan_video", map[string]any{"topic": "city birds"}),
		sessionStep("narrate_scenes", nil),
	)

	result, err := f.run(t, "Make a video about city birds")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "narrate_scenes failed with authentication error")

	assert.Equal(t, agent.StatusError, result.Status)
	require.Len(t, result.Stages, 2)
	assert.Equal(t, StageError, result.Stages[1].Status)
	assert.Contains(t, result.Stages[1].Message, "authentication")

	assert.Equal(t, 1, result.Report.SuccessCount)
	assert.Equal(t, 1, result.Report.FailureCount)
	require.Len(t, result.Report.Errors, 1)
	assert.Equal(t, production.CategoryAuthentication, result.Report.Errors[0].Category)

	state, err := f.store.Get(result.SessionID)
	require.NoError(t, err)
	require.Len(t, state.Errors, 1)
	assert.Equal(t, "narrate_scenes", state.Errors[0].Tool)
	require.NotNil(t, state.PartialSuccessReport)
	assert.Equal(t, result.Report.Summary, state.PartialSuccessReport.Summary)
}

func TestRunStageIterationCap(t *testing.T) {
	f := newSupervisorFixture(t, WithStageIterations(2))
	id := seedNarratedSession(t, f.store)
	script(f.client,
		sessionStep("validate_plan", nil),
		sessionStep("validate_plan", nil),
	)

	result, err := f.runOpts(t, agent.RunOptions{
		Prompt:    "Finish the production in session " + id,
		SessionID: id,
	})
	require.NoError(t, err)

	assert.Equal(t, agent.StatusLimitReached, result.Status)
	require.Len(t, result.Stages, 4)
	assert.Equal(t, StageLimitReached, result.Stages[1].Status)
	assert.Equal(t, 2, result.Stages[1].Iterations)
	// The capped stage does not block the later stages; their gates reread
	// the session state.
	assert.Equal(t, StageComplete, result.Stages[2].Status)
	assert.Equal(t, StageComplete, result.Stages[3].Status)

	warnings := f.eventsOfType(progress.EventWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "content subagent stopped at its iteration cap")
	assert.Len(t, f.eventsOfType(progress.EventLimitReached), 1)
	assert.Empty(t, f.eventsOfType(progress.EventComplete))

	assert.Equal(t, "All 2 tool calls succeeded. Stopped at the iteration cap.", result.Report.Summary)
}

// seedNarratedSession stores a planned, narrated session, the state a
// resumed run starts from.
func seedNarratedSession(t *testing.T, store *session.Store) string {
	t.Helper()
	id := production.NewProductionID()
	state := production.NewState(id)
	state.ContentPlan = &production.ContentPlan{
		Topic:         "city birds",
		Language:      "en",
		TotalDuration: 30,
		Scenes: []production.Scene{
			{ID: "scene-1", Name: "Scene 1", Duration: 10, NarrationScript: "Pigeons rule the square.", VisualDesc: "pigeons on a wire"},
			{ID: "scene-2", Name: "Scene 2", Duration: 10, NarrationScript: "Sparrows work the cafes.", VisualDesc: "sparrows under a table"},
			{ID: "scene-3", Name: "Scene 3", Duration: 10, NarrationScript: "A hawk watches it all.", VisualDesc: "hawk over rooftops"},
		},
	}
	for _, scene := range state.ContentPlan.Scenes {
		state.NarrationSegments = append(state.NarrationSegments, production.NarrationSegment{
			SceneID:       scene.ID,
			Text:          scene.NarrationScript,
			Audio:         []byte("FAKEAUDIO:" + scene.NarrationScript),
			AudioDuration: 9.5,
		})
	}
	require.NoError(t, store.Create(id, state))
	return id
}

