package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// agentFixture wires a real registry over deterministic fakes, a scripted
// chat client, and a harness whose backoff sleeps are captured instead of
// slept.
type agentFixture struct {
	store       *session.Store
	client      *testutil.MockClient
	registry    *tools.Registry
	planner     *assetstest.FakePlanner
	speech      *assetstest.FakeSynthesizer
	images      *assetstest.FakeImageProvider
	videos      *assetstest.FakeVideoGenerator
	music       *assetstest.FakeMusicGenerator
	mixer       *assetstest.FakeMixer
	renderer    *assetstest.FakeExporter
	transcriber *assetstest.FakeTranscriber
	orch        *Orchestrator
	events      []progress.Event
}

func newAgentFixture(t *testing.T, responses []*llm.Response) *agentFixture {
	t.Helper()
	f := &agentFixture{
		store:       session.NewStore(),
		client:      &testutil.MockClient{Responses: responses},
		planner:     &assetstest.FakePlanner{},
		speech:      &assetstest.FakeSynthesizer{},
		images:      &assetstest.FakeImageProvider{},
		videos:      &assetstest.FakeVideoGenerator{},
		music:       &assetstest.FakeMusicGenerator{},
		mixer:       &assetstest.FakeMixer{},
		renderer:    &assetstest.FakeExporter{},
		transcriber: &assetstest.FakeTranscriber{},
	}

	f.registry = tools.NewRegistry()
	require.NoError(t, f.registry.RegisterExecutor(
		content.NewExecutor(f.store, f.planner, &assetstest.FakeScreenwriter{}, f.speech)))
	require.NoError(t, f.registry.RegisterExecutor(
		media.NewExecutor(f.store, f.images, f.videos, assets.NewCatalogSfxLibrary(), f.music)))
	require.NoError(t, f.registry.RegisterExecutor(
		enhance.NewExecutor(f.store, f.images, f.images, f.mixer)))
	require.NoError(t, f.registry.RegisterExecutor(
		exporter.NewExecutor(f.store, f.renderer, assets.NewCloudUploader(&assetstest.FakeBucket{}, nil))))
	require.NoError(t, f.registry.RegisterExecutor(
		importer.NewExecutor(f.store, nil, nil, f.transcriber)))
	require.NoError(t, f.registry.RegisterExecutor(utility.NewExecutor(f.store)))

	harness := recovery.NewHarness(recovery.NewTable(),
		recovery.WithSleep(func(context.Context, time.Duration) error { return nil }))
	fallback := recovery.NewFallback(f.store, f.images, f.videos, nil)

	f.orch = New(f.client, f.registry, f.store, harness, fallback,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return f
}

func (f *agentFixture) run(t *testing.T, prompt string) (*RunResult, error) {
	t.Helper()
	return f.orch.Run(context.Background(), RunOptions{
		Prompt:   prompt,
		Progress: func(e progress.Event) { f.events = append(f.events, e) },
	})
}

func (f *agentFixture) eventsOfType(typ progress.EventType) []progress.Event {
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

// scriptClient installs a step sequence on the fixture's chat client; once
// the steps run out the model stops calling tools.
func (f *agentFixture) scriptClient(steps ...step) {
	i := 0
	f.client.ChatFunc = func(_ context.Context, req llm.Request) (*llm.Response, error) {
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

// sessionStep issues a tool call against the session minted earlier in the
// conversation, the way a real model reads the id out of a tool result.
func sessionStep(name string, args map[string]any) step {
	return func(req llm.Request) *llm.Response {
		merged := map[string]any{"contentPlanId": mintedSession(req)}
		for k, v := range args {
			merged[k] = v
		}
		return &llm.Response{ToolCalls: []llm.ToolCall{
			{ID: "call_" + name, Name: name, Arguments: merged},
		}}
	}
}

// mintedSession returns the newest sessionId visible in tool messages.
func mintedSession(req llm.Request) string {
	id := ""
	for _, msg := range req.Messages {
		if msg.Role != "tool" {
			continue
		}
		var probe struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal([]byte(msg.Content), &probe); err == nil && probe.SessionID != "" {
			id = probe.SessionID
		}
	}
	return id
}

func TestRunFullPipeline(t *testing.T) {
	f := newAgentFixture(t, nil)
	f.scriptClient(
		callStep("plan_video", map[string]any{
			"topic":          "the glacier caves of iceland",
			"style":          "Documentary",
			"targetDuration": float64(30),
		}),
		sessionStep("narrate_scenes", nil),
		sessionStep("generate_visuals", nil),
		sessionStep("plan_sfx", nil),
		sessionStep("mix_audio_tracks", nil),
		sessionStep("generate_subtitles", nil),
		sessionStep("export_final_video", nil),
		sessionStep("mark_complete", nil),
	)

	result, err := f.run(t, "Make a documentary about the glacier caves of iceland")
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, result.Status)
	assert.Equal(t, "Production finished.", result.FinalMessage)
	assert.Equal(t, 9, result.Iterations)
	assert.Regexp(t, `^prod_[0-9]+_[a-z0-9]{5,12}$`, result.SessionID)

	require.NotNil(t, result.Report)
	assert.Equal(t, 8, result.Report.SuccessCount)
	assert.Equal(t, 0, result.Report.FailureCount)
	assert.Equal(t, "All 8 tool calls succeeded.", result.Report.Summary)

	state, err := f.store.Get(result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, state.SceneCount())
	assert.Len(t, state.NarrationSegments, 3)
	assert.Len(t, state.Visuals, 3)
	assert.NotNil(t, state.SfxPlan)
	assert.NotNil(t, state.MixedAudio)
	assert.NotNil(t, state.Subtitles)
	require.NotNil(t, state.ExportResult)
	assert.NotEmpty(t, state.ExportResult.DownloadURL)
	assert.True(t, state.IsComplete)
	assert.Empty(t, state.Errors)
	require.NotNil(t, state.PartialSuccessReport)
	assert.Equal(t, result.Report.Summary, state.PartialSuccessReport.Summary)

	// Event shape: starts with starting, ends with summary then complete.
	require.NotEmpty(t, f.events)
	assert.Equal(t, progress.EventStarting, f.events[0].Type)
	last := f.events[len(f.events)-1]
	require.Equal(t, progress.EventComplete, last.Type)
	require.NotNil(t, last.AssetSummary)
	assert.Equal(t, 3, last.AssetSummary.SceneCount)
	assert.True(t, last.AssetSummary.HasExport)
	assert.True(t, last.AssetSummary.IsComplete)
	assert.Equal(t, progress.EventSummary, f.events[len(f.events)-2].Type)
	assert.Len(t, f.eventsOfType(progress.EventToolCall), 8)
	assert.Empty(t, f.eventsOfType(progress.EventRetry))

	// Multi-scene tools report per-scene progress through the run context.
	assert.NotEmpty(t, f.eventsOfType(progress.EventSceneProgress))

	// Without a music request the tool surface hides generate_music.
	for _, def := range f.client.LastRequest().Tools {
		assert.NotEqual(t, "generate_music", def.Name)
	}
}

func TestRunTransientFailureRetriesThenSucceeds(t *testing.T) {
	f := newAgentFixture(t, nil)
	f.images.Err = &recovery.HTTPError{StatusCode: 503, Status: "503 Service Unavailable", Body: "upstream overloaded"}
	f.images.FailTimes = 2

	f.scriptClient(
		callStep("plan_video", map[string]any{"topic": "desert wildlife"}),
		sessionStep("narrate_scenes", nil),
		sessionStep("generate_visuals", nil),
	)

	result, err := f.run(t, "A video about desert wildlife")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, result.Status)

	// Two failed attempts then a clean pass over all three scenes.
	assert.Equal(t, 5, f.images.GenerateCalls())

	retries := f.eventsOfType(progress.EventRetry)
	require.Len(t, retries, 2)
	assert.Equal(t, "generate_visuals", retries[0].Tool)
	assert.Equal(t, 1, retries[0].Attempt)
	assert.Equal(t, 2, retries[1].Attempt)
	// Default strategy delays 1000ms and 2000ms, spread by ±25% jitter.
	assert.InDelta(t, 1000, retries[0].DelayMs, 250)
	assert.InDelta(t, 2000, retries[1].DelayMs, 500)

	// A retried-then-recovered call leaves no error record and no warning
	// prefix on its result.
	assert.Equal(t, 0, result.Report.FailureCount)
	assert.Empty(t, result.Report.Errors)
	state, err := f.store.Get(result.SessionID)
	require.NoError(t, err)
	assert.Empty(t, state.Errors)
	for _, v := range state.Visuals {
		assert.NotEmpty(t, v.URL)
		assert.False(t, v.IsPlaceholder)
	}
	for _, e := range f.eventsOfType(progress.EventToolResult) {
		if e.Tool == "generate_visuals" {
			assert.True(t, e.Success)
			assert.False(t, strings.HasPrefix(e.Message, "⚠️"))
		}
	}
}

func TestRunPlaceholderFallback(t *testing.T) {
	f := newAgentFixture(t, nil)
	f.images.Err = &recovery.HTTPError{StatusCode: 400, Status: "400 Bad Request", Body: "prompt rejected"}

	f.scriptClient(
		callStep("plan_video", map[string]any{"topic": "volcano formation"}),
		sessionStep("narrate_scenes", nil),
		sessionStep("generate_visuals", nil),
		sessionStep("export_final_video", nil),
	)

	result, err := f.run(t, "Explain volcano formation")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, result.Status)

	// A permanent failure is not retried; the placeholder fallback keeps
	// the pipeline moving.
	assert.Equal(t, 1, f.images.GenerateCalls())
	assert.Empty(t, f.eventsOfType(progress.EventRetry))

	assert.Equal(t, 3, result.Report.SuccessCount)
	assert.Equal(t, 1, result.Report.FallbackCount)
	assert.Equal(t, 0, result.Report.FailureCount)
	assert.Equal(t, "3 tool calls succeeded; 1 used fallbacks. Affected tools: generate_visuals.", result.Report.Summary)

	state, err := f.store.Get(result.SessionID)
	require.NoError(t, err)
	require.Len(t, state.Visuals, 3)
	for _, v := range state.Visuals {
		assert.True(t, v.IsPlaceholder)
		assert.Equal(t, production.VisualTypeImage, v.Type)
	}
	require.Len(t, state.Errors, 1)
	assert.Equal(t, "generate_visuals", state.Errors[0].Tool)
	assert.Equal(t, production.CategoryPermanent, state.Errors[0].Category)
	assert.Equal(t, "use-placeholder-visual", state.Errors[0].FallbackApplied)

	// Export still works over placeholder slates.
	require.NotNil(t, state.ExportResult)
	assert.NotEmpty(t, state.ExportResult.DownloadURL)

	fallbacks := f.eventsOfType(progress.EventFallback)
	require.Len(t, fallbacks, 1)
	assert.Equal(t, "use-placeholder-visual", fallbacks[0].FallbackAction)

	warned := false
	for _, e := range f.eventsOfType(progress.EventToolResult) {
		if e.Tool == "generate_visuals" {
			assert.True(t, e.Success)
			assert.True(t, strings.HasPrefix(e.Message, "⚠️"))
			warned = true
		}
	}
	assert.True(t, warned)
}

const challengePage = `<!DOCTYPE html><html><head><title>Just a moment...</title>` +
	`<script src="/cdn-cgi/challenge-platform/h/b/orchestrate/jsch/v1"></script></head>` +
	`<body><form id="challenge-form" action="/animate?__cf_chl_f_tk=token"></form></body></html>`

func TestRunCloudflareChallengeSubstitutesTextToVideo(t *testing.T) {
	f := newAgentFixture(t, nil)
	f.videos.AnimateErr = &recovery.HTTPError{StatusCode: 503, Status: "503 Service Unavailable", Body: challengePage}

	f.scriptClient(
		callStep("plan_video", map[string]any{"topic": "coral reefs"}),
		sessionStep("generate_visuals", nil),
		sessionStep("animate_image", map[string]any{"sceneIndex": float64(1)}),
	)

	result, err := f.run(t, "A short film about coral reefs")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, result.Status)

	// The challenge is detected on the first attempt; no retries, one
	// text-to-video substitution.
	assert.Equal(t, 1, f.videos.AnimateCalls())
	assert.Equal(t, 1, f.videos.GenerateCalls())
	assert.Empty(t, f.eventsOfType(progress.EventRetry))

	state, err := f.store.Get(result.SessionID)
	require.NoError(t, err)
	visual := state.VisualForScene(1)
	require.NotNil(t, visual)
	assert.Equal(t, production.VisualTypeVideo, visual.Type)
	assert.True(t, visual.GeneratedWithVeo)
	assert.NotEmpty(t, visual.VideoURL)

	require.Len(t, state.Errors, 1)
	assert.Equal(t, recovery.CloudflareSubstitute, state.Errors[0].FallbackApplied)
	assert.Equal(t, 1, result.Report.FallbackCount)

	warned := false
	for _, e := range f.eventsOfType(progress.EventToolResult) {
		if e.Tool == "animate_image" {
			assert.True(t, strings.HasPrefix(e.Message, "⚠️"))
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRunInBandFailureIsRecordedAndRetriable(t *testing.T) {
	f := newAgentFixture(t, nil)
	f.scriptClient(
		// Missing topic fails in-band; the model corrects itself and the
		// duplicate suppressor must not block the second attempt.
		callStep("plan_video", map[string]any{}),
		callStep("plan_video", map[string]any{"topic": "city gardens"}),
	)

	result, err := f.run(t, "Make a video")
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, result.Status)
	assert.Equal(t, 1, result.Report.SuccessCount)
	assert.Equal(t, 1, result.Report.FailureCount)
	require.Len(t, result.Report.Errors, 1)
	assert.Equal(t, "plan_video", result.Report.Errors[0].Tool)
	assert.Equal(t, production.CategoryValidation, result.Report.Errors[0].Category)
	assert.True(t, result.Report.Errors[0].Recoverable)
	assert.Equal(t, "topic is required", result.Report.Errors[0].Message)

	// The corrected call produced a real session.
	assert.Regexp(t, `^prod_`, result.SessionID)

	results := f.eventsOfType(progress.EventToolResult)
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success)
}

func TestRunSuppressesDuplicateStep(t *testing.T) {
	f := newAgentFixture(t, nil)
	f.scriptClient(
		callStep("plan_video", map[string]any{"topic": "tidal energy"}),
		sessionStep("narrate_scenes", nil),
		sessionStep("narrate_scenes", nil),
	)

	result, err := f.run(t, "A video on tidal energy")
	require.NoError(t, err)

	// The repeat never reached the executor: two executions, no third
	// tool_call event, and the model saw a skip acknowledgement.
	assert.Equal(t, 2, result.Report.SuccessCount)
	assert.Len(t, f.eventsOfType(progress.EventToolCall), 2)

	last := f.client.LastRequest()
	var skipNote string
	for _, msg := range last.Messages {
		if msg.Role == "tool" && strings.Contains(msg.Content, `"skipped":true`) {
			skipNote = msg.Content
		}
	}
	require.NotEmpty(t, skipNote, "duplicate call should produce a synthetic skip message")
	assert.Contains(t, skipNote, "narrate_scenes already completed")
}

func TestRunCacheHitSkipsExecution(t *testing.T) {
	f := newAgentFixture(t, nil)
	id := seedSession(t, f.store, func(s *production.State) {
		for i, scene := range s.ContentPlan.Scenes {
			s.Visuals = append(s.Visuals, production.Visual{
				SceneID: scene.ID,
				URL:     fmt.Sprintf("https://assets.test/images/%d.png", i+1),
				Type:    production.VisualTypeImage,
			})
		}
	})

	f.scriptClient(
		callStep("generate_visuals", map[string]any{"contentPlanId": id}),
	)

	result, err := f.orch.Run(context.Background(), RunOptions{
		Prompt:    "Regenerate the visuals",
		SessionID: id,
		Progress:  func(e progress.Event) { f.events = append(f.events, e) },
	})
	require.NoError(t, err)

	assert.Equal(t, 0, f.images.GenerateCalls(), "cache hit must not invoke the provider")
	assert.Equal(t, 1, result.Report.SuccessCount)

	var cached bool
	for _, msg := range f.client.LastRequest().Messages {
		if msg.Role == "tool" && strings.Contains(msg.Content, `"cached":true`) {
			cached = true
		}
	}
	assert.True(t, cached, "model should see the cached payload")

	results := f.eventsOfType(progress.EventToolResult)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Contains(t, results[0].Message, "reused")
}

func TestRunIterationLimit(t *testing.T) {
	f := newAgentFixture(t, nil)
	id := seedSession(t, f.store, nil)

	// The scripted model never stops asking for status; the mock repeats
	// its last response, so only the iteration cap ends the run.
	f.client.Responses = []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call_status", Name: "get_production_status",
			Arguments: map[string]any{"contentPlanId": id}}}},
	}
	f.orch.maxIterations = 4

	result, err := f.orch.Run(context.Background(), RunOptions{
		Prompt:    "How is my production going?",
		SessionID: id,
		Progress:  func(e progress.Event) { f.events = append(f.events, e) },
	})
	require.NoError(t, err)

	assert.Equal(t, StatusLimitReached, result.Status)
	assert.Equal(t, 4, result.Iterations)
	assert.Equal(t, 4, f.client.CallCount())
	assert.Equal(t, 4, result.Report.SuccessCount)
	assert.Contains(t, result.Report.Summary, "Stopped at the iteration cap.")

	warnings := f.eventsOfType(progress.EventWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "2 iterations remain")
	require.Len(t, f.eventsOfType(progress.EventLimitReached), 1)
	assert.Empty(t, f.eventsOfType(progress.EventComplete))
}

func TestRunAuthenticationFailureStopsPipeline(t *testing.T) {
	f := newAgentFixture(t, nil)
	f.speech.Err = &recovery.HTTPError{StatusCode: 401, Status: "401 Unauthorized", Body: "invalid api key"}

	f.scriptClient(
		callStep("plan_video", map[string]any{"topic": "space telescopes"}),
		sessionStep("narrate_scenes", nil),
		sessionStep("generate_visuals", nil), // never reached
	)

	result, err := f.run(t, "A video about space telescopes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "production pipeline stopped")

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, 1, result.Report.SuccessCount)
	assert.Equal(t, 1, result.Report.FailureCount)
	require.Len(t, result.Report.Errors, 1)
	assert.Equal(t, production.CategoryAuthentication, result.Report.Errors[0].Category)

	// The visuals step was never dispatched.
	assert.Equal(t, 0, f.images.GenerateCalls())
	assert.Len(t, f.eventsOfType(progress.EventToolCall), 2)
	require.Len(t, f.eventsOfType(progress.EventError), 1)

	// The report still lands in session state.
	state, err := f.store.Get(result.SessionID)
	require.NoError(t, err)
	require.NotNil(t, state.PartialSuccessReport)
	assert.Equal(t, 1, state.PartialSuccessReport.FailureCount)
}

func TestRunFatalLLMErrorIsRecordedAndRethrown(t *testing.T) {
	f := newAgentFixture(t, nil)
	f.client.Err = fmt.Errorf("dial tcp: connection refused")

	result, err := f.run(t, "Make any video")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "production agent")

	require.NotNil(t, result)
	assert.Equal(t, StatusError, result.Status)
	require.Len(t, result.Report.Errors, 1)
	assert.Equal(t, "production_agent", result.Report.Errors[0].Tool)
	assert.Equal(t, production.CategoryTransient, result.Report.Errors[0].Category)
	assert.Positive(t, result.Report.Errors[0].RetryCount)
	require.Len(t, f.eventsOfType(progress.EventError), 1)
}

func TestRunMusicToolSurface(t *testing.T) {
	f := newAgentFixture(t, nil)
	f.scriptClient()

	_, err := f.run(t, "A calm video about rivers")
	require.NoError(t, err)
	for _, def := range f.client.LastRequest().Tools {
		require.NotEqual(t, "generate_music", def.Name)
	}

	f2 := newAgentFixture(t, nil)
	f2.scriptClient()
	_, err = f2.run(t, "A calm video about rivers with soothing music")
	require.NoError(t, err)
	found := false
	for _, def := range f2.client.LastRequest().Tools {
		if def.Name == "generate_music" {
			found = true
		}
	}
	assert.True(t, found, "music request exposes generate_music")
}

func TestRunAttachedAudioFlow(t *testing.T) {
	f := newAgentFixture(t, nil)

	importIDPattern := regexp.MustCompile(`import_[0-9]+_[a-z0-9]{5,12}`)
	f.scriptClient(
		func(req llm.Request) *llm.Response {
			// The system prompt names the session holding the upload.
			id := importIDPattern.FindString(req.Messages[0].Content)
			return &llm.Response{ToolCalls: []llm.ToolCall{
				{ID: "call_tr", Name: "transcribe_audio_file", Arguments: map[string]any{"contentPlanId": id}},
			}}
		},
		func(req llm.Request) *llm.Response {
			id := importIDPattern.FindString(req.Messages[0].Content)
			return &llm.Response{ToolCalls: []llm.ToolCall{
				{ID: "call_plan", Name: "plan_video", Arguments: map[string]any{
					"topic":           "the attached interview",
					"sourceSessionId": id,
				}},
			}}
		},
	)

	result, err := f.orch.Run(context.Background(), RunOptions{
		Prompt:        "Turn my interview recording into a video",
		AttachedAudio: []byte("RIFF-fake-wav"),
		AudioMimeType: "audio/wav",
		AudioFileName: "interview.wav",
		Progress:      func(e progress.Event) { f.events = append(f.events, e) },
	})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, result.Status)

	// The run settles on the production session, not the import one.
	assert.Regexp(t, `^prod_`, result.SessionID)

	// The upload landed in an import session and was transcribed there.
	prompt := f.client.CapturedRequests()[0].Messages[0].Content
	importID := importIDPattern.FindString(prompt)
	require.NotEmpty(t, importID, "system prompt must name the import session")
	imported, err := f.store.Get(importID)
	require.NoError(t, err)
	require.NotNil(t, imported.ImportedContent)
	assert.Equal(t, "audio", imported.ImportedContent.SourceKind)
	assert.Equal(t, "interview.wav", imported.ImportedContent.Metadata["filename"])
	assert.NotEmpty(t, imported.ImportedContent.Transcript)

	// The plan was seeded from the transcript.
	assert.Equal(t, imported.ImportedContent.Transcript, f.planner.LastRequest.SourceTranscript)

	// Early events carry the import id, later ones the production id.
	assert.Equal(t, importID, f.events[0].SessionID)
	assert.Equal(t, result.SessionID, f.events[len(f.events)-1].SessionID)
}
