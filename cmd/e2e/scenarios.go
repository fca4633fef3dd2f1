package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/lordpython/aisoulstudio/agent"
	"github.com/lordpython/aisoulstudio/assets"
	"github.com/lordpython/aisoulstudio/assets/assetstest"
	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/llm/testutil"
	"github.com/lordpython/aisoulstudio/progress"
	"github.com/lordpython/aisoulstudio/recovery"
	"github.com/lordpython/aisoulstudio/session"
	"github.com/lordpython/aisoulstudio/supervisor"
	"github.com/lordpython/aisoulstudio/tools"
	"github.com/lordpython/aisoulstudio/tools/content"
	"github.com/lordpython/aisoulstudio/tools/enhance"
	"github.com/lordpython/aisoulstudio/tools/exporter"
	"github.com/lordpython/aisoulstudio/tools/importer"
	"github.com/lordpython/aisoulstudio/tools/media"
	"github.com/lordpython/aisoulstudio/tools/utility"
)

// scenario is one self-contained smoke flow.
type scenario struct {
	name        string
	description string
	run         func(ctx context.Context) *result
}

func allScenarios() []scenario {
	return []scenario{
		{
			name:        "pipeline",
			description: "Full eight-step production through the tool-calling agent",
			run:         runPipelineScenario,
		},
		{
			name:        "supervised",
			description: "Staged supervisor run with per-stage tool surfaces",
			run:         runSupervisedScenario,
		},
		{
			name:        "retry",
			description: "Transient visual failures retried to a clean pass",
			run:         runRetryScenario,
		},
		{
			name:        "fallback",
			description: "Permanent visual failure degraded to placeholder slates",
			run:         runFallbackScenario,
		},
	}
}

// result is the outcome of one scenario run.
type result struct {
	ScenarioName string       `json:"scenario"`
	Success      bool         `json:"success"`
	Error        string       `json:"error,omitempty"`
	Checks       []checkEntry `json:"checks,omitempty"`
	DurationMs   int64        `json:"durationMs"`

	start time.Time
}

type checkEntry struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func newResult(name string) *result {
	return &result{ScenarioName: name, Success: true, start: time.Now()}
}

// check records one named assertion; the first failure becomes the
// scenario error.
func (r *result) check(name string, err error) {
	entry := checkEntry{Name: name, Success: err == nil}
	if err != nil {
		entry.Error = err.Error()
		r.Success = false
		if r.Error == "" {
			r.Error = name + ": " + err.Error()
		}
	}
	r.Checks = append(r.Checks, entry)
}

func (r *result) checkTrue(name string, ok bool) {
	if ok {
		r.check(name, nil)
	} else {
		r.check(name, fmt.Errorf("condition not met"))
	}
}

func (r *result) done() *result {
	r.DurationMs = time.Since(r.start).Milliseconds()
	return r
}

func wantInt(got, want int) error {
	if got != want {
		return fmt.Errorf("got %d, want %d", got, want)
	}
	return nil
}

func wantStr(got, want string) error {
	if got != want {
		return fmt.Errorf("got %q, want %q", got, want)
	}
	return nil
}

// studio wires the real tool registry over deterministic in-memory
// providers, the way a dry run does. Each scenario builds its own so
// failure injection never leaks across runs.
type studio struct {
	store    *session.Store
	client   *testutil.MockClient
	registry *tools.Registry
	images   *assetstest.FakeImageProvider
	videos   *assetstest.FakeVideoGenerator
	harness  *recovery.Harness
	fallback *recovery.Fallback
	logger   *slog.Logger
	events   []progress.Event
}

func newStudio() (*studio, error) {
	s := &studio{
		store:  session.NewStore(),
		client: &testutil.MockClient{},
		images: &assetstest.FakeImageProvider{},
		videos: &assetstest.FakeVideoGenerator{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	s.registry = tools.NewRegistry()
	executors := []tools.Executor{
		content.NewExecutor(s.store, &assetstest.FakePlanner{}, &assetstest.FakeScreenwriter{}, &assetstest.FakeSynthesizer{}),
		media.NewExecutor(s.store, s.images, s.videos, assets.NewCatalogSfxLibrary(), &assetstest.FakeMusicGenerator{}),
		enhance.NewExecutor(s.store, s.images, s.images, &assetstest.FakeMixer{}),
		exporter.NewExecutor(s.store, &assetstest.FakeExporter{}, assets.NewCloudUploader(&assetstest.FakeBucket{}, nil)),
		importer.NewExecutor(s.store, nil, nil, &assetstest.FakeTranscriber{}),
		utility.NewExecutor(s.store),
	}
	for _, exec := range executors {
		if err := s.registry.RegisterExecutor(exec); err != nil {
			return nil, fmt.Errorf("register tools: %w", err)
		}
	}

	s.harness = recovery.NewHarness(recovery.NewTable(), recovery.WithSleep(noSleep))
	s.fallback = recovery.NewFallback(s.store, s.images, s.videos, nil)
	return s, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func (s *studio) record(e progress.Event) { s.events = append(s.events, e) }

func (s *studio) eventsOfType(typ progress.EventType) []progress.Event {
	var out []progress.Event
	for _, e := range s.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// step produces one scripted model response from the visible history.
type step func(req llm.Request) *llm.Response

// script installs a step sequence on a chat client; once the steps run
// out the model stops calling tools.
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
// see, the way a real model reads the id out of a tool result.
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

// visibleSession returns the newest session id in the conversation: the
// one named in a stage task, superseded by ids minted in tool results.
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

func runPipelineScenario(ctx context.Context) *result {
	r := newResult("pipeline")
	s, err := newStudio()
	if err != nil {
		r.check("studio wiring", err)
		return r.done()
	}

	script(s.client,
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

	orch := agent.New(s.client, s.registry, s.store, s.harness, s.fallback,
		agent.WithLogger(s.logger))
	res, err := orch.Run(ctx, agent.RunOptions{
		Prompt:   "Make a documentary about the glacier caves of iceland",
		Progress: s.record,
	})
	r.check("run completes", err)
	if err != nil {
		return r.done()
	}

	r.check("status complete", wantStr(res.Status, agent.StatusComplete))
	r.check("nine iterations", wantInt(res.Iterations, 9))
	r.checkTrue("report present", res.Report != nil)
	if res.Report != nil {
		r.check("eight tool successes", wantInt(res.Report.SuccessCount, 8))
		r.check("no failures", wantInt(res.Report.FailureCount, 0))
	}

	state, err := s.store.Get(res.SessionID)
	r.check("session persisted", err)
	if err != nil {
		return r.done()
	}
	r.check("three scenes planned", wantInt(state.SceneCount(), 3))
	r.check("narration per scene", wantInt(len(state.NarrationSegments), 3))
	r.check("visual per scene", wantInt(len(state.Visuals), 3))
	r.checkTrue("audio mixed", state.MixedAudio != nil)
	r.checkTrue("subtitles generated", state.Subtitles != nil)
	r.checkTrue("export has download URL", state.ExportResult != nil && state.ExportResult.DownloadURL != "")
	r.checkTrue("session marked complete", state.IsComplete)
	r.check("tool call events", wantInt(len(s.eventsOfType(progress.EventToolCall)), 8))
	return r.done()
}

func runSupervisedScenario(ctx context.Context) *result {
	r := newResult("supervised")
	s, err := newStudio()
	if err != nil {
		r.check("studio wiring", err)
		return r.done()
	}

	script(s.client,
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

	sup := supervisor.New(s.client, s.registry, s.store, s.harness, s.fallback,
		supervisor.WithLogger(s.logger), supervisor.WithSleep(noSleep))
	res, err := sup.Run(ctx, agent.RunOptions{
		Prompt:   "Make a documentary about the glacier caves of iceland",
		Progress: s.record,
	})
	r.check("run completes", err)
	if err != nil {
		return r.done()
	}

	r.check("status complete", wantStr(res.Status, agent.StatusComplete))
	r.check("four stages", wantInt(len(res.Stages), 4))
	if len(res.Stages) == 4 {
		r.check("import skipped", wantStr(res.Stages[0].Status, supervisor.StageSkipped))
		r.check("content complete", wantStr(res.Stages[1].Status, supervisor.StageComplete))
		r.check("media complete", wantStr(res.Stages[2].Status, supervisor.StageComplete))
		r.check("post-production complete", wantStr(res.Stages[3].Status, supervisor.StageComplete))
	}
	r.checkTrue("report present", res.Report != nil)
	if res.Report != nil {
		r.check("nine tool successes", wantInt(res.Report.SuccessCount, 9))
	}

	// The media stage sees only its own tools.
	reqs := s.client.CapturedRequests()
	r.checkTrue("media stage captured", len(reqs) > 4)
	if len(reqs) > 4 {
		r.check("media stage tool surface", wantInt(len(reqs[4].Tools), 4))
	}

	state, err := s.store.Get(res.SessionID)
	r.check("session persisted", err)
	if err != nil {
		return r.done()
	}
	r.checkTrue("plan validated", state.QualityScore > 0)
	r.checkTrue("session marked complete", state.IsComplete)
	return r.done()
}

func runRetryScenario(ctx context.Context) *result {
	r := newResult("retry")
	s, err := newStudio()
	if err != nil {
		r.check("studio wiring", err)
		return r.done()
	}
	s.images.Err = &recovery.HTTPError{StatusCode: 503, Status: "503 Service Unavailable", Body: "upstream overloaded"}
	s.images.FailTimes = 2

	script(s.client,
		callStep("plan_video", map[string]any{"topic": "desert wildlife"}),
		sessionStep("narrate_scenes", nil),
		sessionStep("generate_visuals", nil),
	)

	orch := agent.New(s.client, s.registry, s.store, s.harness, s.fallback,
		agent.WithLogger(s.logger))
	res, err := orch.Run(ctx, agent.RunOptions{
		Prompt:   "A video about desert wildlife",
		Progress: s.record,
	})
	r.check("run completes", err)
	if err != nil {
		return r.done()
	}

	r.check("status complete", wantStr(res.Status, agent.StatusComplete))
	// Two failed attempts, then a clean pass over all three scenes.
	r.check("provider attempts", wantInt(s.images.GenerateCalls(), 5))
	r.check("two retries", wantInt(len(s.eventsOfType(progress.EventRetry)), 2))
	if res.Report != nil {
		r.check("no failure records", wantInt(res.Report.FailureCount, 0))
	}

	state, err := s.store.Get(res.SessionID)
	r.check("session persisted", err)
	if err != nil {
		return r.done()
	}
	r.check("visual per scene", wantInt(len(state.Visuals), 3))
	for _, v := range state.Visuals {
		if v.IsPlaceholder || v.URL == "" {
			r.check("real visuals after retry", fmt.Errorf("scene %s got a placeholder", v.SceneID))
			return r.done()
		}
	}
	r.check("real visuals after retry", nil)
	return r.done()
}

func runFallbackScenario(ctx context.Context) *result {
	r := newResult("fallback")
	s, err := newStudio()
	if err != nil {
		r.check("studio wiring", err)
		return r.done()
	}
	s.images.Err = &recovery.HTTPError{StatusCode: 400, Status: "400 Bad Request", Body: "prompt rejected"}

	script(s.client,
		callStep("plan_video", map[string]any{"topic": "volcano formation"}),
		sessionStep("narrate_scenes", nil),
		sessionStep("generate_visuals", nil),
		sessionStep("export_final_video", nil),
	)

	orch := agent.New(s.client, s.registry, s.store, s.harness, s.fallback,
		agent.WithLogger(s.logger))
	res, err := orch.Run(ctx, agent.RunOptions{
		Prompt:   "Explain volcano formation",
		Progress: s.record,
	})
	r.check("run completes", err)
	if err != nil {
		return r.done()
	}

	r.check("status complete", wantStr(res.Status, agent.StatusComplete))
	// A permanent failure is not retried.
	r.check("single provider attempt", wantInt(s.images.GenerateCalls(), 1))
	r.check("no retries", wantInt(len(s.eventsOfType(progress.EventRetry)), 0))
	if res.Report != nil {
		r.check("one fallback", wantInt(res.Report.FallbackCount, 1))
		r.check("no failures", wantInt(res.Report.FailureCount, 0))
	}

	state, err := s.store.Get(res.SessionID)
	r.check("session persisted", err)
	if err != nil {
		return r.done()
	}
	r.check("visual per scene", wantInt(len(state.Visuals), 3))
	for _, v := range state.Visuals {
		if !v.IsPlaceholder {
			r.check("placeholder slates", fmt.Errorf("scene %s got a real visual", v.SceneID))
			return r.done()
		}
	}
	r.check("placeholder slates", nil)
	r.checkTrue("export still works", state.ExportResult != nil && state.ExportResult.DownloadURL != "")
	return r.done()
}
