// Package supervisor runs the production pipeline in decomposed mode: four
// stage subagents, each owning one slice of the tool catalog, sequenced
// over a single shared session. Every tool call settles through the same
// dispatcher as the monolithic agent, so a decomposed run leaves the
// session state a monolithic run would have left.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lordpython/aisoulstudio/agent"
	"github.com/lordpython/aisoulstudio/intent"
	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/progress"
	"github.com/lordpython/aisoulstudio/recovery"
	"github.com/lordpython/aisoulstudio/session"
	"github.com/lordpython/aisoulstudio/tools"
)

// StageIterations bounds each subagent's conversation. A stage sees one
// slice of the pipeline, so its budget is a fraction of the monolithic cap.
const StageIterations = 8

// Stage terminal statuses.
const (
	StageComplete     = "complete"
	StageSkipped      = "skipped"
	StageLimitReached = "limit_reached"
	StageError        = "error"
)

// errStopped marks a stage conversation ended by a pipeline-fatal tool
// failure; the dispatcher holds the cause.
var errStopped = errors.New("pipeline stopped")

// errStageBudget marks a stage that consumed its whole iteration budget
// with the model still asking for tools.
var errStageBudget = errors.New("stage iteration budget exhausted")

// Supervisor sequences the stage subagents over one session. It is safe
// for concurrent use; each Run keeps its own dispatcher.
type Supervisor struct {
	client          llm.ChatClient
	registry        *tools.Registry
	sessions        *session.Store
	harness         *recovery.Harness
	fallback        *recovery.Fallback
	logger          *slog.Logger
	capability      string
	stageIterations int
	musicAlways     bool
	sleep           func(context.Context, time.Duration) error
	stages          []Subagent
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithStageIterations overrides the per-stage iteration cap. Values below
// 1 are ignored.
func WithStageIterations(n int) Option {
	return func(s *Supervisor) {
		if n >= 1 {
			s.stageIterations = n
		}
	}
}

// WithCapability selects the model capability stage conversations use.
func WithCapability(capability string) Option {
	return func(s *Supervisor) { s.capability = capability }
}

// WithMusicAlways exposes generate_music to the media stage on every run.
func WithMusicAlways() Option {
	return func(s *Supervisor) { s.musicAlways = true }
}

// WithSleep replaces the restart backoff sleep, for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(s *Supervisor) { s.sleep = sleep }
}

// New builds a supervisor over the same collaborators as the monolithic
// orchestrator. A nil harness gets default strategies; a nil fallback
// disables substitutions.
func New(client llm.ChatClient, registry *tools.Registry, sessions *session.Store, harness *recovery.Harness, fallback *recovery.Fallback, opts ...Option) *Supervisor {
	if harness == nil {
		harness = recovery.NewHarness(nil)
	}
	s := &Supervisor{
		client:          client,
		registry:        registry,
		sessions:        sessions,
		harness:         harness,
		fallback:        fallback,
		logger:          slog.Default(),
		capability:      "orchestration",
		stageIterations: StageIterations,
		sleep:           sleepContext,
		stages:          pipelineStages(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StageResult is one subagent's outcome.
type StageResult struct {
	Name   string
	Status string
	// Restarts counts how often a transient failure restarted the stage.
	Restarts int
	// Iterations counts the LLM responses the stage consumed, restarts
	// included.
	Iterations int
	// Message is the stage's closing text, or the skip reason.
	Message string
}

// RunResult is what a finished (or stopped) decomposed run reports back.
type RunResult struct {
	SessionID    string
	Status       string
	Report       *production.Report
	FinalMessage string
	Stages       []StageResult
}

// stageInputs are the run-scoped values every stage conversation needs.
type stageInputs struct {
	prompt       string
	importID     string
	musicEnabled bool
}

// Run sequences the stages in pipeline order. A stage opens only when its
// entry tools have their dependencies satisfied by the session state the
// earlier stages left behind. Transient stage failures restart the stage;
// permanent ones stop the pipeline; anything else records and advances.
// The partial-success report is written into session state on every exit
// path, exactly as a monolithic run writes it.
func (s *Supervisor) Run(ctx context.Context, opts agent.RunOptions) (*RunResult, error) {
	analysis := intent.Analyze(opts.Prompt)

	importID, err := agent.StashAttachedAudio(s.sessions, s.logger, opts)
	if err != nil {
		return nil, err
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = importID
	}

	emitter := progress.NewEmitter(sessionID, opts.Progress)
	defer emitter.Close()
	ctx = progress.NewContext(ctx, emitter)

	d := agent.NewDispatcher(s.registry, s.sessions, s.harness, s.fallback, emitter, s.logger)

	emitter.Emit(progress.Event{Type: progress.EventStarting, Message: "Decomposed production run starting"})
	if analysis.HasImportSignal() {
		emitter.Emit(progress.Event{
			Type:    progress.EventIntentDetected,
			Message: agent.ImportSignalMessage(analysis),
		})
	}

	in := stageInputs{
		prompt:       analysis.Annotate(opts.Prompt),
		importID:     importID,
		musicEnabled: s.musicAlways || analysis.WantsMusic,
	}
	hasImportWork := analysis.HasImportSignal() || importID != ""

	result := &RunResult{Status: agent.StatusComplete}

	for i, st := range s.stages {
		if st.ImportOnly && !hasImportWork {
			result.Stages = append(result.Stages, s.skipStage(emitter, st, "no source material to import"))
			continue
		}
		if ok, missing := st.ready(completedTools(s.sessionState(d.SessionID()))); !ok {
			result.Stages = append(result.Stages, s.skipStage(emitter, st, missing))
			continue
		}

		emitter.Emit(progress.Event{
			Type:    progress.EventStage,
			Tool:    st.Name,
			Message: fmt.Sprintf("Running %s subagent (stage %d of %d)", st.Name, i+1, len(s.stages)),
		})

		sr, stop := s.runStage(ctx, d, st, in)
		result.Stages = append(result.Stages, sr)
		if sr.Status == StageLimitReached {
			result.Status = agent.StatusLimitReached
		}
		if sr.Status == StageComplete && sr.Message != "" {
			result.FinalMessage = sr.Message
		}
		if stop {
			result.Status = agent.StatusError
			break
		}
	}

	result.SessionID = d.SessionID()
	result.Report = s.finalize(d, emitter, result.Status)
	if result.Status == agent.StatusError {
		return result, fmt.Errorf("production pipeline stopped: %s", d.StopCause())
	}
	return result, nil
}

// runStage runs one subagent, restarting it on transient failures per the
// recovery strategy registered under the stage's record name. The returned
// stop flag terminates the pipeline.
func (s *Supervisor) runStage(ctx context.Context, d *agent.Dispatcher, st Subagent, in stageInputs) (StageResult, bool) {
	strategy := s.harness.Table().Resolve(st.recordName())
	sr := StageResult{Name: st.Name}

	for attempt := 0; ; attempt++ {
		sr.Restarts = attempt
		message, iters, err := s.converse(ctx, d, st, in)
		sr.Iterations += iters

		switch {
		case err == nil:
			sr.Status = StageComplete
			sr.Message = message
			return sr, false

		case errors.Is(err, errStopped):
			sr.Status = StageError
			sr.Message = d.StopCause()
			return sr, true

		case errors.Is(err, errStageBudget):
			progress.FromContext(ctx).Emit(progress.Event{
				Type:    progress.EventWarning,
				Tool:    st.Name,
				Message: fmt.Sprintf("%s subagent stopped at its iteration cap", st.Name),
			})
			sr.Status = StageLimitReached
			sr.Message = fmt.Sprintf("stopped after %d responses", s.stageIterations)
			return sr, false
		}

		if category := recovery.Classify(err); category.Retryable() && attempt < strategy.MaxRetries {
			delay := strategy.Delay(attempt)
			s.logger.Warn("Subagent failed, restarting",
				"stage", st.Name,
				"attempt", attempt+1,
				"delay", delay,
				"error", err)
			progress.FromContext(ctx).Emit(progress.Event{
				Type:    progress.EventRetry,
				Tool:    st.recordName(),
				Attempt: attempt + 1,
				DelayMs: delay.Milliseconds(),
			})
			if s.sleep(ctx, delay) == nil {
				continue
			}
		}

		te := d.RecordAgentFailure(st.recordName(), err, attempt)
		sr.Status = StageError
		sr.Message = err.Error()
		stop := te.Category == production.CategoryPermanent ||
			te.Category == production.CategoryAuthentication ||
			!strategy.ContinueOnFailure
		return sr, stop
	}
}

// converse runs one stage conversation to completion: fresh messages, the
// stage's surface, every call settled through the run's shared dispatcher.
// A restarted stage rebuilds its task from the session state, so work that
// already committed is described as done rather than redone.
func (s *Supervisor) converse(ctx context.Context, d *agent.Dispatcher, st Subagent, in stageInputs) (string, int, error) {
	sc := stageContext{
		ImportSessionID: in.importID,
		MusicEnabled:    in.musicEnabled,
		Budget:          s.stageIterations,
		Rules:           agent.DependencyRules(st.toolNames(s.registry, in.musicEnabled)),
	}
	messages := []llm.Message{
		{Role: "system", Content: st.prompt(sc)},
		{Role: "user", Content: stageTask(in.prompt, d.SessionID(), s.sessionState(d.SessionID()))},
	}
	surface := st.surface(s.registry, in.musicEnabled)

	for it := 1; it <= s.stageIterations; it++ {
		resp, err := s.client.Chat(ctx, llm.Request{
			Capability: s.capability,
			Messages:   messages,
			Tools:      surface,
			ToolChoice: "auto",
		})
		if err != nil {
			return "", it, err
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, it, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			payload, stop := d.Handle(ctx, call)
			messages = append(messages, llm.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    payload,
			})
			if stop {
				return "", it, errStopped
			}
		}
	}
	return "", s.stageIterations, errStageBudget
}

// skipStage emits the stage event for a gate that stayed closed.
func (s *Supervisor) skipStage(emitter *progress.Emitter, st Subagent, reason string) StageResult {
	s.logger.Info("Stage skipped", "stage", st.Name, "reason", reason)
	emitter.Emit(progress.Event{
		Type:    progress.EventStage,
		Tool:    st.Name,
		Message: fmt.Sprintf("%s subagent skipped: %s", st.Name, reason),
	})
	return StageResult{Name: st.Name, Status: StageSkipped, Message: reason}
}

// sessionState fetches the run's session, or nil before one exists.
func (s *Supervisor) sessionState(id string) *production.State {
	if id == "" {
		return nil
	}
	state, err := s.sessions.Get(id)
	if err != nil {
		return nil
	}
	return state
}

// finalize writes the partial-success report into session state and emits
// the summary plus the terminal event, matching the monolithic epilogue.
func (s *Supervisor) finalize(d *agent.Dispatcher, emitter *progress.Emitter, status string) *production.Report {
	extra := ""
	if status == agent.StatusLimitReached {
		extra = "Stopped at the iteration cap."
	}
	report := d.Report(extra)

	var summary *progress.AssetSummary
	if id := d.SessionID(); id != "" && s.sessions.Has(id) {
		_ = s.sessions.Update(id, func(st *production.State) {
			st.PartialSuccessReport = report
		})
		if state, err := s.sessions.Get(id); err == nil {
			summary = agent.SummarizeAssets(state)
		}
	}

	emitter.Emit(progress.Event{Type: progress.EventSummary, Message: report.Summary})

	switch status {
	case agent.StatusComplete:
		emitter.Emit(progress.Event{
			Type:         progress.EventComplete,
			Message:      "Production run complete",
			AssetSummary: summary,
		})
	case agent.StatusLimitReached:
		emitter.Emit(progress.Event{
			Type:    progress.EventLimitReached,
			Message: "Stopped at a stage iteration cap",
		})
	default:
		emitter.Emit(progress.Event{
			Type:    progress.EventError,
			Message: d.StopCause(),
		})
	}

	s.logger.Info("Decomposed run settled",
		"session_id", d.SessionID(),
		"status", status,
		"summary", report.Summary)
	return report
}

// sleepContext waits out a restart backoff unless the context ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
