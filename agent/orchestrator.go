// Package agent runs the tool-calling production loop: it binds the tool
// catalog to an LLM, executes the calls the model makes through the
// recovery harness, and settles every run with a partial-success report.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lordpython/aisoulstudio/intent"
	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/progress"
	"github.com/lordpython/aisoulstudio/recovery"
	"github.com/lordpython/aisoulstudio/session"
	"github.com/lordpython/aisoulstudio/tools"
)

// MaxIterations bounds the control loop: one iteration is one LLM response,
// which may carry several tool calls.
const MaxIterations = 20

// Run terminal statuses.
const (
	StatusComplete     = "complete"
	StatusLimitReached = "limit_reached"
	StatusError        = "error"
)

// Orchestrator is the monolithic production agent. It is safe for
// concurrent use; each Run keeps its own state.
type Orchestrator struct {
	client        llm.ChatClient
	registry      *tools.Registry
	sessions      *session.Store
	harness       *recovery.Harness
	fallback      *recovery.Fallback
	logger        *slog.Logger
	capability    string
	maxIterations int
	musicAlways   bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMaxIterations overrides the iteration cap. Values below 1 are ignored.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.maxIterations = n
		}
	}
}

// WithCapability selects the model capability the run is routed to.
func WithCapability(capability string) Option {
	return func(o *Orchestrator) { o.capability = capability }
}

// WithMusicAlways exposes generate_music on every run instead of only when
// the request asks for music.
func WithMusicAlways() Option {
	return func(o *Orchestrator) { o.musicAlways = true }
}

// New builds an orchestrator over a chat client, a populated tool registry,
// and the shared session store. A nil harness gets default strategies; a
// nil fallback disables substitutions.
func New(client llm.ChatClient, registry *tools.Registry, sessions *session.Store, harness *recovery.Harness, fallback *recovery.Fallback, opts ...Option) *Orchestrator {
	if harness == nil {
		harness = recovery.NewHarness(nil)
	}
	o := &Orchestrator{
		client:        client,
		registry:      registry,
		sessions:      sessions,
		harness:       harness,
		fallback:      fallback,
		logger:        slog.Default(),
		capability:    "orchestration",
		maxIterations: MaxIterations,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunOptions describe one production request.
type RunOptions struct {
	// Prompt is the user's request.
	Prompt string
	// SessionID resumes an existing production session when set.
	SessionID string
	// AttachedAudio, when present, is stored in a fresh import session
	// before the loop starts so transcribe_audio_file can reach it.
	AttachedAudio []byte
	AudioMimeType string
	AudioFileName string
	// Progress receives the run's events. Nil is fine.
	Progress progress.Callback
}

// RunResult is what a finished (or stopped) run reports back.
type RunResult struct {
	SessionID    string
	Status       string
	Report       *production.Report
	FinalMessage string
	Iterations   int
}

// Run drives the loop until the model stops calling tools, the iteration
// cap is hit, or a fatal error ends the pipeline. The partial-success
// report is written into session state on every exit path.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	analysis := intent.Analyze(opts.Prompt)

	importID, err := StashAttachedAudio(o.sessions, o.logger, opts)
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

	d := NewDispatcher(o.registry, o.sessions, o.harness, o.fallback, emitter, o.logger)

	emitter.Emit(progress.Event{Type: progress.EventStarting, Message: "Production run starting"})
	if analysis.HasImportSignal() {
		emitter.Emit(progress.Event{
			Type:    progress.EventIntentDetected,
			Message: ImportSignalMessage(analysis),
		})
	}

	system := BuildSystemPrompt(o.registry, PromptOptions{
		ImportSessionID: importID,
		MusicEnabled:    o.musicAlways || analysis.WantsMusic,
		MaxIterations:   o.maxIterations,
	})
	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: analysis.Annotate(opts.Prompt)},
	}
	surface := o.toolSurface(analysis)

	result := &RunResult{SessionID: d.SessionID(), Status: StatusLimitReached}

	for it := 1; it <= o.maxIterations; it++ {
		result.Iterations = it
		if it == o.maxIterations-1 {
			emitter.Emit(progress.Event{
				Type:    progress.EventWarning,
				Message: "2 iterations remain; finish the pipeline and export what exists",
			})
		}

		resp, err := o.client.Chat(ctx, llm.Request{
			Capability: o.capability,
			Messages:   messages,
			Tools:      surface,
			ToolChoice: "auto",
		})
		if err != nil {
			return o.abort(d, result, err)
		}

		if len(resp.ToolCalls) == 0 {
			result.Status = StatusComplete
			result.FinalMessage = resp.Content
			break
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		stopped := false
		for _, call := range resp.ToolCalls {
			payload, stop := d.Handle(ctx, call)
			messages = append(messages, llm.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    payload,
			})
			if stop {
				stopped = true
				break
			}
		}
		if stopped {
			result.Status = StatusError
			break
		}
	}

	result.SessionID = d.SessionID()
	result.Report = o.finalize(d, result.Status)
	if result.Status == StatusError {
		return result, fmt.Errorf("production pipeline stopped: %s", d.StopCause())
	}
	return result, nil
}

// StashAttachedAudio creates an import session holding the request's audio
// so the transcription tool can find it. Returns the new session id, or ""
// when no audio was attached.
func StashAttachedAudio(sessions *session.Store, logger *slog.Logger, opts RunOptions) (string, error) {
	if len(opts.AttachedAudio) == 0 {
		return "", nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := production.NewImportID()
	state := production.NewState(id)
	state.ImportedContent = &production.ImportedContent{
		SourceKind: "audio",
		Audio:      opts.AttachedAudio,
		MimeType:   opts.AudioMimeType,
	}
	if opts.AudioFileName != "" {
		state.ImportedContent.Metadata = map[string]string{"filename": opts.AudioFileName}
	}
	if err := sessions.Create(id, state); err != nil {
		return "", fmt.Errorf("storing attached audio: %w", err)
	}
	logger.Info("Attached audio stored", "session_id", id, "bytes", len(opts.AttachedAudio))
	return id, nil
}

// toolSurface returns the definitions bound for this run. generate_music
// stays registered but is only exposed when the request asks for music.
func (o *Orchestrator) toolSurface(analysis intent.Result) []llm.ToolDefinition {
	defs := o.registry.ListTools()
	if o.musicAlways || analysis.WantsMusic {
		return defs
	}
	kept := defs[:0]
	for _, d := range defs {
		if d.Name == "generate_music" {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

// abort records a fatal exception outside any tool scope under the
// production_agent pseudo-tool, settles the report, and re-throws.
func (o *Orchestrator) abort(d *Dispatcher, result *RunResult, err error) (*RunResult, error) {
	retries := 0
	// The provider layer retries internally before surfacing transient
	// failures, so a transient record here has been through at least one
	// retry pass.
	if category := recovery.Classify(err); category.Retryable() || category == production.CategoryRecoverable {
		retries = 1
	}
	d.RecordAgentFailure("production_agent", err, retries)

	result.SessionID = d.SessionID()
	result.Status = StatusError
	result.Report = o.finalize(d, StatusError)
	return result, fmt.Errorf("production agent: %w", err)
}

// finalize writes the partial-success report into session state and emits
// the summary plus the terminal event. It runs on every exit path.
func (o *Orchestrator) finalize(d *Dispatcher, status string) *production.Report {
	extra := ""
	if status == StatusLimitReached {
		extra = "Stopped at the iteration cap."
	}
	report := d.Report(extra)

	var summary *progress.AssetSummary
	if d.sessionID != "" && o.sessions.Has(d.sessionID) {
		_ = o.sessions.Update(d.sessionID, func(s *production.State) {
			s.PartialSuccessReport = report
		})
		if state, err := o.sessions.Get(d.sessionID); err == nil {
			summary = SummarizeAssets(state)
		}
	}

	d.emitter.Emit(progress.Event{Type: progress.EventSummary, Message: report.Summary})

	switch status {
	case StatusComplete:
		d.emitter.Emit(progress.Event{
			Type:         progress.EventComplete,
			Message:      "Production run complete",
			AssetSummary: summary,
		})
	case StatusLimitReached:
		d.emitter.Emit(progress.Event{
			Type:    progress.EventLimitReached,
			Message: fmt.Sprintf("Stopped after %d iterations", o.maxIterations),
		})
	default:
		d.emitter.Emit(progress.Event{
			Type:    progress.EventError,
			Message: d.StopCause(),
		})
	}

	o.logger.Info("Production run settled",
		"session_id", d.SessionID(),
		"status", status,
		"summary", report.Summary)
	return report
}

// ImportSignalMessage describes what the intent analyzer found, for the
// intent_detected event.
func ImportSignalMessage(analysis intent.Result) string {
	switch {
	case analysis.HasYouTubeURL:
		return "YouTube link detected; importing its transcript first"
	case analysis.HasAudioFile:
		return "Audio file referenced; transcribing it first"
	default:
		return "Import source detected"
	}
}

// SummarizeAssets snapshots which asset classes a session holds.
func SummarizeAssets(s *production.State) *progress.AssetSummary {
	return &progress.AssetSummary{
		SceneCount:     s.SceneCount(),
		NarrationCount: len(s.NarrationSegments),
		VisualCount:    len(s.Visuals),
		HasMusic:       s.MusicTrack != nil || s.MusicURL != "",
		HasMixedAudio:  s.MixedAudio != nil,
		HasSubtitles:   s.Subtitles != nil,
		HasExport:      s.ExportResult != nil,
		IsComplete:     s.IsComplete,
	}
}
