package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/progress"
	"github.com/lordpython/aisoulstudio/recovery"
	"github.com/lordpython/aisoulstudio/session"
	"github.com/lordpython/aisoulstudio/tools"
)

// sessionMintingTools return a fresh sessionId in their payload. The
// dispatcher captures it the first time one of them succeeds so later
// progress events and the final report land on the right session.
var sessionMintingTools = map[string]bool{
	"plan_video":             true,
	"import_youtube_content": true,
	"import_web_article":     true,
	"generate_breakdown":     true,
}

// Dispatcher settles the tool calls of one production run: duplicate
// suppression, the session-state cache, retries with fallback substitution,
// error records, and session-id capture. The monolithic orchestrator and
// the stage supervisor both route every call through one Dispatcher per
// run, so a decomposed run writes state exactly like a monolithic one.
//
// A Dispatcher belongs to a single run and is not safe for concurrent use.
type Dispatcher struct {
	registry *tools.Registry
	sessions *session.Store
	harness  *recovery.Harness
	fallback *recovery.Fallback
	emitter  *progress.Emitter
	logger   *slog.Logger

	sessionID string
	tracker   *recovery.ErrorTracker
	steps     *stepTracker
	stopCause string
}

// NewDispatcher builds the per-run dispatcher. The initial session id is
// taken from the emitter; a nil harness gets default strategies and a nil
// fallback disables substitutions.
func NewDispatcher(registry *tools.Registry, sessions *session.Store, harness *recovery.Harness, fallback *recovery.Fallback, emitter *progress.Emitter, logger *slog.Logger) *Dispatcher {
	if harness == nil {
		harness = recovery.NewHarness(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:  registry,
		sessions:  sessions,
		harness:   harness,
		fallback:  fallback,
		emitter:   emitter,
		logger:    logger,
		sessionID: emitter.SessionID(),
		tracker:   recovery.NewErrorTracker(),
		steps:     newStepTracker(),
	}
}

// SessionID returns the session the run has settled on so far.
func (d *Dispatcher) SessionID() string { return d.sessionID }

// StopCause describes why the run stopped, when it stopped hard.
func (d *Dispatcher) StopCause() string { return d.stopCause }

// Report aggregates the run's successes, failures, and fallbacks.
func (d *Dispatcher) Report(extra string) *production.Report {
	return d.tracker.Report(extra)
}

// Handle runs one tool call through dedup, cache, retry, and fallback. It
// returns the payload to append as the tool message and whether the run
// must stop.
func (d *Dispatcher) Handle(ctx context.Context, call llm.ToolCall) (string, bool) {
	if d.steps.executed(call) {
		return tools.Success(map[string]any{
			"skipped": true,
			"note":    fmt.Sprintf("%s already completed successfully for this session; do not call it again", call.Name),
		}), false
	}

	d.emitter.Emit(progress.Event{
		Type:    progress.EventToolCall,
		Tool:    call.Name,
		Message: "Calling " + call.Name,
	})

	if payload, hit := checkCache(d.sessions, call); hit {
		d.logger.Debug("Cache hit", "tool", call.Name)
		d.tracker.RecordSuccess()
		d.steps.markExecuted(call)
		d.emitter.Emit(progress.Event{
			Type:    progress.EventToolResult,
			Tool:    call.Name,
			Message: call.Name + " result reused from session state",
			Success: true,
		})
		return payload, false
	}

	outcome := d.harness.ExecuteWithRetry(ctx, call.Name, func(ctx context.Context) (string, error) {
		return d.registry.Execute(ctx, call)
	})

	if !outcome.Failed() {
		return d.settleExecuted(call, outcome), false
	}
	return d.settleFailed(ctx, call, outcome)
}

// RecordAgentFailure records a failure that happened outside any tool
// scope, attributed to the named agent, and marks it as the run's stop
// cause. The record lands on the session like any tool error.
func (d *Dispatcher) RecordAgentFailure(agent string, err error, retries int) production.ToolError {
	te := production.ToolError{
		Tool:       agent,
		Message:    err.Error(),
		Category:   recovery.Classify(err),
		Timestamp:  time.Now().UTC(),
		RetryCount: retries,
	}
	d.tracker.RecordFailure(te)
	d.appendError(llm.ToolCall{}, te)
	d.stopCause = err.Error()
	return te
}

// settleExecuted handles a tool that returned a payload: a success marks
// the step done, an in-band failure is recorded but leaves the step open
// so the model may adjust its arguments and retry.
func (d *Dispatcher) settleExecuted(call llm.ToolCall, outcome recovery.Outcome) string {
	if !tools.PayloadSuccessful(outcome.Payload) {
		te := production.ToolError{
			Tool:        call.Name,
			Message:     payloadErrorText(outcome.Payload),
			Category:    tools.PayloadCategory(outcome.Payload),
			Timestamp:   time.Now().UTC(),
			RetryCount:  outcome.RetryCount,
			Recoverable: true,
		}
		d.tracker.RecordFailure(te)
		d.appendError(call, te)
		d.emitter.Emit(progress.Event{
			Type:    progress.EventToolResult,
			Tool:    call.Name,
			Message: te.Message,
			Success: false,
		})
		return outcome.Payload
	}

	d.tracker.RecordSuccess()
	d.steps.markExecuted(call)
	d.captureSessionID(call, outcome.Payload)
	d.emitter.Emit(progress.Event{
		Type:    progress.EventToolResult,
		Tool:    call.Name,
		Message: call.Name + " completed",
		Success: true,
	})
	return outcome.Payload
}

// settleFailed handles a hard failure: apply the tool's fallback when
// eligible, otherwise record the error and decide whether the pipeline
// can continue.
func (d *Dispatcher) settleFailed(ctx context.Context, call llm.ToolCall, outcome recovery.Outcome) (string, bool) {
	strategy := d.harness.Table().Resolve(call.Name)

	if d.fallback != nil {
		if payload, applied, ok := d.fallback.Apply(ctx, call, strategy, outcome); ok {
			te := outcome.ToolError(call.Name)
			te.FallbackApplied = applied
			d.tracker.RecordFallback(te)
			d.appendError(call, te)
			d.emitter.Emit(progress.Event{
				Type:           progress.EventFallback,
				Tool:           call.Name,
				FallbackAction: applied,
			})
			succeeded := tools.PayloadSuccessful(payload)
			if succeeded {
				d.steps.markExecuted(call)
			}
			d.emitter.Emit(progress.Event{
				Type:    progress.EventToolResult,
				Tool:    call.Name,
				Message: fmt.Sprintf("⚠️ %s recovered via %s fallback", call.Name, applied),
				Success: succeeded,
			})
			return payload, false
		}
	}

	te := outcome.ToolError(call.Name)
	d.tracker.RecordFailure(te)
	d.appendError(call, te)
	d.emitter.Emit(progress.Event{
		Type:    progress.EventToolResult,
		Tool:    call.Name,
		Message: outcome.Err.Error(),
		Success: false,
	})
	d.logger.Error("Tool failed",
		"tool", call.Name,
		"category", outcome.Category,
		"retries", outcome.RetryCount,
		"error", outcome.Err)

	if outcome.Category == production.CategoryAuthentication || !strategy.ContinueOnFailure {
		d.stopCause = fmt.Sprintf("%s failed with %s error: %v", call.Name, outcome.Category, outcome.Err)
		return tools.FailureWithCategory(outcome.Err.Error(), "the pipeline cannot continue", outcome.Category), true
	}
	return tools.FailureWithCategory(outcome.Err.Error(), "continue with the remaining pipeline steps", outcome.Category), false
}

// appendError stores a tool error on the session the call addressed,
// falling back to the run's session. Errors on sessions that do not exist
// yet are only kept in the report.
func (d *Dispatcher) appendError(call llm.ToolCall, te production.ToolError) {
	id := sessionOfCall(call)
	if id == "" {
		id = d.sessionID
	}
	if id == "" || !d.sessions.Has(id) {
		return
	}
	_ = d.sessions.Update(id, func(s *production.State) {
		s.AppendError(te)
	})
}

// captureSessionID adopts the sessionId minted by a planning or import
// tool. A production or story id replaces an import id, so the run settles
// on the session that actually holds the assets.
func (d *Dispatcher) captureSessionID(call llm.ToolCall, payload string) {
	if !sessionMintingTools[call.Name] {
		return
	}
	var probe struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal([]byte(payload), &probe); err != nil || probe.SessionID == "" {
		return
	}
	if d.sessionID == "" || strings.HasPrefix(d.sessionID, "import_") {
		d.sessionID = probe.SessionID
		d.emitter.SetSessionID(probe.SessionID)
		d.logger.Debug("Session captured", "session_id", probe.SessionID, "tool", call.Name)
	}
}

// sessionOfCall extracts the session argument a call addressed, if any.
func sessionOfCall(call llm.ToolCall) string {
	if id, ok := call.StringArg("contentPlanId"); ok && id != "" {
		return id
	}
	if id, ok := call.StringArg("sessionId"); ok && id != "" {
		return id
	}
	return ""
}

// payloadErrorText pulls the error field out of an in-band failure payload.
func payloadErrorText(payload string) string {
	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(payload), &probe); err != nil || probe.Error == "" {
		return "tool reported failure"
	}
	return probe.Error
}
