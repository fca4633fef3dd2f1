// Package utility implements the UTILITY tool group: the status snapshot
// and the explicit completion marker.
package utility

import (
	"context"
	"log/slog"

	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/session"
	"github.com/lordpython/aisoulstudio/tools"
)

// Executor serves the UTILITY tools.
type Executor struct {
	sessions *session.Store
	logger   *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates the UTILITY executor.
func NewExecutor(sessions *session.Store, opts ...Option) *Executor {
	e := &Executor{
		sessions: sessions,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one UTILITY tool call.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	switch call.Name {
	case "get_production_status":
		return e.productionStatus(ctx, call)
	case "mark_complete":
		return e.markComplete(ctx, call)
	default:
		return tools.UnknownTool(call.Name)
	}
}

// productionStatus reports what the session holds and what is still
// missing, without mutating anything.
func (e *Executor) productionStatus(_ context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}

	visualCount := 0
	for _, v := range state.Visuals {
		if v.URL != "" {
			visualCount++
		}
	}

	topic := ""
	if state.ContentPlan != nil {
		topic = state.ContentPlan.Topic
	}

	var nextSteps []string
	switch {
	case state.ContentPlan == nil:
		nextSteps = append(nextSteps, "plan_video")
	default:
		if len(state.NarrationSegments) == 0 {
			nextSteps = append(nextSteps, "narrate_scenes")
		}
		if visualCount < state.SceneCount() {
			nextSteps = append(nextSteps, "generate_visuals")
		}
		if len(state.NarrationSegments) > 0 && state.MixedAudio == nil {
			nextSteps = append(nextSteps, "mix_audio_tracks")
		}
		if state.ExportResult == nil && len(state.NarrationSegments) > 0 && visualCount > 0 {
			nextSteps = append(nextSteps, "export_final_video")
		}
	}
	if nextSteps == nil {
		nextSteps = []string{}
	}

	return tools.Success(map[string]any{
		"sessionId":         state.SessionID,
		"topic":             topic,
		"sceneCount":        state.SceneCount(),
		"narratedScenes":    len(state.NarrationSegments),
		"visualsGenerated":  visualCount,
		"hasMusic":          state.MusicTrack != nil || state.MusicURL != "",
		"hasSfxPlan":        state.SfxPlan != nil,
		"hasMixedAudio":     state.MixedAudio != nil,
		"hasSubtitles":      state.Subtitles != nil,
		"exported":          state.ExportResult != nil,
		"qualityScore":      state.QualityScore,
		"bestQualityScore":  state.BestQualityScore,
		"qualityIterations": state.QualityIterations,
		"isComplete":        state.IsComplete,
		"errorCount":        len(state.Errors),
		"nextSteps":         nextSteps,
	}), nil
}

// markComplete sets the sticky completion flag. Completing without an
// export is allowed but leaves a permanent record that the export was
// skipped, so the gap is visible in the final report.
func (e *Executor) markComplete(_ context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}

	exported := state.ExportResult != nil || len(state.ExportedVideo) > 0
	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		if !s.IsComplete && !exported {
			s.AppendError(production.ToolError{
				Tool:        "mark_complete",
				Message:     "export skipped",
				Category:    production.CategoryPermanent,
				Recoverable: false,
			})
		}
		s.IsComplete = true
	}); err != nil {
		return "", err
	}

	e.logger.Info("Production marked complete",
		"session_id", state.SessionID,
		"exported", exported)

	payload := map[string]any{"isComplete": true, "exported": exported}
	if !exported {
		payload["warning"] = "production marked complete without an export"
	}
	return tools.Success(payload), nil
}

// ListTools returns the UTILITY tool definitions.
func (e *Executor) ListTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        "get_production_status",
			Description: "Report what the production session holds so far and what steps remain",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video or an import tool",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
		{
			Name:        "mark_complete",
			Description: "Mark the production finished; call once all requested steps are done",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video or an import tool",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
	}
}

var _ tools.Executor = (*Executor)(nil)
