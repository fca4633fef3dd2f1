// Package enhance implements the ENHANCEMENT tool group: consistency
// checks, image edits, and the audio mixdown.
package enhance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lordpython/aisoulstudio/assets"
	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/session"
	"github.com/lordpython/aisoulstudio/tools"
)

// Executor serves the ENHANCEMENT tools.
type Executor struct {
	sessions *session.Store
	editor   assets.ImageEditor
	checker  assets.ConsistencyChecker
	mixer    assets.AudioMixer
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

// NewExecutor creates the ENHANCEMENT executor.
func NewExecutor(sessions *session.Store, editor assets.ImageEditor, checker assets.ConsistencyChecker, mixer assets.AudioMixer, opts ...Option) *Executor {
	e := &Executor{
		sessions: sessions,
		editor:   editor,
		checker:  checker,
		mixer:    mixer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one ENHANCEMENT tool call.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	switch call.Name {
	case "verify_character_consistency":
		return e.verifyConsistency(ctx, call)
	case "remove_background":
		return e.removeBackground(ctx, call)
	case "restyle_image":
		return e.restyleImage(ctx, call)
	case "mix_audio_tracks":
		return e.mixAudioTracks(ctx, call)
	default:
		return tools.UnknownTool(call.Name)
	}
}

// verifyConsistency checks that a recurring character renders the same way
// across the production's still images.
func (e *Executor) verifyConsistency(ctx context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}

	var urls []string
	for _, visual := range state.Visuals {
		if visual.URL != "" && visual.Type == production.VisualTypeImage {
			urls = append(urls, visual.URL)
		}
	}
	if len(urls) == 0 {
		return tools.Failure("session has no images to check", "call generate_visuals first"), nil
	}

	character, _ := call.StringArg("characterName")
	report, err := e.checker.VerifyConsistency(ctx, urls, character)
	if err != nil {
		return "", fmt.Errorf("verifying character consistency: %w", err)
	}

	issues := report.Issues
	if issues == nil {
		issues = []string{}
	}
	return tools.Success(map[string]any{
		"consistencyScore": report.Score,
		"scenesChecked":    report.ScenesChecked,
		"issues":           issues,
	}), nil
}

// sceneImage resolves the still image at sceneIndex, or returns an in-band
// failure payload when there is none.
func (e *Executor) sceneImage(call llm.ToolCall) (*production.State, int, string) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return nil, 0, tools.Failure(err.Error(), tools.SessionSuggestion)
	}
	index, ok := call.IntArg("sceneIndex")
	if !ok {
		return nil, 0, tools.Failure("sceneIndex is required", "pass the zero-based index of the scene image to edit")
	}
	visual := state.VisualForScene(index)
	if visual == nil || visual.URL == "" {
		return nil, 0, tools.Failuref("call generate_visuals first so there is an image to edit",
			"scene %d has no visual yet", index)
	}
	return state, index, ""
}

func (e *Executor) removeBackground(ctx context.Context, call llm.ToolCall) (string, error) {
	state, index, failure := e.sceneImage(call)
	if failure != "" {
		return failure, nil
	}

	edited, err := e.editor.RemoveBackground(ctx, state.Visuals[index].URL)
	if err != nil {
		return "", fmt.Errorf("removing background for scene %d: %w", index, err)
	}

	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		if v := s.VisualForScene(index); v != nil {
			v.URL = edited.URL
		}
	}); err != nil {
		return "", err
	}

	return tools.Success(map[string]any{
		"sceneIndex": index,
		"url":        edited.URL,
	}), nil
}

func (e *Executor) restyleImage(ctx context.Context, call llm.ToolCall) (string, error) {
	state, index, failure := e.sceneImage(call)
	if failure != "" {
		return failure, nil
	}
	style, ok := call.StringArg("style")
	if !ok || style == "" {
		return tools.Failure("style is required", "describe the target style, e.g. watercolor or film noir"), nil
	}

	edited, err := e.editor.Restyle(ctx, state.Visuals[index].URL, style)
	if err != nil {
		return "", fmt.Errorf("restyling scene %d: %w", index, err)
	}

	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		if v := s.VisualForScene(index); v != nil {
			v.URL = edited.URL
		}
	}); err != nil {
		return "", err
	}

	return tools.Success(map[string]any{
		"sceneIndex": index,
		"url":        edited.URL,
		"style":      style,
	}), nil
}

// mixAudioTracks combines the narration with whatever music, ambient sfx,
// and embedded video audio the session holds. Tracks the caller does not
// explicitly toggle are included when present.
func (e *Executor) mixAudioTracks(ctx context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}
	if len(state.NarrationSegments) == 0 {
		return tools.Failure("session has no narration to mix", "call narrate_scenes first"), nil
	}

	req := assets.MixRequest{
		Narration: state.NarrationSegments,
		Ducking:   true,
	}

	includeMusic := state.MusicTrack != nil
	if v, ok := call.BoolArg("includeMusic"); ok {
		includeMusic = v
	}
	if includeMusic && state.MusicTrack != nil {
		req.Music = state.MusicTrack
	}

	includeSfx := state.SfxPlan != nil
	if v, ok := call.BoolArg("includeSfx"); ok {
		includeSfx = v
	}
	if includeSfx && state.SfxPlan != nil {
		req.Sfx = state.SfxPlan
	}

	if v, ok := call.BoolArg("includeVideoAudio"); ok && v {
		req.IncludeVideoAudio = true
		for _, visual := range state.Visuals {
			if visual.VideoURL != "" {
				req.VideoAudioURLs = append(req.VideoAudioURLs, visual.VideoURL)
			}
		}
	}

	if v, ok := call.BoolArg("ducking"); ok {
		req.Ducking = v
	}
	if v, ok := call.Arguments["musicVolume"].(float64); ok {
		req.MusicVolume = v
	}
	if v, ok := call.Arguments["sfxVolume"].(float64); ok {
		req.SfxVolume = v
	}

	mixed, err := e.mixer.Mix(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mixing audio: %w", err)
	}

	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		s.MixedAudio = mixed
	}); err != nil {
		return "", err
	}

	e.logger.Info("Audio mixed",
		"session_id", state.SessionID,
		"duration", mixed.Duration,
		"ducking", mixed.DuckingApplied)

	return tools.Success(map[string]any{
		"url":            mixed.URL,
		"duration":       mixed.Duration,
		"tracks":         mixed.Tracks,
		"duckingApplied": mixed.DuckingApplied,
	}), nil
}

// ListTools returns the ENHANCEMENT tool definitions.
func (e *Executor) ListTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        "verify_character_consistency",
			Description: "Check that a recurring character looks the same across the generated scene images",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video",
					},
					"characterName": map[string]any{
						"type":        "string",
						"description": "Name or description of the character to track",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
		{
			Name:        "remove_background",
			Description: "Remove the background from one scene image",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video",
					},
					"sceneIndex": map[string]any{
						"type":        "integer",
						"description": "Zero-based scene index",
					},
				},
				"required": []string{"contentPlanId", "sceneIndex"},
			},
		},
		{
			Name:        "restyle_image",
			Description: "Re-render one scene image in a different visual style",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video",
					},
					"sceneIndex": map[string]any{
						"type":        "integer",
						"description": "Zero-based scene index",
					},
					"style": map[string]any{
						"type":        "string",
						"description": "Target style, e.g. watercolor or film noir",
					},
				},
				"required": []string{"contentPlanId", "sceneIndex", "style"},
			},
		},
		{
			Name:        "mix_audio_tracks",
			Description: "Mix the narration with music, ambient sfx, and embedded video audio into one soundtrack",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video",
					},
					"includeMusic": map[string]any{
						"type":        "boolean",
						"description": "Include the generated music track (default: when one exists)",
					},
					"includeSfx": map[string]any{
						"type":        "boolean",
						"description": "Include the ambient sfx plan (default: when one exists)",
					},
					"includeVideoAudio": map[string]any{
						"type":        "boolean",
						"description": "Include the native audio of generated video clips",
					},
					"ducking": map[string]any{
						"type":        "boolean",
						"description": "Duck music under narration (default true)",
					},
					"musicVolume": map[string]any{
						"type":        "number",
						"description": "Music gain from 0 to 1",
					},
					"sfxVolume": map[string]any{
						"type":        "number",
						"description": "Ambient gain from 0 to 1",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
	}
}

var _ tools.Executor = (*Executor)(nil)
