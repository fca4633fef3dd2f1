// Package media implements the MEDIA tool group: scene visuals, video
// clips, image animation, ambient sfx planning, and background music.
package media

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lordpython/aisoulstudio/assets"
	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/progress"
	"github.com/lordpython/aisoulstudio/session"
	"github.com/lordpython/aisoulstudio/tools"
)

// Executor serves the MEDIA tools.
type Executor struct {
	sessions *session.Store
	images   assets.ImageGenerator
	videos   assets.VideoGenerator
	sfx      assets.SfxLibrary
	music    assets.MusicGenerator
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

// NewExecutor creates the MEDIA executor.
func NewExecutor(sessions *session.Store, images assets.ImageGenerator, videos assets.VideoGenerator, sfx assets.SfxLibrary, music assets.MusicGenerator, opts ...Option) *Executor {
	e := &Executor{
		sessions: sessions,
		images:   images,
		videos:   videos,
		sfx:      sfx,
		music:    music,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one MEDIA tool call.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	switch call.Name {
	case "generate_visuals":
		return e.generateVisuals(ctx, call)
	case "generate_video":
		return e.generateVideo(ctx, call)
	case "animate_image":
		return e.animateImage(ctx, call)
	case "plan_sfx":
		return e.planSfx(ctx, call)
	case "generate_music":
		return e.generateMusic(ctx, call)
	default:
		return tools.UnknownTool(call.Name)
	}
}

// generateVisuals fills the visuals list scene by scene. Entry i always
// belongs to scene i; entries that already carry a URL are preserved, so a
// re-run only fills the gaps. The first veoVideoCount scenes get full video
// clips instead of still images.
func (e *Executor) generateVisuals(ctx context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}
	if state.ContentPlan == nil || len(state.ContentPlan.Scenes) == 0 {
		return tools.Failure("session has no content plan", "call plan_video first"), nil
	}

	style, _ := call.StringArg("style")
	if style == "" {
		style = state.ContentPlan.Style
	}
	aspectRatio, _ := call.StringArg("aspectRatio")
	veoCount, _ := call.IntArg("veoVideoCount")

	scenes := state.ContentPlan.Scenes
	visuals := make([]production.Visual, len(scenes))
	copy(visuals, state.Visuals)

	emitter := progress.FromContext(ctx)
	for i, scene := range scenes {
		emitter.SceneProgress("generate_visuals", i+1, len(scenes),
			fmt.Sprintf("Generating visual %d of %d", i+1, len(scenes)))

		if visuals[i].URL != "" {
			continue
		}

		if i < veoCount {
			clip, err := e.videos.GenerateVideo(ctx, assets.VideoRequest{
				Prompt:      scene.VisualDesc,
				Style:       style,
				AspectRatio: aspectRatio,
			})
			if err != nil {
				return "", fmt.Errorf("generating video for scene %d: %w", i+1, err)
			}
			visuals[i] = production.Visual{
				SceneID:          scene.ID,
				URL:              clip.URL,
				VideoURL:         clip.URL,
				Type:             production.VisualTypeVideo,
				GeneratedWithVeo: true,
			}
			continue
		}

		image, err := e.images.GenerateImage(ctx, assets.ImageRequest{
			Prompt:      scene.VisualDesc,
			Style:       style,
			AspectRatio: aspectRatio,
		})
		if err != nil {
			return "", fmt.Errorf("generating image for scene %d: %w", i+1, err)
		}
		visuals[i] = production.Visual{
			SceneID: scene.ID,
			URL:     image.URL,
			Type:    production.VisualTypeImage,
		}
	}

	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		s.Visuals = visuals
	}); err != nil {
		return "", err
	}

	return tools.Success(map[string]any{"visualCount": len(visuals)}), nil
}

// generateVideo renders one scene as a standalone video clip.
func (e *Executor) generateVideo(ctx context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}
	if state.ContentPlan == nil || len(state.ContentPlan.Scenes) == 0 {
		return tools.Failure("session has no content plan", "call plan_video first"), nil
	}

	index, ok := call.IntArg("sceneIndex")
	if !ok {
		return tools.Failure("sceneIndex is required", "pass the zero-based index of the scene to render"), nil
	}
	if index < 0 || index >= len(state.ContentPlan.Scenes) {
		return tools.Failuref("the plan has scenes 0 through "+fmt.Sprint(len(state.ContentPlan.Scenes)-1),
			"sceneIndex %d is out of range", index), nil
	}

	duration, _ := call.IntArg("durationSeconds")
	if duration != 0 && !assets.ValidVideoClipDuration(duration) {
		return tools.Failure(
			fmt.Sprintf("durationSeconds %d is not supported", duration),
			"use 4, 6, or 8 seconds"), nil
	}

	scene := state.ContentPlan.Scenes[index]
	style, _ := call.StringArg("style")
	aspectRatio, _ := call.StringArg("aspectRatio")
	useFast, _ := call.BoolArg("useFastModel")

	clip, err := e.videos.GenerateVideo(ctx, assets.VideoRequest{
		Prompt:       scene.VisualDesc,
		Style:        style,
		AspectRatio:  aspectRatio,
		Duration:     duration,
		UseFastModel: useFast,
	})
	if err != nil {
		return "", fmt.Errorf("generating video for scene %d: %w", index, err)
	}

	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		ensureVisualSlots(s, index)
		s.Visuals[index] = production.Visual{
			SceneID:          scene.ID,
			URL:              clip.URL,
			VideoURL:         clip.URL,
			Type:             production.VisualTypeVideo,
			GeneratedWithVeo: true,
		}
	}); err != nil {
		return "", err
	}

	e.logger.Info("Scene video generated",
		"session_id", state.SessionID,
		"scene_index", index,
		"model", clip.Model)

	return tools.Success(map[string]any{
		"sceneIndex": index,
		"duration":   clip.Duration,
		"model":      clip.Model,
	}), nil
}

// animateImage adds motion to an existing scene image.
func (e *Executor) animateImage(ctx context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}
	if state.ContentPlan == nil || len(state.ContentPlan.Scenes) == 0 {
		return tools.Failure("session has no content plan", "call plan_video first"), nil
	}

	index, ok := call.IntArg("sceneIndex")
	if !ok {
		return tools.Failure("sceneIndex is required", "pass the zero-based index of the scene to animate"), nil
	}
	if index < 0 || index >= len(state.ContentPlan.Scenes) {
		return tools.Failuref("the plan has scenes 0 through "+fmt.Sprint(len(state.ContentPlan.Scenes)-1),
			"sceneIndex %d is out of range", index), nil
	}
	visual := state.VisualForScene(index)
	if visual == nil || visual.URL == "" {
		return tools.Failuref("call generate_visuals first so there is an image to animate",
			"scene %d has no visual yet", index), nil
	}

	aspectRatio, _ := call.StringArg("aspectRatio")
	scene := state.ContentPlan.Scenes[index]

	clip, err := e.videos.AnimateImage(ctx, assets.AnimateRequest{
		ImageURL:    visual.URL,
		Prompt:      scene.VisualDesc,
		AspectRatio: aspectRatio,
	})
	if err != nil {
		return "", fmt.Errorf("animating scene %d: %w", index, err)
	}

	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		if v := s.VisualForScene(index); v != nil {
			v.VideoURL = clip.URL
			v.IsAnimated = true
		}
	}); err != nil {
		return "", err
	}

	return tools.Success(map[string]any{"sceneIndex": index}), nil
}

// planSfx suggests an ambient track per scene plus optional mood music.
func (e *Executor) planSfx(ctx context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}
	if state.ContentPlan == nil || len(state.ContentPlan.Scenes) == 0 {
		return tools.Failure("session has no content plan", "call plan_video first"), nil
	}

	mood, _ := call.StringArg("mood")
	plan, err := e.sfx.SuggestTracks(ctx, state.ContentPlan, mood)
	if err != nil {
		return "", fmt.Errorf("planning sfx: %w", err)
	}

	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		s.SfxPlan = plan
	}); err != nil {
		return "", err
	}

	return tools.Success(map[string]any{"sceneCount": len(plan.Scenes)}), nil
}

// generateMusic produces a background-music track for the production.
func (e *Executor) generateMusic(ctx context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}

	style, _ := call.StringArg("style")
	mood, _ := call.StringArg("mood")
	if style == "" && mood == "" {
		return tools.Failure("style or mood is required", "describe the music, e.g. style=cinematic mood=epic"), nil
	}

	req := assets.MusicRequest{Style: style, Mood: mood}
	if d, ok := call.Arguments["duration"].(float64); ok {
		req.Duration = d
	} else if state.ContentPlan != nil {
		req.Duration = state.ContentPlan.TotalDuration
	}
	if instrumental, ok := call.BoolArg("instrumental"); ok {
		req.Instrumental = instrumental
	}

	track, err := e.music.GenerateMusic(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generating music: %w", err)
	}

	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		s.MusicTaskID = track.TaskID
		s.MusicURL = track.URL
		s.MusicTrack = &production.MusicTrack{
			TaskID:   track.TaskID,
			URL:      track.URL,
			Duration: track.Duration,
		}
	}); err != nil {
		return "", err
	}

	return tools.Success(map[string]any{
		"taskId":   track.TaskID,
		"musicUrl": track.URL,
		"duration": track.Duration,
	}), nil
}

// ensureVisualSlots grows the visuals list up to index, stamping scene ids
// on the empty slots so index correspondence stays intact.
func ensureVisualSlots(s *production.State, index int) {
	for len(s.Visuals) <= index {
		i := len(s.Visuals)
		var sceneID string
		if s.ContentPlan != nil && i < len(s.ContentPlan.Scenes) {
			sceneID = s.ContentPlan.Scenes[i].ID
		}
		s.Visuals = append(s.Visuals, production.Visual{SceneID: sceneID})
	}
}

// ListTools returns the MEDIA tool definitions.
func (e *Executor) ListTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        "generate_visuals",
			Description: "Generate a visual for every scene of the content plan (still images, or video clips for the first N scenes)",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video",
					},
					"style": map[string]any{
						"type":        "string",
						"description": "Visual style override",
					},
					"aspectRatio": map[string]any{
						"type":        "string",
						"description": "Aspect ratio, e.g. 16:9 or 9:16",
					},
					"veoVideoCount": map[string]any{
						"type":        "integer",
						"description": "How many leading scenes get full video clips instead of images",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
		{
			Name:        "generate_video",
			Description: "Render one scene as a standalone video clip",
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
						"description": "Visual style override",
					},
					"aspectRatio": map[string]any{
						"type":        "string",
						"description": "Aspect ratio, e.g. 16:9",
					},
					"durationSeconds": map[string]any{
						"type":        "integer",
						"description": "Clip length in seconds: 4, 6, or 8",
						"enum":        []int{4, 6, 8},
					},
					"useFastModel": map[string]any{
						"type":        "boolean",
						"description": "Trade quality for speed",
					},
				},
				"required": []string{"contentPlanId", "sceneIndex"},
			},
		},
		{
			Name:        "animate_image",
			Description: "Add motion to an existing scene image",
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
					"aspectRatio": map[string]any{
						"type":        "string",
						"description": "Aspect ratio, e.g. 16:9",
					},
				},
				"required": []string{"contentPlanId", "sceneIndex"},
			},
		},
		{
			Name:        "plan_sfx",
			Description: "Suggest an ambient sound track for every scene, plus optional mood music",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video",
					},
					"mood": map[string]any{
						"type":        "string",
						"description": "Overall mood, e.g. upbeat or somber",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
		{
			Name:        "generate_music",
			Description: "Generate a background music track for the production",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video",
					},
					"style": map[string]any{
						"type":        "string",
						"description": "Music style, e.g. cinematic or lofi",
					},
					"mood": map[string]any{
						"type":        "string",
						"description": "Music mood, e.g. epic or calm",
					},
					"duration": map[string]any{
						"type":        "number",
						"description": "Track length in seconds (defaults to the plan duration)",
					},
					"instrumental": map[string]any{
						"type":        "boolean",
						"description": "Generate without vocals",
					},
				},
				"required": []string{"contentPlanId", "style", "mood"},
			},
		},
	}
}

var _ tools.Executor = (*Executor)(nil)
