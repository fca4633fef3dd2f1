// Package content implements the CONTENT tool group: video planning,
// narration synthesis, the validate/adjust quality loop, and the
// screenplay-mode tools.
package content

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lordpython/aisoulstudio/assets"
	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/progress"
	"github.com/lordpython/aisoulstudio/quality"
	"github.com/lordpython/aisoulstudio/session"
	"github.com/lordpython/aisoulstudio/tools"
)

// MaxQualityIterations caps the validate/adjust loop per session.
const MaxQualityIterations = 2

// Executor serves the CONTENT tools.
type Executor struct {
	sessions *session.Store
	planner  assets.Planner
	writer   assets.Screenwriter
	speech   assets.SpeechSynthesizer
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

// NewExecutor creates the CONTENT executor.
func NewExecutor(sessions *session.Store, planner assets.Planner, writer assets.Screenwriter, speech assets.SpeechSynthesizer, opts ...Option) *Executor {
	e := &Executor{
		sessions: sessions,
		planner:  planner,
		writer:   writer,
		speech:   speech,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one CONTENT tool call.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	switch call.Name {
	case "plan_video":
		return e.planVideo(ctx, call)
	case "narrate_scenes":
		return e.narrateScenes(ctx, call)
	case "validate_plan":
		return e.validatePlan(ctx, call)
	case "adjust_timing":
		return e.adjustTiming(ctx, call)
	case "generate_breakdown":
		return e.generateBreakdown(ctx, call)
	case "create_screenplay":
		return e.createScreenplay(ctx, call)
	case "generate_characters":
		return e.generateCharacters(ctx, call)
	case "generate_shotlist":
		return e.generateShotlist(ctx, call)
	default:
		return tools.UnknownTool(call.Name)
	}
}

// planVideo creates a content plan and a fresh production session around it.
func (e *Executor) planVideo(ctx context.Context, call llm.ToolCall) (string, error) {
	topic, _ := call.StringArg("topic")
	if topic == "" {
		return tools.Failure("topic is required", "describe what the video should be about"), nil
	}

	req := assets.PlanRequest{Topic: topic}
	if d, ok := call.Arguments["targetDuration"].(float64); ok {
		req.TargetDuration = d
	}
	req.Style, _ = call.StringArg("style")
	req.Audience, _ = call.StringArg("audience")
	req.Language, _ = call.StringArg("language")
	req.VideoPurpose, _ = call.StringArg("videoPurpose")

	// A prior import session can seed the plan with its transcript.
	if sourceID, ok := call.StringArg("sourceSessionId"); ok && sourceID != "" {
		source, err := e.sessions.Get(sourceID)
		if err != nil {
			return tools.Failure(
				fmt.Sprintf("source session %q does not exist", sourceID),
				"pass the sessionId returned by the import tool, or omit sourceSessionId"), nil
		}
		if source.ImportedContent != nil {
			req.SourceTranscript = source.ImportedContent.Transcript
		}
	}

	plan, err := e.planner.GeneratePlan(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generating content plan: %w", err)
	}

	id := production.NewProductionID()
	state := production.NewState(id)
	state.ContentPlan = plan
	if err := e.sessions.Create(id, state); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}

	e.logger.Info("Content plan created",
		"session_id", id,
		"scenes", len(plan.Scenes),
		"total_duration", plan.TotalDuration)

	return tools.Success(map[string]any{
		"sessionId":     id,
		"sceneCount":    len(plan.Scenes),
		"totalDuration": plan.TotalDuration,
		"scenes":        plan.Scenes,
	}), nil
}

// narrateScenes synthesizes narration for every scene in plan order.
// Segment i always belongs to scene i; segments are replaced wholesale so a
// retried run cannot leave a partial mix of old and new audio.
func (e *Executor) narrateScenes(ctx context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}
	if state.ContentPlan == nil || len(state.ContentPlan.Scenes) == 0 {
		return tools.Failure("session has no content plan", "call plan_video first"), nil
	}

	language, _ := call.StringArg("language")
	if language == "" {
		language = state.ContentPlan.Language
	}
	voice, _ := call.StringArg("voiceStyle")

	emitter := progress.FromContext(ctx)
	scenes := state.ContentPlan.Scenes
	segments := make([]production.NarrationSegment, 0, len(scenes))
	var total float64

	for i, scene := range scenes {
		emitter.SceneProgress("narrate_scenes", i+1, len(scenes),
			fmt.Sprintf("Narrating scene %d of %d", i+1, len(scenes)))

		result, err := e.speech.Synthesize(ctx, assets.SpeechRequest{
			Text:     scene.NarrationScript,
			Language: language,
			Voice:    voice,
		})
		if err != nil {
			return "", fmt.Errorf("narrating scene %d: %w", i+1, err)
		}

		segments = append(segments, production.NarrationSegment{
			SceneID:       scene.ID,
			Text:          scene.NarrationScript,
			Audio:         result.Audio,
			AudioURL:      result.URL,
			AudioDuration: result.Duration,
		})
		total += result.Duration
	}

	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		s.NarrationSegments = segments
	}); err != nil {
		return "", err
	}

	return tools.Success(map[string]any{
		"segmentCount":  len(segments),
		"totalDuration": total,
	}), nil
}

// validatePlan scores the plan and records the score in state.
func (e *Executor) validatePlan(_ context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}

	eval := quality.Evaluate(state)

	var best, iterations int
	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		s.RecordQualityScore(eval.Score)
		best = s.BestQualityScore
		iterations = s.QualityIterations
	}); err != nil {
		return "", err
	}

	issues := eval.Issues
	if issues == nil {
		issues = []string{}
	}
	suggestions := eval.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}

	return tools.Success(map[string]any{
		"approved":         eval.Approved,
		"score":            eval.Score,
		"bestScore":        best,
		"iterations":       iterations,
		"needsImprovement": eval.NeedsImprovement,
		"canRetry":         iterations < MaxQualityIterations,
		"issues":           issues,
		"suggestions":      suggestions,
	}), nil
}

// adjustTiming aligns each scene's duration with the measured narration
// audio and recomputes the plan total. The third call in a session is
// refused: the iteration cap is a state invariant, not advice.
func (e *Executor) adjustTiming(_ context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}
	if state.ContentPlan == nil || len(state.ContentPlan.Scenes) == 0 {
		return tools.Failure("session has no content plan", "call plan_video first"), nil
	}
	if len(state.NarrationSegments) == 0 {
		return tools.Failure("no narration exists to adjust timing against", "call narrate_scenes first"), nil
	}
	if state.QualityIterations >= MaxQualityIterations {
		return tools.FailureWithCategory(
			fmt.Sprintf("Maximum quality iterations (%d) reached", MaxQualityIterations),
			"accept the current plan; the best score so far is kept",
			production.CategoryPermanent), nil
	}

	var iteration, sceneCount int
	var total float64
	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		total = 0
		for i := range s.ContentPlan.Scenes {
			if seg := s.NarrationForScene(i); seg != nil && seg.AudioDuration > 0 {
				s.ContentPlan.Scenes[i].Duration = seg.AudioDuration
			}
			total += s.ContentPlan.Scenes[i].Duration
		}
		s.ContentPlan.TotalDuration = total
		s.QualityIterations++
		iteration = s.QualityIterations
		sceneCount = len(s.ContentPlan.Scenes)
	}); err != nil {
		return "", err
	}

	e.logger.Info("Timing adjusted",
		"session_id", state.SessionID,
		"iteration", iteration,
		"total_duration", total)

	return tools.Success(map[string]any{
		"iteration":     iteration,
		"totalDuration": total,
		"sceneCount":    sceneCount,
	}), nil
}

// ListTools returns the CONTENT tool definitions.
func (e *Executor) ListTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        "plan_video",
			Description: "Create a structured multi-scene content plan for a video topic and open a new production session",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"topic": map[string]any{
						"type":        "string",
						"description": "What the video is about",
					},
					"targetDuration": map[string]any{
						"type":        "number",
						"description": "Target video length in seconds (default 30)",
					},
					"style": map[string]any{
						"type":        "string",
						"description": "Visual style preset, e.g. Cinematic or Anime",
					},
					"audience": map[string]any{
						"type":        "string",
						"description": "Intended audience",
					},
					"language": map[string]any{
						"type":        "string",
						"description": "ISO language code for narration (default en)",
					},
					"videoPurpose": map[string]any{
						"type":        "string",
						"description": "What the video is for, e.g. education or marketing",
					},
					"sourceSessionId": map[string]any{
						"type":        "string",
						"description": "Import session whose transcript should seed the plan",
					},
				},
				"required": []string{"topic"},
			},
		},
		{
			Name:        "narrate_scenes",
			Description: "Synthesize narration audio for every scene of the content plan",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video",
					},
					"language": map[string]any{
						"type":        "string",
						"description": "Override the plan's narration language",
					},
					"voiceStyle": map[string]any{
						"type":        "string",
						"description": "Voice preset for the speech synthesizer",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
		{
			Name:        "validate_plan",
			Description: "Score the content plan against measured narration; approved at 80 or above",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
		{
			Name:        "adjust_timing",
			Description: "Align scene durations with measured narration audio (at most 2 iterations per session)",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
		{
			Name:        "generate_breakdown",
			Description: "Break a story idea into a three-act narrative breakdown and open a screenplay session",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"story": map[string]any{
						"type":        "string",
						"description": "The story idea or premise",
					},
					"title": map[string]any{
						"type":        "string",
						"description": "Working title",
					},
				},
				"required": []string{"story"},
			},
		},
		{
			Name:        "create_screenplay",
			Description: "Write a formatted screenplay from the narrative breakdown",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Screenplay session id returned by generate_breakdown",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
		{
			Name:        "generate_characters",
			Description: "Extract the character roster from the screenplay",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Screenplay session id returned by generate_breakdown",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
		{
			Name:        "generate_shotlist",
			Description: "Derive a shotlist from the screenplay",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Screenplay session id returned by generate_breakdown",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
	}
}

var _ tools.Executor = (*Executor)(nil)
