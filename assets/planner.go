package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/model"
	"github.com/lordpython/aisoulstudio/production"
)

// PlanRequest describes the production to plan.
type PlanRequest struct {
	Topic            string
	TargetDuration   float64
	Style            string
	Audience         string
	Language         string
	VideoPurpose     string
	SourceTranscript string
}

// Planner produces a structured content plan from a topic or an imported
// transcript.
type Planner interface {
	GeneratePlan(ctx context.Context, req PlanRequest) (*production.ContentPlan, error)
}

// Screenwriter produces the screenplay-mode artifacts: a story breakdown,
// a formatted script, the cast, and a shotlist.
type Screenwriter interface {
	GenerateBreakdown(ctx context.Context, story string) (string, error)
	CreateScreenplay(ctx context.Context, breakdown string) (string, error)
	GenerateCharacters(ctx context.Context, script string) ([]production.ScreenplayCharacter, error)
	GenerateShotlist(ctx context.Context, script string) ([]production.ScreenplayShot, error)
}

// LLMPlanner implements Planner and Screenwriter over a chat model. Plans
// are requested as JSON and extracted with the shared JSON extractor, so
// markdown-fenced responses still parse.
type LLMPlanner struct {
	client llm.ChatClient
	logger *slog.Logger
}

// LLMPlannerOption configures an LLMPlanner.
type LLMPlannerOption func(*LLMPlanner)

// WithPlannerLogger sets the logger.
func WithPlannerLogger(logger *slog.Logger) LLMPlannerOption {
	return func(p *LLMPlanner) {
		p.logger = logger
	}
}

// NewLLMPlanner creates a planner backed by the given chat client.
func NewLLMPlanner(client llm.ChatClient, opts ...LLMPlannerOption) *LLMPlanner {
	p := &LLMPlanner{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// plannedScene is the wire shape the model is asked to produce per scene.
type plannedScene struct {
	Name            string  `json:"name"`
	Duration        float64 `json:"duration"`
	NarrationScript string  `json:"narrationScript"`
	VisualDesc      string  `json:"visualDescription"`
	EmotionalTone   string  `json:"emotionalTone,omitempty"`
}

type plannedContent struct {
	Scenes []plannedScene `json:"scenes"`
}

// GeneratePlan asks the planning model for a scene-by-scene plan and
// normalizes it: scene ids are assigned sequentially and durations are
// scaled so they sum to the requested target.
func (p *LLMPlanner) GeneratePlan(ctx context.Context, req PlanRequest) (*production.ContentPlan, error) {
	if strings.TrimSpace(req.Topic) == "" && strings.TrimSpace(req.SourceTranscript) == "" {
		return nil, fmt.Errorf("plan request needs a topic or a source transcript")
	}
	if req.TargetDuration <= 0 {
		req.TargetDuration = 30
	}
	if req.Language == "" {
		req.Language = "en"
	}

	resp, err := p.client.Chat(ctx, llm.Request{
		Capability: model.CapabilityPlanning.String(),
		Messages: []llm.Message{
			{Role: "system", Content: planSystemPrompt},
			{Role: "user", Content: buildPlanPrompt(req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generating plan: %w", err)
	}

	raw := llm.ExtractJSON(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("extracting plan JSON: %w", err)
	}

	var parsed plannedContent
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parsing plan JSON: %w", err)
	}
	if len(parsed.Scenes) == 0 {
		return nil, fmt.Errorf("plan has no scenes")
	}

	plan := &production.ContentPlan{
		Topic:        req.Topic,
		Style:        req.Style,
		Audience:     req.Audience,
		VideoPurpose: req.VideoPurpose,
		Language:     req.Language,
	}
	for i, ps := range parsed.Scenes {
		plan.Scenes = append(plan.Scenes, production.Scene{
			ID:              fmt.Sprintf("scene-%d", i+1),
			Name:            ps.Name,
			Duration:        ps.Duration,
			NarrationScript: ps.NarrationScript,
			VisualDesc:      ps.VisualDesc,
			EmotionalTone:   ps.EmotionalTone,
		})
	}
	NormalizePlanDurations(plan, req.TargetDuration)

	p.logger.Info("content plan generated",
		"scenes", len(plan.Scenes),
		"total_duration", plan.TotalDuration,
		"model", resp.Model)
	return plan, nil
}

// NormalizePlanDurations scales scene durations so they sum to target
// seconds, replacing non-positive entries with an even share first.
func NormalizePlanDurations(plan *production.ContentPlan, target float64) {
	if plan == nil || len(plan.Scenes) == 0 || target <= 0 {
		return
	}

	even := target / float64(len(plan.Scenes))
	sum := 0.0
	for i := range plan.Scenes {
		if plan.Scenes[i].Duration <= 0 {
			plan.Scenes[i].Duration = even
		}
		sum += plan.Scenes[i].Duration
	}

	scale := target / sum
	total := 0.0
	for i := range plan.Scenes {
		plan.Scenes[i].Duration *= scale
		total += plan.Scenes[i].Duration
	}
	plan.TotalDuration = total
}

const planSystemPrompt = `You are a video production planner. You break a topic into scenes, each with a name, a duration in seconds, a narration script, a visual description, and an emotional tone. Respond with JSON only:
{"scenes":[{"name":"...","duration":10,"narrationScript":"...","visualDescription":"...","emotionalTone":"..."}]}`

func buildPlanPrompt(req PlanRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan a %.0f-second video", req.TargetDuration)
	if req.Topic != "" {
		fmt.Fprintf(&b, " about: %s", req.Topic)
	}
	b.WriteString(".\n")
	if req.Style != "" {
		fmt.Fprintf(&b, "Visual style: %s.\n", req.Style)
	}
	if req.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s.\n", req.Audience)
	}
	if req.VideoPurpose != "" {
		fmt.Fprintf(&b, "Purpose: %s.\n", req.VideoPurpose)
	}
	fmt.Fprintf(&b, "Narration language: %s.\n", req.Language)
	if req.SourceTranscript != "" {
		fmt.Fprintf(&b, "\nBase the plan on this source transcript:\n%s\n", clipText(req.SourceTranscript, 6000))
	}
	b.WriteString("\nAim for scenes of 5-15 seconds each. Narration must fit each scene's duration at a natural speaking pace.")
	return b.String()
}

func clipText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n[truncated]"
}

// GenerateBreakdown turns a raw story into a structured narrative
// breakdown (acts, beats, settings).
func (p *LLMPlanner) GenerateBreakdown(ctx context.Context, story string) (string, error) {
	if strings.TrimSpace(story) == "" {
		return "", fmt.Errorf("story is empty")
	}
	return p.writingCall(ctx,
		"You are a story editor. Produce a structured breakdown of the story: acts, key beats, settings, and turning points. Plain text.",
		clipText(story, 8000))
}

// CreateScreenplay formats a breakdown into screenplay pages.
func (p *LLMPlanner) CreateScreenplay(ctx context.Context, breakdown string) (string, error) {
	if strings.TrimSpace(breakdown) == "" {
		return "", fmt.Errorf("breakdown is empty")
	}
	return p.writingCall(ctx,
		"You are a screenwriter. Turn the breakdown into screenplay pages in standard format: sluglines, action lines, character cues, dialogue. Plain text.",
		clipText(breakdown, 8000))
}

// GenerateCharacters extracts the cast from a script.
func (p *LLMPlanner) GenerateCharacters(ctx context.Context, script string) ([]production.ScreenplayCharacter, error) {
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("script is empty")
	}

	content, err := p.writingCall(ctx,
		`You are a casting assistant. List every character in the script. Respond with JSON only: {"characters":[{"name":"...","description":"...","visualRef":"..."}]}`,
		clipText(script, 8000))
	if err != nil {
		return nil, err
	}

	raw := llm.ExtractJSON(content)
	if err != nil {
		return nil, fmt.Errorf("extracting characters JSON: %w", err)
	}
	var parsed struct {
		Characters []production.ScreenplayCharacter `json:"characters"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parsing characters JSON: %w", err)
	}
	if len(parsed.Characters) == 0 {
		return nil, fmt.Errorf("no characters found in script")
	}
	return parsed.Characters, nil
}

// GenerateShotlist derives a shotlist from a script.
func (p *LLMPlanner) GenerateShotlist(ctx context.Context, script string) ([]production.ScreenplayShot, error) {
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("script is empty")
	}

	content, err := p.writingCall(ctx,
		`You are a director of photography. Produce a shotlist for the script. Respond with JSON only: {"shots":[{"sceneId":"...","shotType":"...","cameraDirection":"...","subject":"..."}]}`,
		clipText(script, 8000))
	if err != nil {
		return nil, err
	}

	raw := llm.ExtractJSON(content)
	if err != nil {
		return nil, fmt.Errorf("extracting shotlist JSON: %w", err)
	}
	var parsed struct {
		Shots []production.ScreenplayShot `json:"shots"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parsing shotlist JSON: %w", err)
	}
	if len(parsed.Shots) == 0 {
		return nil, fmt.Errorf("no shots found in script")
	}
	return parsed.Shots, nil
}

func (p *LLMPlanner) writingCall(ctx context.Context, system, user string) (string, error) {
	resp, err := p.client.Chat(ctx, llm.Request{
		Capability: model.CapabilityWriting.String(),
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("model returned empty content")
	}
	return resp.Content, nil
}
