package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lordpython/aisoulstudio/assets"
	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/metrics"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/session"
	"github.com/lordpython/aisoulstudio/tools"
)

// CloudflareSubstitute is the applied-fallback name recorded when a
// challenged animation call was rerouted through text-to-video generation.
// It is not a strategy-table action; the harness triggers it on the
// challenge classification alone.
const CloudflareSubstitute = "text-to-video"

// Fallback applies the substitute behaviors declared in the strategy table
// after a tool has exhausted its retries. Substitutions that generate
// replacement media need their own providers, independent of the failing
// tool's.
type Fallback struct {
	sessions *session.Store
	images   assets.ImageGenerator
	videos   assets.VideoGenerator
	logger   *slog.Logger
}

// NewFallback returns a fallback applier. The image and video generators
// may be nil, which disables the substitution actions that need them.
func NewFallback(sessions *session.Store, images assets.ImageGenerator, videos assets.VideoGenerator, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{sessions: sessions, images: images, videos: videos, logger: logger}
}

// Apply attempts the eligible fallback for a failed call. It returns the
// synthetic payload, the applied-fallback name for the error record, and
// whether anything was applied. Eligibility follows the strategy: a
// declared non-none action plus permission to continue on failure. The
// Cloudflare substitution is the one exception, keyed off the outcome
// classification instead of the table.
func (f *Fallback) Apply(ctx context.Context, call llm.ToolCall, strategy Strategy, outcome Outcome) (string, string, bool) {
	if outcome.Cloudflare && call.Name == "animate_image" && f.videos != nil {
		payload, err := f.substituteTextToVideo(ctx, call)
		if err == nil {
			f.logger.Info("substituted text-to-video for challenged animation", "tool", call.Name)
			metrics.RecordFallback(call.Name, CloudflareSubstitute)
			return payload, CloudflareSubstitute, true
		}
		f.logger.Warn("text-to-video substitution failed", "tool", call.Name, "error", err)
	}

	if !strategy.ContinueOnFailure {
		return "", "", false
	}
	action := strategy.FallbackAction
	if action == "" || action == ActionNone {
		return "", "", false
	}

	var payload string
	var err error
	switch action {
	case ActionPlaceholderVisual:
		payload, err = f.placeholderVisuals(call)
	case ActionStaticImage:
		payload, err = f.staticImage(ctx, call)
	case ActionSkipSfx:
		payload, err = f.skipTrack(call, action)
	case ActionSkipAudioSource:
		payload, err = f.skipTrack(call, action)
	case ActionKeepOriginalImage:
		payload, err = f.keepOriginalImage(call)
	case ActionAssetBundle:
		payload, err = f.assetBundle(call, outcome)
	default:
		return "", "", false
	}
	if err != nil {
		f.logger.Warn("fallback not applicable", "tool", call.Name, "action", action, "error", err)
		return "", "", false
	}

	metrics.RecordFallback(call.Name, string(action))
	return payload, string(action), true
}

// placeholderVisuals fills every scene without a visual with a flagged
// placeholder entry, keeping the visuals slice aligned with the scene list
// so downstream indexing holds.
func (f *Fallback) placeholderVisuals(call llm.ToolCall) (string, error) {
	id, ok := call.StringArg("contentPlanId")
	if !ok || id == "" {
		return "", fmt.Errorf("call has no contentPlanId")
	}
	state, err := f.sessions.Get(id)
	if err != nil {
		return "", err
	}
	if state.ContentPlan == nil {
		return "", fmt.Errorf("session %s has no content plan", id)
	}

	var total, inserted int
	err = f.sessions.Update(id, func(s *production.State) {
		scenes := s.ContentPlan.Scenes
		visuals := make([]production.Visual, len(scenes))
		copy(visuals, s.Visuals)
		for i, scene := range scenes {
			if visuals[i].URL != "" {
				continue
			}
			visuals[i] = production.Visual{
				SceneID:       scene.ID,
				Type:          production.VisualTypeImage,
				IsPlaceholder: true,
			}
			inserted++
		}
		s.Visuals = visuals
		total = len(visuals)
	})
	if err != nil {
		return "", err
	}

	return tools.Success(map[string]any{
		"visualCount":          total,
		"placeholdersInserted": inserted,
		"fallback":             string(ActionPlaceholderVisual),
	}), nil
}

// staticImage reroutes a failed per-scene video generation through the
// still-image provider with the same scene description.
func (f *Fallback) staticImage(ctx context.Context, call llm.ToolCall) (string, error) {
	if f.images == nil {
		return "", fmt.Errorf("no image generator configured")
	}
	state, index, err := f.sceneOf(call)
	if err != nil {
		return "", err
	}
	scene := state.ContentPlan.Scenes[index]

	img, err := f.images.GenerateImage(ctx, assets.ImageRequest{
		Prompt:      scene.VisualDesc,
		Style:       state.ContentPlan.Style,
		AspectRatio: "16:9",
	})
	if err != nil {
		return "", fmt.Errorf("static-image substitute: %w", err)
	}

	if err := f.sessions.Update(state.SessionID, func(s *production.State) {
		ensureVisualSlots(s, index)
		s.Visuals[index] = production.Visual{
			SceneID: scene.ID,
			URL:     img.URL,
			Type:    production.VisualTypeImage,
		}
	}); err != nil {
		return "", err
	}

	return tools.Success(map[string]any{
		"sceneIndex": index,
		"url":        img.URL,
		"fallback":   string(ActionStaticImage),
	}), nil
}

// substituteTextToVideo regenerates a challenged animation call as a fresh
// text-to-video clip from the scene description.
func (f *Fallback) substituteTextToVideo(ctx context.Context, call llm.ToolCall) (string, error) {
	state, index, err := f.sceneOf(call)
	if err != nil {
		return "", err
	}
	scene := state.ContentPlan.Scenes[index]

	clip, err := f.videos.GenerateVideo(ctx, assets.VideoRequest{
		Prompt:      scene.VisualDesc,
		Style:       state.ContentPlan.Style,
		AspectRatio: "16:9",
		Duration:    8,
	})
	if err != nil {
		return "", fmt.Errorf("text-to-video substitute: %w", err)
	}

	if err := f.sessions.Update(state.SessionID, func(s *production.State) {
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

	return tools.Success(map[string]any{
		"sceneIndex": index,
		"url":        clip.URL,
		"model":      clip.Model,
		"fallback":   CloudflareSubstitute,
	}), nil
}

// skipTrack records that an audio source is being omitted and lets the
// pipeline continue. When a mix already exists its presence map is updated;
// otherwise the absent asset keeps itself out of future mixes.
func (f *Fallback) skipTrack(call llm.ToolCall, action Action) (string, error) {
	id, ok := call.StringArg("contentPlanId")
	if ok && id != "" && f.sessions.Has(id) {
		_ = f.sessions.Update(id, func(s *production.State) {
			if s.MixedAudio == nil {
				return
			}
			switch call.Name {
			case "plan_sfx":
				s.MixedAudio.Tracks.Sfx = false
			case "generate_music":
				s.MixedAudio.Tracks.Music = false
			}
		})
	}
	return tools.Success(map[string]any{
		"skipped":  true,
		"fallback": string(action),
	}), nil
}

// keepOriginalImage answers an enhancement failure with the untouched
// asset.
func (f *Fallback) keepOriginalImage(call llm.ToolCall) (string, error) {
	state, index, err := f.sceneOf(call)
	if err != nil {
		return "", err
	}
	v := state.VisualForScene(index)
	if v == nil || v.URL == "" {
		return "", fmt.Errorf("scene %d has no visual to keep", index)
	}
	return tools.Success(map[string]any{
		"sceneIndex": index,
		"url":        v.URL,
		"unchanged":  true,
		"fallback":   string(ActionKeepOriginalImage),
	}), nil
}

// assetBundle renders a manifest of everything the session holds so the
// caller can assemble the video offline after a failed export.
func (f *Fallback) assetBundle(call llm.ToolCall, outcome Outcome) (string, error) {
	id, ok := call.StringArg("contentPlanId")
	if !ok || id == "" {
		return "", fmt.Errorf("call has no contentPlanId")
	}
	state, err := f.sessions.Get(id)
	if err != nil {
		return "", err
	}

	narrationURLs := make([]string, 0, len(state.NarrationSegments))
	for _, seg := range state.NarrationSegments {
		if seg.AudioURL != "" {
			narrationURLs = append(narrationURLs, seg.AudioURL)
		}
	}
	visualURLs := make([]string, 0, len(state.Visuals))
	for _, v := range state.Visuals {
		if v.URL != "" {
			visualURLs = append(visualURLs, v.URL)
		}
	}

	bundle := map[string]any{
		"sceneCount":    state.SceneCount(),
		"narrationUrls": narrationURLs,
		"visualUrls":    visualURLs,
	}
	if state.ContentPlan != nil {
		bundle["topic"] = state.ContentPlan.Topic
	}
	if state.MusicURL != "" {
		bundle["musicUrl"] = state.MusicURL
	}
	if state.MixedAudio != nil && state.MixedAudio.URL != "" {
		bundle["mixedAudioUrl"] = state.MixedAudio.URL
	}
	if state.Subtitles != nil {
		bundle["subtitles"] = map[string]any{
			"format":  state.Subtitles.Format,
			"content": state.Subtitles.Content,
		}
	}

	payload := map[string]any{
		"success":         false,
		"fallback":        "asset_bundle",
		"error":           outcome.Err.Error(),
		"assetBundleData": bundle,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// sceneOf resolves the session and the sceneIndex argument of a per-scene
// call.
func (f *Fallback) sceneOf(call llm.ToolCall) (*production.State, int, error) {
	id, ok := call.StringArg("contentPlanId")
	if !ok || id == "" {
		return nil, 0, fmt.Errorf("call has no contentPlanId")
	}
	state, err := f.sessions.Get(id)
	if err != nil {
		return nil, 0, err
	}
	if state.ContentPlan == nil {
		return nil, 0, fmt.Errorf("session %s has no content plan", id)
	}
	index, ok := call.IntArg("sceneIndex")
	if !ok {
		return nil, 0, fmt.Errorf("call has no sceneIndex")
	}
	if index < 0 || index >= len(state.ContentPlan.Scenes) {
		return nil, 0, fmt.Errorf("sceneIndex %d out of range", index)
	}
	return state, index, nil
}

// ensureVisualSlots grows the visuals slice so index is addressable,
// stamping scene ids on the filler entries.
func ensureVisualSlots(s *production.State, index int) {
	for len(s.Visuals) <= index {
		slot := production.Visual{Type: production.VisualTypeImage}
		if s.ContentPlan != nil && len(s.Visuals) < len(s.ContentPlan.Scenes) {
			slot.SceneID = s.ContentPlan.Scenes[len(s.Visuals)].ID
		}
		s.Visuals = append(s.Visuals, slot)
	}
}
