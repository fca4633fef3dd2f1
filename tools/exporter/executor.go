// Package exporter implements the EXPORT tool group: subtitle generation,
// the pre-export readiness check, preset listing, the final render, and the
// cloud upload.
package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lordpython/aisoulstudio/assets"
	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/session"
	"github.com/lordpython/aisoulstudio/tools"
)

// Executor serves the EXPORT tools.
type Executor struct {
	sessions *session.Store
	renderer assets.VideoExporter
	uploader *assets.CloudUploader
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

// NewExecutor creates the EXPORT executor.
func NewExecutor(sessions *session.Store, renderer assets.VideoExporter, uploader *assets.CloudUploader, opts ...Option) *Executor {
	e := &Executor{
		sessions: sessions,
		renderer: renderer,
		uploader: uploader,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one EXPORT tool call.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	switch call.Name {
	case "generate_subtitles":
		return e.generateSubtitles(ctx, call)
	case "validate_export":
		return e.validateExport(ctx, call)
	case "list_export_presets":
		return e.listExportPresets(ctx, call)
	case "export_final_video":
		return e.exportFinalVideo(ctx, call)
	case "upload_production_to_cloud":
		return e.uploadToCloud(ctx, call)
	default:
		return tools.UnknownTool(call.Name)
	}
}

// generateSubtitles derives timed cues from the narration and serializes
// them in the requested format. RTL languages get bidi-wrapped cue text.
func (e *Executor) generateSubtitles(_ context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}
	if len(state.NarrationSegments) == 0 {
		return tools.Failure("session has no narration to subtitle", "call narrate_scenes first"), nil
	}

	format, _ := call.StringArg("format")
	if format == "" {
		format = assets.SubtitleFormatSRT
	}
	if format != assets.SubtitleFormatSRT && format != assets.SubtitleFormatVTT {
		return tools.Failuref("use srt or vtt", "unsupported subtitle format %q", format), nil
	}

	language, _ := call.StringArg("language")
	if language == "" {
		if state.ContentPlan != nil && state.ContentPlan.Language != "" {
			language = state.ContentPlan.Language
		} else {
			language = "en"
		}
	}

	maxWords, _ := call.IntArg("maxWordsPerSegment")
	cues := assets.BuildCues(state.NarrationSegments, maxWords)
	if len(cues) == 0 {
		return tools.Failure("narration has no text to subtitle", "re-run narrate_scenes"), nil
	}

	content, err := assets.SerializeSubtitles(cues, format, language)
	if err != nil {
		return tools.Failure(err.Error(), "use srt or vtt"), nil
	}

	subtitles := &production.SubtitleResult{
		Format:       format,
		Content:      content,
		Language:     language,
		SegmentCount: len(cues),
		IsRTL:        assets.IsRTLLanguage(language),
		Cues:         cues,
	}
	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		s.Subtitles = subtitles
	}); err != nil {
		return "", err
	}

	return tools.Success(map[string]any{
		"format":        format,
		"language":      language,
		"segmentCount":  len(cues),
		"isRTL":         subtitles.IsRTL,
		"totalDuration": cues[len(cues)-1].End,
	}), nil
}

// validateExport reports whether the session is ready to render, without
// mutating anything. Missing prerequisites land in errors; nice-to-haves
// land in warnings. The report itself always succeeds.
func (e *Executor) validateExport(_ context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}

	quality, _ := call.StringArg("quality")
	if quality == "" {
		quality = assets.QualityStandard
	}

	errs := []string{}
	warnings := []string{}
	suggestions := []string{}

	sceneCount := state.SceneCount()
	if sceneCount == 0 {
		errs = append(errs, "no content plan")
		suggestions = append(suggestions, "call plan_video first")
	}

	visualCount := 0
	placeholderCount := 0
	for _, v := range state.Visuals {
		if v.URL != "" {
			visualCount++
		}
		if v.IsPlaceholder {
			placeholderCount++
		}
	}
	switch {
	case visualCount == 0:
		errs = append(errs, "no visuals generated")
		suggestions = append(suggestions, "call generate_visuals")
	case visualCount < sceneCount:
		warnings = append(warnings, fmt.Sprintf("only %d of %d scenes have visuals", visualCount, sceneCount))
	}
	if placeholderCount > 0 {
		warnings = append(warnings, fmt.Sprintf("%d visuals are placeholders", placeholderCount))
	}

	if len(state.NarrationSegments) == 0 {
		errs = append(errs, "no narration generated")
		suggestions = append(suggestions, "call narrate_scenes")
	}
	if state.MixedAudio == nil {
		warnings = append(warnings, "no mixed audio; raw narration will be used")
	}
	if state.MusicTrack == nil && state.MusicURL == "" {
		warnings = append(warnings, "no background music")
	}
	if state.Subtitles == nil {
		warnings = append(warnings, "no subtitles generated")
	}

	duration := 0.0
	if state.ContentPlan != nil {
		for _, scene := range state.ContentPlan.Scenes {
			duration += scene.Duration
		}
	}

	return tools.Success(map[string]any{
		"isReady":             len(errs) == 0,
		"estimatedDuration":   duration,
		"estimatedFileSizeMB": assets.EstimateFileSizeMB(duration, quality),
		"assets": map[string]any{
			"narration":  len(state.NarrationSegments) > 0,
			"visuals":    visualCount,
			"music":      state.MusicTrack != nil || state.MusicURL != "",
			"sfx":        state.SfxPlan != nil,
			"subtitles":  state.Subtitles != nil,
			"mixedAudio": state.MixedAudio != nil,
		},
		"warnings":    warnings,
		"errors":      errs,
		"suggestions": suggestions,
	}), nil
}

func (e *Executor) listExportPresets(_ context.Context, _ llm.ToolCall) (string, error) {
	return tools.Success(map[string]any{
		"presets": assets.ExportPresets(),
	}), nil
}

// exportFinalVideo renders the production. Render parameters come from an
// optional preset, overridden by any explicitly passed argument.
func (e *Executor) exportFinalVideo(ctx context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}

	format := assets.ExportFormatMP4
	aspectRatio := assets.AspectLandscape
	quality := assets.QualityStandard

	if name, ok := call.StringArg("preset"); ok && name != "" {
		preset, found := assets.PresetByName(name)
		if !found {
			names := make([]string, 0, len(assets.ExportPresets()))
			for _, p := range assets.ExportPresets() {
				names = append(names, p.Name)
			}
			return tools.Failuref("use one of: "+strings.Join(names, ", "),
				"unknown export preset %q", name), nil
		}
		format, aspectRatio, quality = preset.Format, preset.AspectRatio, preset.Quality
	}
	if v, ok := call.StringArg("format"); ok && v != "" {
		format = v
	}
	if v, ok := call.StringArg("aspectRatio"); ok && v != "" {
		aspectRatio = v
	}
	if v, ok := call.StringArg("quality"); ok && v != "" {
		quality = v
	}

	if !assets.ValidExportFormat(format) {
		return tools.Failuref("use mp4 or webm", "unsupported export format %q", format), nil
	}
	if !assets.ValidAspectRatio(aspectRatio) {
		return tools.Failuref("use 16:9, 9:16, or 1:1", "unsupported aspect ratio %q", aspectRatio), nil
	}
	if !assets.ValidQuality(quality) {
		return tools.Failuref("use draft, standard, or high", "unsupported quality %q", quality), nil
	}

	if state.ContentPlan == nil || len(state.ContentPlan.Scenes) == 0 {
		return tools.Failure("session has no content plan", "call plan_video first"), nil
	}
	if len(state.NarrationSegments) == 0 {
		return tools.Failure("session has no narration", "call narrate_scenes first"), nil
	}
	// Placeholder visuals render as slates, so they count as exportable.
	hasVisual := false
	for _, v := range state.Visuals {
		if v.URL != "" || v.IsPlaceholder {
			hasVisual = true
			break
		}
	}
	if !hasVisual {
		return tools.Failure("session has no visuals", "call generate_visuals first"), nil
	}

	req := assets.ExportRequest{
		Scenes:      state.ContentPlan.Scenes,
		Visuals:     state.Visuals,
		Narration:   state.NarrationSegments,
		MusicURL:    state.MusicURL,
		Sfx:         state.SfxPlan,
		Format:      format,
		AspectRatio: aspectRatio,
		Quality:     quality,
	}

	includeSubtitles := state.Subtitles != nil
	if v, ok := call.BoolArg("includeSubtitles"); ok {
		includeSubtitles = v
	}
	if includeSubtitles && state.Subtitles != nil {
		req.Subtitles = state.Subtitles
		req.BurnSubtitles = true
	}

	useMixedAudio := state.MixedAudio != nil
	if v, ok := call.BoolArg("useMixedAudio"); ok {
		useMixedAudio = v
	}
	if useMixedAudio && state.MixedAudio != nil {
		req.MixedAudioURL = state.MixedAudio.URL
	}

	result, err := e.renderer.Export(ctx, req)
	if err != nil {
		return "", fmt.Errorf("exporting video: %w", err)
	}

	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		s.ExportResult = result
	}); err != nil {
		return "", err
	}

	e.logger.Info("Production exported",
		"session_id", state.SessionID,
		"format", result.Format,
		"quality", result.Quality,
		"duration", result.Duration,
		"size_mb", result.FileSizeMB)

	return tools.Success(map[string]any{
		"downloadUrl":    result.DownloadURL,
		"format":         result.Format,
		"aspectRatio":    result.AspectRatio,
		"quality":        result.Quality,
		"duration":       result.Duration,
		"fileSizeMB":     result.FileSizeMB,
		"includedAssets": result.IncludedAssets,
	}), nil
}

// uploadToCloud pushes the session's assets to the configured bucket.
// Per-file failures are reported inside a successful payload: a partial
// upload is not a failed tool call.
func (e *Executor) uploadToCloud(ctx context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}
	if e.uploader == nil {
		return tools.Failure("cloud upload is not configured",
			"set the bucket endpoint in the studio config"), nil
	}

	req := assets.UploadRequest{
		IncludeNarration: true,
		IncludeVisuals:   true,
		IncludeMusic:     true,
		IncludeSubtitles: true,
		IncludeVideo:     true,
	}
	if v, ok := call.StringArg("folderName"); ok {
		req.FolderName = v
	}
	if v, ok := call.BoolArg("makePublic"); ok {
		req.MakePublic = v
	}
	if v, ok := call.BoolArg("includeNarration"); ok {
		req.IncludeNarration = v
	}
	if v, ok := call.BoolArg("includeVisuals"); ok {
		req.IncludeVisuals = v
	}
	if v, ok := call.BoolArg("includeMusic"); ok {
		req.IncludeMusic = v
	}
	if v, ok := call.BoolArg("includeSubtitles"); ok {
		req.IncludeSubtitles = v
	}
	if v, ok := call.BoolArg("includeVideo"); ok {
		req.IncludeVideo = v
	}
	req.Include = stringList(call.Arguments["include"])
	req.Exclude = stringList(call.Arguments["exclude"])

	result, err := e.uploader.Upload(ctx, state, req)
	if err != nil {
		return "", fmt.Errorf("uploading production: %w", err)
	}

	payload := map[string]any{
		"folderName":    result.FolderName,
		"bucketPath":    result.BucketPath,
		"filesUploaded": result.FilesUploaded,
		"totalFiles":    result.TotalFiles,
		"totalSizeMB":   result.TotalSizeMB,
	}
	if len(result.PublicURLs) > 0 {
		payload["publicUrls"] = result.PublicURLs
	}
	if len(result.Errors) > 0 {
		payload["errors"] = result.Errors
	}
	return tools.Success(payload), nil
}

// stringList coerces a JSON array argument into a string slice.
func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ListTools returns the EXPORT tool definitions.
func (e *Executor) ListTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        "generate_subtitles",
			Description: "Generate timed subtitles from the narration in SRT or VTT format",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video",
					},
					"format": map[string]any{
						"type":        "string",
						"description": "Subtitle format: srt or vtt (default srt)",
						"enum":        []string{"srt", "vtt"},
					},
					"language": map[string]any{
						"type":        "string",
						"description": "Subtitle language code (defaults to the plan language)",
					},
					"maxWordsPerSegment": map[string]any{
						"type":        "integer",
						"description": "Longest cue in words (default 8)",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
		{
			Name:        "validate_export",
			Description: "Check whether the production is ready to export and report missing assets",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video",
					},
					"quality": map[string]any{
						"type":        "string",
						"description": "Quality tier for the size estimate (default standard)",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
		{
			Name:        "list_export_presets",
			Description: "List the named export presets and their render parameters",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "export_final_video",
			Description: "Render the final video from the production's scenes, visuals, and audio",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video",
					},
					"preset": map[string]any{
						"type":        "string",
						"description": "Named preset, e.g. youtube or tiktok (see list_export_presets)",
					},
					"format": map[string]any{
						"type":        "string",
						"description": "Container format: mp4 or webm",
						"enum":        []string{"mp4", "webm"},
					},
					"aspectRatio": map[string]any{
						"type":        "string",
						"description": "Aspect ratio: 16:9, 9:16, or 1:1",
						"enum":        []string{"16:9", "9:16", "1:1"},
					},
					"quality": map[string]any{
						"type":        "string",
						"description": "Quality tier: draft, standard, or high",
						"enum":        []string{"draft", "standard", "high"},
					},
					"includeSubtitles": map[string]any{
						"type":        "boolean",
						"description": "Burn the generated subtitles into the render (default: when they exist)",
					},
					"useMixedAudio": map[string]any{
						"type":        "boolean",
						"description": "Use the mixed soundtrack instead of raw narration (default: when one exists)",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
		{
			Name:        "upload_production_to_cloud",
			Description: "Upload the production's assets and manifest to cloud storage",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Session id returned by plan_video",
					},
					"folderName": map[string]any{
						"type":        "string",
						"description": "Destination folder (default production_<sessionId>)",
					},
					"makePublic": map[string]any{
						"type":        "boolean",
						"description": "Return public URLs for the uploaded files",
					},
					"includeNarration": map[string]any{
						"type":        "boolean",
						"description": "Upload narration audio (default true)",
					},
					"includeVisuals": map[string]any{
						"type":        "boolean",
						"description": "List visuals in the manifest (default true)",
					},
					"includeMusic": map[string]any{
						"type":        "boolean",
						"description": "List the music track in the manifest (default true)",
					},
					"includeSubtitles": map[string]any{
						"type":        "boolean",
						"description": "Upload the subtitle file (default true)",
					},
					"includeVideo": map[string]any{
						"type":        "boolean",
						"description": "Upload the rendered video when present (default true)",
					},
					"include": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Glob patterns selecting files to upload",
					},
					"exclude": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Glob patterns excluding files from the upload",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
	}
}

var _ tools.Executor = (*Executor)(nil)
