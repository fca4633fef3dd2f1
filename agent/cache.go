package agent

import (
	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/session"
	"github.com/lordpython/aisoulstudio/tools"
)

// cacheRule inspects session state and, when the tool's output already
// exists, returns the summary fields for a synthetic cached payload.
type cacheRule func(s *production.State, call llm.ToolCall) (map[string]any, bool)

// cacheRules is the per-tool result cache: tools listed here are skipped
// when the state already holds what they would produce. Mutating tools
// absent from this table always execute.
var cacheRules = map[string]cacheRule{
	"generate_visuals": func(s *production.State, _ llm.ToolCall) (map[string]any, bool) {
		n := s.SceneCount()
		if n == 0 || len(s.Visuals) < n {
			return nil, false
		}
		for _, v := range s.Visuals {
			if v.URL == "" {
				return nil, false
			}
		}
		return map[string]any{"visualCount": len(s.Visuals)}, true
	},

	"narrate_scenes": func(s *production.State, _ llm.ToolCall) (map[string]any, bool) {
		n := s.SceneCount()
		if n == 0 || len(s.NarrationSegments) < n {
			return nil, false
		}
		var total float64
		for _, seg := range s.NarrationSegments {
			if len(seg.Audio) == 0 {
				return nil, false
			}
			total += seg.AudioDuration
		}
		return map[string]any{
			"segmentCount":  len(s.NarrationSegments),
			"totalDuration": total,
		}, true
	},

	"plan_sfx": func(s *production.State, _ llm.ToolCall) (map[string]any, bool) {
		if s.SfxPlan == nil || len(s.SfxPlan.Scenes) == 0 {
			return nil, false
		}
		return map[string]any{"sceneCount": len(s.SfxPlan.Scenes)}, true
	},

	"mix_audio_tracks": func(s *production.State, _ llm.ToolCall) (map[string]any, bool) {
		if s.MixedAudio == nil || (len(s.MixedAudio.Audio) == 0 && s.MixedAudio.URL == "") {
			return nil, false
		}
		return map[string]any{
			"url":            s.MixedAudio.URL,
			"duration":       s.MixedAudio.Duration,
			"tracks":         s.MixedAudio.Tracks,
			"duckingApplied": s.MixedAudio.DuckingApplied,
		}, true
	},

	"generate_subtitles": func(s *production.State, _ llm.ToolCall) (map[string]any, bool) {
		if s.Subtitles == nil || s.Subtitles.Content == "" {
			return nil, false
		}
		return map[string]any{
			"format":       s.Subtitles.Format,
			"language":     s.Subtitles.Language,
			"segmentCount": s.Subtitles.SegmentCount,
			"isRTL":        s.Subtitles.IsRTL,
		}, true
	},

	"export_final_video": func(s *production.State, _ llm.ToolCall) (map[string]any, bool) {
		r := s.ExportResult
		if r == nil || (r.DownloadURL == "" && len(s.ExportedVideo) == 0) {
			return nil, false
		}
		return map[string]any{
			"downloadUrl": r.DownloadURL,
			"format":      r.Format,
			"aspectRatio": r.AspectRatio,
			"quality":     r.Quality,
			"duration":    r.Duration,
			"fileSizeMB":  r.FileSizeMB,
		}, true
	},

	"animate_image": func(s *production.State, call llm.ToolCall) (map[string]any, bool) {
		index, ok := call.IntArg("sceneIndex")
		if !ok {
			return nil, false
		}
		v := s.VisualForScene(index)
		if v == nil || v.VideoURL == "" || !v.IsAnimated {
			return nil, false
		}
		return map[string]any{
			"sceneIndex": index,
			"videoUrl":   v.VideoURL,
		}, true
	},
}

// checkCache consults the result cache for a call. On a hit it returns a
// synthetic success payload flagged cached:true, so the model sees the
// stored summary without the tool running again.
func checkCache(store *session.Store, call llm.ToolCall) (string, bool) {
	rule, ok := cacheRules[call.Name]
	if !ok {
		return "", false
	}
	id, ok := call.StringArg("contentPlanId")
	if !ok || id == "" {
		return "", false
	}
	state, err := store.Get(id)
	if err != nil {
		return "", false
	}

	fields, hit := rule(state, call)
	if !hit {
		return "", false
	}
	fields["cached"] = true
	return tools.Success(fields), true
}
