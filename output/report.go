// Package output renders production state into human-readable documents.
package output

import (
	"fmt"
	"strings"

	"github.com/lordpython/aisoulstudio/production"
)

// Renderer converts a production state to a markdown report.
type Renderer struct{}

// NewRenderer creates a new markdown renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render converts a production state to a markdown report string.
// Sections follow the pipeline order: plan, scenes, audio, subtitles,
// export. Empty stages are omitted.
func (r *Renderer) Render(s *production.State) string {
	var sb strings.Builder

	sb.WriteString("# ")
	sb.WriteString(r.title(s))
	sb.WriteString("\n\n")

	r.writeOverview(&sb, s)
	r.writeImportedSource(&sb, s)
	r.writeScenes(&sb, s)
	r.writeScreenplay(&sb, s)
	r.writeAudio(&sb, s)
	r.writeSubtitles(&sb, s)
	r.writeExport(&sb, s)
	r.writeQuality(&sb, s)
	r.writeErrors(&sb, s)

	// Status footer
	sb.WriteString("---\n\n")
	sb.WriteString("**Status:** ")
	if s.IsComplete {
		sb.WriteString("complete")
	} else {
		sb.WriteString("in progress")
	}
	sb.WriteString("\n")
	if !s.UpdatedAt.IsZero() {
		sb.WriteString("**Updated:** ")
		sb.WriteString(s.UpdatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
		sb.WriteString("\n")
	}

	return sb.String()
}

func (r *Renderer) title(s *production.State) string {
	if s.ContentPlan != nil && s.ContentPlan.Topic != "" {
		return s.ContentPlan.Topic
	}
	return "Production " + s.SessionID
}

func (r *Renderer) writeOverview(sb *strings.Builder, s *production.State) {
	plan := s.ContentPlan
	if plan == nil {
		return
	}

	r.writeHeading(sb, 2, "Overview")
	r.writeField(sb, "Style", plan.Style)
	r.writeField(sb, "Audience", plan.Audience)
	r.writeField(sb, "Purpose", plan.VideoPurpose)
	r.writeField(sb, "Language", plan.Language)
	r.writeField(sb, "Duration", formatSeconds(plan.TotalDuration))
	r.writeField(sb, "Scenes", fmt.Sprintf("%d", len(plan.Scenes)))
	sb.WriteString("\n")
}

func (r *Renderer) writeImportedSource(sb *strings.Builder, s *production.State) {
	imported := s.ImportedContent
	if imported == nil {
		return
	}

	r.writeHeading(sb, 2, "Source")
	r.writeField(sb, "Kind", imported.SourceKind)
	r.writeField(sb, "Title", imported.Title)
	r.writeField(sb, "URL", imported.SourceURL)
	if imported.Transcript != "" {
		r.writeField(sb, "Transcript", fmt.Sprintf("%d characters, %d segments", len(imported.Transcript), len(imported.Segments)))
	}
	sb.WriteString("\n")
}

// writeScenes renders one subsection per planned scene, folding in the
// narration segment and visual that carry the same scene ID.
func (r *Renderer) writeScenes(sb *strings.Builder, s *production.State) {
	if s.ContentPlan == nil || len(s.ContentPlan.Scenes) == 0 {
		return
	}

	narrations := make(map[string]production.NarrationSegment, len(s.NarrationSegments))
	for _, seg := range s.NarrationSegments {
		narrations[seg.SceneID] = seg
	}
	visuals := make(map[string]production.Visual, len(s.Visuals))
	for _, v := range s.Visuals {
		visuals[v.SceneID] = v
	}

	r.writeHeading(sb, 2, "Scenes")
	for i, scene := range s.ContentPlan.Scenes {
		r.writeHeading(sb, 3, fmt.Sprintf("%d. %s (%s)", i+1, scene.Name, formatSeconds(scene.Duration)))

		if scene.NarrationScript != "" {
			sb.WriteString(scene.NarrationScript)
			sb.WriteString("\n\n")
		}

		r.writeField(sb, "Visual", scene.VisualDesc)
		r.writeField(sb, "Tone", scene.EmotionalTone)
		if seg, ok := narrations[scene.ID]; ok {
			r.writeField(sb, "Narration audio", formatSeconds(seg.AudioDuration))
		}
		if v, ok := visuals[scene.ID]; ok {
			r.writeField(sb, "Asset", describeVisual(v))
		}
		sb.WriteString("\n")
	}
}

func (r *Renderer) writeScreenplay(sb *strings.Builder, s *production.State) {
	sp := s.Screenplay
	if sp == nil {
		return
	}

	r.writeHeading(sb, 2, "Screenplay")
	if sp.Breakdown != "" {
		sb.WriteString(sp.Breakdown)
		sb.WriteString("\n\n")
	}
	if len(sp.Characters) > 0 {
		sb.WriteString("**Characters:**\n")
		for _, c := range sp.Characters {
			sb.WriteString("  - ")
			sb.WriteString(c.Name)
			if c.Description != "" {
				sb.WriteString(": ")
				sb.WriteString(c.Description)
			}
			sb.WriteString("\n")
		}
	}
	if len(sp.Shots) > 0 {
		r.writeField(sb, "Shots", fmt.Sprintf("%d", len(sp.Shots)))
	}
	sb.WriteString("\n")
}

func (r *Renderer) writeAudio(sb *strings.Builder, s *production.State) {
	hasMusic := s.MusicTrack != nil || s.MusicURL != ""
	hasSfx := s.SfxPlan != nil && len(s.SfxPlan.Scenes) > 0
	if !hasMusic && !hasSfx && s.MixedAudio == nil {
		return
	}

	r.writeHeading(sb, 2, "Audio")
	if s.MusicTrack != nil {
		label := s.MusicTrack.Title
		if label == "" {
			label = s.MusicTrack.URL
		}
		r.writeField(sb, "Music", label)
	} else if s.MusicURL != "" {
		r.writeField(sb, "Music", s.MusicURL)
	}
	if hasSfx {
		r.writeField(sb, "Sound effects", fmt.Sprintf("%d cues", len(s.SfxPlan.Scenes)))
	}
	if mix := s.MixedAudio; mix != nil {
		detail := formatSeconds(mix.Duration) + ", tracks: " + strings.Join(trackNames(mix.Tracks), ", ")
		if mix.DuckingApplied {
			detail += ", ducked"
		}
		r.writeField(sb, "Final mix", detail)
	}
	sb.WriteString("\n")
}

func (r *Renderer) writeSubtitles(sb *strings.Builder, s *production.State) {
	subs := s.Subtitles
	if subs == nil {
		return
	}

	r.writeHeading(sb, 2, "Subtitles")
	r.writeField(sb, "Format", strings.ToUpper(subs.Format))
	r.writeField(sb, "Language", subs.Language)
	r.writeField(sb, "Cues", fmt.Sprintf("%d", subs.SegmentCount))
	if subs.IsRTL {
		r.writeField(sb, "Direction", "right-to-left")
	}
	sb.WriteString("\n")
}

func (r *Renderer) writeExport(sb *strings.Builder, s *production.State) {
	export := s.ExportResult
	if export == nil {
		return
	}

	r.writeHeading(sb, 2, "Export")
	r.writeField(sb, "Download", export.DownloadURL)
	r.writeField(sb, "Format", fmt.Sprintf("%s %s %s", export.Format, export.AspectRatio, export.Quality))
	r.writeField(sb, "Duration", formatSeconds(export.Duration))
	if export.FileSizeMB > 0 {
		r.writeField(sb, "Size", fmt.Sprintf("%.1f MB", export.FileSizeMB))
	}
	if assets := assetNames(export.IncludedAssets); len(assets) > 0 {
		r.writeField(sb, "Includes", strings.Join(assets, ", "))
	}
	sb.WriteString("\n")
}

func (r *Renderer) writeQuality(sb *strings.Builder, s *production.State) {
	if s.QualityIterations == 0 && s.QualityScore == 0 {
		return
	}

	r.writeHeading(sb, 2, "Quality")
	r.writeField(sb, "Score", fmt.Sprintf("%d/100", s.QualityScore))
	if s.BestQualityScore > s.QualityScore {
		r.writeField(sb, "Best", fmt.Sprintf("%d/100", s.BestQualityScore))
	}
	if s.QualityIterations > 0 {
		r.writeField(sb, "Review passes", fmt.Sprintf("%d", s.QualityIterations))
	}
	sb.WriteString("\n")
}

func (r *Renderer) writeErrors(sb *strings.Builder, s *production.State) {
	if len(s.Errors) == 0 {
		return
	}

	r.writeHeading(sb, 2, "Errors")
	for _, e := range s.Errors {
		sb.WriteString("- **")
		sb.WriteString(e.Tool)
		sb.WriteString(":** ")
		sb.WriteString(e.Message)
		if e.FallbackApplied != "" {
			sb.WriteString(" (fallback: ")
			sb.WriteString(e.FallbackApplied)
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func (r *Renderer) writeHeading(sb *strings.Builder, level int, title string) {
	sb.WriteString(strings.Repeat("#", level))
	sb.WriteString(" ")
	sb.WriteString(title)
	sb.WriteString("\n\n")
}

// writeField writes one "- **Key:** value" line, skipping empty values.
func (r *Renderer) writeField(sb *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	sb.WriteString("- **")
	sb.WriteString(key)
	sb.WriteString(":** ")
	sb.WriteString(value)
	sb.WriteString("\n")
}

func describeVisual(v production.Visual) string {
	desc := v.Type
	if v.IsAnimated {
		desc = "animated " + desc
	}
	if v.IsPlaceholder {
		desc += " (placeholder)"
	}
	url := v.URL
	if v.VideoURL != "" {
		url = v.VideoURL
	}
	if url != "" {
		desc += " " + url
	}
	return desc
}

func trackNames(flags production.TrackFlags) []string {
	var names []string
	if flags.Narration {
		names = append(names, "narration")
	}
	if flags.Music {
		names = append(names, "music")
	}
	if flags.Sfx {
		names = append(names, "sfx")
	}
	if flags.VideoAudio {
		names = append(names, "video audio")
	}
	return names
}

func assetNames(assets production.IncludedAssets) []string {
	var names []string
	if assets.Narration {
		names = append(names, "narration")
	}
	if assets.Visuals {
		names = append(names, "visuals")
	}
	if assets.Music {
		names = append(names, "music")
	}
	if assets.Sfx {
		names = append(names, "sfx")
	}
	if assets.Subtitles {
		names = append(names, "subtitles")
	}
	if assets.MixedAudio {
		names = append(names, "mixed audio")
	}
	return names
}

func formatSeconds(seconds float64) string {
	if seconds == 0 {
		return ""
	}
	return fmt.Sprintf("%.1fs", seconds)
}
