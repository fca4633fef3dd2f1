package assets

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lordpython/aisoulstudio/production"
)

// Accepted export parameter values.
const (
	ExportFormatMP4  = "mp4"
	ExportFormatWebM = "webm"

	AspectLandscape = "16:9"
	AspectPortrait  = "9:16"
	AspectSquare    = "1:1"

	QualityDraft    = "draft"
	QualityStandard = "standard"
	QualityHigh     = "high"
)

// ValidExportFormat reports whether format is an accepted container.
func ValidExportFormat(format string) bool {
	return format == ExportFormatMP4 || format == ExportFormatWebM
}

// ValidAspectRatio reports whether ratio is an accepted aspect ratio.
func ValidAspectRatio(ratio string) bool {
	return ratio == AspectLandscape || ratio == AspectPortrait || ratio == AspectSquare
}

// ValidQuality reports whether quality is an accepted quality tier.
func ValidQuality(quality string) bool {
	return quality == QualityDraft || quality == QualityStandard || quality == QualityHigh
}

// ExportPreset is a named bundle of export parameters targeting one
// distribution surface.
type ExportPreset struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Format      string `json:"format"`
	AspectRatio string `json:"aspectRatio"`
	Quality     string `json:"quality"`
	FrameRate   int    `json:"frameRate"`
}

// exportPresets is the preset catalog, in display order.
var exportPresets = []ExportPreset{
	{Name: "youtube", Description: "YouTube landscape upload", Format: ExportFormatMP4, AspectRatio: AspectLandscape, Quality: QualityHigh, FrameRate: 30},
	{Name: "youtube-shorts", Description: "YouTube Shorts vertical", Format: ExportFormatMP4, AspectRatio: AspectPortrait, Quality: QualityHigh, FrameRate: 30},
	{Name: "tiktok", Description: "TikTok vertical", Format: ExportFormatMP4, AspectRatio: AspectPortrait, Quality: QualityStandard, FrameRate: 30},
	{Name: "instagram-reel", Description: "Instagram Reels vertical", Format: ExportFormatMP4, AspectRatio: AspectPortrait, Quality: QualityStandard, FrameRate: 30},
	{Name: "instagram-post", Description: "Instagram square feed post", Format: ExportFormatMP4, AspectRatio: AspectSquare, Quality: QualityStandard, FrameRate: 30},
	{Name: "web", Description: "Web embed", Format: ExportFormatWebM, AspectRatio: AspectLandscape, Quality: QualityStandard, FrameRate: 30},
	{Name: "preview", Description: "Fast draft preview", Format: ExportFormatMP4, AspectRatio: AspectLandscape, Quality: QualityDraft, FrameRate: 24},
}

// ExportPresets returns the preset catalog.
func ExportPresets() []ExportPreset {
	out := make([]ExportPreset, len(exportPresets))
	copy(out, exportPresets)
	return out
}

// PresetByName looks up a preset by name.
func PresetByName(name string) (ExportPreset, bool) {
	for _, p := range exportPresets {
		if p.Name == name {
			return p, true
		}
	}
	return ExportPreset{}, false
}

// EstimateFileSizeMB estimates the rendered file size for a duration at a
// quality tier, using flat per-second rates.
func EstimateFileSizeMB(durationSeconds float64, quality string) float64 {
	perSecond := 0.5
	switch quality {
	case QualityDraft:
		perSecond = 0.2
	case QualityHigh:
		perSecond = 1.0
	}
	return durationSeconds * perSecond
}

// ExportRequest carries the assembled assets and render parameters.
type ExportRequest struct {
	Scenes        []production.Scene
	Visuals       []production.Visual
	Narration     []production.NarrationSegment
	MixedAudioURL string
	MusicURL      string
	Sfx           *production.SfxPlan
	Subtitles     *production.SubtitleResult
	Format        string
	AspectRatio   string
	Quality       string
	BurnSubtitles bool
}

// VideoExporter renders the final video.
type VideoExporter interface {
	Export(ctx context.Context, req ExportRequest) (*production.ExportResult, error)
}

// HTTPVideoExporter posts a render recipe to a JSON rendering service: a
// timeline of per-scene visuals plus the audio track and optional burned
// subtitles.
type HTTPVideoExporter struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPVideoExporter creates an exporter for the given endpoint.
func NewHTTPVideoExporter(endpoint, apiKey string, client *http.Client) *HTTPVideoExporter {
	return &HTTPVideoExporter{endpoint: endpoint, apiKey: apiKey, client: client}
}

func (e *HTTPVideoExporter) headers() map[string]string {
	if e.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + e.apiKey}
}

type exportTimelineEntry struct {
	VisualURL string  `json:"visualUrl"`
	Kind      string  `json:"kind"`
	Duration  float64 `json:"duration"`
}

type exportWireResponse struct {
	DownloadURL string  `json:"downloadUrl"`
	Duration    float64 `json:"duration"`
	FileSizeMB  float64 `json:"fileSizeMB"`
}

// Export renders the timeline. Scene i pairs with visual i; the timeline
// length is the shorter of the two lists so a partially-visualized
// production still renders what it has.
func (e *HTTPVideoExporter) Export(ctx context.Context, req ExportRequest) (*production.ExportResult, error) {
	if len(req.Scenes) == 0 {
		return nil, fmt.Errorf("nothing to export: no scenes")
	}
	if len(req.Visuals) == 0 {
		return nil, fmt.Errorf("nothing to export: no visuals")
	}
	if !ValidExportFormat(req.Format) {
		return nil, fmt.Errorf("unsupported export format: %q", req.Format)
	}
	if !ValidAspectRatio(req.AspectRatio) {
		return nil, fmt.Errorf("unsupported aspect ratio: %q", req.AspectRatio)
	}
	if !ValidQuality(req.Quality) {
		return nil, fmt.Errorf("unsupported quality: %q", req.Quality)
	}

	n := min(len(req.Scenes), len(req.Visuals))
	timeline := make([]exportTimelineEntry, 0, n)
	for i := 0; i < n; i++ {
		visual := req.Visuals[i]
		url := visual.URL
		kind := visual.Type
		if visual.VideoURL != "" {
			url = visual.VideoURL
			kind = production.VisualTypeVideo
		}
		timeline = append(timeline, exportTimelineEntry{
			VisualURL: url,
			Kind:      kind,
			Duration:  req.Scenes[i].Duration,
		})
	}

	body := map[string]any{
		"timeline":    timeline,
		"format":      req.Format,
		"aspectRatio": req.AspectRatio,
		"quality":     req.Quality,
	}
	if req.MixedAudioURL != "" {
		body["audioUrl"] = req.MixedAudioURL
	}
	if req.BurnSubtitles && req.Subtitles != nil {
		body["subtitles"] = map[string]any{
			"format":  req.Subtitles.Format,
			"content": req.Subtitles.Content,
		}
	}

	var resp exportWireResponse
	if err := postJSON(ctx, e.client, e.endpoint, e.headers(), body, &resp); err != nil {
		return nil, fmt.Errorf("exporting video: %w", err)
	}
	if resp.DownloadURL == "" {
		return nil, fmt.Errorf("export endpoint returned no download URL")
	}

	duration := resp.Duration
	if duration == 0 {
		for _, entry := range timeline {
			duration += entry.Duration
		}
	}
	fileSize := resp.FileSizeMB
	if fileSize == 0 {
		fileSize = EstimateFileSizeMB(duration, req.Quality)
	}

	return &production.ExportResult{
		DownloadURL: resp.DownloadURL,
		Format:      req.Format,
		AspectRatio: req.AspectRatio,
		Quality:     req.Quality,
		Duration:    duration,
		FileSizeMB:  fileSize,
		IncludedAssets: production.IncludedAssets{
			Narration:  len(req.Narration) > 0,
			Visuals:    true,
			Music:      req.MusicURL != "",
			Sfx:        req.Sfx != nil && len(req.Sfx.Scenes) > 0,
			Subtitles:  req.Subtitles != nil,
			MixedAudio: req.MixedAudioURL != "",
		},
	}, nil
}
