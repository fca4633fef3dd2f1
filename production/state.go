// Package production defines the session state model for the video
// production pipeline: the content plan, per-scene assets accumulated by
// tools (narration, visuals, sfx, mixed audio, subtitles, exports), and the
// structured error log aggregated into a partial-success report.
package production

import (
	"time"
)

// State is the per-session production state. One instance exists per
// session id; tools read and write it through the session store, one tool
// invocation at a time.
type State struct {
	SessionID string `json:"sessionId"`

	ContentPlan       *ContentPlan       `json:"contentPlan,omitempty"`
	NarrationSegments []NarrationSegment `json:"narrationSegments,omitempty"`
	Visuals           []Visual           `json:"visuals,omitempty"`
	SfxPlan           *SfxPlan           `json:"sfxPlan,omitempty"`

	MusicTaskID string      `json:"musicTaskId,omitempty"`
	MusicURL    string      `json:"musicUrl,omitempty"`
	MusicTrack  *MusicTrack `json:"musicTrack,omitempty"`

	MixedAudio *MixedAudio     `json:"mixedAudio,omitempty"`
	Subtitles  *SubtitleResult `json:"subtitles,omitempty"`

	ExportResult  *ExportResult `json:"exportResult,omitempty"`
	ExportedVideo []byte        `json:"exportedVideo,omitempty"`

	ImportedContent *ImportedContent `json:"importedContent,omitempty"`

	Screenplay *Screenplay `json:"screenplay,omitempty"`

	QualityScore      int `json:"qualityScore"`
	BestQualityScore  int `json:"bestQualityScore"`
	QualityIterations int `json:"qualityIterations"`

	Errors               []ToolError `json:"errors,omitempty"`
	PartialSuccessReport *Report     `json:"partialSuccessReport,omitempty"`

	IsComplete bool `json:"isComplete"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewState returns an empty production state for the given session id.
func NewState(sessionID string) *State {
	now := time.Now()
	return &State{
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ContentPlan is the structured plan a production is built from.
type ContentPlan struct {
	Topic         string  `json:"topic"`
	Style         string  `json:"style,omitempty"`
	Audience      string  `json:"audience,omitempty"`
	VideoPurpose  string  `json:"videoPurpose,omitempty"`
	Language      string  `json:"language"`
	Scenes        []Scene `json:"scenes"`
	TotalDuration float64 `json:"totalDuration"`
}

// Scene is one narrative unit: narration, a visual, and a duration.
type Scene struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Duration        float64 `json:"duration"`
	NarrationScript string  `json:"narrationScript"`
	VisualDesc      string  `json:"visualDescription"`
	EmotionalTone   string  `json:"emotionalTone,omitempty"`
	SuggestedSfxID  string  `json:"suggestedSfxId,omitempty"`
}

// NarrationSegment holds the synthesized narration for one scene.
// AudioDuration is the measured length of the audio, which may differ from
// the scene's planned duration until adjust_timing reconciles them.
type NarrationSegment struct {
	SceneID       string  `json:"sceneId"`
	Text          string  `json:"text"`
	Audio         []byte  `json:"audio,omitempty"`
	AudioURL      string  `json:"audioUrl,omitempty"`
	AudioDuration float64 `json:"audioDuration"`
}

// Visual is the generated imagery for one scene. Entry i always refers to
// scene i of the content plan; fallbacks insert placeholders rather than
// shifting indices.
type Visual struct {
	SceneID          string `json:"sceneId"`
	URL              string `json:"url"`
	VideoURL         string `json:"videoUrl,omitempty"`
	Type             string `json:"type"` // "image" or "video"
	IsPlaceholder    bool   `json:"isPlaceholder"`
	IsAnimated       bool   `json:"isAnimated"`
	GeneratedWithVeo bool   `json:"generatedWithVeo"`
}

// VisualTypeImage and VisualTypeVideo are the accepted Visual.Type values.
const (
	VisualTypeImage = "image"
	VisualTypeVideo = "video"
)

// SfxPlan maps scenes to suggested ambient tracks, with an optional global
// background-music selection.
type SfxPlan struct {
	Scenes []SceneSfx  `json:"scenes"`
	Music  *MusicTrack `json:"music,omitempty"`
}

// SceneSfx is the ambient-track suggestion for one scene.
type SceneSfx struct {
	SceneID     string  `json:"sceneId"`
	TrackID     string  `json:"trackId"`
	TrackURL    string  `json:"trackUrl,omitempty"`
	Description string  `json:"description,omitempty"`
	Volume      float64 `json:"volume"`
}

// MusicTrack is a background-music selection.
type MusicTrack struct {
	TaskID   string  `json:"taskId,omitempty"`
	URL      string  `json:"url"`
	Title    string  `json:"title,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Volume   float64 `json:"volume,omitempty"`
}

// TrackFlags records which sources made it into a mix.
type TrackFlags struct {
	Narration  bool `json:"narration"`
	Music      bool `json:"music"`
	Sfx        bool `json:"sfx"`
	VideoAudio bool `json:"videoAudio"`
}

// MixedAudio is the result of mix_audio_tracks.
type MixedAudio struct {
	Audio          []byte     `json:"audio,omitempty"`
	URL            string     `json:"url,omitempty"`
	Duration       float64    `json:"duration"`
	Tracks         TrackFlags `json:"tracks"`
	DuckingApplied bool       `json:"duckingApplied"`
}

// SubtitleCue is one parsed subtitle entry. Start and End are seconds from
// the beginning of the video.
type SubtitleCue struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// SubtitleResult holds serialized subtitles plus the parsed cue list that
// reproduces them.
type SubtitleResult struct {
	Format       string        `json:"format"` // "srt" or "vtt"
	Content      string        `json:"content"`
	Language     string        `json:"language"`
	SegmentCount int           `json:"segmentCount"`
	IsRTL        bool          `json:"isRTL"`
	Cues         []SubtitleCue `json:"cues"`
}

// IncludedAssets records which asset classes an export bundled.
type IncludedAssets struct {
	Narration  bool `json:"narration"`
	Visuals    bool `json:"visuals"`
	Music      bool `json:"music"`
	Sfx        bool `json:"sfx"`
	Subtitles  bool `json:"subtitles"`
	MixedAudio bool `json:"mixedAudio"`
}

// ExportResult is the final rendered artifact.
type ExportResult struct {
	DownloadURL    string         `json:"downloadUrl"`
	Format         string         `json:"format"`
	AspectRatio    string         `json:"aspectRatio"`
	Quality        string         `json:"quality"`
	Duration       float64        `json:"duration"`
	FileSizeMB     float64        `json:"fileSizeMB"`
	IncludedAssets IncludedAssets `json:"includedAssets"`
}

// TranscriptSegment is one timed span of an imported transcript.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ImportedContent records media brought in from outside (YouTube, an
// uploaded audio file, or a web article).
type ImportedContent struct {
	SourceKind string              `json:"sourceKind"` // "youtube", "audio", "article"
	SourceURL  string              `json:"sourceUrl,omitempty"`
	Title      string              `json:"title,omitempty"`
	Audio      []byte              `json:"audio,omitempty"`
	MimeType   string              `json:"mimeType,omitempty"`
	Transcript string              `json:"transcript,omitempty"`
	Segments   []TranscriptSegment `json:"segments,omitempty"`
	Duration   float64             `json:"duration,omitempty"`
	Metadata   map[string]string   `json:"metadata,omitempty"`
}

// Screenplay holds the artifacts of the screenplay-mode quartet.
type Screenplay struct {
	Breakdown  string               `json:"breakdown,omitempty"`
	Script     string               `json:"script,omitempty"`
	Characters []ScreenplayCharacter `json:"characters,omitempty"`
	Shots      []ScreenplayShot      `json:"shots,omitempty"`
}

// ScreenplayCharacter is one cast entry of a screenplay.
type ScreenplayCharacter struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	VisualRef   string `json:"visualRef,omitempty"`
}

// ScreenplayShot is one shotlist entry.
type ScreenplayShot struct {
	SceneID   string `json:"sceneId"`
	ShotType  string `json:"shotType"`
	CameraDir string `json:"cameraDirection,omitempty"`
	Subject   string `json:"subject"`
}

// SceneCount returns the number of planned scenes, zero when no plan exists.
func (s *State) SceneCount() int {
	if s.ContentPlan == nil {
		return 0
	}
	return len(s.ContentPlan.Scenes)
}

// Touch updates the last-modified timestamp.
func (s *State) Touch() {
	s.UpdatedAt = time.Now()
}

// AppendError appends a tool error to the session's append-only error log.
func (s *State) AppendError(e ToolError) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	s.Errors = append(s.Errors, e)
	s.Touch()
}

// RecordQualityScore stores a validation score and keeps the best score
// monotone: BestQualityScore never decreases even when a later attempt
// regresses.
func (s *State) RecordQualityScore(score int) {
	s.QualityScore = score
	if score > s.BestQualityScore {
		s.BestQualityScore = score
	}
	s.Touch()
}

// VisualForScene returns the visual at the given scene index, or nil when
// none has been generated yet.
func (s *State) VisualForScene(index int) *Visual {
	if index < 0 || index >= len(s.Visuals) {
		return nil
	}
	return &s.Visuals[index]
}

// NarrationForScene returns the narration segment at the given scene index,
// or nil when none exists.
func (s *State) NarrationForScene(index int) *NarrationSegment {
	if index < 0 || index >= len(s.NarrationSegments) {
		return nil
	}
	return &s.NarrationSegments[index]
}
